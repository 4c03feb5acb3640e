package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wippyai/ceval/errors"
)

// EnvPrefix prefixes every environment variable the configuration reads,
// e.g. CEVAL_ASSET_BASE.
const EnvPrefix = "CEVAL"

// Config holds the settings of the ceval command.
type Config struct {
	// Assets
	AssetBase     string `mapstructure:"asset-base"`
	AssetVersion  string `mapstructure:"asset-version"`
	Binary        string `mapstructure:"binary"`
	Weights       string `mapstructure:"weights"`
	FetchAttempts uint   `mapstructure:"fetch-attempts"`

	// Engine selection
	Engine      string `mapstructure:"engine"`
	EnginePath  string `mapstructure:"engine-path"`
	NoWeights   bool   `mapstructure:"no-weights"`
	MaxThreads  int    `mapstructure:"max-threads"`
	MaxHashMB   int    `mapstructure:"max-hash"`
	Threads     int    `mapstructure:"threads"`
	HashMB      int    `mapstructure:"hash"`
	MultiPV     int    `mapstructure:"multipv"`
	WasmThreads bool   `mapstructure:"wasm-threads"`

	SearchTime time.Duration `mapstructure:"search-time"`

	// Storage
	CacheDB          string `mapstructure:"cache-db"`
	CompileCache     string `mapstructure:"compile-cache"`
	MemoryLimitPages uint32 `mapstructure:"memory-pages"`

	LogLevel string `mapstructure:"log-level"`
}

// New creates a viper instance reading CEVAL_* environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags defines the configuration flags on fs and binds them to v.
// Flags win over the environment, which wins over the config file.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	dataDir := defaultDataDir()

	fs.String("asset-base", "https://lichess1.org/assets/", "base URL of engine and weights assets")
	fs.String("asset-version", "sf160", "asset version appended as ?v=")
	fs.String("binary", "npm/stockfish-web/stockfish.wasm", "engine module path under the asset base")
	fs.String("weights", "", "weights filename used when the module does not name one")
	fs.Uint("fetch-attempts", 3, "download attempts per asset")

	fs.String("engine", "", "engine id (default: best for the variant)")
	fs.String("engine-path", "", "native engine executable; registers the \"native\" engine")
	fs.Bool("no-weights", false, "run on the engine's built-in weights")
	fs.Int("max-threads", 8, "thread ceiling of the wasm engine")
	fs.Int("max-hash", 512, "hash ceiling of the wasm engine in MB")
	fs.Int("threads", 1, "search threads")
	fs.Int("hash", 16, "hash table size in MB")
	fs.Int("multipv", 1, "principal variations")
	fs.Bool("wasm-threads", false, "enable the WebAssembly threads proposal")
	fs.Duration("search-time", 0, "time per search (0 = infinite)")

	fs.String("cache-db", filepath.Join(dataDir, "weights.db"), "weights cache database")
	fs.String("compile-cache", filepath.Join(dataDir, "compiled"), "compiled module cache directory (empty disables)")
	fs.Uint32("memory-pages", 0, "memory limit per engine in 64KiB pages (0 = default)")

	fs.String("log-level", "info", "log level (debug|info|warn|error)")

	return v.BindPFlags(fs)
}

// Load reads the optional config file and decodes the merged settings.
// An empty file means ceval.yaml in the working directory or the user
// config directory, if present.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ceval")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "ceval"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !stderrors.As(err, &notFound) {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Resource(file).
				Detail("read config file").
				Cause(err).
				Build()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("decode config").
			Cause(err).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if c.AssetBase == "" && c.EnginePath == "" {
		return errors.InvalidInput(errors.PhaseConfig, "either asset-base or engine-path is required")
	}
	if c.FetchAttempts == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "fetch-attempts must be at least 1")
	}
	if c.SearchTime < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "search-time must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "unknown log level "+c.LogLevel)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "ceval")
	}
	return ".ceval"
}
