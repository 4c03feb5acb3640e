package worker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/ceval/assets"
	"github.com/wippyai/ceval/errors"
	"github.com/wippyai/ceval/sandbox"
	"github.com/wippyai/ceval/weights"
)

// badWeightsPrefix marks the diagnostic an engine prints when it rejects
// its weights file.
const badWeightsPrefix = "BAD_NNUE"

// OptionSetter queues engine options to be sent once the engine is ready.
type OptionSetter interface {
	SetOption(name, value string)
}

// Strategy boots one kind of engine. Boot is called at most once per
// Controller; options it needs sent after the handshake go through opts.
type Strategy interface {
	Boot(ctx context.Context, opts OptionSetter) (sandbox.Engine, error)
}

// Fetcher downloads an asset with progress reporting.
type Fetcher interface {
	Fetch(ctx context.Context, url string, onProgress assets.ProgressFunc) ([]byte, error)
}

// WasmStrategy boots a WASI engine module.
type WasmStrategy struct {
	Runtime *sandbox.Runtime
	Fetcher Fetcher
	Logger  *zap.Logger
	Locator assets.Locator

	// Binary is the module path under the locator's base URL.
	Binary string
	// Name identifies the engine in logs and errors. Defaults to Binary.
	Name string
	// BinaryProgress, when set, observes the module download.
	BinaryProgress assets.ProgressFunc

	// Cache and WeightsProgress enable the weights download. Without a
	// progress observer the engine runs on its built-in weights.
	Cache           *weights.Cache
	WeightsProgress assets.ProgressFunc
	// DefaultWeights is used when the module does not name its weights.
	DefaultWeights string

	Args []string
}

// Boot fetches and compiles the module, resolves its weights and starts it.
func (s *WasmStrategy) Boot(ctx context.Context, opts OptionSetter) (sandbox.Engine, error) {
	if s.Runtime == nil || s.Fetcher == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "wasm strategy needs a runtime and a fetcher")
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := s.Name
	if name == "" {
		name = s.Binary
	}

	binary, err := s.Fetcher.Fetch(ctx, s.Locator.URL(s.Binary, ""), s.BinaryProgress)
	if err != nil {
		return nil, err
	}
	mod, err := s.Runtime.Compile(ctx, name, binary)
	if err != nil {
		return nil, err
	}

	filename := mod.RecommendedWeights()
	if filename == "" {
		filename = s.DefaultWeights
	}
	version := weights.Version(filename)

	start := sandbox.StartOptions{Args: s.Args}
	if s.Cache != nil && s.WeightsProgress != nil && filename != "" {
		blob, err := s.Cache.Resolve(ctx, filename, s.WeightsProgress)
		if err != nil {
			return nil, err
		}
		start.Files = map[string][]byte{filename: blob}
		opts.SetOption("EvalFile", sandbox.WeightsDir+"/"+filename)
		logger.Debug("weights resolved",
			zap.String("engine", name), zap.String("file", filename), zap.Int("bytes", len(blob)))
	}

	inst, err := mod.Start(ctx, start)
	if err != nil {
		return nil, err
	}

	inst.ListenErrors(weightsDiagnostics(s.Cache, logger, name, version))

	return inst, nil
}

// weightsDiagnostics handles the engine's stderr. A weights rejection
// schedules eviction of the cached blob; anything else is logged.
func weightsDiagnostics(cache *weights.Cache, logger *zap.Logger, name, version string) func(string) {
	return func(line string) {
		if !strings.HasPrefix(line, badWeightsPrefix) {
			logger.Error(line, zap.String("engine", name))
			return
		}
		logger.Warn("engine rejected weights", zap.String("engine", name), zap.String("version", version))
		if cache != nil && version != "" {
			cache.EvictLater(version)
		}
	}
}

// ProcessStrategy boots a native engine executable.
type ProcessStrategy struct {
	Logger *zap.Logger
	Path   string
	Dir    string
	Args   []string
	// Options are sent after the handshake, e.g. a weights file path.
	Options map[string]string
}

// Boot starts the executable.
func (s *ProcessStrategy) Boot(ctx context.Context, opts OptionSetter) (sandbox.Engine, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := sandbox.StartProcess(ctx, sandbox.ProcessOptions{
		Logger: logger,
		Path:   s.Path,
		Dir:    s.Dir,
		Args:   s.Args,
	})
	if err != nil {
		return nil, err
	}

	for name, value := range s.Options {
		opts.SetOption(name, value)
	}
	p.ListenErrors(func(line string) {
		logger.Warn(line, zap.String("engine", s.Path))
	})
	return p, nil
}
