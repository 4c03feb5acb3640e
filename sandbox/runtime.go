package sandbox

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/ceval/errors"
)

// Config holds configuration for runtime creation
type Config struct {
	Logger *zap.Logger

	// CompilationCacheDir persists compiled engine code between runs.
	// Empty means compile in memory only.
	CompilationCacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 4096 = 256MB, 16384 = 1GB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental),
	// needed by multi-threaded engine builds that use shared memory.
	EnableThreads bool
}

// Runtime compiles and runs engine modules. One Runtime may host several
// engines.
type Runtime struct {
	runtime      wazero.Runtime
	cache        wazero.CompilationCache
	logger       *zap.Logger
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// NewRuntime creates a runtime. A nil cfg uses defaults.
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCustomSections(true).
		WithCloseOnContextDone(true)

	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}

	var cache wazero.CompilationCache
	if cfg.CompilationCacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Resource(cfg.CompilationCacheDir).
				Detail("open compilation cache").
				Cause(err).
				Build()
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		logger:  logger,
	}, nil
}

// Close releases the runtime and every module running in it.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.runtime.Close(ctx)
	if r.cache != nil {
		if cerr := r.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// initWASI instantiates WASI preview1 for this runtime.
// Safe for concurrent calls from multiple engines sharing the runtime.
func (r *Runtime) initWASI(ctx context.Context) error {
	if r.wasiInitDone.Load() {
		return nil
	}

	r.wasiInitMu.Lock()
	defer r.wasiInitMu.Unlock()

	if r.wasiInitDone.Load() {
		return nil
	}

	if r.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			return errors.Instantiation(wasi_snapshot_preview1.ModuleName, err)
		}
	}

	r.wasiInitDone.Store(true)
	return nil
}

// Compile validates and compiles an engine binary. name identifies the
// engine in errors and logs.
func (r *Runtime) Compile(ctx context.Context, name string, binary []byte) (*Module, error) {
	if len(binary) == 0 {
		return nil, errors.Compile(name, errors.InvalidInput(errors.PhaseCompile, "empty engine binary"))
	}
	if err := r.initWASI(ctx); err != nil {
		return nil, err
	}

	compiled, err := r.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Compile(name, err)
	}

	return &Module{
		runtime:  r,
		compiled: compiled,
		name:     name,
	}, nil
}
