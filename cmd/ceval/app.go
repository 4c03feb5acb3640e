package main

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/ceval/assets"
	"github.com/wippyai/ceval/config"
	"github.com/wippyai/ceval/engines"
	"github.com/wippyai/ceval/sandbox"
	"github.com/wippyai/ceval/weights"
	"github.com/wippyai/ceval/worker"
)

const (
	wasmEngineID   = "stockfish-wasm"
	nativeEngineID = "native"
)

// app holds what the commands share: configuration, logger, and the
// lazily opened runtime and weights store.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	runtime *sandbox.Runtime
	store   *weights.SQLiteStore
	cache   *weights.Cache
}

func newLogger(level string, outputs ...string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if lvl > zapcore.DebugLevel {
		zc = zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if len(outputs) > 0 {
		zc.OutputPaths = outputs
		zc.ErrorOutputPaths = outputs
	}
	return zc.Build()
}

func (a *app) openStore() (*weights.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.CacheDB), 0o755); err != nil {
		return nil, err
	}
	store, err := weights.OpenSQLite(a.cfg.CacheDB)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) openRuntime(ctx context.Context) (*sandbox.Runtime, error) {
	if a.runtime != nil {
		return a.runtime, nil
	}
	if a.cfg.CompileCache != "" {
		if err := os.MkdirAll(a.cfg.CompileCache, 0o755); err != nil {
			return nil, err
		}
	}
	rt, err := sandbox.NewRuntime(ctx, &sandbox.Config{
		Logger:              a.logger,
		CompilationCacheDir: a.cfg.CompileCache,
		MemoryLimitPages:    a.cfg.MemoryLimitPages,
		EnableThreads:       a.cfg.WasmThreads,
	})
	if err != nil {
		return nil, err
	}
	a.runtime = rt
	return rt, nil
}

// progressHooks observe the downloads of one boot.
type progressHooks struct {
	binary  assets.ProgressFunc
	weights assets.ProgressFunc
}

// registry lists the engines the configuration makes available. The wasm
// engine is preferred; a configured native executable is the fallback.
func (a *app) registry(ctx context.Context, hooks progressHooks) (*engines.Registry, error) {
	var infos []engines.Info

	if a.cfg.AssetBase != "" {
		rt, err := a.openRuntime(ctx)
		if err != nil {
			return nil, err
		}
		var cache *weights.Cache
		fetcher := assets.NewFetcher(&assets.FetcherOptions{
			Logger:   a.logger,
			Attempts: a.cfg.FetchAttempts,
		})
		locator := assets.Locator{BaseURL: a.cfg.AssetBase, Version: a.cfg.AssetVersion}

		if !a.cfg.NoWeights {
			store, err := a.openStore()
			if err != nil {
				return nil, err
			}
			cache = weights.NewCache(weights.CacheOptions{
				Store:   store,
				Fetcher: fetcher,
				Logger:  a.logger,
				Locator: locator,
				Path:    "lifat/nnue/",
			})
			a.cache = cache
		}

		weightsProgress := hooks.weights
		if cache != nil && weightsProgress == nil {
			weightsProgress = func(assets.Progress) {}
		}

		infos = append(infos, engines.Info{
			ID:         wasmEngineID,
			Name:       "Stockfish (wasm)",
			MaxThreads: a.cfg.MaxThreads,
			MaxHashMB:  a.cfg.MaxHashMB,
			Strategy: func() worker.Strategy {
				return &worker.WasmStrategy{
					Runtime:         rt,
					Fetcher:         fetcher,
					Logger:          a.logger,
					Locator:         locator,
					Binary:          a.cfg.Binary,
					Name:            wasmEngineID,
					BinaryProgress:  hooks.binary,
					Cache:           cache,
					WeightsProgress: weightsProgress,
					DefaultWeights:  a.cfg.Weights,
				}
			},
		})
	}

	if a.cfg.EnginePath != "" {
		infos = append(infos, engines.Info{
			ID:         nativeEngineID,
			Name:       filepath.Base(a.cfg.EnginePath),
			MaxThreads: a.cfg.MaxThreads,
			MaxHashMB:  a.cfg.MaxHashMB,
			Strategy: func() worker.Strategy {
				return &worker.ProcessStrategy{Logger: a.logger, Path: a.cfg.EnginePath}
			},
		})
	}

	return engines.NewRegistry(infos...), nil
}

// settings returns the configured analysis settings fitted to info.
func (a *app) settings(info engines.Info) engines.Settings {
	return engines.Settings{
		Threads:    a.cfg.Threads,
		HashMB:     a.cfg.HashMB,
		MultiPV:    a.cfg.MultiPV,
		SearchTime: a.cfg.SearchTime,
	}.Clamp(info)
}

func (a *app) close(ctx context.Context) {
	if a.runtime != nil {
		if err := a.runtime.Close(ctx); err != nil {
			a.logger.Warn("close runtime", zap.Error(err))
		}
	}
	if a.cache != nil {
		a.cache.Flush()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close weights store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
