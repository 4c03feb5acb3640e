// Package ceval drives a chess engine running in an isolated execution
// context and exposes it through a small, synchronous-looking contract.
//
// The library is organized into several packages with distinct responsibilities:
//
//	ceval/           Root package with the Worker contract and State
//	├── worker/      Controller: lazy boot, state derivation, boot strategies
//	├── protocol/    UCI state machine over a line channel
//	├── sandbox/     wazero runtime, engine modules, native processes
//	├── weights/     Weights blob cache and its stores
//	├── assets/      Versioned asset URLs and progress-reporting downloads
//	├── engines/     Engine registry and settings clamping
//	├── config/      File, environment and flag configuration
//	└── errors/      Structured error types
//
// # Quick Start
//
//	rt, err := sandbox.NewRuntime(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	w := worker.New(&worker.WasmStrategy{
//	    Runtime: rt,
//	    Fetcher: assets.NewFetcher(nil),
//	    Locator: assets.Locator{BaseURL: "https://cdn.example.org/", Version: "sf16"},
//	    Binary:  "stockfish.wasm",
//	}, worker.Options{Name: "stockfish"})
//
//	w.Start(&protocol.Work{InitialFEN: fen, Limits: protocol.Limits{Depth: 20}})
//	fmt.Println(w.State()) // "loading", then "computing", then "idle"
//
// # States
//
// A worker's state is derived, never stored:
//
//	failed                 -> Failed   (sticky, boot is never retried)
//	boot not started       -> Initial
//	engine not identified  -> Loading
//	search in flight       -> Computing
//	otherwise              -> Idle
//
// # Thread Safety
//
// Workers are safe for concurrent use. Engine lines are delivered to the
// protocol in the order the engine emits them.
package ceval
