// Package assets locates and downloads the large binary payloads an engine
// needs: the engine binary itself and its weights file.
//
// URLs carry the release version as a query parameter so HTTP caches are
// invalidated per release:
//
//	loc := assets.Locator{BaseURL: "https://cdn.example.org/engines/", Version: "sf16"}
//	loc.URL("stockfish.wasm", "")          // .../engines/stockfish.wasm?v=sf16
//	loc.URL("nnue/nn-5af1.nnue", "5af115") // .../engines/nnue/nn-5af1.nnue?v=5af115
//
// Downloads report progress to an optional observer. Progress is never
// buffered: an observer that is not listening simply misses the update.
package assets
