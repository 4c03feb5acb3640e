// Package worker turns a bootable engine into a ceval.Worker.
//
// A Controller owns one Protocol and one engine. The first Start (or
// Preload) boots the engine in the background through a Strategy:
//
//	WasmStrategy     fetch module, compile, resolve weights, start in wazero
//	ProcessStrategy  start a native executable
//
// Start never waits for boot. Work submitted before the engine is ready is
// kept as the latest intent and started once the handshake completes; a
// Stop in between discards it.
//
// A boot error, or the engine exiting on its own, marks the Controller as
// failed for good. There is no retry; construct a new Controller instead.
//
// Destroy only stops the computation. Close tears the engine down and is
// meant for process shutdown.
package worker
