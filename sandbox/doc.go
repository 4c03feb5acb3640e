// Package sandbox starts analysis engines and exposes each one as a duplex
// text-line channel.
//
// Two kinds of engines are supported:
//
//	Instance  - a WASI preview1 module run by wazero, stdin/stdout as the channel
//	Process   - a native executable run as a child process over pipes
//
// Both implement Engine, whose Handle half is all the protocol layer sees:
//
//	Post(line)    queue one line for the engine, never blocks
//	Listen(fn)    register the inbound line callback
//
// Lines emitted before Listen is called are held and delivered, in order,
// on registration. Diagnostics written to stderr are delivered the same
// way through ListenErrors.
//
// # Engine Modules
//
// A compiled module may carry a custom section named "nnue" holding the
// filename of the weights file it was built for. The section is optional.
//
// # Weights
//
// Files passed in StartOptions are mounted read-only under /weights in the
// guest filesystem.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Every Engine delivers
// inbound lines from a single goroutine.
package sandbox
