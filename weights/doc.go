// Package weights caches engine weights files between sessions.
//
// Entries are keyed by a short version token taken from the weights
// filename the engine recommends (nn-5af11540bbfe.nnue -> 5af115). A
// present entry is trusted unless it is smaller than MinSize, which marks a
// prior partial download, or until the engine reports it as malformed, in
// which case the entry is evicted after a delay that lets in-flight writes
// finish first.
//
// The cache is an optimization only. Store failures are logged and never
// fail a session.
package weights
