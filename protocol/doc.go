// Package protocol implements the UCI conversation with an analysis engine.
//
// The Protocol translates Work values into the engine's line-based text
// protocol and parses the engine's answers:
//
//	uci                      -> id name <engine>, uciok
//	setoption ... / isready  -> readyok
//	position ... / go ...    -> info ..., bestmove <move>
//	stop                     -> bestmove <move>
//
// States:
//
//	Uninitialized --Connected--> Idle <--Compute/bestmove--> Computing
//
// Only the most recent Compute intent is honored. A new search is never
// started before the previous one's bestmove arrived.
package protocol
