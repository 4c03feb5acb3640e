// Package errors provides structured error types for the ceval library.
//
// Errors are categorized by Phase (which step of the engine lifecycle failed)
// and Kind (error category). The Error type carries the engine and resource
// involved, a human-readable detail and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFetch, errors.KindHTTPStatus).
//		Resource(url).
//		Value(resp.StatusCode).
//		Detail("unexpected status %d", resp.StatusCode).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Fetch(url, cause)
//	err := errors.Instantiation("stockfish", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
