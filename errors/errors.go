package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the engine lifecycle the error occurred
type Phase string

const (
	PhaseConfig      Phase = "config"      // configuration and settings
	PhaseFetch       Phase = "fetch"       // asset download
	PhaseCache       Phase = "cache"       // weights store access
	PhaseCompile     Phase = "compile"     // engine binary compilation
	PhaseInstantiate Phase = "instantiate" // sandbox or process start
	PhaseChannel     Phase = "channel"     // engine line channel
	PhaseBoot        Phase = "boot"        // boot orchestration
)

// Kind categorizes the error
type Kind string

const (
	KindNetwork       Kind = "network"
	KindHTTPStatus    Kind = "http_status"
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindTooSmall      Kind = "too_small"
	KindStorage       Kind = "storage"
	KindInstantiation Kind = "instantiation"
	KindClosed        Kind = "closed"
	KindQueueFull     Kind = "queue_full"
	KindUnsupported   Kind = "unsupported"
	KindCanceled      Kind = "canceled"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Engine   string
	Resource string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Engine != "" {
		b.WriteString(" engine ")
		b.WriteString(e.Engine)
	}

	if e.Resource != "" {
		b.WriteString(" at ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Engine sets the engine identifier
func (b *Builder) Engine(name string) *Builder {
	b.err.Engine = name
	return b
}

// Resource sets the URL, path or cache key involved
func (b *Builder) Resource(r string) *Builder {
	b.err.Resource = r
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Fetch creates a network failure error for an asset download
func Fetch(url string, cause error) *Error {
	return &Error{
		Phase:    PhaseFetch,
		Kind:     KindNetwork,
		Resource: url,
		Detail:   "request failed",
		Cause:    cause,
	}
}

// HTTPStatus creates an error for a non-success response
func HTTPStatus(url string, code int) *Error {
	return &Error{
		Phase:    PhaseFetch,
		Kind:     KindHTTPStatus,
		Resource: url,
		Detail:   fmt.Sprintf("unexpected status %d", code),
		Value:    code,
	}
}

// Canceled creates an error for an operation aborted by its context
func Canceled(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCanceled,
		Detail: "operation canceled",
		Cause:  cause,
	}
}

// Storage creates a weights store error
func Storage(op, key string, cause error) *Error {
	return &Error{
		Phase:    PhaseCache,
		Kind:     KindStorage,
		Resource: key,
		Detail:   op,
		Cause:    cause,
	}
}

// TooSmall creates an error for a payload below its minimum viable size
func TooSmall(phase Phase, resource string, size, minSize int) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTooSmall,
		Resource: resource,
		Detail:   fmt.Sprintf("%d bytes is below the %d byte minimum", size, minSize),
		Value:    size,
	}
}

// Compile creates an engine compilation error
func Compile(engine string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidData,
		Engine: engine,
		Detail: "compile engine binary",
		Cause:  cause,
	}
}

// Instantiation creates a sandbox or process start error
func Instantiation(engine string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Engine: engine,
		Detail: "start engine",
		Cause:  cause,
	}
}

// Closed creates an error for use of a closed engine channel
func Closed(engine string) *Error {
	return &Error{
		Phase:  PhaseChannel,
		Kind:   KindClosed,
		Engine: engine,
		Detail: "engine channel closed",
	}
}

// QueueFull creates an error for an outbound line that could not be queued
func QueueFull(engine string, pending int) *Error {
	return &Error{
		Phase:  PhaseChannel,
		Kind:   KindQueueFull,
		Engine: engine,
		Detail: fmt.Sprintf("%d lines pending", pending),
		Value:  pending,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Boot wraps a boot failure with the engine it belongs to
func Boot(engine string, cause error) *Error {
	return &Error{
		Phase:  PhaseBoot,
		Kind:   KindInstantiation,
		Engine: engine,
		Detail: "boot failed",
		Cause:  cause,
	}
}
