// Package diag implements the diagnostic sink external collaborator and the
// typed error taxonomy a load_rules call reports against (spec.md §7).
package diag

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Kind classifies an Error by where in the pipeline it originated.
type Kind string

const (
	Structural  Kind = "STRUCTURAL"
	Schema      Kind = "SCHEMA"
	Composition Kind = "COMPOSITION"
	Compile     Kind = "COMPILE"
	HostVersion Kind = "HOST_VERSION"
	Invariant   Kind = "INVARIANT"
)

// Error is a typed error carrying a Kind from the taxonomy above plus an
// underlying cause and structured fields. The loader and compiler packages
// return plain errors and do not construct an Error themselves. Invariant
// violations are never returned as an error — they panic at the point of
// detection (pkg/dispatch.Counters.OnEvent,
// pkg/filterast.StampRelationalNodes).
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Fields  map[string]interface{}
}

func New(kind Kind, message string, err error, fields map[string]interface{}) *Error {
	return &Error{Kind: kind, Message: message, Err: err, Fields: fields}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Logger is the diagnostic sink a load_rules caller supplies; production
// code drives it through NewZerologLogger, tests can supply a stub.
type Logger interface {
	LogError(err error)
	LogWarning(msg string)
}

// ZerologLogger adapts a zerolog.Logger into Logger, attaching an Error's
// Kind/Fields as structured fields when the logged err is one.
type ZerologLogger struct {
	Log zerolog.Logger
}

func NewZerologLogger(log zerolog.Logger) ZerologLogger {
	return ZerologLogger{Log: log}
}

func (z ZerologLogger) LogError(err error) {
	diagErr, ok := err.(*Error)
	if !ok {
		z.Log.Error().Err(err).Msg(err.Error())
		return
	}

	event := z.Log.Error().Err(diagErr.Err).
		Str("kind", string(diagErr.Kind)).
		Str("message", diagErr.Message)
	for k, v := range diagErr.Fields {
		event = event.Interface(k, v)
	}
	event.Msg(diagErr.Message)
}

func (z ZerologLogger) LogWarning(msg string) {
	z.Log.Warn().Msg(msg)
}
