package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected locally, before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrMalformedResponse marks an engine payload missing required structure.
	ErrMalformedResponse = errors.New("malformed engine response")

	// ErrNotFound marks a lookup for an id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoAnalysis is returned by operations that need a loaded analysis.
	ErrNoAnalysis = errors.New("no analysis loaded")

	// ErrSuperseded marks a result dropped because a newer request or a reset won.
	ErrSuperseded = errors.New("superseded")

	// ErrInvalidInput marks invalid arguments to infrastructure components.
	ErrInvalidInput = errors.New("invalid input")
)

// EngineError is a non-2xx response from the detection engine.
// Message is the engine's detail when present, else the HTTP status text.
type EngineError struct {
	Status  int
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error (%d): %s", e.Status, e.Message)
}
