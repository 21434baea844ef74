package domain

import (
	"errors"
	"fmt"
)

// AuthenticationError means logging in to a provider failed. Every stream in
// the login group is skipped for the cycle and retried on the next one.
type AuthenticationError struct {
	Provider string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authenticate with %s: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// FetchStructureError means the provider answered but the payload could not
// be turned into records. The stream's cache is left untouched.
type FetchStructureError struct {
	Stream string
	Err    error
}

func (e *FetchStructureError) Error() string {
	return fmt.Sprintf("unexpected data for stream %s: %v", e.Stream, e.Err)
}

func (e *FetchStructureError) Unwrap() error { return e.Err }

// PersistenceError means the snapshot store failed to write. The previous
// snapshot stays in place, so the next cycle may re-notify the same additions.
type PersistenceError struct {
	Stream string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist snapshot for stream %s: %v", e.Stream, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorClass is a short label for an error, used in logs, metrics and run records.
type ErrorClass string

const (
	ClassNone           ErrorClass = ""
	ClassAuthentication ErrorClass = "authentication"
	ClassFetchStructure ErrorClass = "fetch_structure"
	ClassPersistence    ErrorClass = "persistence"
	ClassTransport      ErrorClass = "transport"
)

// Classify maps err onto its ErrorClass. Errors outside the taxonomy are
// reported as transport failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var authErr *AuthenticationError
	var structErr *FetchStructureError
	var persistErr *PersistenceError
	switch {
	case errors.As(err, &authErr):
		return ClassAuthentication
	case errors.As(err, &structErr):
		return ClassFetchStructure
	case errors.As(err, &persistErr):
		return ClassPersistence
	default:
		return ClassTransport
	}
}
