package registry

import (
	"errors"
	"fmt"
)

// Failure categories of a record fetch. A *FetchError matches exactly one of
// them with errors.Is.
var (
	// ErrRegistryUnavailable covers network, timeout and render failures.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrRecordNotFound means the registry answered but holds no record for the ID.
	ErrRecordNotFound = errors.New("record not found")
)

// FetchError describes why one registry ID could not be turned into a record.
type FetchError struct {
	Kind       error
	RegistryID string
	Message    string
	Underlying error
}

func (e *FetchError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry id %s [%v]: %s: %v", e.RegistryID, e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry id %s [%v]: %s", e.RegistryID, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is the failure category of e.
func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func unavailable(id, message string, underlying error) *FetchError {
	return &FetchError{Kind: ErrRegistryUnavailable, RegistryID: id, Message: message, Underlying: underlying}
}

func notFound(id, message string) *FetchError {
	return &FetchError{Kind: ErrRecordNotFound, RegistryID: id, Message: message}
}

// Category returns a short label for metrics and logs.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrRegistryUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
