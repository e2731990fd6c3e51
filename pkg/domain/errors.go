package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrFlowNotFound is returned when a flow cannot be found in the flow store.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrBusy is returned when a response arrives while the session awaits a provider or webhook call.
	ErrBusy = errors.New("session is processing another response")
	// ErrStaleGeneration is returned when a result belongs to a session generation that was restarted.
	ErrStaleGeneration = errors.New("session was restarted while the response was processed")
	// ErrReadOnly is returned by flow stores that cannot persist changes.
	ErrReadOnly = errors.New("flow store is read-only")
	// ErrInvalidFlow is returned when a flow document cannot be decoded.
	ErrInvalidFlow = errors.New("invalid flow")
)

// ProviderError reports a failed completion request.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
