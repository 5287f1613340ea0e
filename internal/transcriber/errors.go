package transcriber

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteFailed marks any failure of the remote service: transport
	// errors, timeouts, non-2xx responses, malformed bodies and empty text.
	ErrRemoteFailed = errors.New("remote transcription failed")

	// ErrEmptyTranscription is returned when a backend answered without text.
	ErrEmptyTranscription = errors.New("empty transcription")
)

func remoteFailure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRemoteFailed, err)
}

// FallbackError wraps a failure of the local fallback transcriber. Segments
// that hit it are terminally failed.
type FallbackError struct {
	Provider string
	Err      error
}

func (e *FallbackError) Error() string {
	if e == nil || e.Err == nil {
		return "fallback transcription error"
	}
	return fmt.Sprintf("fallback %s: %v", e.Provider, e.Err)
}

func (e *FallbackError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewFallbackError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &FallbackError{Provider: provider, Err: err}
}

func IsFallbackError(err error) bool {
	var fe *FallbackError
	return errors.As(err, &fe)
}
