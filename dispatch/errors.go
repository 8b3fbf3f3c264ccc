package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMessage is returned for messages with missing fields.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrRateLimited means the shared admission window is full; retry later.
	ErrRateLimited = errors.New("rate limit exceeded, try again later")
	// ErrCircuitOpen marks a provider skipped because its breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrAllProvidersExhausted means no provider delivered the message.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
)

// ProviderError is a provider's final failed attempt after retries.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every provider either failed or was
// skipped.
type ExhaustedError struct {
	Fingerprint string
	Failures    []*ProviderError
	Skipped     []string
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("failed to send email after trying all providers")
	if len(e.Failures) > 0 {
		parts := make([]string, 0, len(e.Failures))
		for _, f := range e.Failures {
			parts = append(parts, f.Error())
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, "; "))
	}
	if len(e.Skipped) > 0 {
		b.WriteString(" (circuit open: ")
		b.WriteString(strings.Join(e.Skipped, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Is matches ErrAllProvidersExhausted always, and ErrCircuitOpen when no
// provider was attempted at all.
func (e *ExhaustedError) Is(target error) bool {
	switch target {
	case ErrAllProvidersExhausted:
		return true
	case ErrCircuitOpen:
		return len(e.Failures) == 0 && len(e.Skipped) > 0
	}
	return false
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}
