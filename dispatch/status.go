package dispatch

import (
	"encoding/json"
	"fmt"
)

type StatusKind int

const (
	StatusDuplicate StatusKind = iota + 1
	StatusRateLimited
	StatusSent
	StatusFailed
	StatusSkipped
	StatusExhausted
)

func (k StatusKind) String() string {
	switch k {
	case StatusDuplicate:
		return "duplicate"
	case StatusRateLimited:
		return "rate_limited"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Status is the latest recorded state for a fingerprint. Only the most
// recent value is kept.
type Status struct {
	Kind     StatusKind
	Provider string
	Reason   string
}

func (s Status) String() string {
	switch s.Kind {
	case StatusDuplicate:
		return "duplicate"
	case StatusRateLimited:
		return "rate_limited"
	case StatusSent:
		return "sent via " + s.Provider
	case StatusFailed:
		return fmt.Sprintf("failed via %s: %s", s.Provider, s.Reason)
	case StatusSkipped:
		return s.Provider + " skipped (circuit open)"
	case StatusExhausted:
		return "failed: all providers"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State    string `json:"state"`
		Provider string `json:"provider,omitempty"`
		Reason   string `json:"reason,omitempty"`
		Text     string `json:"text"`
	}{
		State:    s.Kind.String(),
		Provider: s.Provider,
		Reason:   s.Reason,
		Text:     s.String(),
	})
}
