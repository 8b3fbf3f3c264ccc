package queue

import (
	"time"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
)

// Entry is a message waiting for delivery.
type Entry struct {
	ID          string           `json:"id"`
	Message     dispatch.Message `json:"message"`
	Fingerprint string           `json:"fingerprint"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"last_error,omitempty"`
	EnqueuedAt  time.Time        `json:"enqueued_at"`
}
