package dispatch

import "context"

// Provider transmits a message and returns a confirmation text. Providers are
// tried in the order they are given to New.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}
