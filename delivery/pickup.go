package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/dkim"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/storage"
)

// Pickup hands messages to a local MTA by writing .eml files into its
// pickup directory.
type Pickup struct {
	name     string
	spool    *storage.Spool
	hostname string
	signer   *dkim.Signer
	now      func() time.Time
}

var _ dispatch.Provider = (*Pickup)(nil)

func NewPickup(name string, spool *storage.Spool, hostname string, signer *dkim.Signer) (*Pickup, error) {
	if name == "" {
		return nil, errors.New("pickup provider: name is required")
	}
	if spool == nil {
		return nil, errors.New("pickup provider: spool is required")
	}
	if hostname == "" {
		hostname = "localhost"
	}
	return &Pickup{name: name, spool: spool, hostname: hostname, signer: signer, now: time.Now}, nil
}

func (p *Pickup) Name() string { return p.name }

func (p *Pickup) Send(ctx context.Context, msg dispatch.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := Compose(msg, p.hostname, p.now())
	data, err := p.signer.Sign(c.Data, msg.From)
	if err != nil {
		return "", err
	}
	path, err := p.spool.Write(c.ID, msg.To, data)
	if err != nil {
		return "", fmt.Errorf("pickup: %w", err)
	}
	return "written to " + path, nil
}
