package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Message is an outbound email. It is treated as immutable once submitted.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks that every field is present. Content is not inspected.
func (m Message) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"from", m.From},
		{"to", m.To},
		{"subject", m.Subject},
		{"body", m.Body},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidMessage, f.name)
		}
	}
	return nil
}

// Fingerprint identifies a message by recipient, subject and body. The
// sender is not part of the identity, so the same content sent to the same
// recipient from two addresses is one logical message.
func Fingerprint(m Message) string {
	sum := sha256.Sum256([]byte(m.To + "::" + m.Subject + "::" + m.Body))
	return hex.EncodeToString(sum[:])
}
