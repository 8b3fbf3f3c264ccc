package email

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidAddress indicates the address failed validation.
var ErrInvalidAddress = errors.New("invalid email address")

// ParseAddress accepts either a bare address or a display-name form such as
// "Ops <ops@example.com>" and returns the lower-cased bare address.
func ParseAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if strings.ContainsAny(raw, "\r\n") {
		return "", fmt.Errorf("%w: unexpected newline", ErrInvalidAddress)
	}
	parsed, err := mail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return strings.ToLower(parsed.Address), nil
}

// Domain returns the domain component of a validated email address.
func Domain(address string) (string, error) {
	at := strings.LastIndex(address, "@")
	if at == -1 || at == len(address)-1 {
		return "", fmt.Errorf("%w: missing domain", ErrInvalidAddress)
	}

	domain := strings.TrimSpace(strings.TrimSuffix(address[at+1:], "."))
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain", ErrInvalidAddress)
	}
	if strings.ContainsAny(domain, " \t") {
		return "", fmt.Errorf("%w: whitespace in domain", ErrInvalidAddress)
	}
	return strings.ToLower(domain), nil
}
