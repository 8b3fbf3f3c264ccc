// Package dkim signs outbound messages composed by the SMTP and pickup
// providers.
package dkim

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/email"
)

var defaultHeaderKeys = []string{
	"from",
	"to",
	"subject",
	"date",
	"mime-version",
	"content-type",
	"message-id",
}

// Options configures a Signer. PrivateKey (inline PEM) wins over KeyPath.
// Domain is optional; the sender's domain is used when empty.
type Options struct {
	Selector   string
	Domain     string
	KeyPath    string
	PrivateKey string
}

func (o Options) enabled() bool {
	return o.Selector != "" || o.Domain != "" || o.KeyPath != "" || o.PrivateKey != ""
}

// Signer applies DKIM signatures. A nil *Signer passes messages through.
type Signer struct {
	domain     string
	selector   string
	key        crypto.Signer
	headerKeys []string
}

// New returns nil, nil when no option is set, so signing stays off unless
// configured.
func New(opts Options) (*Signer, error) {
	opts.Selector = strings.TrimSpace(opts.Selector)
	opts.Domain = strings.TrimSpace(opts.Domain)
	opts.KeyPath = strings.TrimSpace(opts.KeyPath)
	if !opts.enabled() {
		return nil, nil
	}
	if opts.Selector == "" {
		return nil, errors.New("dkim: selector is required when enabling DKIM")
	}

	var pemData []byte
	switch {
	case opts.PrivateKey != "":
		pemData = []byte(opts.PrivateKey)
	case opts.KeyPath != "":
		data, err := os.ReadFile(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("dkim: read private key: %w", err)
		}
		pemData = data
	default:
		return nil, errors.New("dkim: a key path or inline private key is required")
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}
	return &Signer{
		domain:     strings.ToLower(opts.Domain),
		selector:   opts.Selector,
		key:        key,
		headerKeys: defaultHeaderKeys,
	}, nil
}

func (s *Signer) Selector() string {
	if s == nil {
		return ""
	}
	return s.selector
}

func (s *Signer) Domain() string {
	if s == nil {
		return ""
	}
	return s.domain
}

// Sign returns message with a DKIM-Signature header prepended. Messages that
// already carry one are returned as is.
func (s *Signer) Sign(message []byte, from string) ([]byte, error) {
	if s == nil || s.key == nil || hasSignature(message) {
		return message, nil
	}

	domain := s.domain
	if domain == "" {
		if addr, err := email.ParseAddress(from); err == nil {
			domain, _ = email.Domain(addr)
		}
	}
	if domain == "" {
		return nil, fmt.Errorf("dkim: unable to determine signing domain for %q", from)
	}

	opts := &msgauthdkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             s.headerKeys,
	}

	var signed bytes.Buffer
	if err := msgauthdkim.Sign(&signed, bytes.NewReader(toCRLF(message)), opts); err != nil {
		return nil, fmt.Errorf("dkim: signing failed: %w", err)
	}
	return signed.Bytes(), nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	for block, rest := pem.Decode(pemData); block != nil; block, rest = pem.Decode(rest) {
		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			return key, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			signer, ok := key.(crypto.Signer)
			if !ok {
				return nil, errors.New("unsupported private key type in PKCS#8 container")
			}
			return signer, nil
		}
	}
	return nil, errors.New("no private key found in PEM data")
}

func hasSignature(message []byte) bool {
	upper := bytes.ToUpper(message)
	return bytes.HasPrefix(upper, []byte("DKIM-SIGNATURE:")) || bytes.Contains(upper, []byte("\nDKIM-SIGNATURE:"))
}

// toCRLF converts bare LF line endings; input already using CRLF is kept.
func toCRLF(data []byte) []byte {
	if bytes.Contains(data, []byte("\r\n")) || !bytes.Contains(data, []byte("\n")) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
}
