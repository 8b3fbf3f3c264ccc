package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/dkim"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/email"
)

const (
	defaultSMTPPort       = 25
	defaultDialTimeout    = 30 * time.Second
	defaultSessionTimeout = 2 * time.Minute
)

// SMTPConfig describes an SMTP provider. With Host empty, mail goes straight
// to the recipient domain's MX hosts; otherwise every message is relayed
// through Host.
type SMTPConfig struct {
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	HeloName string

	// RequireTLS fails the session when the server does not offer STARTTLS.
	RequireTLS bool

	// RatePerSec caps new connections per second; zero means unlimited.
	RatePerSec float64

	DialTimeout    time.Duration
	SessionTimeout time.Duration

	Signer *dkim.Signer
	Log    zerolog.Logger
}

// SMTP is a dispatch.Provider speaking SMTP.
type SMTP struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
	now     func() time.Time
	deliver func(ctx context.Context, host, from, to string, data []byte) error
}

var _ dispatch.Provider = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("smtp provider: name is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultSMTPPort
	}
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = defaultSessionTimeout
	}
	if cfg.RatePerSec < 0 {
		return nil, fmt.Errorf("smtp provider %s: rate must be >= 0", cfg.Name)
	}

	s := &SMTP{cfg: cfg, now: time.Now}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	s.deliver = s.session
	return s, nil
}

func (s *SMTP) Name() string { return s.cfg.Name }

// Send composes, signs and delivers msg, trying each candidate host in turn.
func (s *SMTP) Send(ctx context.Context, msg dispatch.Message) (string, error) {
	from, err := email.ParseAddress(msg.From)
	if err != nil {
		return "", fmt.Errorf("sender: %w", err)
	}
	to, err := email.ParseAddress(msg.To)
	if err != nil {
		return "", fmt.Errorf("recipient: %w", err)
	}

	hosts, err := s.hosts(ctx, to)
	if err != nil {
		return "", err
	}

	c := Compose(msg, s.cfg.HeloName, s.now())
	data, err := s.cfg.Signer.Sign(c.Data, from)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, host := range hosts {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("throttle: %w", err)
			}
		}
		err := s.deliver(ctx, host, from, to, data)
		if err == nil {
			return fmt.Sprintf("delivered to %s as %s", host, c.MessageID), nil
		}
		s.cfg.Log.Debug().Str("provider", s.cfg.Name).Str("host", host).Err(err).Msg("smtp host failed")
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("delivery failed: %w", lastErr)
}

func (s *SMTP) hosts(ctx context.Context, to string) ([]string, error) {
	if s.cfg.Host != "" {
		return []string{s.cfg.Host}, nil
	}
	domain, err := RecipientDomain(to)
	if err != nil {
		return nil, err
	}
	return ResolveMX(ctx, domain)
}

// session runs one SMTP transaction against host.
func (s *SMTP) session(ctx context.Context, host, from, to string, data []byte) error {
	addr := net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := s.now().Add(s.cfg.SessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(s.cfg.HeloName); err != nil {
		return fmt.Errorf("helo: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConf := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConf); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	} else if s.cfg.RequireTLS {
		return errors.New("starttls: required but not offered by server")
	}

	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("auth: server does not support AUTH")
		}
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data start: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", err)
	}
	return nil
}
