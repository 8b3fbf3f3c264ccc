// Package config reads service settings from the environment, an optional
// .env file and an optional YAML provider list.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHostname = "localhost"
	prefix          = "DISPATCH_"
)

type Config struct {
	Env      string
	LogLevel string
	Listen   string
	Hostname string

	RateLimit  int
	RateWindow time.Duration

	BreakerThreshold int
	BreakerRecovery  time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration

	QueueInterval time.Duration

	TLSCert string
	TLSKey  string

	DKIMSelector   string
	DKIMDomain     string
	DKIMKeyPath    string
	DKIMPrivateKey string

	// SMTPRequireTLS makes SMTP providers refuse servers without STARTTLS.
	SMTPRequireTLS bool

	ProvidersFile string
	Providers     []ProviderConfig
}

// Load reads .env (if present) and the DISPATCH_* variables. Variables
// already set in the process environment win over .env.
func Load() (Config, error) {
	if path := os.Getenv(prefix + "ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:            String(prefix+"ENV", "production"),
		LogLevel:       String(prefix+"LOG_LEVEL", "info"),
		Listen:         String(prefix+"LISTEN", ":3000"),
		Hostname:       Hostname(),
		TLSCert:        String(prefix+"TLS_CERT", ""),
		TLSKey:         String(prefix+"TLS_KEY", ""),
		DKIMSelector:   String(prefix+"DKIM_SELECTOR", ""),
		DKIMDomain:     String(prefix+"DKIM_DOMAIN", ""),
		DKIMKeyPath:    String(prefix+"DKIM_KEY_PATH", ""),
		DKIMPrivateKey: os.Getenv(prefix + "DKIM_PRIVATE_KEY"),
		SMTPRequireTLS: Bool(prefix+"SMTP_REQUIRE_TLS", false),
		ProvidersFile:  String(prefix+"PROVIDERS_FILE", ""),
	}

	var errs []error
	intVar := func(dst *int, name string, def int) {
		v, err := Int(prefix+name, def)
		errs = append(errs, err)
		*dst = v
	}
	durVar := func(dst *time.Duration, name string, def time.Duration) {
		v, err := Duration(prefix+name, def)
		errs = append(errs, err)
		*dst = v
	}
	intVar(&cfg.RateLimit, "RATE_LIMIT", 10)
	durVar(&cfg.RateWindow, "RATE_WINDOW", time.Minute)
	intVar(&cfg.BreakerThreshold, "BREAKER_THRESHOLD", 3)
	durVar(&cfg.BreakerRecovery, "BREAKER_RECOVERY", 10*time.Second)
	intVar(&cfg.RetryAttempts, "RETRY_ATTEMPTS", 3)
	durVar(&cfg.RetryBaseDelay, "RETRY_BASE_DELAY", 500*time.Millisecond)
	durVar(&cfg.QueueInterval, "QUEUE_INTERVAL", 2*time.Second)

	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		errs = append(errs, fmt.Errorf("%sTLS_CERT and %sTLS_KEY must be set together", prefix, prefix))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if cfg.ProvidersFile == "" {
		cfg.Providers = DefaultProviders()
		return cfg, nil
	}
	providers, err := LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Providers = providers
	return cfg, nil
}

// Hostname returns the name the service identifies as in HELO and
// Message-ID. Preference order: DISPATCH_HOSTNAME, system hostname, fallback.
func Hostname() string {
	if env := os.Getenv(prefix + "HOSTNAME"); env != "" {
		return env
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultHostname
}
