package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Provider types understood by the provider file.
const (
	ProviderSimulated = "simulated"
	ProviderSMTP      = "smtp"
	ProviderPickup    = "pickup"
)

// ProviderConfig is one entry of the provider file. Order in the file is
// failover order.
type ProviderConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// simulated
	SuccessRate float64       `yaml:"success_rate"`
	Latency     time.Duration `yaml:"latency"`
	Seed        int64         `yaml:"seed"`

	// smtp; an empty host means direct MX delivery
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	RatePerSec  float64       `yaml:"rate_per_sec"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// pickup
	Dir string `yaml:"dir"`
}

type providerFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// DefaultProviders is the demo pair used when no provider file is set.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "ProviderA", Type: ProviderSimulated, SuccessRate: 0.4, Latency: 200 * time.Millisecond},
		{Name: "ProviderB", Type: ProviderSimulated, SuccessRate: 0.3, Latency: 200 * time.Millisecond},
	}
}

// LoadProviders reads and validates the provider file at path.
func LoadProviders(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	providers, err := ParseProviders(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return providers, nil
}

// ParseProviders decodes a provider list. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func ParseProviders(r io.Reader) ([]ProviderConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f providerFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no providers defined")
		}
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, errors.New("no providers defined")
	}

	seen := make(map[string]struct{}, len(f.Providers))
	for i := range f.Providers {
		p := &f.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("provider %q: duplicate name", p.Name)
		}
		seen[p.Name] = struct{}{}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Name, err)
		}
	}
	return f.Providers, nil
}

func (p ProviderConfig) validate() error {
	switch p.Type {
	case ProviderSimulated:
		if p.SuccessRate < 0 || p.SuccessRate > 1 {
			return fmt.Errorf("success_rate must be within [0, 1], got %v", p.SuccessRate)
		}
		if p.Latency < 0 {
			return errors.New("latency must not be negative")
		}
	case ProviderSMTP:
		if p.Port < 0 || p.Port > 65535 {
			return fmt.Errorf("invalid port %d", p.Port)
		}
		if p.Host == "" && p.Username != "" {
			return errors.New("username requires a relay host")
		}
		if p.RatePerSec < 0 {
			return errors.New("rate_per_sec must not be negative")
		}
	case ProviderPickup:
		if strings.TrimSpace(p.Dir) == "" {
			return errors.New("dir is required")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown type %q", p.Type)
	}
	return nil
}
