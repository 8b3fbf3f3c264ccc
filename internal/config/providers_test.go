package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviders(t *testing.T) {
	providers, err := ParseProviders(strings.NewReader(`
providers:
  - name: " mx "
    type: SMTP
    rate_per_sec: 2
    dial_timeout: 5s
  - name: drop
    type: pickup
    dir: /var/spool/pickup
  - name: sim
    type: simulated
    success_rate: 0.5
    latency: 150ms
    seed: 42
`))
	require.NoError(t, err)
	require.Len(t, providers, 3)

	assert.Equal(t, "mx", providers[0].Name)
	assert.Equal(t, ProviderSMTP, providers[0].Type)
	assert.Equal(t, 5*time.Second, providers[0].DialTimeout)
	assert.Equal(t, 2.0, providers[0].RatePerSec)

	assert.Equal(t, "/var/spool/pickup", providers[1].Dir)

	assert.Equal(t, 0.5, providers[2].SuccessRate)
	assert.Equal(t, 150*time.Millisecond, providers[2].Latency)
	assert.Equal(t, int64(42), providers[2].Seed)
}

func TestParseProvidersRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"no providers":  "providers: []\n",
		"unknown field": "providers:\n  - name: a\n    type: simulated\n    colour: red\n",
		"missing name":  "providers:\n  - type: simulated\n",
		"missing type":  "providers:\n  - name: a\n",
		"unknown type":  "providers:\n  - name: a\n    type: carrier-pigeon\n",
		"duplicate":     "providers:\n  - name: a\n    type: simulated\n  - name: a\n    type: simulated\n",
		"bad rate":      "providers:\n  - name: a\n    type: simulated\n    success_rate: 1.5\n",
		"pickup no dir": "providers:\n  - name: a\n    type: pickup\n",
		"bad port":      "providers:\n  - name: a\n    type: smtp\n    port: 70000\n",
		"auth no relay": "providers:\n  - name: a\n    type: smtp\n    username: u\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProviders(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadProvidersMissingFile(t *testing.T) {
	_, err := LoadProviders(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultProviders(t *testing.T) {
	p := DefaultProviders()
	require.Len(t, p, 2)
	assert.Equal(t, "ProviderA", p[0].Name)
	assert.Equal(t, 0.4, p[0].SuccessRate)
	assert.Equal(t, "ProviderB", p[1].Name)
	assert.Equal(t, 0.3, p[1].SuccessRate)
}
