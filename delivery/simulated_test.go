package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedAlwaysSucceeds(t *testing.T) {
	p := NewSimulated("ProviderA", 1, 0)
	got, err := p.Send(context.Background(), testMessage)
	require.NoError(t, err)
	assert.Equal(t, "Email sent successfully by ProviderA", got)
}

func TestSimulatedAlwaysFails(t *testing.T) {
	p := NewSimulated("ProviderB", 0, 0)
	_, err := p.Send(context.Background(), testMessage)
	require.EqualError(t, err, "Failed to send email by ProviderB")
}

func TestSimulatedSeedIsDeterministic(t *testing.T) {
	run := func() []bool {
		p := NewSimulated("P", 0.5, 0, WithSeed(42))
		out := make([]bool, 0, 20)
		for i := 0; i < 20; i++ {
			_, err := p.Send(context.Background(), testMessage)
			out = append(out, err == nil)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSimulatedLatencyHonoursContext(t *testing.T) {
	p := NewSimulated("slow", 1, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, testMessage)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSimulatedClamps(t *testing.T) {
	p := NewSimulated("P", 3, -time.Second)
	assert.Equal(t, 1.0, p.successRate)
	assert.Zero(t, p.latency)
	assert.Equal(t, 0.0, NewSimulated("P", -1, 0).successRate)
}
