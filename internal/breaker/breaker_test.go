package breaker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newTestBreaker(t *testing.T) (*Breaker, *testingclock.FakePassiveClock) {
	t.Helper()
	clk := testingclock.NewFakePassiveClock(time.Unix(1000, 0))
	return New("X", Config{FailureThreshold: 3, RecoveryTimeout: 10 * time.Second}, clk), clk
}

func TestNewStartsClosed(t *testing.T) {
	b, _ := newTestBreaker(t)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.True(t, b.Allow())
	assert.Equal(t, "X", b.Name())
}

func TestOpensExactlyAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State(), "two failures must not open a threshold-3 breaker")
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 3, b.Failures())
	assert.False(t, b.Allow())
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, clk := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	opened := clk.Now()

	clk.SetTime(opened.Add(10 * time.Second))
	assert.False(t, b.Allow(), "timeout must be strictly exceeded")
	assert.Equal(t, Open, b.State())

	clk.SetTime(opened.Add(10*time.Second + time.Millisecond))
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenGrantsSingleTrial(t *testing.T) {
	b, clk := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clk.SetTime(clk.Now().Add(11 * time.Second))

	require.True(t, b.Allow())
	assert.False(t, b.Allow(), "second caller must not get a trial while one is outstanding")
	assert.False(t, b.Allow())
}

func TestConcurrentHalfOpenTrials(t *testing.T) {
	b, clk := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clk.SetTime(clk.Now().Add(11 * time.Second))

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}

func TestTrialSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clk.SetTime(clk.Now().Add(11 * time.Second))
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.True(t, b.Allow())
}

func TestTrialFailureReopensAndRestartsTimer(t *testing.T) {
	b, clk := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clk.SetTime(clk.Now().Add(11 * time.Second))
	require.True(t, b.Allow())

	b.RecordFailure()
	reopened := clk.Now()
	assert.Equal(t, Open, b.State())
	assert.Equal(t, reopened, b.Snapshot().LastFailure)

	clk.SetTime(reopened.Add(5 * time.Second))
	assert.False(t, b.Allow())
	clk.SetTime(reopened.Add(11 * time.Second))
	assert.True(t, b.Allow())
}

func TestRecordSuccessResetsFromAnyState(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, Closed, b.State())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, Open, b.State())
	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, Closed, b.State())
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.WithDefaults()
	assert.Equal(t, DefaultFailureThreshold, c.FailureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, c.RecoveryTimeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", Closed.String())
	assert.Equal(t, "HALF_OPEN", HalfOpen.String())
	assert.Equal(t, "OPEN", Open.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestReleaseReturnsTrialPermit(t *testing.T) {
	b, clk := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clk.SetTime(clk.Now().Add(11 * time.Second))
	require.True(t, b.Allow())
	require.False(t, b.Allow())

	b.Release()
	assert.Equal(t, HalfOpen, b.State())
	assert.True(t, b.Allow())
}
