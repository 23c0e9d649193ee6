package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// clock is a manually advanced time source
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New("realm", settings)
	b.now = c.now
	b.mu.Lock()
	b.toNewGeneration(c.now())
	b.mu.Unlock()
	return b, c
}

func fail() (int, error)    { return 0, errBoom }
func succeed() (int, error) { return 42, nil }

func TestDefaultTripsAfterThreeFailures(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	for i := 0; i < 2; i++ {
		_, err := Do(b, fail)
		require.ErrorIs(t, err, errBoom)
		assert.Equal(t, StateClosed, b.State())
	}

	_, err := Do(b, fail)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	_, err = Do(b, succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestDoReturnsTypedResult(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	v, err := Do(b, succeed)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
}

func TestHalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Settings{
		MaxRequests: 2,
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	Do(b, fail)
	require.Equal(t, StateOpen, b.State())

	c.advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_, err := Do(b, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	_, err = Do(b, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	Do(b, fail)
	c.advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	Do(b, fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestHalfOpenLimitsTrials(t *testing.T) {
	b, c := newTestBreaker(Settings{
		MaxRequests: 1,
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	Do(b, fail)
	c.advance(2 * time.Second)

	// The trial call is in flight when a second caller arrives
	var inner error
	_, err := Do(b, func() (int, error) {
		_, inner = Do(b, succeed)
		return 1, nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrTooManyRequests)
}

func TestIntervalClearsCounts(t *testing.T) {
	b, c := newTestBreaker(Settings{Interval: time.Minute})

	Do(b, fail)
	Do(b, fail)
	require.Equal(t, uint32(2), b.Counts().ConsecutiveFailures)

	c.advance(2 * time.Minute)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().ConsecutiveFailures)
}

func TestPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	assert.Panics(t, func() {
		b.Execute(func() (interface{}, error) { panic("realm exploded") })
	})
	assert.Equal(t, StateOpen, b.State())
}
