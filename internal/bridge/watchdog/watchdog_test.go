package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiries struct {
	mu   sync.Mutex
	runs []string
}

func (e *expiries) add(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, runID)
}

func (e *expiries) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runs...)
}

func inline(fn func()) { fn() }

func TestExpiry(t *testing.T) {
	exp := &expiries{}
	w := New(20*time.Millisecond, inline, exp.add, nil)

	w.Arm("run_1")
	state, _ := w.State("run_1")
	assert.Equal(t, StateArmed, state)

	assert.Eventually(t, func() bool { return len(exp.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"run_1"}, exp.get())

	state, _ = w.State("run_1")
	assert.Equal(t, StateExpired, state)
	_, armed := w.Armed()
	assert.False(t, armed)
}

func TestDisarmBeforeExpiry(t *testing.T) {
	exp := &expiries{}
	w := New(30*time.Millisecond, inline, exp.add, nil)

	w.Arm("run_1")
	require.True(t, w.Disarm("run_1"))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, exp.get())
	state, _ := w.State("run_1")
	assert.Equal(t, StateDisarmed, state)
}

func TestDisarmOtherRunIsIgnored(t *testing.T) {
	w := New(time.Minute, inline, func(string) {}, nil)
	defer w.Stop()

	w.Arm("run_2")
	assert.False(t, w.Disarm("run_1"))

	armed, ok := w.Armed()
	assert.True(t, ok)
	assert.Equal(t, "run_2", armed)
}

func TestArmSupersedes(t *testing.T) {
	exp := &expiries{}
	w := New(40*time.Millisecond, inline, exp.add, nil)

	w.Arm("run_1")
	time.Sleep(20 * time.Millisecond)
	w.Arm("run_2")

	state, _ := w.State("run_1")
	assert.Equal(t, StateSuperseded, state)

	assert.Eventually(t, func() bool { return len(exp.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"run_2"}, exp.get())
}

func TestStaleExpiryAfterDisarm(t *testing.T) {
	// Expiry posted to a busy loop must not fire once the run was disarmed
	var queued []func()
	var mu sync.Mutex
	post := func(fn func()) {
		mu.Lock()
		queued = append(queued, fn)
		mu.Unlock()
	}
	exp := &expiries{}
	w := New(5*time.Millisecond, post, exp.add, nil)

	w.Arm("run_1")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queued) == 1
	}, time.Second, time.Millisecond)

	w.Disarm("run_1")
	mu.Lock()
	queued[0]()
	mu.Unlock()

	assert.Empty(t, exp.get())
}

func TestForgetKeepsArmed(t *testing.T) {
	w := New(time.Minute, inline, func(string) {}, nil)
	defer w.Stop()

	w.Arm("run_1")
	w.Disarm("run_1")
	w.Arm("run_2")
	w.Forget()

	_, ok := w.State("run_1")
	assert.False(t, ok)
	state, ok := w.State("run_2")
	assert.True(t, ok)
	assert.Equal(t, StateArmed, state)
}

func TestDefaultTimeout(t *testing.T) {
	w := New(0, inline, func(string) {}, nil)
	assert.Equal(t, DefaultTimeout, w.Timeout())
}
