package watchdog

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the run budget used when none is configured
const DefaultTimeout = 5 * time.Second

// State is where a run sits in the watchdog state machine
type State string

const (
	StateArmed      State = "armed"
	StateDisarmed   State = "disarmed"
	StateExpired    State = "expired"
	StateSuperseded State = "superseded"
)

// Watchdog supervises one run at a time. Arming a new run supersedes the
// armed one, so the last run started owns the timeout window.
type Watchdog struct {
	timeout  time.Duration
	post     func(fn func())
	onExpire func(runID string)
	logger   *zap.Logger

	mu     sync.Mutex
	armed  string
	gen    uint64
	timer  *time.Timer
	states map[string]State
}

// New creates a watchdog. Expiry is delivered through post so onExpire runs
// on the host loop.
func New(timeout time.Duration, post func(fn func()), onExpire func(runID string), logger *zap.Logger) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		timeout:  timeout,
		post:     post,
		onExpire: onExpire,
		logger:   logger,
		states:   make(map[string]State),
	}
}

// Timeout returns the configured budget
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Arm starts the budget for runID, superseding any armed run
func (w *Watchdog) Arm(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.armed != "" {
		w.timer.Stop()
		w.states[w.armed] = StateSuperseded
		w.logger.Debug("Watchdog superseded", zap.String("run_id", w.armed), zap.String("by", runID))
	}

	w.gen++
	gen := w.gen
	w.armed = runID
	w.states[runID] = StateArmed
	w.timer = time.AfterFunc(w.timeout, func() {
		w.post(func() { w.expire(gen) })
	})
}

// Disarm stops supervision when runID is the armed run
func (w *Watchdog) Disarm(runID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.armed == "" || w.armed != runID {
		return false
	}
	w.timer.Stop()
	w.states[runID] = StateDisarmed
	w.armed = ""
	w.gen++
	return true
}

func (w *Watchdog) expire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.armed == "" {
		w.mu.Unlock()
		return
	}
	runID := w.armed
	w.armed = ""
	w.states[runID] = StateExpired
	w.mu.Unlock()

	w.logger.Warn("Watchdog expired", zap.String("run_id", runID), zap.Duration("timeout", w.timeout))
	w.onExpire(runID)
}

// Armed returns the supervised run, if any
func (w *Watchdog) Armed() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed, w.armed != ""
}

// State returns the last known state of runID
func (w *Watchdog) State(runID string) (State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.states[runID]
	return s, ok
}

// Forget drops recorded states, keeping the armed run
func (w *Watchdog) Forget() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for runID := range w.states {
		if runID != w.armed {
			delete(w.states, runID)
		}
	}
}

// Stop cancels the armed timer without expiring it
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.armed = ""
	w.gen++
}
