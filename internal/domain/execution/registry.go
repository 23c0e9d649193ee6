package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/id"
)

// ErrInvalidMode is returned for display modes other than all and lastOnly
var ErrInvalidMode = errors.New("invalid display mode")

// DisplayMode selects which runs the read view covers
type DisplayMode string

const (
	ModeAll      DisplayMode = "all"
	ModeLastOnly DisplayMode = "lastOnly"
)

// ParseDisplayMode validates a display mode string
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch DisplayMode(s) {
	case ModeAll, ModeLastOnly:
		return DisplayMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Status is the UI-facing lifecycle of a run. It never gates Append.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusTimedOut Status = "timed-out"
	// StatusAbandoned marks a run whose realm was replaced before it finished
	StatusAbandoned Status = "abandoned"
)

// Run is the captured output of one RunCode call
type Run struct {
	ID         string     `json:"id"`
	Messages   []Message  `json:"messages"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Entry is a view row: a message tagged with the run that produced it
type Entry struct {
	RunID string `json:"run_id"`
	Message
}

// Registry owns the ordered runs and their messages
type Registry struct {
	mu    sync.RWMutex
	runs  []*Run          // Protected by mu, creation order
	index map[string]*Run // Protected by mu
	mode  DisplayMode     // Protected by mu
	newID func() string

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewRegistry creates an empty registry in "all" display mode
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]*Run),
		mode:  ModeAll,
		newID: func() string { return id.NewRunID().String() },
		subs:  make(map[int]chan Event),
	}
}

// WithDisplayMode sets the initial display mode
func (r *Registry) WithDisplayMode(mode DisplayMode) *Registry {
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	return r
}

// StartRun appends a new empty run and returns its id
func (r *Registry) StartRun() string {
	run := &Run{
		ID:        r.newID(),
		Messages:  []Message{},
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.runs = append(r.runs, run)
	r.index[run.ID] = run
	r.mu.Unlock()

	r.publish(Event{Type: EventRunStarted, RunID: run.ID})
	return run.ID
}

// Append adds a message to a run. Unknown ids are ignored and report false.
func (r *Registry) Append(runID string, msg Message) bool {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	r.mu.Lock()
	run, ok := r.index[runID]
	if ok {
		run.Messages = append(run.Messages, msg)
	}
	r.mu.Unlock()

	if ok {
		r.publish(Event{Type: EventMessage, RunID: runID, Message: &msg})
	}
	return ok
}

// MarkFinished records completion of a running run
func (r *Registry) MarkFinished(runID string) bool {
	return r.finish(runID, StatusFinished, EventRunFinished)
}

// MarkTimedOut records a watchdog expiry
func (r *Registry) MarkTimedOut(runID string) bool {
	return r.finish(runID, StatusTimedOut, EventRunTimedOut)
}

// MarkAbandoned records that the realm executing a run went away
func (r *Registry) MarkAbandoned(runID string) bool {
	return r.finish(runID, StatusAbandoned, EventRunAbandoned)
}

func (r *Registry) finish(runID string, status Status, event EventType) bool {
	r.mu.Lock()
	run, ok := r.index[runID]
	if ok && run.Status == StatusRunning {
		now := time.Now()
		run.Status = status
		run.FinishedAt = &now
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.publish(Event{Type: event, RunID: runID})
	}
	return ok
}

// Clear removes every run
func (r *Registry) Clear() {
	r.mu.Lock()
	r.runs = nil
	r.index = make(map[string]*Run)
	r.mu.Unlock()

	r.publish(Event{Type: EventCleared})
}

// SetDisplayMode changes the default read view
func (r *Registry) SetDisplayMode(mode DisplayMode) error {
	if _, err := ParseDisplayMode(string(mode)); err != nil {
		return err
	}

	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()

	r.publish(Event{Type: EventModeChanged, Mode: mode})
	return nil
}

// ToggleDisplayMode flips between all and lastOnly and returns the new mode
func (r *Registry) ToggleDisplayMode() DisplayMode {
	r.mu.Lock()
	if r.mode == ModeAll {
		r.mode = ModeLastOnly
	} else {
		r.mode = ModeAll
	}
	mode := r.mode
	r.mu.Unlock()

	r.publish(Event{Type: EventModeChanged, Mode: mode})
	return mode
}

// DisplayMode returns the current display mode
func (r *Registry) DisplayMode() DisplayMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// View returns the messages visible under the current display mode
func (r *Registry) View() []Entry {
	return r.ViewMode(r.DisplayMode())
}

// ViewMode returns the messages visible under mode. "all" concatenates runs in
// creation order, "lastOnly" returns the newest run only.
func (r *Registry) ViewMode(mode DisplayMode) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := r.runs
	if mode == ModeLastOnly {
		if len(runs) == 0 {
			return []Entry{}
		}
		runs = runs[len(runs)-1:]
	}

	entries := make([]Entry, 0)
	for _, run := range runs {
		for _, msg := range run.Messages {
			entries = append(entries, Entry{RunID: run.ID, Message: msg})
		}
	}
	return entries
}

// Run returns a copy of one run
func (r *Registry) Run(runID string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.index[runID]
	if !ok {
		return Run{}, false
	}
	return run.snapshot(), true
}

// Runs returns copies of every run in creation order
func (r *Registry) Runs() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run.snapshot())
	}
	return runs
}

// Last returns the id of the most recently started run
func (r *Registry) Last() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.runs) == 0 {
		return "", false
	}
	return r.runs[len(r.runs)-1].ID, true
}

// Len returns the number of runs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

func (run *Run) snapshot() Run {
	cp := *run
	cp.Messages = make([]Message, len(run.Messages))
	copy(cp.Messages, run.Messages)
	if run.FinishedAt != nil {
		finished := *run.FinishedAt
		cp.FinishedAt = &finished
	}
	return cp
}
