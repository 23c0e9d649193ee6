package execution

// EventType names a registry change
type EventType string

const (
	EventRunStarted   EventType = "run-started"
	EventMessage      EventType = "message"
	EventRunFinished  EventType = "run-finished"
	EventRunTimedOut  EventType = "run-timed-out"
	EventRunAbandoned EventType = "run-abandoned"
	EventCleared      EventType = "cleared"
	EventModeChanged  EventType = "mode-changed"
)

// Event is pushed to subscribers after each mutation
type Event struct {
	Type    EventType   `json:"type"`
	RunID   string      `json:"run_id,omitempty"`
	Message *Message    `json:"message,omitempty"`
	Mode    DisplayMode `json:"mode,omitempty"`
}

const subscriberBuffer = 256

// Subscribe returns a channel of change events and a cancel func.
// A subscriber that falls behind loses events; writers never block on it.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	r.subMu.Lock()
	key := r.nextSub
	r.nextSub++
	r.subs[key] = ch
	r.subMu.Unlock()

	var cancelled bool
	cancel := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		delete(r.subs, key)
		close(ch)
	}
	return ch, cancel
}

func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
