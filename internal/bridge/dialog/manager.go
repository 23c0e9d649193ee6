package dialog

import (
	"errors"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/id"
)

var (
	ErrUnknownDialog = errors.New("unknown dialog")
	ErrNotPresented  = errors.New("dialog is not being presented")
	ErrQueueFull     = errors.New("dialog queue is full")
)

// DefaultQueueLimit bounds the number of pending dialogs, presented one included
const DefaultQueueLimit = 16

// DismissReason explains why a dialog left the screen
type DismissReason string

const (
	DismissResolved DismissReason = "resolved"
	DismissRecycled DismissReason = "recycled"
)

// Pending is a dialog waiting for a host answer
type Pending struct {
	ID           string                 `json:"id"`
	Mode         protocol.DialogMode    `json:"mode"`
	Message      string                 `json:"message"`
	DisplayText  string                 `json:"display_text"`
	DefaultValue *string                `json:"default_value,omitempty"`
	RealmRef     protocol.CorrelationID `json:"-"`
	ExecutionID  protocol.CorrelationID `json:"-"`
	RunID        string                 `json:"run_id,omitempty"`
	OpenedAt     time.Time              `json:"opened_at"`
}

// Blocking reports whether the realm is suspended waiting for this dialog
func (p Pending) Blocking() bool {
	return p.RealmRef != ""
}

// Answer is the host's resolution. Value is the prompt text (nil cancels);
// Confirmed is the confirm result. Alerts ignore both.
type Answer struct {
	Value     *string `json:"value,omitempty"`
	Confirmed bool    `json:"confirmed"`
}

// Presenter shows dialogs to whoever plays the host UI
type Presenter interface {
	Present(d Pending)
	Dismiss(d Pending, reason DismissReason)
}

// Sender delivers an envelope to the current realm
type Sender func(env protocol.Envelope)

// Manager correlates realm dialog requests with host answers.
// Requests queue FIFO; only the head is presented and resolvable.
// Not safe for concurrent use: the supervisor loop owns it.
type Manager struct {
	queue     []Pending
	limit     int
	send      Sender
	presenter Presenter
	policy    *bluemonday.Policy
	logger    *zap.Logger

	rejected uint64
}

// NewManager creates a dialog manager. limit <= 0 uses DefaultQueueLimit.
func NewManager(send Sender, presenter Presenter, limit int, logger *zap.Logger) *Manager {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	if presenter == nil {
		presenter = nopPresenter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		limit:     limit,
		send:      send,
		presenter: presenter,
		policy:    bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// Request records a realm dialog request. The first queued dialog is
// presented right away. When the queue is full the realm gets the cancel
// answer immediately and ErrQueueFull is returned.
func (m *Manager) Request(req protocol.DialogRequest, runID string) (Pending, error) {
	if len(m.queue) >= m.limit {
		m.rejected++
		m.logger.Warn("Dialog rejected, queue full",
			zap.String("mode", string(req.Mode)),
			zap.String("run_id", runID),
			zap.Int("limit", m.limit))
		m.respond(req.Mode, req.RequestID, req.ExecutionID, Answer{})
		return Pending{}, ErrQueueFull
	}

	d := Pending{
		ID:           id.NewDialogID().String(),
		Mode:         req.Mode,
		Message:      req.Text,
		DisplayText:  m.sanitize(req.Text),
		DefaultValue: req.DefaultValue,
		RealmRef:     req.RequestID,
		ExecutionID:  req.ExecutionID,
		RunID:        runID,
		OpenedAt:     time.Now(),
	}
	m.queue = append(m.queue, d)

	m.logger.Debug("Dialog queued",
		zap.String("dialog_id", d.ID),
		zap.String("mode", string(d.Mode)),
		zap.Int("depth", len(m.queue)))

	if len(m.queue) == 1 {
		m.presenter.Present(d)
	}
	return d, nil
}

// Resolve answers the presented dialog and presents the next one.
// The realm receives exactly one response per blocking dialog.
func (m *Manager) Resolve(dialogID string, ans Answer) error {
	pos := m.index(dialogID)
	switch {
	case pos < 0:
		return ErrUnknownDialog
	case pos > 0:
		return ErrNotPresented
	}

	d := m.queue[0]
	m.queue = m.queue[1:]

	if d.Blocking() {
		m.respond(d.Mode, d.RealmRef, d.ExecutionID, ans)
	}
	m.presenter.Dismiss(d, DismissResolved)

	if len(m.queue) > 0 {
		m.presenter.Present(m.queue[0])
	}
	return nil
}

// Current returns the presented dialog
func (m *Manager) Current() (Pending, bool) {
	if len(m.queue) == 0 {
		return Pending{}, false
	}
	return m.queue[0], true
}

// Queue returns a copy of every pending dialog, head first
func (m *Manager) Queue() []Pending {
	out := make([]Pending, len(m.queue))
	copy(out, m.queue)
	return out
}

// Len returns the number of pending dialogs
func (m *Manager) Len() int {
	return len(m.queue)
}

// Rejected returns how many requests were refused for a full queue
func (m *Manager) Rejected() uint64 {
	return m.rejected
}

// Discard drops every pending dialog without answering the realm.
// Used when the realm that asked is being replaced.
func (m *Manager) Discard() int {
	dropped := m.queue
	m.queue = nil
	for i := len(dropped) - 1; i >= 0; i-- {
		m.presenter.Dismiss(dropped[i], DismissRecycled)
	}
	return len(dropped)
}

func (m *Manager) index(dialogID string) int {
	for i, d := range m.queue {
		if d.ID == dialogID {
			return i
		}
	}
	return -1
}

func (m *Manager) respond(mode protocol.DialogMode, ref, executionID protocol.CorrelationID, ans Answer) {
	if ref == "" {
		return
	}
	resp := protocol.DialogResponse{
		Mode:        mode,
		RequestID:   ref,
		ExecutionID: executionID,
	}
	switch mode {
	case protocol.ModePrompt:
		resp.Value = ans.Value
	case protocol.ModeConfirm:
		resp.Confirmed = ans.Confirmed
	}
	m.send(resp)
}

// sanitize strips markup from realm-provided text; the result is HTML-safe
func (m *Manager) sanitize(text string) string {
	return m.policy.Sanitize(text)
}

type nopPresenter struct{}

func (nopPresenter) Present(Pending)                {}
func (nopPresenter) Dismiss(Pending, DismissReason) {}
