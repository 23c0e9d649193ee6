package ws

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/monitoring"
)

// Server -> client message types beyond the registry event names
const (
	TypeHello         = "hello"
	TypeDialogOpen    = "dialog-open"
	TypeDialogDismiss = "dialog-dismiss"
	TypeRunStarted    = "run-accepted"
	TypeResolved      = "resolved"
	TypeCleared       = "clear-accepted"
	TypePong          = "pong"
	TypeError         = "error"
)

// Outbound is every message the server pushes
type Outbound struct {
	Type         string                `json:"type"`
	ConnectionID string                `json:"connection_id,omitempty"`
	RunID        string                `json:"run_id,omitempty"`
	Message      *execution.Message    `json:"message,omitempty"`
	Mode         execution.DisplayMode `json:"mode,omitempty"`
	Dialog       *dialog.Pending       `json:"dialog,omitempty"`
	DialogID     string                `json:"dialog_id,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	Error        string                `json:"error,omitempty"`
	Timestamp    int64                 `json:"timestamp"`
}

// sendBuffer is the per-connection backlog; a client further behind loses
// messages
const sendBuffer = 256

// Hub fans server messages out to every connected client. It doubles as the
// dialog presenter so dialogs show up on every open UI.
type Hub struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[string]*client),
	}
}

// Present implements dialog.Presenter
func (h *Hub) Present(d dialog.Pending) {
	h.Broadcast(Outbound{Type: TypeDialogOpen, Dialog: &d, RunID: d.RunID})
}

// Dismiss implements dialog.Presenter
func (h *Hub) Dismiss(d dialog.Pending, reason dialog.DismissReason) {
	h.Broadcast(Outbound{Type: TypeDialogDismiss, DialogID: d.ID, RunID: d.RunID, Reason: string(reason)})
}

// Forward pushes registry events to clients until ctx ends or the channel
// closes
func (h *Hub) Forward(ctx context.Context, events <-chan execution.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(Outbound{
				Type:    string(ev.Type),
				RunID:   ev.RunID,
				Message: ev.Message,
				Mode:    ev.Mode,
			})
		}
	}
}

// Broadcast queues msg for every client without blocking
func (h *Hub) Broadcast(msg Outbound) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("Broadcast encode failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.deliver(c, msg.Type, data)
	}
}

func (h *Hub) deliver(c *client, msgType string, data []byte) {
	select {
	case c.send <- data:
		if h.metrics != nil {
			h.metrics.RecordWSMessage("out", msgType)
		}
	default:
		h.logger.Warn("Client backlog full, message dropped",
			zap.String("conn_id", c.id),
			zap.String("type", msgType))
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	if ok {
		c.close()
		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
	}
}

// client is one connection's outbound queue
type client struct {
	id        string
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(id string) *client {
	return &client{
		id:     id,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
