package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestTimeout = 10 * time.Second
	maxFrameSize   = utils.MaxCodeSize + utils.MaxMessageSize
)

// Client -> server message types
const (
	InRun     = "run"
	InResolve = "resolve"
	InClear   = "clear"
	InPing    = "ping"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // UIs are served from anywhere; the API carries no credentials
	},
}

// Bridge is the part of the supervisor the stream drives
type Bridge interface {
	RunCode(ctx context.Context, code string) (string, error)
	ResolveDialog(ctx context.Context, dialogID string, ans dialog.Answer) error
	CurrentDialog(ctx context.Context) (dialog.Pending, bool, error)
	Clear(ctx context.Context) error
}

// Inbound is a client request
type Inbound struct {
	Type      string  `json:"type"`
	Code      string  `json:"code,omitempty"`
	ID        string  `json:"id,omitempty"`
	Value     *string `json:"value,omitempty"`
	Confirmed bool    `json:"confirmed,omitempty"`
}

// Handler upgrades /stream connections and serves them
type Handler struct {
	hub    *Hub
	bridge Bridge
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, bridge Bridge, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, bridge: bridge, logger: logger}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(uuid.NewString())
	h.hub.register(cl)
	log := h.logger.With(zap.String("conn_id", cl.id))
	log.Info("Client connected", zap.String("remote", c.ClientIP()))

	go h.writePump(conn, cl, log)

	h.reply(cl, Outbound{Type: TypeHello, ConnectionID: cl.id})
	if current, ok, err := h.bridge.CurrentDialog(c.Request.Context()); err == nil && ok {
		h.reply(cl, Outbound{Type: TypeDialogOpen, Dialog: &current, RunID: current.RunID})
	}

	h.readPump(c.Request.Context(), conn, cl, log)

	h.hub.unregister(cl)
	log.Info("Client disconnected")
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, cl *client, log *zap.Logger) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg Inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.reply(cl, Outbound{Type: TypeError, Error: "invalid message"})
			continue
		}
		if h.hub.metrics != nil {
			h.hub.metrics.RecordWSMessage("in", msg.Type)
		}
		h.handle(ctx, cl, msg)
	}
}

func (h *Handler) handle(parent context.Context, cl *client, msg Inbound) {
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()

	switch msg.Type {
	case InRun:
		if err := utils.ValidateCode(msg.Code); err != nil {
			h.replyError(cl, err)
			return
		}
		runID, err := h.bridge.RunCode(ctx, msg.Code)
		if err != nil {
			h.replyError(cl, err)
			return
		}
		h.reply(cl, Outbound{Type: TypeRunStarted, RunID: runID})

	case InResolve:
		if err := utils.ValidateID(msg.ID, "id", true); err != nil {
			h.replyError(cl, err)
			return
		}
		if err := utils.ValidateAnswer(msg.Value); err != nil {
			h.replyError(cl, err)
			return
		}
		if err := h.bridge.ResolveDialog(ctx, msg.ID, dialog.Answer{Value: msg.Value, Confirmed: msg.Confirmed}); err != nil {
			h.replyError(cl, err)
			return
		}
		h.reply(cl, Outbound{Type: TypeResolved, DialogID: msg.ID})

	case InClear:
		if err := h.bridge.Clear(ctx); err != nil {
			h.replyError(cl, err)
			return
		}
		h.reply(cl, Outbound{Type: TypeCleared})

	case InPing:
		h.reply(cl, Outbound{Type: TypePong})

	default:
		h.replyError(cl, errors.New("unknown message type"))
	}
}

func (h *Handler) writePump(conn *websocket.Conn, cl *client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-cl.closed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("WebSocket write failed", zap.Error(err))
				h.hub.unregister(cl)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.unregister(cl)
				return
			}
		}
	}
}

func (h *Handler) reply(cl *client, msg Outbound) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("Reply encode failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.hub.deliver(cl, msg.Type, data)
}

func (h *Handler) replyError(cl *client, err error) {
	h.reply(cl, Outbound{Type: TypeError, Error: err.Error()})
}
