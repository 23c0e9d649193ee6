package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/utils"
)

type fakeBridge struct {
	mu       sync.Mutex
	code     []string
	resolved []string
	answers  []dialog.Answer
	cleared  int
	current  *dialog.Pending
	err      error
}

func (b *fakeBridge) RunCode(_ context.Context, code string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.code = append(b.code, code)
	return "run_test1", nil
}

func (b *fakeBridge) ResolveDialog(_ context.Context, id string, ans dialog.Answer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.current.ID != id {
		return dialog.ErrUnknownDialog
	}
	b.resolved = append(b.resolved, id)
	b.answers = append(b.answers, ans)
	b.current = nil
	return nil
}

func (b *fakeBridge) CurrentDialog(context.Context) (dialog.Pending, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return dialog.Pending{}, false, nil
	}
	return *b.current, true, nil
}

func (b *fakeBridge) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared++
	return nil
}

type testServer struct {
	hub     *Hub
	bridge  *fakeBridge
	metrics *monitoring.Metrics
	url     string
}

func newTestServer(t *testing.T, bridge *fakeBridge) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	hub := NewHub(nil, metrics)
	router := gin.New()
	router.GET("/stream", NewHandler(hub, bridge, nil).HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		hub:     hub,
		bridge:  bridge,
		metrics: metrics,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream",
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := read(t, conn)
	require.Equal(t, TypeHello, hello.Type)
	require.NotEmpty(t, hello.ConnectionID)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Outbound
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg Inbound) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestRunAndPing(t *testing.T) {
	s := newTestServer(t, &fakeBridge{})
	conn := s.dial(t)

	send(t, conn, Inbound{Type: InRun, Code: "console.log(1)"})
	msg := read(t, conn)
	assert.Equal(t, TypeRunStarted, msg.Type)
	assert.Equal(t, "run_test1", msg.RunID)

	send(t, conn, Inbound{Type: InPing})
	assert.Equal(t, TypePong, read(t, conn).Type)

	send(t, conn, Inbound{Type: InClear})
	assert.Equal(t, TypeCleared, read(t, conn).Type)

	s.bridge.mu.Lock()
	assert.Equal(t, []string{"console.log(1)"}, s.bridge.code)
	assert.Equal(t, 1, s.bridge.cleared)
	s.bridge.mu.Unlock()
}

func TestInvalidRequests(t *testing.T) {
	s := newTestServer(t, &fakeBridge{})
	conn := s.dial(t)

	send(t, conn, Inbound{Type: InRun, Code: strings.Repeat("x", utils.MaxCodeSize+1)})
	msg := read(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Error, "code must be at most")

	send(t, conn, Inbound{Type: "launch"})
	assert.Equal(t, "unknown message type", read(t, conn).Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	assert.Equal(t, "invalid message", read(t, conn).Error)

	send(t, conn, Inbound{Type: InResolve, ID: "dlg_missing"})
	assert.Equal(t, dialog.ErrUnknownDialog.Error(), read(t, conn).Error)
}

func TestResolveDialog(t *testing.T) {
	pending := dialog.Pending{ID: "dlg_1", Mode: "prompt", Message: "Name?", RunID: "run_1"}
	s := newTestServer(t, &fakeBridge{current: &pending})

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, TypeHello, read(t, conn).Type)
	open := read(t, conn)
	require.Equal(t, TypeDialogOpen, open.Type)
	assert.Equal(t, "dlg_1", open.Dialog.ID)

	answer := "Ada"
	send(t, conn, Inbound{Type: InResolve, ID: "dlg_1", Value: &answer})
	msg := read(t, conn)
	assert.Equal(t, TypeResolved, msg.Type)
	assert.Equal(t, "dlg_1", msg.DialogID)

	s.bridge.mu.Lock()
	require.Len(t, s.bridge.answers, 1)
	assert.Equal(t, "Ada", *s.bridge.answers[0].Value)
	s.bridge.mu.Unlock()
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	s := newTestServer(t, &fakeBridge{})
	a := s.dial(t)
	b := s.dial(t)
	require.Eventually(t, func() bool { return s.hub.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), s.metrics.Snapshot().WSConnections)

	s.hub.Present(dialog.Pending{ID: "dlg_2", Mode: "confirm", RunID: "run_9"})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := read(t, conn)
		assert.Equal(t, TypeDialogOpen, msg.Type)
		assert.Equal(t, "dlg_2", msg.Dialog.ID)
	}

	s.hub.Dismiss(dialog.Pending{ID: "dlg_2", RunID: "run_9"}, dialog.DismissRecycled)
	msg := read(t, a)
	assert.Equal(t, TypeDialogDismiss, msg.Type)
	assert.Equal(t, "recycled", msg.Reason)
}

func TestForwardRegistryEvents(t *testing.T) {
	s := newTestServer(t, &fakeBridge{})
	conn := s.dial(t)
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	registry := execution.NewRegistry()
	events, cancel := registry.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go s.hub.Forward(ctx, events)

	runID := registry.StartRun()
	registry.Append(runID, execution.Log("hello"))

	started := read(t, conn)
	assert.Equal(t, string(execution.EventRunStarted), started.Type)
	assert.Equal(t, runID, started.RunID)

	message := read(t, conn)
	assert.Equal(t, string(execution.EventMessage), message.Type)
	require.NotNil(t, message.Message)
	assert.Equal(t, "hello", message.Message.Text)
}

func TestDisconnectUnregisters(t *testing.T) {
	s := newTestServer(t, &fakeBridge{})
	conn := s.dial(t)
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return s.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.metrics.Snapshot().WSConnections == 0 }, time.Second, 10*time.Millisecond)
}
