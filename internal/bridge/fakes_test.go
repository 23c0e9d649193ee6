package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
	"github.com/GriffinCanCode/sandbox-bridge/internal/sandbox"
)

var errAcquire = errors.New("no spare realm")

// fakeRealm records what the host posts and lets tests emit as the realm
type fakeRealm struct {
	id string

	mu       sync.Mutex
	sink     sandbox.Sink
	posted   [][]byte
	closed   bool
	done     chan struct{}
	startErr error
}

func newFakeRealm(id string) *fakeRealm {
	return &fakeRealm{id: id, done: make(chan struct{})}
}

func (f *fakeRealm) ID() string { return f.id }

func (f *fakeRealm) Start(sink sandbox.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.sink = sink
	return nil
}

func (f *fakeRealm) Post(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return sandbox.ErrRealmClosed
	}
	f.posted = append(f.posted, msg)
	return nil
}

func (f *fakeRealm) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeRealm) Done() <-chan struct{} { return f.done }

func (f *fakeRealm) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeRealm) emit(t *testing.T, env protocol.Envelope) {
	t.Helper()
	raw, err := protocol.Encode(env)
	require.NoError(t, err)
	f.emitRaw(raw)
}

func (f *fakeRealm) emitRaw(raw []byte) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	sink(f, raw)
}

// received decodes everything the host posted so far
func (f *fakeRealm) received(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	posted := append([][]byte(nil), f.posted...)
	f.mu.Unlock()

	out := make([]protocol.Envelope, 0, len(posted))
	for _, raw := range posted {
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (f *fakeRealm) receivedOfType(t *testing.T, typ protocol.Type) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range f.received(t) {
		if env.Type() == typ {
			out = append(out, env)
		}
	}
	return out
}

// fakeSource builds fake realms and can be told to fail
type fakeSource struct {
	mu     sync.Mutex
	realms []*fakeRealm
	fail   bool
}

func (s *fakeSource) Acquire(context.Context) (sandbox.Realm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errAcquire
	}
	r := newFakeRealm(fmt.Sprintf("realm_fake%d", len(s.realms)+1))
	s.realms = append(s.realms, r)
	return r, nil
}

func (s *fakeSource) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *fakeSource) realm(i int) *fakeRealm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realms[i]
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.realms)
}

type presented struct {
	event  string
	dialog dialog.Pending
	reason dialog.DismissReason
}

// recordingPresenter is called from the loop and read from tests
type recordingPresenter struct {
	mu     sync.Mutex
	events []presented
}

func (p *recordingPresenter) Present(d dialog.Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, presented{event: "present", dialog: d})
}

func (p *recordingPresenter) Dismiss(d dialog.Pending, reason dialog.DismissReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, presented{event: "dismiss", dialog: d, reason: reason})
}

func (p *recordingPresenter) all() []presented {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]presented(nil), p.events...)
}

// startFailSource hands out realms that refuse to start
type startFailSource struct {
	last *fakeRealm
}

func (s *startFailSource) Acquire(context.Context) (sandbox.Realm, error) {
	s.last = newFakeRealm("realm_broken")
	s.last.startErr = errors.New("vm init failed")
	return s.last, nil
}
