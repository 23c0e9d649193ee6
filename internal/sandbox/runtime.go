package sandbox

import (
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/id"
)

// callback is a realm-side timer registration
type callback struct {
	fn          goja.Callable
	args        []goja.Value
	kind        protocol.TimerKind
	executionID protocol.CorrelationID
}

// Runtime is a goja realm driven by a mailbox goroutine.
// The VM is touched only by that goroutine; the host talks to it with Post.
type Runtime struct {
	id     string
	vm     *goja.Runtime
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	inbox   [][]byte
	sink    Sink
	started bool
	closing bool

	notify    chan struct{}
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the realm goroutine
	stringify   goja.Callable
	executionID protocol.CorrelationID
	timers      map[protocol.CorrelationID]*callback
	nextTimer   int64
	nextDialog  int64
	labels      map[string]time.Time
}

// New creates a realm with scrubbed globals and the host shim installed
func New(config Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	realmID := id.NewRealmID().String()
	r := &Runtime{
		id:     realmID,
		vm:     goja.New(),
		config: config,
		logger: logger.With(zap.String("realm_id", realmID)),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		timers: make(map[protocol.CorrelationID]*callback),
		labels: make(map[string]time.Time),
	}

	if config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(config.MaxCallStack)
	}

	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the realm id
func (r *Runtime) ID() string {
	return r.id
}

// Start launches the realm goroutine
func (r *Runtime) Start(sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return ErrRealmClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true
	r.sink = sink

	go r.run()
	return nil
}

// Post queues msg for the realm goroutine
func (r *Runtime) Post(msg []byte) error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return ErrRealmClosed
	}
	r.inbox = append(r.inbox, msg)
	r.mu.Unlock()

	r.wake()
	return nil
}

// Close interrupts any running script and stops the realm goroutine
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closing = true
		started := r.started
		r.inbox = nil
		r.mu.Unlock()

		close(r.closed)
		r.vm.Interrupt(ErrRealmClosed)
		if !started {
			close(r.done)
		}
	})
	return nil
}

// Done is closed when the realm goroutine exits
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

func (r *Runtime) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// next blocks until a message is queued or the realm closes
func (r *Runtime) next() ([]byte, bool) {
	for {
		r.mu.Lock()
		if len(r.inbox) > 0 {
			msg := r.inbox[0]
			r.inbox = r.inbox[1:]
			r.mu.Unlock()
			return msg, true
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-r.closed:
			return nil, false
		}
	}
}

// requeue puts messages deferred during a blocking dialog back at the front
func (r *Runtime) requeue(msgs [][]byte) {
	if len(msgs) == 0 {
		return
	}
	r.mu.Lock()
	if !r.closing {
		r.inbox = append(msgs, r.inbox...)
	}
	r.mu.Unlock()
	r.wake()
}

func (r *Runtime) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *Runtime) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Realm goroutine panicked", zap.Any("panic", rec))
		}
	}()

	for {
		msg, ok := r.next()
		if !ok {
			return
		}
		r.handle(msg)
		if r.isClosed() {
			return
		}
	}
}

func (r *Runtime) handle(msg []byte) {
	env, err := protocol.Decode(msg)
	if err != nil {
		r.logger.Debug("Realm dropped envelope", zap.Error(err))
		return
	}

	switch e := env.(type) {
	case protocol.Execute:
		r.execute(e)
	case protocol.TimerFire:
		r.fireTimer(e.TempID)
	case protocol.DialogResponse:
		// Nobody is waiting for it any more
	default:
		r.logger.Debug("Realm ignored envelope", zap.String("type", string(env.Type())))
	}
}

func (r *Runtime) execute(e protocol.Execute) {
	r.executionID = e.ExecutionID

	if _, err := r.vm.RunString(e.Code); err != nil {
		if isInterrupted(err) {
			return
		}
		r.reportError(e.ExecutionID, err)
	}
	r.emit(protocol.ExecutionFinished{ExecutionID: e.ExecutionID})
}

func (r *Runtime) fireTimer(tempID protocol.CorrelationID) {
	cb, ok := r.timers[tempID]
	if !ok {
		return
	}
	if cb.kind == protocol.TimerTimeout {
		delete(r.timers, tempID)
	}

	r.executionID = cb.executionID
	if _, err := cb.fn(goja.Undefined(), cb.args...); err != nil {
		if isInterrupted(err) {
			return
		}
		r.reportError(cb.executionID, err)
	}
}

func (r *Runtime) emit(env protocol.Envelope) {
	msg, err := protocol.Encode(env)
	if err != nil {
		r.logger.Error("Failed to encode realm envelope", zap.String("type", string(env.Type())), zap.Error(err))
		return
	}
	if r.isClosed() {
		return
	}
	r.sink(r, msg)
}

func isInterrupted(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}
