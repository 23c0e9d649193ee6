package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/timers"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/watchdog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/sandbox-bridge/internal/sandbox"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/utils"
)

var (
	ErrClosed  = errors.New("bridge is closed")
	ErrNoRealm = errors.New("no realm available")
)

// TimeoutMessage is appended to a run the watchdog terminated
const TimeoutMessage = "Script terminated due to timeout"

// Recycle reasons
const (
	ReasonTimeout = "timeout"
	ReasonManual  = "manual"
)

// RealmSource hands out fresh, unstarted realms
type RealmSource interface {
	Acquire(ctx context.Context) (sandbox.Realm, error)
}

// Options configures a Supervisor
type Options struct {
	WatchdogTimeout time.Duration
	DialogQueue     int
	AcquireTimeout  time.Duration
	Breaker         resilience.Settings
}

// DefaultOptions returns the stock bridge settings
func DefaultOptions() Options {
	return Options{
		WatchdogTimeout: watchdog.DefaultTimeout,
		DialogQueue:     dialog.DefaultQueueLimit,
		AcquireTimeout:  5 * time.Second,
	}
}

// Supervisor owns the current realm and every piece of bridge state.
// All of it is touched only on the loop goroutine.
type Supervisor struct {
	opts     Options
	source   RealmSource
	registry *execution.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	breaker  *resilience.Breaker
	hasher   *utils.Hasher

	tasks     chan func()
	stopped   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Loop-owned
	realm      sandbox.Realm
	generation uint64
	running    map[string]time.Time
	timers     *timers.Proxy
	dialogs    *dialog.Manager
	watchdog   *watchdog.Watchdog
	dropped    map[string]uint64
	recycles   uint64
}

// New starts the supervisor loop and binds the first realm. A failed first
// bind is logged, not returned: RunCode retries it.
func New(opts Options, source RealmSource, registry *execution.Registry, presenter dialog.Presenter, logger *zap.Logger, metrics *monitoring.Metrics) *Supervisor {
	defaults := DefaultOptions()
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = defaults.WatchdogTimeout
	}
	if opts.DialogQueue <= 0 {
		opts.DialogQueue = defaults.DialogQueue
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaults.AcquireTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	s := &Supervisor{
		opts:     opts,
		source:   source,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		hasher:   utils.NewHasher(),
		tasks:    make(chan func(), taskBuffer),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		running:  make(map[string]time.Time),
		dropped:  make(map[string]uint64),
	}

	breakerSettings := opts.Breaker
	breakerSettings.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("Realm breaker changed state",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	s.breaker = resilience.New("realm", breakerSettings)

	s.timers = timers.New(s.post, s.sendTimerFire, logger.Named("timers"))
	s.dialogs = dialog.NewManager(s.send, presenter, opts.DialogQueue, logger.Named("dialog"))
	s.watchdog = watchdog.New(opts.WatchdogTimeout, s.post, s.expire, logger.Named("watchdog"))

	go s.run()

	_ = s.do(context.Background(), func() {
		if err := s.bind(); err != nil {
			s.logger.Error("Initial realm bind failed", zap.Error(err))
		}
	})
	return s
}

// RunCode opens a run, arms the watchdog and sends the source to the realm
func (s *Supervisor) RunCode(ctx context.Context, code string) (string, error) {
	var (
		runID  string
		runErr error
	)
	err := s.do(ctx, func() {
		if s.realm == nil {
			if runErr = s.bind(); runErr != nil {
				return
			}
		}

		runID = s.registry.StartRun()
		s.running[runID] = time.Now()
		s.metrics.RecordRunStarted()
		s.watchdog.Arm(runID)

		s.logger.Debug("Run started",
			zap.String("run_id", runID),
			zap.String("realm_id", s.realm.ID()),
			zap.String("code_hash", s.hasher.ShortHash(code)),
			zap.Int("code_bytes", len(code)))

		s.send(protocol.Execute{Code: code, ExecutionID: protocol.CorrelationID(runID)})
	})
	if err != nil {
		return "", err
	}
	return runID, runErr
}

// ResolveDialog answers the presented dialog
func (s *Supervisor) ResolveDialog(ctx context.Context, dialogID string, ans dialog.Answer) error {
	var resolveErr error
	err := s.do(ctx, func() {
		resolveErr = s.dialogs.Resolve(dialogID, ans)
		s.metrics.SetDialogsPending(s.dialogs.Len())
	})
	if err != nil {
		return err
	}
	return resolveErr
}

// CurrentDialog returns the dialog being presented, if any
func (s *Supervisor) CurrentDialog(ctx context.Context) (dialog.Pending, bool, error) {
	var (
		current dialog.Pending
		ok      bool
	)
	err := s.do(ctx, func() {
		current, ok = s.dialogs.Current()
	})
	return current, ok, err
}

// Dialogs returns every queued dialog, presented one first
func (s *Supervisor) Dialogs(ctx context.Context) ([]dialog.Pending, error) {
	var queue []dialog.Pending
	err := s.do(ctx, func() {
		queue = s.dialogs.Queue()
	})
	return queue, err
}

// Recycle replaces the realm on demand. Runs in flight are abandoned
// without a timeout message.
func (s *Supervisor) Recycle(ctx context.Context) error {
	var recycleErr error
	err := s.do(ctx, func() {
		s.watchdog.Stop()
		recycleErr = s.recycle(ReasonManual)
	})
	if err != nil {
		return err
	}
	return recycleErr
}

// Clear empties the registry in order with routed messages
func (s *Supervisor) Clear(ctx context.Context) error {
	return s.do(ctx, func() {
		s.registry.Clear()
		s.watchdog.Forget()
	})
}

// Status is a point-in-time view of the bridge
type Status struct {
	RealmID         string            `json:"realm_id,omitempty"`
	Bound           bool              `json:"bound"`
	Generation      uint64            `json:"generation"`
	Running         []string          `json:"running"`
	Watched         string            `json:"watched,omitempty"`
	WatchdogTimeout string            `json:"watchdog_timeout"`
	Timers          int               `json:"timers"`
	TimersFired     uint64            `json:"timers_fired"`
	Dialogs         int               `json:"dialogs"`
	DialogsRejected uint64            `json:"dialogs_rejected"`
	Dropped         map[string]uint64 `json:"dropped"`
	Recycles        uint64            `json:"recycles"`
	Breaker         string            `json:"breaker"`
}

// Status reports the loop-owned state
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() {
		st = Status{
			Bound:           s.realm != nil,
			Generation:      s.generation,
			Running:         make([]string, 0, len(s.running)),
			WatchdogTimeout: s.watchdog.Timeout().String(),
			Timers:          s.timers.Len(),
			TimersFired:     s.timers.Fired(),
			Dialogs:         s.dialogs.Len(),
			DialogsRejected: s.dialogs.Rejected(),
			Dropped:         make(map[string]uint64, len(s.dropped)),
			Recycles:        s.recycles,
			Breaker:         s.breaker.State().String(),
		}
		if s.realm != nil {
			st.RealmID = s.realm.ID()
		}
		for runID := range s.running {
			st.Running = append(st.Running, runID)
		}
		st.Watched, _ = s.watchdog.Armed()
		for reason, n := range s.dropped {
			st.Dropped[reason] = n
		}
	})
	return st, err
}

// Close stops the loop and tears down the realm. Safe to call twice.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		_ = s.do(context.Background(), func() {
			s.watchdog.Stop()
			s.timers.Reset()
			s.dialogs.Discard()
			if s.realm != nil {
				s.closeRealm(s.realm)
				s.realm = nil
			}
		})
		close(s.stopped)
		<-s.done
	})
	return nil
}

// expire runs on the loop when the watchdog budget elapses
func (s *Supervisor) expire(runID string) {
	s.registry.Append(runID, execution.Error(TimeoutMessage, ""))
	s.registry.MarkTimedOut(runID)
	s.metrics.RecordWatchdogExpired()

	s.logger.Warn("Run timed out, recycling realm",
		zap.String("run_id", runID),
		zap.Duration("timeout", s.opts.WatchdogTimeout))

	if err := s.recycle(ReasonTimeout); err != nil {
		s.logger.Error("Realm replacement failed", zap.Error(err))
	}
}

// recycle unbinds the current realm before anything else so messages it
// still emits fail the source check
func (s *Supervisor) recycle(reason string) error {
	old := s.realm
	s.realm = nil

	// Nothing can finish these runs once their realm is gone. The timed-out
	// run is already terminal, so MarkAbandoned skips it.
	abandoned := 0
	for runID := range s.running {
		if s.registry.MarkAbandoned(runID) {
			abandoned++
		}
	}
	s.running = make(map[string]time.Time)

	cleared := s.timers.Reset()
	discarded := s.dialogs.Discard()
	s.metrics.SetTimersActive(0)
	s.metrics.SetDialogsPending(0)

	if old != nil {
		s.closeRealm(old)
	}
	s.recycles++
	s.metrics.RecordRecycle(reason)

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Int("timers_cleared", cleared),
		zap.Int("dialogs_discarded", discarded),
		zap.Int("runs_abandoned", abandoned),
	}
	if old != nil {
		fields = append(fields, zap.String("old_realm_id", old.ID()))
	}
	s.logger.Warn("Recycling realm", fields...)

	return s.bind()
}

// closeRealm tears a realm down. Failures are logged and swallowed.
func (s *Supervisor) closeRealm(realm sandbox.Realm) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Realm teardown panicked",
				zap.String("realm_id", realm.ID()),
				zap.Any("panic", r))
		}
	}()
	if err := realm.Close(); err != nil {
		s.logger.Error("Realm teardown failed", zap.String("realm_id", realm.ID()), zap.Error(err))
	}
}

// bind acquires and starts a replacement realm through the breaker
func (s *Supervisor) bind() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AcquireTimeout)
	defer cancel()

	realm, err := resilience.Do(s.breaker, func() (sandbox.Realm, error) {
		realm, err := s.source.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if err := realm.Start(s.sink); err != nil {
			s.closeRealm(realm)
			return nil, err
		}
		return realm, nil
	})
	if err != nil {
		s.metrics.RecordRealmFailure()
		return fmt.Errorf("%w: %v", ErrNoRealm, err)
	}

	s.realm = realm
	s.generation++
	s.logger.Info("Realm bound",
		zap.String("realm_id", realm.ID()),
		zap.Uint64("generation", s.generation))
	return nil
}

// sink is handed to every realm; it only ever posts to the loop
func (s *Supervisor) sink(src sandbox.Realm, msg []byte) {
	s.post(func() { s.route(src, msg) })
}

// send encodes env and posts it to the current realm
func (s *Supervisor) send(env protocol.Envelope) {
	if s.realm == nil {
		s.logger.Debug("No realm bound, envelope discarded", zap.String("type", string(env.Type())))
		return
	}

	raw, err := protocol.Encode(env)
	if err != nil {
		s.logger.Error("Envelope encode failed", zap.String("type", string(env.Type())), zap.Error(err))
		return
	}
	if err := s.realm.Post(raw); err != nil {
		s.logger.Warn("Realm rejected envelope",
			zap.String("realm_id", s.realm.ID()),
			zap.String("type", string(env.Type())),
			zap.Error(err))
		return
	}
	s.metrics.RecordEnvelope("out", string(env.Type()))
}

// sendTimerFire delivers a fire and refreshes the gauge, since a fired
// timeout has already left the proxy's table
func (s *Supervisor) sendTimerFire(env protocol.Envelope) {
	s.send(env)
	s.metrics.SetTimersActive(s.timers.Len())
}
