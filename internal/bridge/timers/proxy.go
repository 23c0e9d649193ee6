package timers

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/protocol"
)

// minInterval keeps a zero-delay interval from spinning the host loop
const minInterval = time.Millisecond

// Poster schedules fn on the host event loop
type Poster func(fn func())

// Sender delivers an envelope to the current realm
type Sender func(env protocol.Envelope)

// record is one realm timer backed by a real host timer
type record struct {
	tempID protocol.CorrelationID
	kind   protocol.TimerKind
	delay  time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (r *record) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}

// Proxy owns the real timers behind the realm's virtual setTimeout/setInterval.
// Fire events are posted to the host loop and re-checked there, so a clear
// processed before the fire always wins.
type Proxy struct {
	mu     sync.Mutex
	timers map[protocol.CorrelationID]*record

	post   Poster
	send   Sender
	logger *zap.Logger

	fired uint64
}

// New creates a timer proxy
func New(post Poster, send Sender, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		timers: make(map[protocol.CorrelationID]*record),
		post:   post,
		send:   send,
		logger: logger,
	}
}

// Delay converts a realm delay in milliseconds to a duration.
// Negative delays run as soon as possible; intervals never go below 1ms.
func Delay(kind protocol.TimerKind, ms float64) time.Duration {
	var d time.Duration
	if ms > 0 && !math.IsInf(ms, 1) {
		d = time.Duration(ms * float64(time.Millisecond))
	}
	if kind == protocol.TimerInterval && d < minInterval {
		d = minInterval
	}
	return d
}

// Create starts a real timer for req.TempID. An existing record with the same
// tempId is cancelled and replaced.
func (p *Proxy) Create(req protocol.TimerCreate) {
	rec := &record{
		tempID: req.TempID,
		kind:   req.TimerType,
		delay:  Delay(req.TimerType, req.Delay),
	}

	p.mu.Lock()
	if old, ok := p.timers[req.TempID]; ok {
		old.stop()
	}
	p.timers[req.TempID] = rec
	p.mu.Unlock()

	rec.mu.Lock()
	rec.timer = time.AfterFunc(rec.delay, func() { p.tick(rec) })
	rec.mu.Unlock()

	p.logger.Debug("Timer created",
		zap.String("temp_id", req.TempID.String()),
		zap.String("kind", string(req.TimerType)),
		zap.Duration("delay", rec.delay))
}

// tick runs on the Go timer goroutine
func (p *Proxy) tick(rec *record) {
	rec.mu.Lock()
	if rec.stopped {
		rec.mu.Unlock()
		return
	}
	if rec.kind == protocol.TimerInterval {
		rec.timer.Reset(rec.delay)
	}
	rec.mu.Unlock()

	p.post(func() { p.fire(rec) })
}

// fire runs on the host loop
func (p *Proxy) fire(rec *record) {
	p.mu.Lock()
	current, ok := p.timers[rec.tempID]
	if !ok || current != rec {
		p.mu.Unlock()
		return
	}
	if rec.kind == protocol.TimerTimeout {
		delete(p.timers, rec.tempID)
	}
	p.fired++
	p.mu.Unlock()

	p.send(protocol.TimerFire{TempID: rec.tempID})
}

// Clear cancels the timer registered under req.TimerID. Unknown ids and kind
// mismatches are ignored and report false.
func (p *Proxy) Clear(req protocol.TimerClear) bool {
	p.mu.Lock()
	rec, ok := p.timers[req.TimerID]
	if !ok || rec.kind != req.TimerType {
		p.mu.Unlock()
		return false
	}
	delete(p.timers, req.TimerID)
	p.mu.Unlock()

	rec.stop()
	return true
}

// Reset cancels every timer and empties the table. Returns the number cancelled.
func (p *Proxy) Reset() int {
	p.mu.Lock()
	old := p.timers
	p.timers = make(map[protocol.CorrelationID]*record)
	p.mu.Unlock()

	for _, rec := range old {
		rec.stop()
	}
	if len(old) > 0 {
		p.logger.Debug("Timers reset", zap.Int("cancelled", len(old)))
	}
	return len(old)
}

// Len returns the number of live timers
func (p *Proxy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// Fired returns how many fire envelopes have been sent
func (p *Proxy) Fired() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fired
}
