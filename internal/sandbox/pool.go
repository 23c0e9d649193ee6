package sandbox

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool keeps pre-warmed realms so a recycle does not pay for VM setup.
// Realms are single-use: an acquired realm is never returned to the pool.
type Pool struct {
	config Config
	logger *zap.Logger
	spares chan *Runtime
	size   int
	mu     sync.RWMutex
	closed bool

	created  atomic.Uint64
	acquired atomic.Uint64
	wg       sync.WaitGroup
}

// NewPool creates a pool holding size spare realms. size <= 0 disables
// pre-warming and every Acquire builds a fresh realm.
func NewPool(config Config, size int, logger *zap.Logger) (*Pool, error) {
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &Pool{
		config: config,
		logger: logger,
		spares: make(chan *Runtime, size),
		size:   size,
	}

	for i := 0; i < size; i++ {
		rt, err := pool.build()
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.spares <- rt
	}

	return pool, nil
}

func (p *Pool) build() (*Runtime, error) {
	rt, err := New(p.config, p.logger)
	if err != nil {
		return nil, err
	}
	p.created.Add(1)
	return rt, nil
}

// Acquire hands out an unstarted realm, refilling the spare slot in the background
func (p *Pool) Acquire(ctx context.Context) (Realm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	select {
	case rt := <-p.spares:
		p.acquired.Add(1)
		p.wg.Add(1)
		go p.refill()
		return rt, nil
	default:
	}

	rt, err := p.build()
	if err != nil {
		return nil, err
	}
	p.acquired.Add(1)
	return rt, nil
}

func (p *Pool) refill() {
	defer p.wg.Done()

	rt, err := p.build()
	if err != nil {
		p.logger.Warn("Failed to pre-warm realm", zap.Error(err))
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		rt.Close()
		return
	}
	select {
	case p.spares <- rt:
	default:
		rt.Close()
	}
}

// Close closes the pool and every spare realm
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.spares)
	p.mu.Unlock()

	p.wg.Wait()
	for rt := range p.spares {
		rt.Close()
	}
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.spares),
		"created":   p.created.Load(),
		"acquired":  p.acquired.Load(),
		"closed":    p.closed,
	}
}
