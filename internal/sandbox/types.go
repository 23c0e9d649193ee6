package sandbox

import "errors"

var (
	ErrRealmClosed    = errors.New("realm is closed")
	ErrAlreadyStarted = errors.New("realm already started")
	ErrPoolClosed     = errors.New("realm pool is closed")
)

// Config defines realm configuration
type Config struct {
	MaxCallStack int // goja call stack depth limit
}

// DefaultConfig returns the realm defaults
func DefaultConfig() Config {
	return Config{
		MaxCallStack: 1024,
	}
}

// Sink receives every envelope a realm emits, tagged with the emitting realm.
// The receiver compares src against its current realm to discard stale output.
type Sink func(src Realm, msg []byte)

// Realm is an isolated script realm reachable only through serialized
// envelopes. Implementations must be safe for Post and Close from any goroutine.
type Realm interface {
	// ID identifies the realm in logs and status
	ID() string
	// Start begins processing inbound envelopes; emitted envelopes go to sink
	Start(sink Sink) error
	// Post queues an encoded envelope for the realm. Never blocks.
	Post(msg []byte) error
	// Close tears the realm down, interrupting any running script
	Close() error
	// Done is closed once the realm has stopped processing
	Done() <-chan struct{}
}
