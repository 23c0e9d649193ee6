// Package id provides centralized ID generation for the bridge.
//
// All host-minted identifiers are prefixed ULIDs:
//   - Lexicographic sortability: run ids sort in creation order across milliseconds
//   - Prefixed types: run_*, dlg_*, realm_*, req_* make logs readable
//   - Type safety: separate string types prevent mixing a run id with a dialog id
//
// Realm-issued correlation ids (timer tempIds, prompt ids) are not minted here;
// they belong to the realm and only live as long as the realm does.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// RunID identifies one RunCode invocation
type RunID string

// DialogID identifies a pending dialog
type DialogID string

// RealmID identifies one isolated realm instance
type RealmID string

// RequestID identifies an API request
type RequestID string

const (
	RunPrefix     = "run"
	DialogPrefix  = "dlg"
	RealmPrefix   = "realm"
	RequestPrefix = "req"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates monotonic ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic entropy,
// so ids minted within the same millisecond still sort in mint order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewRunID generates a new run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewDialogID generates a new dialog ID
func NewDialogID() DialogID {
	return DialogID(Default().GenerateWithPrefix(DialogPrefix))
}

// NewRealmID generates a new realm ID
func NewRealmID() RealmID {
	return RealmID(Default().GenerateWithPrefix(RealmPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id RunID) String() string     { return string(id) }
func (id DialogID) String() string  { return string(id) }
func (id RealmID) String() string   { return string(id) }
func (id RequestID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsPrefixed reports whether s has the form prefix_<ULID>
func IsPrefixed(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	return ok && IsValid(rest)
}
