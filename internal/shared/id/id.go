// Package id provides identifier generation for realms and contexts.
//
// Identifiers are prefixed ULIDs:
//   - Sortable: creation order survives in logs
//   - Prefixed: rlm_* for intrinsics sets, ctx_* for sandbox contexts,
//     trc_* and spn_* for evaluation traces
//   - Typed: RealmID and ContextID cannot be mixed up
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

// RealmID identifies one acquired set of host intrinsics
type RealmID string

// ContextID identifies a sandbox context
type ContextID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	RealmPrefix   = "rlm"
	ContextPrefix = "ctx"
	TracePrefix   = "trc"
	SpanPrefix    = "spn"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
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

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs minted within one millisecond still sort in order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewRealmID generates a new intrinsics set ID
func NewRealmID() RealmID {
	return RealmID(Default().GenerateWithPrefix(RealmPrefix))
}

// NewContextID generates a new sandbox context ID
func NewContextID() ContextID {
	return ContextID(Default().GenerateWithPrefix(ContextPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return Default().GenerateWithPrefix(TracePrefix)
}

// NewSpanID generates a new span ID
func NewSpanID() string {
	return Default().GenerateWithPrefix(SpanPrefix)
}

func (id RealmID) String() string   { return string(id) }
func (id ContextID) String() string { return string(id) }

// ============================================================================
// Parsing
// ============================================================================

// Parse parses a ULID string, with or without a type prefix
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// IsValid checks if an ID string is a valid ULID, prefixed or not
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from an ID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
