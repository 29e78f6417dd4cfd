package id

import (
	"encoding/binary"
	"github.com/google/uuid"
	"sync/atomic"
	"time"
)

// Generator produces time-ordered 128-bit identifiers.
//
// Layout: [8 bytes counter, big endian][8 bytes random]. The counter is seeded once from the
// wall clock (nanoseconds) and atomically incremented on every call, so identifiers issued by one
// generator are strictly increasing in byte and hex-string order. Identifiers of different
// processes interleave in approximately chronological order because every process seeds from
// the clock. Adjacent writes therefore land next to each other in the backing store's index.
//
// Thread-safety: Next is safe for concurrent use.
type Generator struct {
	counter atomic.Uint64
}

// NewGenerator creates a generator seeded from the current time
func NewGenerator() *Generator {
	return NewGeneratorAt(time.Now())
}

// NewGeneratorAt creates a generator seeded from t
func NewGeneratorAt(t time.Time) *Generator {
	g := &Generator{}
	g.counter.Store(uint64(t.UnixNano()))
	return g
}

// Next returns a new identifier
func (g *Generator) Next() uuid.UUID {
	// uuid.New keeps the RFC 4122 variant bits in byte 8, which stays untouched below
	u := uuid.New()
	binary.BigEndian.PutUint64(u[0:8], g.counter.Add(1))
	return u
}

// Counter returns the counter embedded in an identifier created by a Generator
func Counter(u uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(u[0:8])
}

var defaultGenerator = NewGenerator()

// Default returns the process-wide generator
func Default() *Generator {
	return defaultGenerator
}

// New returns a new identifier from the process-wide generator
func New() uuid.UUID {
	return defaultGenerator.Next()
}

// NewString returns New() in its canonical string form
func NewString() string {
	return New().String()
}
