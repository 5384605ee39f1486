package quota

import (
	"context"
	"sync"
	"time"
)

// Ledger tracks accumulated practice seconds per identity per UTC day.
// A missing row reads as zero; AddSeconds must behave as an atomic
// fetch-and-add so concurrent callers never lose an update.
type Ledger interface {
	SecondsUsed(ctx context.Context, identity, date string) (float64, error)
	AddSeconds(ctx context.Context, identity, date string, delta float64) (float64, error)
}

// Today returns the ledger date key for the current UTC day.
func Today() string {
	return time.Now().UTC().Format(time.DateOnly)
}

// MemoryLedger is the in-process backend used for tests and single-node
// deployments without durable quota.
type MemoryLedger struct {
	mu      sync.Mutex
	seconds map[ledgerKey]float64
}

type ledgerKey struct {
	identity string
	date     string
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seconds: make(map[ledgerKey]float64)}
}

// SecondsUsed reads the accumulated total, zero when absent.
func (l *MemoryLedger) SecondsUsed(_ context.Context, identity, date string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seconds[ledgerKey{identity, date}], nil
}

// AddSeconds adds delta under the mutex, so concurrent increments for the
// same key serialize instead of racing read-then-write.
func (l *MemoryLedger) AddSeconds(_ context.Context, identity, date string, delta float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{identity, date}
	l.seconds[key] += delta
	return l.seconds[key], nil
}
