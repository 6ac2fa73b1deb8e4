package settle

import (
	"fmt"
	"sync"
)

// ErrAttemptInFlight is returned when an invoice already has an unresolved
// settlement attempt.
var ErrAttemptInFlight = fmt.Errorf("settlement attempt already in flight")

// Tracker enforces at most one in-flight settlement attempt per invoice.
// Re-submission after a rejected or timed-out attempt releases the slot
// first and starts a fresh attempt, never a retry of the old signature.
type Tracker struct {
	mu       sync.Mutex
	inflight map[string]bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{inflight: make(map[string]bool)}
}

// Begin reserves the invoice's attempt slot. The returned release function
// frees it and is safe to call more than once.
func (t *Tracker) Begin(invoiceID string) (release func(), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inflight[invoiceID] {
		return nil, fmt.Errorf("%w for invoice %s", ErrAttemptInFlight, invoiceID)
	}
	t.inflight[invoiceID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.inflight, invoiceID)
			t.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether an invoice currently has an active attempt.
func (t *Tracker) InFlight(invoiceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[invoiceID]
}
