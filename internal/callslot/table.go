// Package callslot implements the call slot table (SPEC_FULL.md §4.3,
// grounded on _examples/original_source/src/call_map.rs): a fixed-capacity
// array of call records behind a single lock, with ascending-order
// allocation and idempotent release.
package callslot

import (
	"sync"

	"github.com/tinysip/b2bua/internal/trace"
)

// DefaultMaxCalls is the table capacity used when config doesn't override
// it (SPEC_FULL.md §6).
const DefaultMaxCalls = 32

// Table is the fixed-capacity call slot table. The zero value is not usable;
// construct with New.
//
// The entire table is protected by one lock, and by design that lock is
// meant to be held across an entire state-machine step, including outbound
// sends (SPEC_FULL.md §4.3, §9 open question 2) — the original Rust
// implementation does the same, trading throughput for a trivially correct
// invariant story. Lock/Unlock are exported so a caller (internal/dialog's
// Engine.Handle) can bracket lookup, mutation, and send in a single
// critical section the same way the original passes a MutexGuard through
// the whole call.
type Table struct {
	mu    sync.Mutex
	slots []Call
	size  int
}

// New creates a table with maxCalls slots, all initially inactive.
func New(maxCalls int) *Table {
	slots := make([]Call, maxCalls)
	for i := range slots {
		slots[i].Index = i
	}
	return &Table{slots: slots}
}

// Lock acquires the table's single lock.
func (t *Table) Lock() { t.mu.Lock() }

// Unlock releases the table's single lock.
func (t *Table) Unlock() { t.mu.Unlock() }

// Size returns the number of active slots. It takes the lock itself, so
// never call it while already holding the lock.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Capacity returns the table's fixed slot count.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Allocate scans slots in ascending index order for the first inactive one,
// resets it to its neutral state, marks it active, and mints a fresh
// TraceID. Returns (0, false) once size has reached capacity. Must be
// called with the lock held.
func (t *Table) Allocate() (int, bool) {
	if t.size >= len(t.slots) {
		return 0, false
	}
	for i := range t.slots {
		if !t.slots[i].IsActive {
			t.slots[i].reset(i)
			t.slots[i].IsActive = true
			t.slots[i].TraceID = trace.New()
			t.size++
			return i, true
		}
	}
	return 0, false
}

// FindByCallID linearly scans active slots for callID as either leg's
// Call-ID. An empty callID short-circuits without scanning. Must be called
// with the lock held.
func (t *Table) FindByCallID(callID string) (index int, leg Leg, found bool) {
	if callID == "" {
		return 0, NoLeg, false
	}
	for i := range t.slots {
		if !t.slots[i].IsActive {
			continue
		}
		if t.slots[i].ALegUUID == callID {
			return i, ALeg, true
		}
		if t.slots[i].BLegUUID == callID {
			return i, BLeg, true
		}
	}
	return 0, NoLeg, false
}

// Slot returns a pointer to the slot at index for direct mutation during a
// state-machine step. The pointer is only valid while the lock is held and
// must not be retained past Unlock.
func (t *Table) Slot(index int) *Call {
	return &t.slots[index]
}

// Release idempotently resets the slot at index to its neutral state,
// preserving Index. size is decremented only if the slot was active, and
// never below zero. Must be called with the lock held.
func (t *Table) Release(index int) {
	slot := &t.slots[index]
	wasActive := slot.IsActive
	slot.reset(index)
	if wasActive && t.size > 0 {
		t.size--
	}
}
