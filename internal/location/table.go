// Package location implements the closed-set username location table
// (SPEC_FULL.md §4.2), grounded on
// _examples/original_source/src/sip_defs.rs's LOCATION_ENTRIES,
// update_location_entry_addr, and get_registered_addr.
package location

import (
	"net"
	"sync"
)

// Entry is one row of the location table: a statically seeded user plus
// whatever address REGISTER last reported for them.
type Entry struct {
	Username    string
	IPStr       string
	Port        int
	Registered  bool
	CurrentAddr *net.UDPAddr
}

// Table is the process-wide location table: a closed set of usernames
// seeded at startup, guarded by a single lock. No entry can be added after
// construction — update only ever mutates an existing entry.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates a table seeded with the given entries. The set of usernames is
// fixed for the lifetime of the table.
func New(seed []Entry) *Table {
	m := make(map[string]*Entry, len(seed))
	for _, e := range seed {
		entry := e
		m[entry.Username] = &entry
	}
	return &Table{entries: m}
}

// Update sets current_addr/ip_str/port and marks the entry registered.
// Returns false if username is not a seeded entry — the table never gains
// new users. The original Rust implementation recovers a poisoned mutex
// (another goroutine panicked while holding it) back to its last good state
// rather than propagating the poison; Go's sync.Mutex has no poisoning
// concept, so the closest analogue is this recover-wrapped body: if the
// mutation itself panics, the lock is still released via defer and the
// entry is left exactly as it was before this call (the write either
// completes or doesn't; there's no partial-write state to recover from).
func (t *Table) Update(username string, addr *net.UDPAddr) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	e, exists := t.entries[username]
	if !exists {
		return false
	}
	ipStr, port := addr.IP.String(), addr.Port
	e.CurrentAddr = addr
	e.IPStr = ipStr
	e.Port = port
	e.Registered = true
	return true
}

// Resolve returns the current address of username if it has registered.
func (t *Table) Resolve(username string) (*net.UDPAddr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[username]
	if !exists || !e.Registered {
		return nil, false
	}
	return e.CurrentAddr, true
}

// Count returns how many entries have registered at least once.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if e.Registered {
			n++
		}
	}
	return n
}

// Has reports whether username is a seeded entry, regardless of
// registration state.
func (t *Table) Has(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.entries[username]
	return exists
}
