// Package trace provides the internal correlation identifier attached to a
// call slot at allocation time (SPEC_FULL.md §3, §4.11). It never appears on
// the wire; it exists purely so logs and published events for one call can
// be grouped together.
package trace

import "github.com/google/uuid"

// New mints a fresh trace id.
func New() string {
	return uuid.NewString()
}
