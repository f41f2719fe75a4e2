// Package subscription connects controller (device, property) pairs to the
// characteristics that display them.
//
// One Registry exists per bridge instance and is passed explicitly to the
// reconciliation loop and the command executor.
package subscription

import (
	"sync"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// Entry binds one characteristic to a device property category.
type Entry struct {
	DeviceID       int
	Property       string
	Role           homekit.Role
	Sub            string
	Service        *homekit.Service
	Characteristic *homekit.Characteristic
}

// Filter narrows a Lookup. Empty Property and Sub match anything. Pseudo
// selects entries backed by variables, scenes or panels instead of physical
// devices; Role further restricts pseudo lookups.
type Filter struct {
	DeviceID int
	Property string
	Sub      string
	Pseudo   bool
	Role     homekit.Role
}

// Registry is the in-memory subscription table.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// informational characteristics never reflect remote state.
var informational = map[homekit.CharKind]bool{
	homekit.CharName:                    true,
	homekit.CharServiceLabelIndex:       true,
	homekit.CharTemperatureDisplayUnits: true,
	homekit.CharObstructionDetected:     true,
	homekit.CharValveType:               true,
	homekit.CharPositionState:           true,
}

// Subscribable reports whether a characteristic should be bound. Static
// characteristics and anything on a momentary (virtual button or scene)
// service are excluded.
func Subscribable(c homekit.CharKind, svc *homekit.Service) bool {
	if informational[c] {
		return false
	}
	if svc != nil && svc.Subtype.Role.Momentary() {
		return false
	}
	return true
}

// Bind adds an entry. Binding the same characteristic twice replaces the
// earlier entry so each characteristic has exactly one subscription.
func (r *Registry) Bind(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].Characteristic == e.Characteristic {
			r.entries[i] = e
			return
		}
	}
	r.entries = append(r.entries, e)
}

// ForEach calls fn for every entry until fn returns false. fn runs on a
// snapshot, so it may call back into the registry.
func (r *Registry) ForEach(fn func(Entry) bool) {
	for _, e := range r.snapshot() {
		if !fn(e) {
			return
		}
	}
}

// UnbindAll removes every entry belonging to svc and returns how many were
// removed.
func (r *Registry) UnbindAll(svc *homekit.Service) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.Service == svc {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = Entry{}
	}
	r.entries = kept
	return removed
}

// Lookup returns the entries matching f by linear scan.
func (r *Registry) Lookup(f Filter) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, e := range r.entries {
		if e.Role.Pseudo() != f.Pseudo {
			continue
		}
		if f.Pseudo && f.Role != "" && e.Role != f.Role {
			continue
		}
		if e.DeviceID != f.DeviceID {
			continue
		}
		if f.Property != "" && e.Property != f.Property {
			continue
		}
		if f.Sub != "" && e.Sub != f.Sub {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Pseudo returns every entry backed by a variable, scene or panel.
func (r *Registry) Pseudo() []Entry {
	var out []Entry
	for _, e := range r.snapshot() {
		if e.Role.Pseudo() {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
