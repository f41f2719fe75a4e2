package device

import (
	"sort"
	"sync"
)

// Cache holds the latest descriptor per device id.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	devices map[int]Descriptor
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{devices: make(map[int]Descriptor)}
}

// Put stores d, replacing any previous snapshot.
func (c *Cache) Put(d Descriptor) {
	c.mu.Lock()
	c.devices[d.ID] = d
	c.mu.Unlock()
}

// Get returns the snapshot for id.
func (c *Cache) Get(id int) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[id]
	return d, ok
}

// Apply replaces the snapshot for id with one whose properties include delta.
// Unknown ids get a bare snapshot so deltas for devices that were never
// listed still reach their subscribers.
func (c *Cache) Apply(id int, delta map[string]any) Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		d = Descriptor{ID: id, Properties: ParseProperties(nil)}
	}
	d = d.WithProperties(delta)
	c.devices[id] = d
	return d
}

// SetDead records the reachability flag for id and reports whether it
// changed. Unknown ids count as alive.
func (c *Cache) SetDead(id int, dead bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		d = Descriptor{ID: id, Properties: ParseProperties(nil)}
	}
	if d.Properties.Dead == dead {
		if !ok {
			c.devices[id] = d
		}
		return false
	}
	c.devices[id] = d.WithProperties(map[string]any{"dead": dead})
	return true
}

// IsDead reports whether id is currently marked unreachable.
func (c *Cache) IsDead(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices[id].Properties.Dead
}

// All returns every snapshot ordered by id.
func (c *Cache) All() []Descriptor {
	c.mu.RLock()
	out := make([]Descriptor, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of cached devices.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.devices)
}
