package homekit

import (
	"reflect"
	"sync"
)

// Update describes one change of a characteristic value.
type Update struct {
	Service        *Service
	Characteristic *Characteristic
	Old            any
	New            any
	// Remote is true when the change originated from an accessory write.
	Remote bool
}

// Listener is notified after a characteristic value changes.
type Listener func(Update)

// Characteristic holds one typed, observable value of a service.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Characteristic struct {
	Kind CharKind
	Meta Meta

	service *Service

	mu        sync.RWMutex
	value     any
	listeners []Listener
}

// NewCharacteristic creates a characteristic seeded with its default value.
func NewCharacteristic(kind CharKind) *Characteristic {
	meta := MetaFor(kind)
	return &Characteristic{
		Kind:  kind,
		Meta:  meta,
		value: meta.Default,
	}
}

// Service returns the owning service, or nil when unattached.
func (c *Characteristic) Service() *Service {
	return c.service
}

// Value returns the current value.
func (c *Characteristic) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// SetRange overrides the declared bounds.
func (c *Characteristic) SetRange(min, max float64) {
	c.mu.Lock()
	c.Meta.Min = min
	c.Meta.Max = max
	c.mu.Unlock()
}

// Range returns the declared bounds.
func (c *Characteristic) Range() (min, max float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Meta.Min, c.Meta.Max
}

// SetValue stores v and notifies listeners when it differs from the current
// value. Event characteristics (no default) notify on every set.
func (c *Characteristic) SetValue(v any) bool {
	return c.set(v, false)
}

// SetRemoteValue stores a value written by the accessory side.
func (c *Characteristic) SetRemoteValue(v any) bool {
	return c.set(v, true)
}

// AddListener registers fn for value changes.
func (c *Characteristic) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Characteristic) set(v any, remote bool) bool {
	c.mu.Lock()
	old := c.value
	event := c.Meta.Default == nil
	if !event && reflect.DeepEqual(old, v) {
		c.mu.Unlock()
		return false
	}
	c.value = v
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	u := Update{Service: c.service, Characteristic: c, Old: old, New: v, Remote: remote}
	for _, fn := range listeners {
		fn(u)
	}
	return true
}
