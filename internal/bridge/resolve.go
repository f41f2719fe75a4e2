package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/hcbridge/internal/capability"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/subscription"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// hidden reports whether a device or scene is excluded by the controller
// naming convention of a leading underscore.
func hidden(name string) bool {
	return strings.HasPrefix(name, "_")
}

// ResolveCapabilities lists the controller's devices and scenes and builds
// the services to expose. Unsupported devices are skipped. Calling it again
// replaces the previous result and drops existing subscriptions.
func (b *Bridge) ResolveCapabilities(ctx context.Context) ([]Accessory, error) {
	devices, err := b.controller.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var out []Accessory
	skipped := 0
	for _, d := range devices {
		b.devices.Put(d)
		if !d.Enabled || !d.Visible || hidden(d.Name) {
			continue
		}

		descs, err := b.resolver.Resolve(d)
		if errors.Is(err, capability.ErrNotSupported) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving device %d: %w", d.ID, err)
		}
		out = append(out, accessoryFor("device-"+strconv.Itoa(d.ID), d.Name, d.ID, descs))
	}

	pseudo, err := b.resolvePseudo(ctx)
	if err != nil {
		return nil, err
	}
	out = append(out, pseudo...)
	sortAccessories(out)

	b.mu.Lock()
	for svc := range b.owned {
		b.registry.UnbindAll(svc)
	}
	b.owned = make(map[*homekit.Service]bool)
	for _, a := range out {
		for _, svc := range a.Services {
			b.owned[svc] = true
		}
	}
	b.accessories = out
	b.bound = false
	b.mu.Unlock()

	b.logInfo("capabilities resolved",
		"devices", len(devices),
		"accessories", len(out),
		"unsupported", skipped)
	return out, nil
}

func (b *Bridge) resolvePseudo(ctx context.Context) ([]Accessory, error) {
	var out []Accessory
	bc := b.cfg.Bridge

	for _, name := range bc.SwitchGlobalNames() {
		out = append(out, accessoryFor("variable-"+name, name, 0,
			[]capability.Descriptor{capability.GlobalVariable(name, false)}))
	}
	for _, name := range bc.DimmerGlobalNames() {
		out = append(out, accessoryFor("variable-"+name, name, 0,
			[]capability.Descriptor{capability.GlobalVariable(name, true)}))
	}
	if bc.SecuritySystem {
		d := capability.SecuritySystem()
		out = append(out, accessoryFor("security", d.Name, 0, []capability.Descriptor{d}))
	}

	zones := []struct {
		role homekit.Role
		ids  []int
	}{
		{homekit.RoleHeatingZone, bc.HeatingZones},
		{homekit.RoleClimateZone, bc.ClimateZones},
	}
	for _, z := range zones {
		kind, _ := transform.ZoneKind(z.role)
		for _, id := range z.ids {
			name := ""
			if state, err := b.controller.ReadZoneState(ctx, kind, id); err != nil {
				b.logWarn("reading zone failed, using default name", "kind", kind, "zone_id", id, "error", err)
			} else {
				name = state.Name
			}
			d, err := capability.Zone(z.role, id, name)
			if err != nil {
				return nil, err
			}
			out = append(out, accessoryFor(fmt.Sprintf("zone-%s-%d", kind, id), d.Name, 0, []capability.Descriptor{d}))
		}
	}

	if bc.Scenes {
		scenes, err := b.controller.ListScenes(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing scenes: %w", err)
		}
		for _, s := range scenes {
			if !s.Visible || hidden(s.Name) {
				continue
			}
			out = append(out, accessoryFor("scene-"+strconv.Itoa(s.ID), s.Name, 0,
				[]capability.Descriptor{capability.Scene(s.ID, s.Name)}))
		}
	}
	return out, nil
}

func accessoryFor(key, name string, deviceID int, descs []capability.Descriptor) Accessory {
	a := Accessory{Key: key, Name: name, DeviceID: deviceID}
	for _, d := range descs {
		a.Services = append(a.Services, d.NewService())
	}
	return a
}

// Bind subscribes every stateful characteristic to its device property and
// seeds values from the device snapshots. It returns the number of
// subscriptions created.
func (b *Bridge) Bind() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accessories == nil {
		return 0, ErrNotResolved
	}

	n := 0
	for _, a := range b.accessories {
		for _, svc := range a.Services {
			n += b.bindService(svc)
		}
	}
	b.bound = true

	b.logInfo("subscriptions bound", "count", n)
	return n, nil
}

func (b *Bridge) bindService(svc *homekit.Service) int {
	key := svc.Subtype
	snap, _ := b.devices.Get(key.DeviceID)
	props := snap.Properties.Raw
	if key.Role.Pseudo() {
		props = nil
	}

	n := 0
	for _, c := range svc.Characteristics {
		if c.Kind == homekit.CharName || !b.get.Has(c.Kind) {
			continue
		}
		// Event characteristics must not replay a stale press.
		if c.Meta.Default != nil && !key.Role.Momentary() {
			b.get.Apply(c, svc, props)
		}

		if !subscription.Subscribable(c.Kind, svc) {
			continue
		}
		b.registry.Bind(subscription.Entry{
			DeviceID:       key.DeviceID,
			Property:       transform.PropertyFor(c.Kind, svc),
			Role:           key.Role,
			Sub:            key.Sub,
			Service:        svc,
			Characteristic: c,
		})
		n++
	}
	return n
}

// refreshDevice re-reads one device and applies the result to every
// subscribed characteristic. Concurrent calls for the same device share one
// request.
func (b *Bridge) refreshDevice(ctx context.Context, id int) error {
	_, err, _ := b.reads.Do("device-"+strconv.Itoa(id), func() (any, error) {
		props, err := b.controller.ReadDeviceProperties(ctx, id)
		if err != nil {
			return nil, err
		}
		if v, ok := props[transform.PropDead]; ok {
			b.devices.SetDead(id, transform.ToBool(v))
		}
		snap := b.devices.Apply(id, props)
		for _, e := range b.registry.Lookup(subscription.Filter{DeviceID: id}) {
			b.get.Apply(e.Characteristic, e.Service, snap.Properties.Raw)
		}
		return nil, nil
	})
	return err
}
