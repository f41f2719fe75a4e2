package bridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// HandleCharacteristicWrite forwards an accessory write to the executor.
func (b *Bridge) HandleCharacteristicWrite(ctx context.Context, c *homekit.Characteristic, svc *homekit.Service, value any) error {
	if err := b.check(svc); err != nil {
		return err
	}
	return b.executor.HandleWrite(ctx, c, svc, value)
}

// HandleCharacteristicRead returns the cached value of c immediately and
// schedules a background refresh of the owning device. Concurrent reads of
// the same device share one controller request.
//
// Under the "fail" dead-device policy reads of an unreachable device return
// ErrDeviceUnreachable instead of the cached value.
func (b *Bridge) HandleCharacteristicRead(ctx context.Context, c *homekit.Characteristic, svc *homekit.Service) (any, error) {
	if err := b.check(svc); err != nil {
		return nil, err
	}

	key := svc.Subtype
	if !key.Role.Pseudo() && key.DeviceID != 0 && b.ctx.Err() == nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.refreshDevice(b.ctx, key.DeviceID); err != nil {
				b.logDebug("device refresh failed", "device_id", key.DeviceID, "error", err)
			}
		}()
	}
	return c.Value(), nil
}

// check rejects foreign services and, under the fail policy, dead devices.
func (b *Bridge) check(svc *homekit.Service) error {
	b.mu.RLock()
	owned := b.owned[svc]
	b.mu.RUnlock()
	if !owned {
		return fmt.Errorf("%w: %s", ErrUnknownService, svc.Subtype)
	}

	key := svc.Subtype
	if b.failDead && !key.Role.Pseudo() && b.devices.IsDead(key.DeviceID) {
		return fmt.Errorf("%w: device %d", ErrDeviceUnreachable, key.DeviceID)
	}
	return nil
}
