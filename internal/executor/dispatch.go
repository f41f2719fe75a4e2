package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/schedule"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// debounce replaces any pending command for k and schedules cmd after d.
// The caller has paused the loop; the pause belongs to the pending entry and
// is released by whoever removes it.
func (e *Executor) debounce(k string, d time.Duration, svc *homekit.Service, cmd transform.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.resume()
		return
	}
	if prev, ok := e.pending[k]; ok {
		prev.task.Cancel()
		e.resume()
		e.logDebug("debounced command replaced", "subtype", svc.Subtype.String(), "command", prev.cmd.Name())
	}
	pc := &pendingCommand{svc: svc, cmd: cmd}
	pc.task = e.sched.After(d, func() {
		e.fire(e.ctx, k, pc)
	})
	e.pending[k] = pc
}

// fire sends the pending command for k. When want is set only that exact
// command is sent, so a timer that lost the race with a newer write does
// nothing.
func (e *Executor) fire(ctx context.Context, k string, want *pendingCommand) {
	e.mu.Lock()
	p, ok := e.pending[k]
	if ok && want != nil && p != want {
		ok = false
	}
	if ok {
		delete(e.pending, k)
		p.task.Cancel()
	}
	colour := ok && strings.HasSuffix(k, "/"+classColour)
	if colour {
		delete(e.colours, p.svc.Subtype.String())
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	cmd := p.cmd
	if colour {
		cmd = colourCommand(p.svc, cmd)
	}
	_ = e.dispatch(ctx, p.svc, cmd)
	e.resume()
}

// cancelPending drops debounced commands for svc. An explicit on/off must not
// be overridden by a level that was still waiting.
func (e *Executor) cancelPending(svc *homekit.Service) {
	prefix := svc.Subtype.String() + "/"

	e.mu.Lock()
	defer e.mu.Unlock()
	for k, p := range e.pending {
		if strings.HasPrefix(k, prefix) {
			p.task.Cancel()
			delete(e.pending, k)
			e.resume()
		}
	}
	delete(e.colours, svc.Subtype.String())
}

// accumulateColour records a hue or saturation write. Once both halves are
// present one combined setColor is sent; a lone half is sent when the level
// debounce window closes.
func (e *Executor) accumulateColour(c *homekit.Characteristic, svc *homekit.Service, cmd transform.Command) {
	sub := svc.Subtype.String()
	k := key(svc, classColour)

	e.mu.Lock()
	st, ok := e.colours[sub]
	if !ok {
		st = &colourState{}
		e.colours[sub] = st
	}
	switch c.Kind {
	case homekit.CharHue:
		st.hue = true
	case homekit.CharSaturation:
		st.saturation = true
	}
	complete := st.hue && st.saturation
	e.mu.Unlock()

	e.debounce(k, transform.LevelDebounce, svc, cmd)
	if complete {
		e.fire(e.ctx, k, nil)
	}
}

// colourCommand fills in RGBW arguments from the service's current hue,
// saturation and brightness. Zero brightness is sent as full so the colour
// is visible.
func colourCommand(svc *homekit.Service, cmd transform.Command) transform.Command {
	h := charFloat(svc, homekit.CharHue)
	s := charFloat(svc, homekit.CharSaturation)
	v := charFloat(svc, homekit.CharBrightness)
	if v <= 0 {
		v = 100
	}
	r, g, b, w := transform.HSVToRGBW(h, s, v)
	cmd.Args = []any{r, g, b, w}
	return cmd
}

func charFloat(svc *homekit.Service, kind homekit.CharKind) float64 {
	c := svc.Get(kind)
	if c == nil {
		return 0
	}
	f, _ := transform.ToFloat(c.Value())
	return f
}

// dispatch sends cmd inside the section and runs its follow-ups.
func (e *Executor) dispatch(ctx context.Context, svc *homekit.Service, cmd transform.Command) error {
	rec := Record{
		ID:       uuid.NewString(),
		Command:  cmd.Name(),
		Target:   cmd.Target.String(),
		DeviceID: cmd.DeviceID,
		Subtype:  svc.Subtype.String(),
		Args:     cmd.Args,
		Value:    cmd.Value,
	}

	e.section.Lock()
	e.pause()
	rec.Started = e.sched.Now()
	rec.Skipped, rec.Err = e.send(ctx, cmd)
	rec.Duration = e.sched.Now().Sub(rec.Started)
	e.resume()
	e.section.Unlock()

	switch {
	case rec.Err != nil:
		e.logError("command failed",
			"id", rec.ID, "device_id", cmd.DeviceID, "command", rec.Command, "subtype", rec.Subtype, "error", rec.Err)
	case rec.Skipped:
		e.logDebug("command skipped", "id", rec.ID, "command", rec.Command, "variable", cmd.Variable)
	default:
		e.logDebug("command sent",
			"id", rec.ID, "device_id", cmd.DeviceID, "command", rec.Command, "args", cmd.Args, "duration", rec.Duration)
	}
	if e.onCommand != nil {
		e.onCommand(rec)
	}

	if cmd.Momentary {
		e.scheduleReset(svc)
	}
	if cmd.ConfirmLock && rec.Err == nil {
		e.scheduleLockCheck(svc, cmd)
	}
	return rec.Err
}

// send performs the transport call. It reports skipped when a read-first
// variable write was unnecessary.
func (e *Executor) send(ctx context.Context, cmd transform.Command) (bool, error) {
	switch cmd.Target {
	case transform.TargetScene:
		return false, e.transport.StartScene(ctx, cmd.DeviceID)

	case transform.TargetVariable:
		if cmd.ReadFirst {
			cur, err := e.transport.ReadVariable(ctx, cmd.Variable)
			if err != nil {
				return false, err
			}
			if f, ok := transform.ToFloat(cur); ok && f > 0 {
				return true, nil
			}
		}
		return false, e.transport.WriteVariable(ctx, cmd.Variable, cmd.Value)

	case transform.TargetZone:
		z := cmd.Zone
		until := e.sched.Now().Add(e.thermostatTimeout)
		return false, e.transport.WriteZoneHandTemperature(ctx, z.Kind, z.ID, z.Mode, z.Temperature, until)
	}
	return false, e.transport.SendDeviceCommand(ctx, cmd.DeviceID, cmd.Action, cmd.Args)
}

// scheduleReset returns a momentary switch to off.
func (e *Executor) scheduleReset(svc *homekit.Service) {
	on := svc.Get(homekit.CharOn)
	if on == nil {
		return
	}
	e.track(e.sched.After(e.momentaryReset, func() {
		on.SetValue(false)
	}))
}

// scheduleLockCheck re-reads the lock after the timeout and marks it jammed
// when it has not reached the commanded state.
func (e *Executor) scheduleLockCheck(svc *homekit.Service, cmd transform.Command) {
	current := svc.Get(homekit.CharLockCurrentState)
	if current == nil || e.doorLockTimeout <= 0 {
		return
	}
	e.track(e.sched.After(e.doorLockTimeout, func() {
		if e.ctx.Err() != nil {
			return
		}
		props, err := e.transport.ReadDeviceProperties(e.ctx, cmd.DeviceID)
		if err != nil {
			e.logWarn("lock state check failed", "device_id", cmd.DeviceID, "error", err)
			current.SetValue(homekit.LockJammed)
			return
		}
		locked, ok := transform.ParseBool(props[transform.PropValue])
		if !ok || locked != cmd.LockTarget {
			e.logWarn("lock did not reach target state", "device_id", cmd.DeviceID, "target_secured", cmd.LockTarget)
			current.SetValue(homekit.LockJammed)
			return
		}
		if locked {
			current.SetValue(homekit.LockSecured)
		} else {
			current.SetValue(homekit.LockUnsecured)
		}
	}))
}

// track keeps t so Close can cancel it. Finished tasks are dropped.
func (e *Executor) track(t *schedule.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		t.Cancel()
		return
	}
	live := e.followUps[:0]
	for _, f := range e.followUps {
		if f.Pending() {
			live = append(live, f)
		}
	}
	e.followUps = append(live, t)
}

// FollowUps returns the number of momentary resets and lock checks waiting
// to run.
func (e *Executor) FollowUps() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, f := range e.followUps {
		if f.Pending() {
			n++
		}
	}
	return n
}

func (e *Executor) pause() {
	if e.pauser != nil {
		e.pauser.Pause()
	}
}

func (e *Executor) resume() {
	if e.pauser != nil {
		e.pauser.Resume()
	}
}

func (e *Executor) logDebug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Executor) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Executor) logError(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}
