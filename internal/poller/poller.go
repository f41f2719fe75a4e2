package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/hcbridge/internal/device"
	"github.com/nerrad567/hcbridge/internal/fibaro"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/schedule"
	"github.com/nerrad567/hcbridge/internal/subscription"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// Defaults applied by New when an option is zero.
const (
	DefaultInterval           = 5 * time.Second
	DefaultBackoff            = 30 * time.Second
	DefaultResumeGrace        = 1 * time.Second
	DefaultRefreshConcurrency = 4
)

var (
	// ErrAlreadyStarted is returned by Start on a running poller.
	ErrAlreadyStarted = errors.New("poller: already started")

	// ErrMissingDependency is returned by New when a required option is nil.
	ErrMissingDependency = errors.New("poller: missing dependency")
)

// State is the reconciliation loop state.
type State int

// Loop states.
const (
	StateIdle State = iota
	StateFetching
	StateApplying
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateApplying:
		return "applying"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

// Transport is the subset of the controller API the loop consumes.
type Transport interface {
	FetchIncrementalState(ctx context.Context, cursor int64) (fibaro.Refresh, error)
	ReadVariable(ctx context.Context, name string) (string, error)
	ReadZoneState(ctx context.Context, kind string, id int) (fibaro.Zone, error)
}

// CursorStore persists the poll cursor across restarts.
type CursorStore interface {
	LoadCursor(ctx context.Context) (int64, error)
	SaveCursor(ctx context.Context, cursor int64) error
}

// Logger is the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Cycle summarises one reconciliation attempt.
type Cycle struct {
	Cursor    int64
	Changes   int
	Events    int
	Discarded bool
	Err       error
	At        time.Time
	Duration  time.Duration
}

// Status is a point-in-time view of the loop.
type Status struct {
	State     State
	Cursor    int64
	Paused    bool
	LastCycle time.Time
	LastError string
}

// Options configures a Poller.
type Options struct {
	Transport Transport
	Registry  *subscription.Registry
	Devices   *device.Cache
	Get       *transform.GetTable

	// Scheduler drives all timers. Nil uses the real clock.
	Scheduler *schedule.Scheduler

	Interval           time.Duration
	Backoff            time.Duration
	ResumeGrace        time.Duration
	RefreshConcurrency int

	// Cursors is optional.
	Cursors CursorStore
	// Logger is optional.
	Logger Logger
	// OnCycle is called after every attempt. Optional.
	OnCycle func(Cycle)
}

// Poller is the long-poll reconciliation loop. At most one fetch is in flight
// at any time.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Poller struct {
	transport   Transport
	registry    *subscription.Registry
	devices     *device.Cache
	get         *transform.GetTable
	sched       *schedule.Scheduler
	cursors     CursorStore
	logger      Logger
	onCycle     func(Cycle)
	interval    time.Duration
	backoff     time.Duration
	resumeGrace time.Duration
	concurrency int

	// applyMu is held by Pause and around every apply, so once Pause
	// returns no result read before it reaches a characteristic.
	applyMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	stopped    bool
	state      State
	cursor     int64
	paused     int
	generation uint64
	task       *schedule.Task
	lastCycle  time.Time
	lastErr    error
}

// New validates opts and creates a Poller.
func New(opts Options) (*Poller, error) {
	switch {
	case opts.Transport == nil:
		return nil, fmt.Errorf("%w: transport", ErrMissingDependency)
	case opts.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case opts.Devices == nil:
		return nil, fmt.Errorf("%w: device cache", ErrMissingDependency)
	case opts.Get == nil:
		return nil, fmt.Errorf("%w: get table", ErrMissingDependency)
	}

	p := &Poller{
		transport:   opts.Transport,
		registry:    opts.Registry,
		devices:     opts.Devices,
		get:         opts.Get,
		sched:       opts.Scheduler,
		cursors:     opts.Cursors,
		logger:      opts.Logger,
		onCycle:     opts.OnCycle,
		interval:    opts.Interval,
		backoff:     opts.Backoff,
		resumeGrace: opts.ResumeGrace,
		concurrency: opts.RefreshConcurrency,
	}
	if p.sched == nil {
		p.sched = schedule.New(nil)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.backoff <= 0 {
		p.backoff = DefaultBackoff
	}
	if p.resumeGrace <= 0 {
		p.resumeGrace = DefaultResumeGrace
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultRefreshConcurrency
	}
	return p, nil
}

// Start loads the persisted cursor and schedules the first fetch
// immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	if p.cursors != nil {
		cursor, err := p.cursors.LoadCursor(ctx)
		if err != nil {
			p.logWarn("loading poll cursor failed, starting from 0", "error", err)
		} else {
			p.mu.Lock()
			p.cursor = cursor
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	p.scheduleLocked(0)
	p.mu.Unlock()

	p.logInfo("reconciliation loop started", "interval", p.interval, "cursor", p.Cursor())
	return nil
}

// Stop cancels pending work. An in-flight fetch is abandoned.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.task.Cancel()
	p.task = nil
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.logInfo("reconciliation loop stopped")
}

// Pause cancels any scheduled fetch and discards the result of an in-flight
// one. Pauses nest; each must be matched by Resume.
func (p *Poller) Pause() {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused++
	p.generation++
	p.task.Cancel()
	p.task = nil
}

// Resume releases one Pause. When the last pause is released the next fetch
// is scheduled after the resume grace period.
func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused == 0 {
		return
	}
	p.paused--
	if p.paused > 0 || p.stopped || p.ctx == nil {
		return
	}

	if p.state == StateBackoff {
		p.state = StateIdle
	}
	// A running cycle reschedules itself when it finishes.
	if p.state == StateIdle {
		p.task.Cancel()
		p.scheduleLocked(p.resumeGrace)
	}
}

// State returns the current loop state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cursor returns the last-poll cursor.
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Status returns a snapshot for health reporting.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		State:     p.state,
		Cursor:    p.cursor,
		Paused:    p.paused > 0,
		LastCycle: p.lastCycle,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

func (p *Poller) scheduleLocked(d time.Duration) {
	var t *schedule.Task
	t = p.sched.After(d, func() {
		p.mu.Lock()
		if p.task == t {
			p.task = nil
		}
		if p.state == StateBackoff {
			p.state = StateIdle
		}
		p.mu.Unlock()

		p.runCycle()
	})
	p.task = t
}

// runCycle performs one fetch and apply. Triggers while a cycle is running
// or the loop is paused are ignored.
func (p *Poller) runCycle() {
	p.mu.Lock()
	if p.stopped || p.ctx == nil || p.state != StateIdle || p.paused > 0 {
		p.mu.Unlock()
		return
	}
	p.state = StateFetching
	gen := p.generation
	cursor := p.cursor
	ctx := p.ctx
	p.mu.Unlock()

	start := p.sched.Now()
	refresh, err := p.transport.FetchIncrementalState(ctx, cursor)

	p.mu.Lock()
	if p.stopped {
		p.state = StateIdle
		p.mu.Unlock()
		return
	}

	if gen != p.generation {
		p.state = StateIdle
		if p.paused == 0 && !p.task.Pending() {
			p.scheduleLocked(p.resumeGrace)
		}
		p.mu.Unlock()

		p.logDebug("fetch result discarded after pause", "cursor", cursor)
		p.report(Cycle{Cursor: cursor, Discarded: true}, start)
		return
	}

	if err != nil {
		p.state = StateBackoff
		stale := errors.Is(err, fibaro.ErrStaleCursor)
		if stale {
			p.cursor = 0
		}
		p.lastErr = err
		reported := p.cursor
		p.scheduleLocked(p.backoff)
		p.mu.Unlock()

		if stale {
			p.logWarn("poll cursor rejected, resetting", "cursor", cursor, "backoff", p.backoff)
			p.saveCursor(ctx, 0)
		} else {
			p.logError("state fetch failed", "error", err, "backoff", p.backoff)
		}
		p.report(Cycle{Cursor: reported, Err: err}, start)
		return
	}

	advanced := refresh.Last > p.cursor
	if advanced {
		p.cursor = refresh.Last
	}
	newCursor := p.cursor
	p.lastErr = nil
	p.state = StateApplying
	p.mu.Unlock()

	if advanced {
		p.saveCursor(ctx, newCursor)
	}
	p.apply(refresh, gen)
	p.refreshPseudo(ctx, gen)

	p.mu.Lock()
	p.state = StateIdle
	if !p.stopped && p.paused == 0 && !p.task.Pending() {
		p.scheduleLocked(p.interval)
	}
	p.mu.Unlock()

	p.report(Cycle{Cursor: newCursor, Changes: len(refresh.Changes), Events: len(refresh.Events)}, start)
}

func (p *Poller) report(c Cycle, start time.Time) {
	c.At = p.sched.Now()
	c.Duration = c.At.Sub(start)
	p.mu.Lock()
	p.lastCycle = c.At
	p.mu.Unlock()

	if p.onCycle != nil {
		p.onCycle(c)
	}
}

func (p *Poller) saveCursor(ctx context.Context, cursor int64) {
	if p.cursors == nil {
		return
	}
	if err := p.cursors.SaveCursor(ctx, cursor); err != nil {
		p.logWarn("saving poll cursor failed", "cursor", cursor, "error", err)
	}
}

// apply routes events and property changes to their subscribers.
func (p *Poller) apply(r fibaro.Refresh, gen uint64) {
	for _, ev := range r.Events {
		p.applyEvent(ev, gen)
	}
	for _, ch := range r.Changes {
		p.applyChange(ch, gen)
	}
}

// applyEvent turns a button event into a pseudo-delta for the matching
// button service.
func (p *Poller) applyEvent(ev fibaro.Event, gen uint64) {
	switch ev.Type {
	case fibaro.EventSceneActivation:
		scene, ok := transform.ToFloat(ev.Data["sceneId"])
		if !ok {
			p.logDebug("scene activation without scene id", "device_id", ev.DeviceID)
			return
		}
		sub := strconv.Itoa(transform.ButtonForScene(int(scene)))
		p.applyTo(subscription.Filter{DeviceID: ev.DeviceID, Property: transform.PropSceneActivation, Sub: sub},
			map[string]any{transform.PropSceneActivation: int(scene)}, gen)

	case fibaro.EventCentralScene:
		key, ok := transform.ToFloat(ev.Data["keyId"])
		if !ok {
			p.logDebug("central scene event without key id", "device_id", ev.DeviceID)
			return
		}
		sub := strconv.Itoa(int(key))
		p.applyTo(subscription.Filter{DeviceID: ev.DeviceID, Property: transform.PropCentralScene, Sub: sub},
			map[string]any{transform.PropCentralScene: map[string]any{
				"keyId":        key,
				"keyAttribute": ev.Data["keyAttribute"],
			}}, gen)

	default:
		p.logDebug("ignoring event", "type", ev.Type, "device_id", ev.DeviceID)
	}
}

func (p *Poller) applyChange(ch fibaro.Change, gen uint64) {
	if v, ok := ch.Properties[transform.PropDead]; ok {
		p.markDead(ch.ID, transform.ToBool(v))
	}
	snap := p.devices.Apply(ch.ID, ch.Properties)

	cats := make([]string, 0, len(ch.Properties))
	seen := make(map[string]bool, len(ch.Properties))
	for field := range ch.Properties {
		if c := transform.Category(field); c != "" && !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)

	for _, cat := range cats {
		switch cat {
		case transform.PropDead:
		case transform.PropSetpointFuture:
			v, _ := transform.Lookup(ch.Properties, transform.PropSetpointFuture)
			p.applyEntries(p.registry.Lookup(subscription.Filter{DeviceID: ch.ID, Property: transform.PropSetpoint}),
				snap.Properties.Raw.Merge(map[string]any{transform.PropSetpoint: v}), gen)
		default:
			p.applyEntries(p.registry.Lookup(subscription.Filter{DeviceID: ch.ID, Property: cat}), snap.Properties.Raw, gen)
		}
	}
}

func (p *Poller) markDead(id int, dead bool) {
	if !p.devices.SetDead(id, dead) {
		return
	}
	if dead {
		p.logWarn("device unreachable", "device_id", id)
	} else {
		p.logInfo("device reachable again", "device_id", id)
	}
}

func (p *Poller) applyTo(f subscription.Filter, overlay map[string]any, gen uint64) {
	entries := p.registry.Lookup(f)
	if len(entries) == 0 {
		return
	}
	snap, _ := p.devices.Get(f.DeviceID)
	p.applyEntries(entries, snap.Properties.Raw.Merge(overlay), gen)
}

// applyEntries writes props to entries unless a Pause has happened since
// the cycle that read them started.
func (p *Poller) applyEntries(entries []subscription.Entry, props map[string]any, gen uint64) bool {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	current := p.generation == gen
	p.mu.Unlock()
	if !current {
		return false
	}
	for _, e := range entries {
		p.get.Apply(e.Characteristic, e.Service, props)
	}
	return true
}

// refreshPseudo re-reads every variable-, alarm- and panel-backed service.
// Failures are logged per service and never affect the loop.
func (p *Poller) refreshPseudo(ctx context.Context, gen uint64) {
	groups := make(map[homekit.SubtypeKey][]subscription.Entry)
	for _, e := range p.registry.Pseudo() {
		key := e.Service.Subtype
		groups[key] = append(groups[key], e)
	}
	if len(groups) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for key, entries := range groups {
		key, entries := key, entries
		g.Go(func() error {
			props, err := p.readPseudo(gctx, key)
			if err != nil {
				p.logWarn("pseudo device refresh failed", "subtype", key.String(), "error", err)
				return nil
			}
			if !p.applyEntries(entries, props, gen) {
				p.logDebug("pseudo device read discarded after pause", "subtype", key.String())
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) readPseudo(ctx context.Context, key homekit.SubtypeKey) (map[string]any, error) {
	switch key.Role {
	case homekit.RoleGlobalSwitch, homekit.RoleGlobalDimmer, homekit.RoleSecurity:
		v, err := p.transport.ReadVariable(ctx, key.Sub)
		if err != nil {
			return nil, err
		}
		return map[string]any{transform.PropValue: v}, nil

	case homekit.RoleHeatingZone, homekit.RoleClimateZone:
		kind, _ := transform.ZoneKind(key.Role)
		z, err := p.transport.ReadZoneState(ctx, kind, key.DeviceID)
		if err != nil {
			return nil, err
		}
		return z.Props(p.sched.Now()), nil
	}
	return nil, fmt.Errorf("no refresh for role %q", key.Role)
}

func (p *Poller) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Poller) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Poller) logWarn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Poller) logError(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
