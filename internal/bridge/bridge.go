package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/hcbridge/internal/capability"
	"github.com/nerrad567/hcbridge/internal/device"
	"github.com/nerrad567/hcbridge/internal/executor"
	"github.com/nerrad567/hcbridge/internal/fibaro"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/poller"
	"github.com/nerrad567/hcbridge/internal/schedule"
	"github.com/nerrad567/hcbridge/internal/subscription"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// resumeGrace is the delay before polling restarts after a command.
const resumeGrace = time.Second

// Controller is the full controller API the bridge drives.
type Controller interface {
	poller.Transport
	executor.Transport
	ListDevices(ctx context.Context) ([]device.Descriptor, error)
	ListScenes(ctx context.Context) ([]fibaro.Scene, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Accessory groups the services exposed for one device or pseudo device.
type Accessory struct {
	// Key is stable across restarts, e.g. "device-12" or "variable-Party".
	Key      string
	Name     string
	DeviceID int
	Services []*homekit.Service
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded configuration. Required.
	Config *config.Config

	// Controller is the controller client. Required.
	Controller Controller

	// Scheduler drives every timer. Nil uses the real clock.
	Scheduler *schedule.Scheduler

	// Cursors persists the poll cursor. Optional.
	Cursors poller.CursorStore

	// Publisher receives health reports. Optional.
	Publisher HealthPublisher

	// Version is reported in health messages.
	Version string

	// Logger is optional.
	Logger Logger

	// OnCommand and OnCycle observe executor and loop activity. Optional.
	OnCommand func(executor.Record)
	OnCycle   func(poller.Cycle)
}

// Bridge wires the resolver, subscription registry, reconciliation loop and
// command executor into one accessory-facing object.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        *config.Config
	controller Controller
	resolver   *capability.Resolver
	registry   *subscription.Registry
	devices    *device.Cache
	get        *transform.GetTable
	sched      *schedule.Scheduler
	poller     *poller.Poller
	executor   *executor.Executor
	health     *HealthReporter
	failDead   bool

	reads singleflight.Group

	mu          sync.RWMutex
	accessories []Accessory
	owned       map[*homekit.Service]bool
	bound       bool

	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// New creates a bridge. Call ResolveCapabilities and Start to begin
// operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	sched := opts.Scheduler
	if sched == nil {
		sched = schedule.New(nil)
	}
	cfg := opts.Config

	topts := transform.Options{
		Fahrenheit:   cfg.Bridge.TemperatureUnit == config.UnitFahrenheit,
		SnapDimmer99: true,
	}
	if opts.Logger != nil {
		topts.Logger = opts.Logger
	}
	get := transform.NewGetTable(topts)

	ropts := capability.Config{
		Overrides:  cfg.Bridge.Overrides(),
		DoorbellID: cfg.Bridge.DoorbellID,
	}
	if opts.Logger != nil {
		ropts.Logger = opts.Logger
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:        cfg,
		controller: opts.Controller,
		resolver:   capability.NewResolver(ropts, nil),
		registry:   subscription.NewRegistry(),
		devices:    device.NewCache(),
		get:        get,
		sched:      sched,
		failDead:   cfg.Bridge.DeadDevicePolicy == config.DeadDeviceFail,
		owned:      make(map[*homekit.Service]bool),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	popts := poller.Options{
		Transport:   opts.Controller,
		Registry:    b.registry,
		Devices:     b.devices,
		Get:         get,
		Scheduler:   sched,
		Interval:    cfg.GetPollInterval(),
		Backoff:     cfg.GetBackoff(),
		ResumeGrace: resumeGrace,
		Cursors:     opts.Cursors,
		OnCycle:     opts.OnCycle,
	}
	if opts.Logger != nil {
		popts.Logger = opts.Logger
	}
	p, err := poller.New(popts)
	if err != nil {
		ctxCancel()
		return nil, fmt.Errorf("creating poller: %w", err)
	}
	b.poller = p

	eopts := executor.Options{
		Transport:         opts.Controller,
		Set:               transform.NewSetTable(topts),
		Pauser:            p,
		Scheduler:         sched,
		ThermostatTimeout: cfg.GetThermostatTimeout(),
		DoorLockTimeout:   cfg.GetDoorLockTimeout(),
		OnCommand:         opts.OnCommand,
	}
	if opts.Logger != nil {
		eopts.Logger = opts.Logger
	}
	e, err := executor.New(eopts)
	if err != nil {
		ctxCancel()
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	b.executor = e

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  cfg.Bridge.ID,
		Version:   opts.Version,
		Publisher: opts.Publisher,
		Loop:      p,
		Counter:   b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start resolves and binds capabilities when that has not been done yet,
// then starts the reconciliation loop and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.mu.RLock()
	resolved, bound := b.accessories != nil, b.bound
	b.mu.RUnlock()

	if !resolved {
		if _, err := b.ResolveCapabilities(ctx); err != nil {
			return err
		}
	}
	if !bound {
		if _, err := b.Bind(); err != nil {
			return err
		}
	}

	if err := b.poller.Start(b.ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	b.health.Start(b.ctx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", b.devices.Len(),
		"services", len(b.Services()))
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.poller.Stop()
		b.executor.Close()

		// Cancel bridge context to abort in-flight reads
		b.ctxCancel()

		b.health.Stop()
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// Accessories returns the resolved accessories ordered by key.
func (b *Bridge) Accessories() []Accessory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Accessory, len(b.accessories))
	copy(out, b.accessories)
	return out
}

// Services returns every exposed service.
func (b *Bridge) Services() []*homekit.Service {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*homekit.Service
	for _, a := range b.accessories {
		out = append(out, a.Services...)
	}
	return out
}

// Devices returns the device snapshot cache.
func (b *Bridge) Devices() *device.Cache {
	return b.devices
}

// Registry returns the subscription registry.
func (b *Bridge) Registry() *subscription.Registry {
	return b.registry
}

// LoopStatus returns the reconciliation loop status.
func (b *Bridge) LoopStatus() poller.Status {
	return b.poller.Status()
}

// Health returns the current health report.
func (b *Bridge) Health() HealthMessage {
	return b.health.Snapshot()
}

// PendingCommands returns the number of debounced commands not yet sent.
func (b *Bridge) PendingCommands() int {
	return b.executor.Pending()
}

// DeviceCount implements Counter for health reporting.
func (b *Bridge) DeviceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, a := range b.accessories {
		if a.DeviceID != 0 {
			n++
		}
	}
	return n
}

// ServiceCount implements Counter for health reporting.
func (b *Bridge) ServiceCount() int {
	return len(b.Services())
}

func sortAccessories(as []Accessory) {
	sort.Slice(as, func(i, j int) bool { return as[i].Key < as[j].Key })
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
