package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/schedule"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// Defaults applied by New when an option is zero.
const (
	DefaultMomentaryReset    = time.Second
	DefaultThermostatTimeout = time.Hour
)

// classColour keys the hue/saturation accumulator.
const classColour = "colour"

// Transport is the subset of the controller API used to send commands.
type Transport interface {
	SendDeviceCommand(ctx context.Context, id int, action string, args []any) error
	StartScene(ctx context.Context, id int) error
	ReadVariable(ctx context.Context, name string) (string, error)
	WriteVariable(ctx context.Context, name, value string) error
	WriteZoneHandTemperature(ctx context.Context, kind string, id int, mode string, value float64, until time.Time) error
	ReadDeviceProperties(ctx context.Context, id int) (map[string]any, error)
}

// Pauser suspends the reconciliation loop while a command is in flight.
type Pauser interface {
	Pause()
	Resume()
}

// Logger is the logging interface used by the executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Record describes one dispatched command.
type Record struct {
	ID       string
	Command  string
	Target   string
	DeviceID int
	Subtype  string
	Args     []any
	Value    string
	Skipped  bool
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Options configures an Executor.
type Options struct {
	Transport Transport
	Set       *transform.SetTable

	// Pauser is optional. When set the loop is paused around every command.
	Pauser Pauser
	// Scheduler drives debounce and follow-up timers. Nil uses the real clock.
	Scheduler *schedule.Scheduler

	MomentaryReset    time.Duration
	ThermostatTimeout time.Duration
	// DoorLockTimeout is the delay before a lock command is confirmed.
	// Zero disables the check.
	DoorLockTimeout time.Duration

	// Logger is optional.
	Logger Logger
	// OnCommand is called after every dispatch. Optional.
	OnCommand func(Record)
}

// pendingCommand is a debounced command waiting for its window to close.
type pendingCommand struct {
	task *schedule.Task
	svc  *homekit.Service
	cmd  transform.Command
}

// colourState holds hue and saturation writes not yet sent.
type colourState struct {
	hue, saturation bool
}

// Executor turns characteristic writes into controller commands.
//
// Immediate commands run inside a section that is serialised by a mutex and
// pauses the reconciliation loop for its duration. Debounced commands keep
// one pending task per (service, class); each write replaces the task so
// only the last value is sent.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Executor struct {
	transport Transport
	set       *transform.SetTable
	pauser    Pauser
	sched     *schedule.Scheduler
	logger    Logger
	onCommand func(Record)

	momentaryReset    time.Duration
	thermostatTimeout time.Duration
	doorLockTimeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	section sync.Mutex

	mu      sync.Mutex
	closed  bool
	pending map[string]*pendingCommand
	colours map[string]*colourState
	// followUps are momentary resets and lock checks still waiting to run.
	followUps []*schedule.Task
}

// New validates opts and creates an Executor.
func New(opts Options) (*Executor, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport", ErrMissingDependency)
	}
	if opts.Set == nil {
		return nil, fmt.Errorf("%w: set table", ErrMissingDependency)
	}

	e := &Executor{
		transport:         opts.Transport,
		set:               opts.Set,
		pauser:            opts.Pauser,
		sched:             opts.Scheduler,
		logger:            opts.Logger,
		onCommand:         opts.OnCommand,
		momentaryReset:    opts.MomentaryReset,
		thermostatTimeout: opts.ThermostatTimeout,
		doorLockTimeout:   opts.DoorLockTimeout,
		pending:           make(map[string]*pendingCommand),
		colours:           make(map[string]*colourState),
	}
	if e.sched == nil {
		e.sched = schedule.New(nil)
	}
	if e.momentaryReset <= 0 {
		e.momentaryReset = DefaultMomentaryReset
	}
	if e.thermostatTimeout <= 0 {
		e.thermostatTimeout = DefaultThermostatTimeout
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// HandleWrite applies an accessory write to c. The local value is updated
// optimistically and is not rolled back when the command fails.
//
// Immediate commands return the transport error. Debounced commands are
// sent later and their failures are only logged.
func (e *Executor) HandleWrite(ctx context.Context, c *homekit.Characteristic, svc *homekit.Service, value any) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	cmd, err := e.set.Command(c, svc, value)
	if errors.Is(err, transform.ErrNoCommand) {
		c.SetRemoteValue(value)
		return nil
	}
	if err != nil {
		return err
	}

	// A debounced write keeps the loop paused until its command is sent or
	// dropped.
	switch {
	case cmd.Colour:
		e.pause()
		c.SetRemoteValue(value)
		e.accumulateColour(c, svc, cmd)
		return nil
	case cmd.Debounce > 0:
		e.pause()
		c.SetRemoteValue(value)
		e.debounce(key(svc, cmd.Class), cmd.Debounce, svc, cmd)
		return nil
	}
	c.SetRemoteValue(value)

	if cmd.Target == transform.TargetDevice || cmd.Target == transform.TargetScene {
		e.cancelPending(svc)
	}
	return e.dispatch(ctx, svc, cmd)
}

// Flush sends every pending debounced command now.
func (e *Executor) Flush(ctx context.Context) {
	e.mu.Lock()
	keys := make([]string, 0, len(e.pending))
	for k := range e.pending {
		keys = append(keys, k)
	}
	e.mu.Unlock()

	for _, k := range keys {
		e.fire(ctx, k, nil)
	}
}

// Close cancels pending debounced commands and follow-up checks.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	dropped := 0
	for k, t := range e.pending {
		if t.task.Cancel() {
			dropped++
		}
		delete(e.pending, k)
		e.resume()
	}
	for _, t := range e.followUps {
		t.Cancel()
	}
	e.followUps = nil
	e.mu.Unlock()

	e.cancel()
	if dropped > 0 {
		e.logWarn("dropped pending commands on close", "count", dropped)
	}
}

// Pending returns the number of debounced commands waiting to be sent.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func key(svc *homekit.Service, class string) string {
	return svc.Subtype.String() + "/" + class
}
