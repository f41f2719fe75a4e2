package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/hcbridge/internal/executor"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/hcbridge/internal/poller"
	"github.com/nerrad567/hcbridge/internal/schedule"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// Websocket channels.
const (
	ChannelCharacteristic = "characteristic.changed"
	ChannelCommand        = "command.sent"
	ChannelCycle          = "loop.cycle"
)

const (
	defaultQueueSize = 1024
	pruneInterval    = time.Hour
	sinkTimeout      = 5 * time.Second
)

var (
	// ErrNoSinks is returned by New when no sink is configured.
	ErrNoSinks = errors.New("mirror: no sinks configured")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("mirror: stopped")
)

// Publisher is the MQTT surface used by the mirror.
type Publisher interface {
	Topics() mqtt.Topics
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Telemetry receives numeric samples.
type Telemetry interface {
	WriteCharacteristic(subtype, service, characteristic string, value float64, remote bool, at time.Time)
	WriteCycle(changes, events int, failed bool, duration time.Duration, at time.Time)
	WriteCommand(command, target string, failed bool, duration time.Duration, at time.Time)
}

// History persists changes and commands.
type History interface {
	RecordChange(ctx context.Context, subtype, characteristic string, value any, remote bool, at time.Time) error
	RecordCommand(ctx context.Context, r executor.Record) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Broadcaster pushes events to live diagnostics clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Writer accepts writes arriving on the MQTT set topics.
type Writer interface {
	HandleCharacteristicWrite(ctx context.Context, c *homekit.Characteristic, svc *homekit.Service, value any) error
}

// Logger is the logging interface used by the mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Mirror. Every sink is optional but at least one is
// required.
type Options struct {
	Publisher   Publisher
	Telemetry   Telemetry
	History     History
	Broadcaster Broadcaster
	Writer      Writer

	// Scheduler drives history pruning and timestamps. Defaults to the
	// real clock.
	Scheduler *schedule.Scheduler

	// Retention is how long history is kept. Zero disables pruning.
	Retention time.Duration

	QueueSize int
	Logger    Logger
}

// StateMessage is the payload of a state topic and a characteristic
// websocket event.
type StateMessage struct {
	Subtype        string    `json:"subtype"`
	Service        string    `json:"service"`
	Name           string    `json:"name"`
	Characteristic string    `json:"characteristic"`
	Value          any       `json:"value"`
	Remote         bool      `json:"remote"`
	Timestamp      time.Time `json:"timestamp"`
}

// CommandMessage is the payload of the commands topic and websocket event.
type CommandMessage struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Target     string    `json:"target"`
	DeviceID   int       `json:"device_id,omitempty"`
	Subtype    string    `json:"subtype"`
	Args       []any     `json:"args,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
}

// EventSubtype returns the service the change belongs to.
func (m StateMessage) EventSubtype() string { return m.Subtype }

// EventSubtype returns the service the command was sent for.
func (m CommandMessage) EventSubtype() string { return m.Subtype }

// Mirror fans bridge activity out to the configured sinks.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Mirror struct {
	opts  Options
	sched *schedule.Scheduler

	mu       sync.Mutex
	queue    chan func(context.Context)
	services map[string]*homekit.Service
	started  bool
	stopped  bool
	pruner   *schedule.Task
	ctx      context.Context
	cancel   context.CancelFunc

	dropped  atomic.Uint64
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a mirror. Call Watch for the services to mirror, then Start.
func New(opts Options) (*Mirror, error) {
	if opts.Publisher == nil && opts.Telemetry == nil && opts.History == nil && opts.Broadcaster == nil {
		return nil, ErrNoSinks
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = schedule.New(nil)
	}
	return &Mirror{
		opts:     opts,
		sched:    sched,
		queue:    make(chan func(context.Context), opts.QueueSize),
		services: make(map[string]*homekit.Service),
	}, nil
}

// Watch registers a listener on every characteristic of svcs. Watching
// the same service twice has no further effect.
func (m *Mirror) Watch(svcs []*homekit.Service) {
	for _, svc := range svcs {
		key := svc.Subtype.String()
		m.mu.Lock()
		prev, seen := m.services[key]
		m.services[key] = svc
		m.mu.Unlock()
		if seen && prev == svc {
			continue
		}
		svc.AddListener(m.onUpdate)
	}
}

// Start launches the worker, the retention pruner and the inbound set
// subscription.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	if m.opts.History != nil && m.opts.Retention > 0 {
		m.schedulePrune(0)
	}

	if m.opts.Publisher != nil && m.opts.Writer != nil {
		topic := m.opts.Publisher.Topics().AllSets()
		if err := m.opts.Publisher.Subscribe(topic, 1, m.handleSet); err != nil {
			m.logWarn("set topic subscription failed", "topic", topic, "error", err)
		}
	}
	return nil
}

// Stop drains queued work and stops the worker.
func (m *Mirror) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		started := m.started
		m.pruner.Cancel()
		close(m.queue)
		m.mu.Unlock()

		if m.opts.Publisher != nil && m.opts.Writer != nil && started {
			_ = m.opts.Publisher.Unsubscribe(m.opts.Publisher.Topics().AllSets()) //nolint:errcheck // best effort on shutdown
		}
		m.wg.Wait()
		if m.cancel != nil {
			m.cancel()
		}
	})
}

// Dropped returns how many work items were discarded on a full queue.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// OnCommand mirrors one executor record.
func (m *Mirror) OnCommand(r executor.Record) {
	msg := CommandMessage{
		ID:         r.ID,
		Command:    r.Command,
		Target:     r.Target,
		DeviceID:   r.DeviceID,
		Subtype:    r.Subtype,
		Args:       r.Args,
		Skipped:    r.Skipped,
		Started:    r.Started,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	m.enqueue(func(ctx context.Context) {
		if p := m.opts.Publisher; p != nil {
			if err := p.PublishJSON(p.Topics().Commands(), msg, false); err != nil {
				m.logDebug("command publish failed", "error", err)
			}
		}
		if t := m.opts.Telemetry; t != nil && !r.Skipped {
			t.WriteCommand(r.Command, r.Target, r.Err != nil, r.Duration, r.Started)
		}
		if h := m.opts.History; h != nil {
			if err := h.RecordCommand(ctx, r); err != nil {
				m.logWarn("command log write failed", "id", r.ID, "error", err)
			}
		}
		if b := m.opts.Broadcaster; b != nil {
			b.Broadcast(ChannelCommand, msg)
		}
	})
}

// OnCycle mirrors one reconciliation loop iteration.
func (m *Mirror) OnCycle(c poller.Cycle) {
	if c.Discarded {
		return
	}
	m.enqueue(func(context.Context) {
		if t := m.opts.Telemetry; t != nil {
			t.WriteCycle(c.Changes, c.Events, c.Err != nil, c.Duration, c.At)
		}
		if b := m.opts.Broadcaster; b != nil {
			payload := map[string]any{
				"cursor":      c.Cursor,
				"changes":     c.Changes,
				"events":      c.Events,
				"duration_ms": c.Duration.Milliseconds(),
			}
			if c.Err != nil {
				payload["error"] = c.Err.Error()
			}
			b.Broadcast(ChannelCycle, payload)
		}
	})
}

func (m *Mirror) onUpdate(u homekit.Update) {
	if u.Service == nil || u.Characteristic == nil {
		return
	}
	event := u.Characteristic.Meta.Default == nil
	msg := StateMessage{
		Subtype:        u.Service.Subtype.String(),
		Service:        string(u.Service.Kind),
		Name:           u.Service.Name,
		Characteristic: string(u.Characteristic.Kind),
		Value:          u.New,
		Remote:         u.Remote,
		Timestamp:      m.sched.Now(),
	}
	m.enqueue(func(ctx context.Context) {
		m.publishState(msg, event)
		if t := m.opts.Telemetry; t != nil {
			if f, ok := numeric(msg.Value); ok {
				t.WriteCharacteristic(msg.Subtype, msg.Service, msg.Characteristic, f, msg.Remote, msg.Timestamp)
			}
		}
		if h := m.opts.History; h != nil {
			if err := h.RecordChange(ctx, msg.Subtype, msg.Characteristic, msg.Value, msg.Remote, msg.Timestamp); err != nil {
				m.logWarn("history write failed", "subtype", msg.Subtype, "error", err)
			}
		}
		if b := m.opts.Broadcaster; b != nil {
			b.Broadcast(ChannelCharacteristic, msg)
		}
	})
}

// publishState sends a retained state message. Event characteristics are
// not retained so a reconnecting subscriber does not replay a press.
func (m *Mirror) publishState(msg StateMessage, event bool) {
	p := m.opts.Publisher
	if p == nil {
		return
	}
	if !mqtt.ValidSegment(msg.Subtype) {
		m.logDebug("subtype not usable as topic level", "subtype", msg.Subtype)
		return
	}
	if err := p.PublishJSON(p.Topics().State(msg.Subtype, msg.Characteristic), msg, !event); err != nil {
		m.logDebug("state publish failed", "subtype", msg.Subtype, "error", err)
	}
}

// numeric maps booleans to 0/1 and passes numbers through. Strings are
// never telemetry.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		return 0, false
	}
	return transform.ToFloat(v)
}

// handleSet forwards an MQTT write to the bridge. The payload is a JSON
// value, or an object with a "value" field.
func (m *Mirror) handleSet(topic string, payload []byte) error {
	subtype, char, err := m.opts.Publisher.Topics().ParseSet(topic)
	if err != nil {
		return err
	}

	m.mu.Lock()
	svc := m.services[subtype]
	ctx := m.ctx
	m.mu.Unlock()
	if svc == nil {
		return fmt.Errorf("mirror: unknown service %q", subtype)
	}
	c := svc.Get(homekit.CharKind(char))
	if c == nil {
		return fmt.Errorf("mirror: service %q has no %s", subtype, char)
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("mirror: decoding %s: %w", topic, err)
	}
	if obj, ok := value.(map[string]any); ok {
		v, ok := obj["value"]
		if !ok {
			return fmt.Errorf("mirror: %s payload has no value", topic)
		}
		value = v
	}

	m.logDebug("mqtt write", "subtype", subtype, "characteristic", char, "value", value)
	return m.opts.Writer.HandleCharacteristicWrite(ctx, c, svc, value)
}

func (m *Mirror) enqueue(fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	select {
	case m.queue <- fn:
	default:
		if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
			m.logWarn("mirror queue full, dropping work", "dropped", n)
		}
	}
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for fn := range m.queue {
		ctx, cancel := context.WithTimeout(m.ctx, sinkTimeout)
		fn(ctx)
		cancel()
	}
}

func (m *Mirror) schedulePrune(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.pruner = m.sched.After(d, func() {
		m.prune()
		m.schedulePrune(pruneInterval)
	})
}

func (m *Mirror) prune() {
	ctx, cancel := context.WithTimeout(m.ctx, sinkTimeout)
	defer cancel()
	before := m.sched.Now().Add(-m.opts.Retention)
	n, err := m.opts.History.Prune(ctx, before)
	if err != nil {
		m.logWarn("history prune failed", "error", err)
		return
	}
	if n > 0 {
		m.logInfo("history pruned", "rows", n, "before", before)
	}
}

func (m *Mirror) logDebug(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Debug(msg, args...)
	}
}

func (m *Mirror) logInfo(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Info(msg, args...)
	}
}

func (m *Mirror) logWarn(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Warn(msg, args...)
	}
}
