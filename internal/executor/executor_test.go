package executor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/nerrad567/hcbridge/internal/fibaro"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/schedule"
	"github.com/nerrad567/hcbridge/internal/transform"
)

type call struct {
	Method string
	ID     int
	Action string
	Args   []any
	Name   string
	Value  string
	Temp   float64
	Until  time.Time
}

type mockTransport struct {
	mu        sync.Mutex
	calls     []call
	variables map[string]string
	props     map[int]map[string]any
	err       error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		variables: make(map[string]string),
		props:     make(map[int]map[string]any),
	}
}

func (m *mockTransport) record(c call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.err
}

func (m *mockTransport) SendDeviceCommand(_ context.Context, id int, action string, args []any) error {
	return m.record(call{Method: "device", ID: id, Action: action, Args: args})
}

func (m *mockTransport) StartScene(_ context.Context, id int) error {
	return m.record(call{Method: "scene", ID: id})
}

func (m *mockTransport) ReadVariable(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.variables[name], nil
}

func (m *mockTransport) WriteVariable(_ context.Context, name, value string) error {
	return m.record(call{Method: "variable", Name: name, Value: value})
}

func (m *mockTransport) WriteZoneHandTemperature(_ context.Context, kind string, id int, mode string, value float64, until time.Time) error {
	return m.record(call{Method: "zone", ID: id, Name: kind, Value: mode, Temp: value, Until: until})
}

func (m *mockTransport) ReadDeviceProperties(_ context.Context, id int) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.props[id]
	if !ok {
		return nil, fibaro.ErrNotFound
	}
	return p, nil
}

func (m *mockTransport) Calls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	out := make([]call, len(m.calls))
	copy(out, m.calls)
	return out
}

type countingPauser struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

func (p *countingPauser) Pause() {
	p.mu.Lock()
	p.pauses++
	p.mu.Unlock()
}

func (p *countingPauser) Resume() {
	p.mu.Lock()
	p.resumes++
	p.mu.Unlock()
}

func (p *countingPauser) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauses, p.resumes
}

type harness struct {
	clk       *testingclock.FakeClock
	sched     *schedule.Scheduler
	transport *mockTransport
	pauser    *countingPauser
	exec      *Executor

	mu      sync.Mutex
	records []Record
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clk:       testingclock.NewFakeClock(time.Unix(1700000000, 0)),
		transport: newMockTransport(),
		pauser:    &countingPauser{},
	}
	h.sched = schedule.New(h.clk)

	e, err := New(Options{
		Transport:         h.transport,
		Set:               transform.NewSetTable(transform.Options{}),
		Pauser:            h.pauser,
		Scheduler:         h.sched,
		MomentaryReset:    time.Second,
		ThermostatTimeout: time.Hour,
		DoorLockTimeout:   10 * time.Second,
		OnCommand: func(r Record) {
			h.mu.Lock()
			h.records = append(h.records, r)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.exec = e
	t.Cleanup(e.Close)
	return h
}

func (h *harness) step(d time.Duration) {
	h.clk.Step(d)
	h.sched.Wait()
}

func (h *harness) write(t *testing.T, svc *homekit.Service, kind homekit.CharKind, value any) error {
	t.Helper()
	c := svc.Get(kind)
	if c == nil {
		t.Fatalf("service %s has no %s", svc.Name, kind)
	}
	return h.exec.HandleWrite(context.Background(), c, svc, value)
}

func dimmer(id int) *homekit.Service {
	return homekit.NewService(homekit.ServiceLightbulb, "Dimmer",
		homekit.SubtypeKey{DeviceID: id, Sub: "0"},
		homekit.CharName, homekit.CharOn, homekit.CharBrightness)
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("New() error = %v, want ErrMissingDependency", err)
	}
}

func TestDebounce_SendsOnlyLastBrightness(t *testing.T) {
	h := newHarness(t)
	svc := dimmer(12)

	for _, v := range []int{50, 60, 70} {
		if err := h.write(t, svc, homekit.CharBrightness, v); err != nil {
			t.Fatalf("HandleWrite(%d) error = %v", v, err)
		}
		h.step(200 * time.Millisecond)
	}

	if got := svc.Get(homekit.CharBrightness).Value(); got != 70 {
		t.Errorf("optimistic brightness = %v, want 70", got)
	}
	if n := len(h.transport.Calls()); n != 0 {
		t.Fatalf("sent %d commands inside the debounce window", n)
	}

	h.step(300 * time.Millisecond)

	calls := h.transport.Calls()
	if len(calls) != 1 {
		t.Fatalf("sent %d commands, want 1", len(calls))
	}
	want := call{Method: "device", ID: 12, Action: "setValue", Args: []any{70}}
	if !reflect.DeepEqual(calls[0], want) {
		t.Errorf("command = %+v, want %+v", calls[0], want)
	}
	if h.exec.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", h.exec.Pending())
	}
}

func TestDebounce_PositionWindow(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceWindowCovering, "Blind",
		homekit.SubtypeKey{DeviceID: 20, Sub: "0"},
		homekit.CharName, homekit.CharCurrentPosition, homekit.CharTargetPosition)

	if err := h.write(t, svc, homekit.CharTargetPosition, 100); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}
	h.step(transform.LevelDebounce)
	if n := len(h.transport.Calls()); n != 0 {
		t.Fatalf("position sent after level window")
	}
	h.step(transform.PositionDebounce - transform.LevelDebounce)

	calls := h.transport.Calls()
	if len(calls) != 1 || calls[0].Action != "setValue" || !reflect.DeepEqual(calls[0].Args, []any{99}) {
		t.Errorf("calls = %+v, want one setValue 99", calls)
	}
}

func TestImmediate_PausesLoop(t *testing.T) {
	h := newHarness(t)
	svc := dimmer(12)

	if err := h.write(t, svc, homekit.CharOn, true); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}

	calls := h.transport.Calls()
	if len(calls) != 1 || calls[0].Action != "turnOn" {
		t.Fatalf("calls = %+v, want turnOn", calls)
	}
	if h.pauser.pauses != 1 || h.pauser.resumes != 1 {
		t.Errorf("pauses/resumes = %d/%d, want 1/1", h.pauser.pauses, h.pauser.resumes)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) != 1 {
		t.Fatalf("records = %d, want 1", len(h.records))
	}
	r := h.records[0]
	if r.ID == "" || r.Command != "turnOn" || r.DeviceID != 12 || r.Err != nil {
		t.Errorf("record = %+v", r)
	}
}

func TestImmediate_OffCancelsPendingLevel(t *testing.T) {
	h := newHarness(t)
	svc := dimmer(12)

	_ = h.write(t, svc, homekit.CharBrightness, 40)
	if err := h.write(t, svc, homekit.CharOn, false); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}
	h.step(time.Second)

	calls := h.transport.Calls()
	if len(calls) != 1 || calls[0].Action != "turnOff" {
		t.Errorf("calls = %+v, want only turnOff", calls)
	}
}

func TestImmediate_FailureKeepsOptimisticValue(t *testing.T) {
	h := newHarness(t)
	h.transport.err = fibaro.ErrRequestFailed
	svc := dimmer(12)

	err := h.write(t, svc, homekit.CharOn, true)
	if !errors.Is(err, fibaro.ErrRequestFailed) {
		t.Fatalf("HandleWrite() error = %v, want ErrRequestFailed", err)
	}
	if got := svc.Get(homekit.CharOn).Value(); got != true {
		t.Errorf("On = %v, want optimistic true", got)
	}
	if h.pauser.resumes != 1 {
		t.Errorf("loop not resumed after failure")
	}
}

func TestGlobalDimmer_ReadsFirst(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    []call
	}{
		{"already on", "75", nil},
		{"off", "0", []call{{Method: "variable", Name: "Hall", Value: "100"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.transport.variables["Hall"] = tt.current
			svc := homekit.NewService(homekit.ServiceLightbulb, "Hall",
				homekit.SubtypeKey{Sub: "Hall", Role: homekit.RoleGlobalDimmer},
				homekit.CharName, homekit.CharOn, homekit.CharBrightness)

			if err := h.write(t, svc, homekit.CharOn, true); err != nil {
				t.Fatalf("HandleWrite() error = %v", err)
			}
			if got := h.transport.Calls(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("calls = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMomentary_ResetsAfterDelay(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceSwitch, "Button 3",
		homekit.SubtypeKey{DeviceID: 40, Sub: "3", Role: homekit.RoleVirtualButton},
		homekit.CharName, homekit.CharOn)
	on := svc.Get(homekit.CharOn)

	if err := h.write(t, svc, homekit.CharOn, true); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}
	calls := h.transport.Calls()
	if len(calls) != 1 || calls[0].Action != "pressButton" || !reflect.DeepEqual(calls[0].Args, []any{3}) {
		t.Fatalf("calls = %+v, want pressButton 3", calls)
	}
	if on.Value() != true {
		t.Fatalf("On = %v, want true before reset", on.Value())
	}

	h.step(time.Second)
	if on.Value() != false {
		t.Errorf("On = %v, want false after reset", on.Value())
	}
}

func TestScene_StartsAndResets(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceSwitch, "Evening",
		homekit.SubtypeKey{DeviceID: 8, Sub: "8", Role: homekit.RoleScene},
		homekit.CharName, homekit.CharOn)

	if err := h.write(t, svc, homekit.CharOn, true); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}
	// Turning a scene off is a no-op.
	if err := h.write(t, svc, homekit.CharOn, false); err != nil {
		t.Fatalf("HandleWrite(false) error = %v", err)
	}

	calls := h.transport.Calls()
	if len(calls) != 1 || !reflect.DeepEqual(calls[0], call{Method: "scene", ID: 8}) {
		t.Errorf("calls = %+v, want one scene start", calls)
	}
}

func TestColour_AccumulatesHueAndSaturation(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceLightbulb, "Strip",
		homekit.SubtypeKey{DeviceID: 15, Sub: "0"},
		homekit.CharName, homekit.CharOn, homekit.CharBrightness, homekit.CharHue, homekit.CharSaturation)

	if err := h.write(t, svc, homekit.CharHue, 0.0); err != nil {
		t.Fatalf("HandleWrite(hue) error = %v", err)
	}
	if n := len(h.transport.Calls()); n != 0 {
		t.Fatalf("sent colour after hue only")
	}
	if err := h.write(t, svc, homekit.CharSaturation, 100.0); err != nil {
		t.Fatalf("HandleWrite(saturation) error = %v", err)
	}

	calls := h.transport.Calls()
	want := call{Method: "device", ID: 15, Action: "setColor", Args: []any{255, 0, 0, 0}}
	if len(calls) != 1 || !reflect.DeepEqual(calls[0], want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}

	h.step(time.Second)
	if n := len(h.transport.Calls()); n != 1 {
		t.Errorf("sent %d commands, want 1", n)
	}
}

func TestColour_LoneHalfSentAfterWindow(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceLightbulb, "Strip",
		homekit.SubtypeKey{DeviceID: 15, Sub: "0"},
		homekit.CharName, homekit.CharOn, homekit.CharBrightness, homekit.CharHue, homekit.CharSaturation)
	svc.Get(homekit.CharSaturation).SetValue(100.0)
	svc.Get(homekit.CharBrightness).SetValue(50)

	if err := h.write(t, svc, homekit.CharHue, 120.0); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}
	h.step(transform.LevelDebounce)

	calls := h.transport.Calls()
	want := call{Method: "device", ID: 15, Action: "setColor", Args: []any{0, 128, 0, 0}}
	if len(calls) != 1 || !reflect.DeepEqual(calls[0], want) {
		t.Errorf("calls = %+v, want %+v", calls, want)
	}
}

func TestLock_JammedWhenTargetNotReached(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"reached", true, homekit.LockSecured},
		{"stuck", false, homekit.LockJammed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.transport.props[50] = map[string]any{"value": tt.value}
			svc := homekit.NewService(homekit.ServiceLockMechanism, "Door",
				homekit.SubtypeKey{DeviceID: 50, Sub: "0"},
				homekit.CharName, homekit.CharLockCurrentState, homekit.CharLockTargetState)

			if err := h.write(t, svc, homekit.CharLockTargetState, homekit.LockSecured); err != nil {
				t.Fatalf("HandleWrite() error = %v", err)
			}
			current := svc.Get(homekit.CharLockCurrentState)
			if current.Value() != homekit.LockUnknown {
				t.Fatalf("current state changed before timeout: %v", current.Value())
			}

			h.step(10 * time.Second)
			if got := current.Value(); got != tt.want {
				t.Errorf("current state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZone_HandTemperatureUntil(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceThermostat, "Lounge",
		homekit.SubtypeKey{DeviceID: 3, Sub: "3", Role: homekit.RoleHeatingZone},
		homekit.CharName, homekit.CharCurrentTemperature, homekit.CharTargetTemperature)

	if err := h.write(t, svc, homekit.CharTargetTemperature, 22.5); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}

	calls := h.transport.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %+v, want 1", calls)
	}
	want := call{Method: "zone", ID: 3, Name: "heating", Value: "Manual", Temp: 22.5, Until: h.clk.Now().Add(time.Hour)}
	if !reflect.DeepEqual(calls[0], want) {
		t.Errorf("zone call = %+v, want %+v", calls[0], want)
	}
}

func TestClose_DropsPending(t *testing.T) {
	h := newHarness(t)
	svc := dimmer(12)

	_ = h.write(t, svc, homekit.CharBrightness, 30)
	h.exec.Close()
	h.step(time.Second)

	if n := len(h.transport.Calls()); n != 0 {
		t.Errorf("sent %d commands after Close", n)
	}
	if err := h.write(t, svc, homekit.CharOn, true); !errors.Is(err, ErrClosed) {
		t.Errorf("HandleWrite() after Close error = %v, want ErrClosed", err)
	}
}

func TestFlush_SendsPendingNow(t *testing.T) {
	h := newHarness(t)
	_ = h.write(t, dimmer(12), homekit.CharBrightness, 30)
	_ = h.write(t, dimmer(13), homekit.CharBrightness, 80)

	h.exec.Flush(context.Background())

	if n := len(h.transport.Calls()); n != 2 {
		t.Errorf("sent %d commands, want 2", n)
	}
	h.step(time.Second)
	if n := len(h.transport.Calls()); n != 2 {
		t.Errorf("flushed commands were sent again")
	}
}

func TestDebounce_HoldsLoopUntilSent(t *testing.T) {
	h := newHarness(t)
	svc := dimmer(12)

	for _, v := range []int{50, 60, 70} {
		if err := h.write(t, svc, homekit.CharBrightness, v); err != nil {
			t.Fatalf("HandleWrite(%d) error = %v", v, err)
		}
	}
	pauses, resumes := h.pauser.counts()
	if pauses-resumes != 1 {
		t.Fatalf("pauses/resumes = %d/%d, want the loop held once while pending", pauses, resumes)
	}

	h.step(transform.LevelDebounce)
	pauses, resumes = h.pauser.counts()
	if pauses != resumes {
		t.Errorf("pauses/resumes = %d/%d after send, want balanced", pauses, resumes)
	}
}

func TestDebounce_ReleasesLoopWhenCancelled(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(h *harness, svc *homekit.Service)
	}{
		{"immediate command", func(h *harness, svc *homekit.Service) {
			_ = h.exec.HandleWrite(context.Background(), svc.Get(homekit.CharOn), svc, false)
		}},
		{"close", func(h *harness, _ *homekit.Service) { h.exec.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			svc := dimmer(12)

			_ = h.write(t, svc, homekit.CharBrightness, 40)
			tt.cancel(h, svc)

			if pauses, resumes := h.pauser.counts(); pauses != resumes {
				t.Errorf("pauses/resumes = %d/%d, want balanced", pauses, resumes)
			}
		})
	}
}

func TestClose_CancelsFollowUps(t *testing.T) {
	h := newHarness(t)
	svc := homekit.NewService(homekit.ServiceSwitch, "Button 1",
		homekit.SubtypeKey{DeviceID: 40, Sub: "1", Role: homekit.RoleVirtualButton},
		homekit.CharName, homekit.CharOn)
	on := svc.Get(homekit.CharOn)

	if err := h.write(t, svc, homekit.CharOn, true); err != nil {
		t.Fatalf("HandleWrite() error = %v", err)
	}
	if n := h.exec.FollowUps(); n != 1 {
		t.Fatalf("FollowUps() = %d, want 1", n)
	}

	h.exec.Close()
	if n := h.exec.FollowUps(); n != 0 {
		t.Errorf("FollowUps() after Close = %d, want 0", n)
	}
	h.step(time.Second)
	if on.Value() != true {
		t.Errorf("On = %v, reset ran after Close", on.Value())
	}
}
