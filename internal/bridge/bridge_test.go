package bridge

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/nerrad567/hcbridge/internal/device"
	"github.com/nerrad567/hcbridge/internal/fibaro"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/schedule"
)

type sentCommand struct {
	ID     int
	Action string
	Args   []any
}

// mockController implements Controller with canned data and a recorder.
type mockController struct {
	mu        sync.Mutex
	devices   []device.Descriptor
	scenes    []fibaro.Scene
	zones     map[int]fibaro.Zone
	variables map[string]string
	props     map[int]map[string]any
	refresh   fibaro.Refresh
	commands  []sentCommand
	reads     int

	// fetchBlock, when set, holds the next fetch until it is closed.
	fetchBlock   chan struct{}
	fetchStarted chan struct{}
}

func newMockController() *mockController {
	return &mockController{
		zones:     make(map[int]fibaro.Zone),
		variables: make(map[string]string),
		props:     make(map[int]map[string]any),
	}
}

func (m *mockController) FetchIncrementalState(context.Context, int64) (fibaro.Refresh, error) {
	m.mu.Lock()
	block := m.fetchBlock
	m.fetchBlock = nil
	m.mu.Unlock()
	if block != nil {
		m.fetchStarted <- struct{}{}
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.refresh
	m.refresh = fibaro.Refresh{Last: r.Last}
	return r, nil
}

func (m *mockController) ReadVariable(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variables[name]
	if !ok {
		return "", fibaro.ErrNotFound
	}
	return v, nil
}

func (m *mockController) ReadZoneState(_ context.Context, _ string, id int) (fibaro.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return fibaro.Zone{}, fibaro.ErrNotFound
	}
	return z, nil
}

func (m *mockController) SendDeviceCommand(_ context.Context, id int, action string, args []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, sentCommand{ID: id, Action: action, Args: args})
	return nil
}

func (m *mockController) StartScene(context.Context, int) error { return nil }

func (m *mockController) WriteVariable(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables[name] = value
	return nil
}

func (m *mockController) WriteZoneHandTemperature(context.Context, string, int, string, float64, time.Time) error {
	return nil
}

func (m *mockController) ReadDeviceProperties(_ context.Context, id int) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	p, ok := m.props[id]
	if !ok {
		return nil, fibaro.ErrNotFound
	}
	return p, nil
}

func (m *mockController) ListDevices(context.Context) ([]device.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices, nil
}

func (m *mockController) ListScenes(context.Context) ([]fibaro.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scenes, nil
}

func (m *mockController) sent() []sentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentCommand, len(m.commands))
	copy(out, m.commands)
	return out
}

func dev(id int, typ, name string, props map[string]any) device.Descriptor {
	return device.Descriptor{
		ID:         id,
		Type:       typ,
		Name:       name,
		Enabled:    true,
		Visible:    true,
		Properties: device.ParseProperties(props),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			ID:                "test-bridge",
			PollInterval:      5,
			BackoffSeconds:    30,
			TemperatureUnit:   config.UnitCelsius,
			DeadDevicePolicy:  config.DeadDeviceRetain,
			ThermostatTimeout: 3600,
		},
	}
}

func newTestBridge(t *testing.T, cfg *config.Config, ctrl *mockController) (*Bridge, *testingclock.FakeClock, *schedule.Scheduler) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Unix(1700000000, 0))
	sched := schedule.New(clk)
	b, err := New(Options{Config: cfg, Controller: ctrl, Scheduler: sched, Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, clk, sched
}

func keys(as []Accessory) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Key)
	}
	return out
}

func findService(t *testing.T, b *Bridge, kind homekit.ServiceKind, deviceID int) *homekit.Service {
	t.Helper()
	for _, svc := range b.Services() {
		if svc.Kind == kind && svc.Subtype.DeviceID == deviceID {
			return svc
		}
	}
	t.Fatalf("no %s service for device %d", kind, deviceID)
	return nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Controller: newMockController()}); err == nil {
		t.Error("New() without config should fail")
	}
	if _, err := New(Options{Config: testConfig()}); err == nil {
		t.Error("New() without controller should fail")
	}
}

func TestResolveCapabilities(t *testing.T) {
	ctrl := newMockController()
	ctrl.devices = []device.Descriptor{
		dev(10, "com.fibaro.binarySwitch", "Lamp", map[string]any{"value": true}),
		dev(11, "com.fibaro.binarySwitch", "_hidden", nil),
		dev(12, "com.fibaro.unknownThing", "Mystery", nil),
		dev(13, "com.fibaro.temperatureSensor", "Hall", map[string]any{"value": 19.5}),
	}
	disabled := dev(14, "com.fibaro.binarySwitch", "Off", nil)
	disabled.Enabled = false
	ctrl.devices = append(ctrl.devices, disabled)
	ctrl.scenes = []fibaro.Scene{{ID: 3, Name: "Evening", Visible: true}, {ID: 4, Name: "Hidden", Visible: false}}
	ctrl.zones[7] = fibaro.Zone{ID: 7, Name: "Lounge"}

	cfg := testConfig()
	cfg.Bridge.SwitchGlobals = "Party"
	cfg.Bridge.DimmerGlobals = "Ambience"
	cfg.Bridge.SecuritySystem = true
	cfg.Bridge.HeatingZones = []int{7}
	cfg.Bridge.Scenes = true

	b, _, _ := newTestBridge(t, cfg, ctrl)
	got, err := b.ResolveCapabilities(context.Background())
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}

	want := []string{
		"device-10", "device-13", "scene-3", "security",
		"variable-Ambience", "variable-Party", "zone-heating-7",
	}
	if !reflect.DeepEqual(keys(got), want) {
		t.Errorf("accessories = %v, want %v", keys(got), want)
	}
	if b.DeviceCount() != 2 {
		t.Errorf("DeviceCount() = %d, want 2", b.DeviceCount())
	}
	for _, a := range got {
		if a.Key == "zone-heating-7" && a.Name != "Lounge" {
			t.Errorf("zone name = %q, want Lounge", a.Name)
		}
	}

	seen := make(map[string]bool)
	for _, svc := range b.Services() {
		k := svc.Subtype.String()
		if seen[k] {
			t.Errorf("duplicate subtype %s", k)
		}
		seen[k] = true
	}
}

func TestBind_SeedsAndSubscribes(t *testing.T) {
	ctrl := newMockController()
	ctrl.devices = []device.Descriptor{
		dev(10, "com.fibaro.binarySwitch", "Lamp", map[string]any{"value": true}),
		dev(13, "com.fibaro.temperatureSensor", "Hall", map[string]any{"value": 19.5}),
	}
	b, _, _ := newTestBridge(t, testConfig(), ctrl)

	if _, err := b.Bind(); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("Bind() before resolve error = %v, want ErrNotResolved", err)
	}
	if _, err := b.ResolveCapabilities(context.Background()); err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}
	n, err := b.Bind()
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if n != 2 || b.Registry().Len() != 2 {
		t.Errorf("Bind() = %d (registry %d), want 2", n, b.Registry().Len())
	}

	lamp := findService(t, b, homekit.ServiceSwitch, 10)
	if got := lamp.Get(homekit.CharOn).Value(); got != true {
		t.Errorf("On seeded = %v, want true", got)
	}
	hall := findService(t, b, homekit.ServiceTemperatureSensor, 13)
	if got := hall.Get(homekit.CharCurrentTemperature).Value(); got != 19.5 {
		t.Errorf("temperature seeded = %v, want 19.5", got)
	}
}

func TestStart_PollsAndAppliesChanges(t *testing.T) {
	ctrl := newMockController()
	ctrl.devices = []device.Descriptor{dev(10, "com.fibaro.binarySwitch", "Lamp", map[string]any{"value": false})}
	ctrl.refresh = fibaro.Refresh{Last: 5, Changes: []fibaro.Change{{ID: 10, Properties: map[string]any{"value": true}}}}

	b, clk, sched := newTestBridge(t, testConfig(), ctrl)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Step(0)
	sched.Wait()

	lamp := findService(t, b, homekit.ServiceSwitch, 10)
	if got := lamp.Get(homekit.CharOn).Value(); got != true {
		t.Errorf("On = %v, want true after poll", got)
	}
	if s := b.LoopStatus(); s.Cursor != 5 {
		t.Errorf("cursor = %d, want 5", s.Cursor)
	}
}

func TestHandleCharacteristicWrite(t *testing.T) {
	ctrl := newMockController()
	ctrl.devices = []device.Descriptor{dev(10, "com.fibaro.binarySwitch", "Lamp", nil)}
	b, _, _ := newTestBridge(t, testConfig(), ctrl)
	if _, err := b.ResolveCapabilities(context.Background()); err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}

	lamp := findService(t, b, homekit.ServiceSwitch, 10)
	if err := b.HandleCharacteristicWrite(context.Background(), lamp.Get(homekit.CharOn), lamp, true); err != nil {
		t.Fatalf("HandleCharacteristicWrite() error = %v", err)
	}
	want := []sentCommand{{ID: 10, Action: "turnOn"}}
	if got := ctrl.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %+v, want %+v", got, want)
	}

	foreign := homekit.NewService(homekit.ServiceSwitch, "x", homekit.SubtypeKey{DeviceID: 10}, homekit.CharOn)
	err := b.HandleCharacteristicWrite(context.Background(), foreign.Get(homekit.CharOn), foreign, true)
	if !errors.Is(err, ErrUnknownService) {
		t.Errorf("write to foreign service error = %v, want ErrUnknownService", err)
	}
}

func TestHandleCharacteristicRead_DeadPolicy(t *testing.T) {
	tests := []struct {
		policy  string
		wantErr error
	}{
		{config.DeadDeviceRetain, nil},
		{config.DeadDeviceFail, ErrDeviceUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			ctrl := newMockController()
			ctrl.devices = []device.Descriptor{dev(10, "com.fibaro.binarySwitch", "Lamp", map[string]any{"value": true, "dead": true})}
			ctrl.props[10] = map[string]any{"value": true, "dead": true}
			cfg := testConfig()
			cfg.Bridge.DeadDevicePolicy = tt.policy

			b, _, _ := newTestBridge(t, cfg, ctrl)
			if _, err := b.ResolveCapabilities(context.Background()); err != nil {
				t.Fatalf("ResolveCapabilities() error = %v", err)
			}
			if _, err := b.Bind(); err != nil {
				t.Fatalf("Bind() error = %v", err)
			}

			lamp := findService(t, b, homekit.ServiceSwitch, 10)
			v, err := b.HandleCharacteristicRead(context.Background(), lamp.Get(homekit.CharOn), lamp)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleCharacteristicRead() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && v != true {
				t.Errorf("value = %v, want cached true", v)
			}
		})
	}
}

func TestHandleCharacteristicRead_RefreshesInBackground(t *testing.T) {
	ctrl := newMockController()
	ctrl.devices = []device.Descriptor{dev(10, "com.fibaro.binarySwitch", "Lamp", map[string]any{"value": true})}
	ctrl.props[10] = map[string]any{"value": false}

	b, _, _ := newTestBridge(t, testConfig(), ctrl)
	if _, err := b.ResolveCapabilities(context.Background()); err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}
	if _, err := b.Bind(); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	lamp := findService(t, b, homekit.ServiceSwitch, 10)
	on := lamp.Get(homekit.CharOn)
	updated := make(chan any, 1)
	on.AddListener(func(u homekit.Update) { updated <- u.New })

	v, err := b.HandleCharacteristicRead(context.Background(), on, lamp)
	if err != nil {
		t.Fatalf("HandleCharacteristicRead() error = %v", err)
	}
	if v != true {
		t.Errorf("read returned %v, want cached true", v)
	}

	select {
	case got := <-updated:
		if got != false {
			t.Errorf("refreshed value = %v, want false", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh did not update the characteristic")
	}
}

func TestDebouncedWrite_SurvivesInFlightFetch(t *testing.T) {
	ctrl := newMockController()
	ctrl.devices = []device.Descriptor{dev(10, "com.fibaro.multilevelSwitch", "Dimmer", map[string]any{"value": 30, "deviceControlType": 2})}
	ctrl.refresh = fibaro.Refresh{Last: 5, Changes: []fibaro.Change{{ID: 10, Properties: map[string]any{"value": 30}}}}
	release := make(chan struct{})
	ctrl.fetchBlock = release
	ctrl.fetchStarted = make(chan struct{}, 1)

	b, clk, sched := newTestBridge(t, testConfig(), ctrl)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.Step(0)
	<-ctrl.fetchStarted

	dimmer := findService(t, b, homekit.ServiceLightbulb, 10)
	brightness := dimmer.Get(homekit.CharBrightness)
	if err := b.HandleCharacteristicWrite(context.Background(), brightness, dimmer, 80); err != nil {
		t.Fatalf("HandleCharacteristicWrite() error = %v", err)
	}
	close(release)
	sched.Wait()

	if got := brightness.Value(); got != 80 {
		t.Errorf("brightness during debounce window = %v, want 80", got)
	}
	if s := b.LoopStatus(); !s.Paused {
		t.Error("loop should stay paused while the write is pending")
	}

	clk.Step(time.Second)
	sched.Wait()

	want := []sentCommand{{ID: 10, Action: "setValue", Args: []any{80}}}
	if got := ctrl.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %+v, want %+v", got, want)
	}
	if got := brightness.Value(); got != 80 {
		t.Errorf("brightness after send = %v, want 80", got)
	}
	if b.PendingCommands() != 0 {
		t.Errorf("PendingCommands() = %d, want 0", b.PendingCommands())
	}
}
