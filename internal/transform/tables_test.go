package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

func svc(kind homekit.ServiceKind, key homekit.SubtypeKey, chars ...homekit.CharKind) *homekit.Service {
	return homekit.NewService(kind, "test", key, chars...)
}

func TestGetTable_MissingInputKeepsPriorValue(t *testing.T) {
	g := NewGetTable(Options{})
	s := svc(homekit.ServiceLightbulb, homekit.SubtypeKey{DeviceID: 1}, homekit.CharOn, homekit.CharBrightness)
	br := s.Get(homekit.CharBrightness)
	br.SetValue(40)

	if g.Apply(br, s, map[string]any{}) {
		t.Error("Apply with no value should report false")
	}
	if g.Apply(br, s, map[string]any{"value": "garbage"}) {
		t.Error("Apply with unparsable value should report false")
	}
	if br.Value() != 40 {
		t.Errorf("Brightness = %v, want prior 40", br.Value())
	}

	if !g.Apply(br, s, map[string]any{"value": "65"}) || br.Value() != 65 {
		t.Errorf("Brightness = %v, want 65", br.Value())
	}
}

func TestGetTable_On(t *testing.T) {
	g := NewGetTable(Options{})
	s := svc(homekit.ServiceSwitch, homekit.SubtypeKey{DeviceID: 1}, homekit.CharOn)
	on := s.Get(homekit.CharOn)

	for _, tt := range []struct {
		raw  any
		want bool
	}{
		{"true", true},
		{"0", false},
		{"55", true},
		{1.0, true},
		{false, false},
	} {
		g.Apply(on, s, map[string]any{"value": tt.raw})
		if on.Value() != tt.want {
			t.Errorf("On from %#v = %v, want %v", tt.raw, on.Value(), tt.want)
		}
	}
}

func TestGetTable_BrightnessSnapPolicy(t *testing.T) {
	s := svc(homekit.ServiceLightbulb, homekit.SubtypeKey{DeviceID: 1}, homekit.CharBrightness)
	br := s.Get(homekit.CharBrightness)

	NewGetTable(Options{}).Apply(br, s, map[string]any{"value": 99.0})
	if br.Value() != 99 {
		t.Errorf("without snap: %v, want 99", br.Value())
	}
	NewGetTable(Options{SnapDimmer99: true}).Apply(br, s, map[string]any{"value": 99.0})
	if br.Value() != 100 {
		t.Errorf("with snap: %v, want 100", br.Value())
	}
}

func TestGetTable_CoverPosition(t *testing.T) {
	g := NewGetTable(Options{})
	s := svc(homekit.ServiceWindowCovering, homekit.SubtypeKey{DeviceID: 1}, homekit.CharCurrentPosition, homekit.CharPositionState)
	pos := s.Get(homekit.CharCurrentPosition)

	tests := []struct {
		props map[string]any
		want  int
	}{
		{map[string]any{"value": "99"}, 100},
		{map[string]any{"value": 1.0}, 0},
		{map[string]any{"value": 42.0}, 42},
		{map[string]any{"state": "Open"}, 100},
		{map[string]any{"state": "Closed"}, 0},
		{map[string]any{"value": true}, 100},
	}
	for _, tt := range tests {
		if !g.Apply(pos, s, tt.props) {
			t.Errorf("Apply(%v) = false", tt.props)
			continue
		}
		if pos.Value() != tt.want {
			t.Errorf("position from %v = %v, want %d", tt.props, pos.Value(), tt.want)
		}
	}

	g.Apply(s.Get(homekit.CharPositionState), s, nil)
	if s.Get(homekit.CharPositionState).Value() != homekit.PositionStopped {
		t.Error("PositionState should report stopped")
	}
}

func TestGetTable_TemperatureFahrenheit(t *testing.T) {
	s := svc(homekit.ServiceTemperatureSensor, homekit.SubtypeKey{DeviceID: 1}, homekit.CharCurrentTemperature)
	temp := s.Get(homekit.CharCurrentTemperature)

	NewGetTable(Options{Fahrenheit: true}).Apply(temp, s, map[string]any{"value": 98.6})
	got, _ := temp.Value().(float64)
	if math.Abs(got-37.0) > 0.1 {
		t.Errorf("98.6F -> %v, want 37.0", got)
	}

	NewGetTable(Options{}).Apply(temp, s, map[string]any{"value": "21.54"})
	if got, _ := temp.Value().(float64); math.Abs(got-21.5) > 0.01 {
		t.Errorf("21.54C -> %v, want 21.5", got)
	}
}

func TestGetTable_TiltRescaled(t *testing.T) {
	g := NewGetTable(Options{})
	s := svc(homekit.ServiceWindowCovering, homekit.SubtypeKey{DeviceID: 1}, homekit.CharCurrentHorizontalTilt)
	tilt := s.Get(homekit.CharCurrentHorizontalTilt)

	g.Apply(tilt, s, map[string]any{"value2": 75.0})
	if tilt.Value() != 45 {
		t.Errorf("tilt = %v, want 45", tilt.Value())
	}
}

func TestGetTable_Colour(t *testing.T) {
	g := NewGetTable(Options{})
	key := homekit.SubtypeKey{DeviceID: 1, Variant: homekit.VariantColourLight}
	s := svc(homekit.ServiceLightbulb, key, homekit.CharHue, homekit.CharSaturation)

	g.Apply(s.Get(homekit.CharHue), s, map[string]any{"color": "0,255,0,0"})
	g.Apply(s.Get(homekit.CharSaturation), s, map[string]any{"color": "0,255,0,0"})
	if s.Get(homekit.CharHue).Value() != 120.0 || s.Get(homekit.CharSaturation).Value() != 100.0 {
		t.Errorf("hue/sat = %v/%v", s.Get(homekit.CharHue).Value(), s.Get(homekit.CharSaturation).Value())
	}
}

func TestGetTable_SceneRemoteEvents(t *testing.T) {
	g := NewGetTable(Options{})
	button2 := svc(homekit.ServiceStatelessProgrammableSwitch,
		homekit.SubtypeKey{DeviceID: 5, Sub: "2", Role: homekit.RoleRemoteButton, Variant: homekit.VariantSceneRemote},
		homekit.CharProgrammableSwitchEvent)
	ev := button2.Get(homekit.CharProgrammableSwitchEvent)

	tests := []struct {
		scene int
		want  any
		ok    bool
	}{
		{3, homekit.SinglePress, true},
		{4, homekit.LongPress, true},
		{1, nil, false},
		{5, nil, false},
	}
	for _, tt := range tests {
		v, ok := g.Value(ev, button2, map[string]any{PropSceneActivation: tt.scene})
		if ok != tt.ok || (ok && v != tt.want) {
			t.Errorf("scene %d: got %v, %v; want %v, %v", tt.scene, v, ok, tt.want, tt.ok)
		}
	}
}

func TestGetTable_CentralSceneEvents(t *testing.T) {
	g := NewGetTable(Options{})
	key1 := svc(homekit.ServiceStatelessProgrammableSwitch,
		homekit.SubtypeKey{DeviceID: 5, Sub: "1", Role: homekit.RoleRemoteButton, Variant: homekit.VariantKeyRemote},
		homekit.CharProgrammableSwitchEvent)
	ev := key1.Get(homekit.CharProgrammableSwitchEvent)

	tests := []struct {
		keyID float64
		attr  string
		want  any
		ok    bool
	}{
		{1, "Pressed", homekit.SinglePress, true},
		{1, "Pressed2", homekit.DoublePress, true},
		{1, "HeldDown", homekit.LongPress, true},
		{1, "Released", nil, false},
		{2, "Pressed", nil, false},
	}
	for _, tt := range tests {
		props := map[string]any{PropCentralScene: map[string]any{"keyId": tt.keyID, "keyAttribute": tt.attr}}
		v, ok := g.Value(ev, key1, props)
		if ok != tt.ok || (ok && v != tt.want) {
			t.Errorf("key %v %s: got %v, %v; want %v, %v", tt.keyID, tt.attr, v, ok, tt.want, tt.ok)
		}
	}
}

func TestGetTable_SecurityAndBattery(t *testing.T) {
	g := NewGetTable(Options{})
	sec := svc(homekit.ServiceSecuritySystem, homekit.SubtypeKey{Sub: "SecuritySystem", Role: homekit.RoleSecurity},
		homekit.CharSecuritySystemCurrentState, homekit.CharSecuritySystemTargetState)

	g.Apply(sec.Get(homekit.CharSecuritySystemTargetState), sec, map[string]any{"value": "NightArmed"})
	g.Apply(sec.Get(homekit.CharSecuritySystemCurrentState), sec, map[string]any{"value": "AlarmTriggered"})
	if sec.Get(homekit.CharSecuritySystemTargetState).Value() != homekit.SecurityNightArm {
		t.Errorf("target = %v", sec.Get(homekit.CharSecuritySystemTargetState).Value())
	}
	if sec.Get(homekit.CharSecuritySystemCurrentState).Value() != homekit.SecurityAlarmTriggered {
		t.Errorf("current = %v", sec.Get(homekit.CharSecuritySystemCurrentState).Value())
	}
	if g.Apply(sec.Get(homekit.CharSecuritySystemTargetState), sec, map[string]any{"value": "AlarmTriggered"}) {
		t.Error("target state must not take AlarmTriggered")
	}

	motion := svc(homekit.ServiceMotionSensor, homekit.SubtypeKey{DeviceID: 2}, homekit.CharStatusLowBattery)
	low := motion.Get(homekit.CharStatusLowBattery)
	g.Apply(low, motion, map[string]any{"batteryLevel": 255.0})
	if low.Value() != homekit.BatteryLow {
		t.Errorf("battery 255 -> %v, want low", low.Value())
	}
}

func TestPropertyFor(t *testing.T) {
	remote := svc(homekit.ServiceStatelessProgrammableSwitch, homekit.SubtypeKey{DeviceID: 1, Sub: "1", Role: homekit.RoleRemoteButton, Variant: homekit.VariantKeyRemote})
	tests := []struct {
		kind homekit.CharKind
		s    *homekit.Service
		want string
	}{
		{homekit.CharOn, nil, PropValue},
		{homekit.CharHue, nil, PropColor},
		{homekit.CharTargetHorizontalTilt, nil, PropValue2},
		{homekit.CharTargetTemperature, nil, PropSetpoint},
		{homekit.CharTargetHeatingCoolingState, nil, PropMode},
		{homekit.CharStatusLowBattery, nil, PropBattery},
		{homekit.CharProgrammableSwitchEvent, remote, PropCentralScene},
	}
	for _, tt := range tests {
		if got := PropertyFor(tt.kind, tt.s); got != tt.want {
			t.Errorf("PropertyFor(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestSetTable_Commands(t *testing.T) {
	st := NewSetTable(Options{})

	dimmer := svc(homekit.ServiceLightbulb, homekit.SubtypeKey{DeviceID: 7}, homekit.CharOn, homekit.CharBrightness)
	cmd, err := st.Command(dimmer.Get(homekit.CharBrightness), dimmer, 42)
	if err != nil {
		t.Fatalf("Command(Brightness) error = %v", err)
	}
	if cmd.Action != "setValue" || cmd.Args[0] != 42 || cmd.Debounce != LevelDebounce || cmd.Class != ClassLevel {
		t.Errorf("brightness command = %+v", cmd)
	}

	cmd, _ = st.Command(dimmer.Get(homekit.CharOn), dimmer, false)
	if cmd.Action != "turnOff" || cmd.Debounce != 0 {
		t.Errorf("off command = %+v", cmd)
	}

	cover := svc(homekit.ServiceWindowCovering, homekit.SubtypeKey{DeviceID: 8}, homekit.CharTargetPosition)
	cmd, _ = st.Command(cover.Get(homekit.CharTargetPosition), cover, 100)
	if cmd.Args[0] != 99 || cmd.Debounce != PositionDebounce {
		t.Errorf("position command = %+v", cmd)
	}

	binary := svc(homekit.ServiceWindowCovering, homekit.SubtypeKey{DeviceID: 9, Variant: homekit.VariantBinaryCover}, homekit.CharTargetPosition)
	cmd, _ = st.Command(binary.Get(homekit.CharTargetPosition), binary, 80)
	if cmd.Action != "open" || cmd.Debounce != 0 {
		t.Errorf("binary cover command = %+v", cmd)
	}

	lock := svc(homekit.ServiceLockMechanism, homekit.SubtypeKey{DeviceID: 10}, homekit.CharLockTargetState)
	cmd, _ = st.Command(lock.Get(homekit.CharLockTargetState), lock, homekit.LockSecured)
	if cmd.Action != "secure" || !cmd.ConfirmLock || !cmd.LockTarget {
		t.Errorf("lock command = %+v", cmd)
	}
}

func TestSetTable_PseudoServices(t *testing.T) {
	st := NewSetTable(Options{Fahrenheit: true})

	global := svc(homekit.ServiceSwitch, homekit.SubtypeKey{Sub: "away", Role: homekit.RoleGlobalSwitch}, homekit.CharOn)
	cmd, _ := st.Command(global.Get(homekit.CharOn), global, true)
	if cmd.Target != TargetVariable || cmd.Variable != "away" || cmd.Value != "true" {
		t.Errorf("global switch command = %+v", cmd)
	}

	dimmer := svc(homekit.ServiceLightbulb, homekit.SubtypeKey{Sub: "mood", Role: homekit.RoleGlobalDimmer}, homekit.CharOn)
	cmd, _ = st.Command(dimmer.Get(homekit.CharOn), dimmer, true)
	if !cmd.ReadFirst || cmd.Value != "100" {
		t.Errorf("global dimmer on = %+v", cmd)
	}

	scene := svc(homekit.ServiceSwitch, homekit.SubtypeKey{DeviceID: 12, Role: homekit.RoleScene}, homekit.CharOn)
	cmd, _ = st.Command(scene.Get(homekit.CharOn), scene, true)
	if cmd.Target != TargetScene || cmd.DeviceID != 12 || !cmd.Momentary {
		t.Errorf("scene command = %+v", cmd)
	}
	if _, err := st.Command(scene.Get(homekit.CharOn), scene, false); !errors.Is(err, ErrNoCommand) {
		t.Errorf("scene off error = %v", err)
	}

	button := svc(homekit.ServiceSwitch, homekit.SubtypeKey{DeviceID: 13, Sub: "4", Role: homekit.RoleVirtualButton}, homekit.CharOn)
	cmd, _ = st.Command(button.Get(homekit.CharOn), button, true)
	if cmd.Action != "pressButton" || cmd.Args[0] != 4 || !cmd.Momentary {
		t.Errorf("virtual button command = %+v", cmd)
	}

	zone := svc(homekit.ServiceThermostat, homekit.SubtypeKey{DeviceID: 3, Role: homekit.RoleHeatingZone}, homekit.CharTargetTemperature, homekit.CharTargetHeatingCoolingState)
	cmd, _ = st.Command(zone.Get(homekit.CharTargetTemperature), zone, 20.0)
	if cmd.Target != TargetZone || cmd.Zone.Kind != "heating" || cmd.Zone.ID != 3 || cmd.Zone.Temperature != 68 {
		t.Errorf("zone command = %+v", cmd)
	}
	if _, err := st.Command(zone.Get(homekit.CharTargetHeatingCoolingState), zone, 1); !errors.Is(err, ErrNotWritable) {
		t.Errorf("zone mode error = %v", err)
	}

	sec := svc(homekit.ServiceSecuritySystem, homekit.SubtypeKey{Sub: "SecuritySystem", Role: homekit.RoleSecurity}, homekit.CharSecuritySystemTargetState)
	cmd, _ = st.Command(sec.Get(homekit.CharSecuritySystemTargetState), sec, homekit.SecurityAwayArm)
	if cmd.Variable != "SecuritySystem" || cmd.Value != "AwayArmed" {
		t.Errorf("security command = %+v", cmd)
	}
}

func TestSetTable_Errors(t *testing.T) {
	st := NewSetTable(Options{})
	s := svc(homekit.ServiceTemperatureSensor, homekit.SubtypeKey{DeviceID: 1}, homekit.CharCurrentTemperature, homekit.CharName)
	if _, err := st.Command(s.Get(homekit.CharCurrentTemperature), s, 20); !errors.Is(err, ErrNotWritable) {
		t.Errorf("read-only error = %v", err)
	}

	l := svc(homekit.ServiceLightbulb, homekit.SubtypeKey{DeviceID: 1}, homekit.CharBrightness)
	if _, err := st.Command(l.Get(homekit.CharBrightness), l, "bright"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("invalid value error = %v", err)
	}
}
