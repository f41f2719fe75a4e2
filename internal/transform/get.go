package transform

import (
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// Logger is the logging interface used by the transform tables.
type Logger interface {
	Debug(msg string, args ...any)
}

// Options configures conversions that depend on installation settings.
type Options struct {
	// Fahrenheit means the controller reports temperatures in Fahrenheit.
	Fahrenheit bool

	// SnapDimmer99 maps a dimmer level of 99 to 100. Covers always snap.
	SnapDimmer99 bool

	Logger Logger
}

type getFunc func(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool)

// GetTable computes characteristic values from device properties.
type GetTable struct {
	opts    Options
	entries map[homekit.CharKind]getFunc
}

// NewGetTable builds the get-direction table.
func NewGetTable(opts Options) *GetTable {
	return &GetTable{
		opts: opts,
		entries: map[homekit.CharKind]getFunc{
			homekit.CharOn:                         getOn,
			homekit.CharOutletInUse:                getOn,
			homekit.CharBrightness:                 getBrightness,
			homekit.CharHue:                        getHue,
			homekit.CharSaturation:                 getSaturation,
			homekit.CharCurrentPosition:            getPosition,
			homekit.CharTargetPosition:             getPosition,
			homekit.CharPositionState:              constant(homekit.PositionStopped),
			homekit.CharCurrentHorizontalTilt:      getTilt,
			homekit.CharTargetHorizontalTilt:       getTilt,
			homekit.CharCurrentDoorState:           getDoorState,
			homekit.CharTargetDoorState:            getDoorState,
			homekit.CharObstructionDetected:        constant(false),
			homekit.CharLockCurrentState:           getLockState,
			homekit.CharLockTargetState:            getLockState,
			homekit.CharCurrentTemperature:         getCurrentTemperature,
			homekit.CharTargetTemperature:          getTargetTemperature,
			homekit.CharCurrentHeatingCoolingState: getCurrentMode,
			homekit.CharTargetHeatingCoolingState:  getTargetMode,
			homekit.CharTemperatureDisplayUnits:    getDisplayUnits,
			homekit.CharCurrentRelativeHumidity:    getHumidity,
			homekit.CharCurrentAmbientLightLevel:   getLightLevel,
			homekit.CharMotionDetected:             getDetected,
			homekit.CharContactSensorState:         getContact,
			homekit.CharLeakDetected:               getDetectedInt,
			homekit.CharSmokeDetected:              getDetectedInt,
			homekit.CharCarbonMonoxideDetected:     getDetectedInt,
			homekit.CharSecuritySystemCurrentState: getSecurityCurrent,
			homekit.CharSecuritySystemTargetState:  getSecurityTarget,
			homekit.CharProgrammableSwitchEvent:    getSwitchEvent,
			homekit.CharServiceLabelIndex:          getLabelIndex,
			homekit.CharStatusLowBattery:           getLowBattery,
			homekit.CharActive:                     getDetectedInt,
			homekit.CharInUse:                      getDetectedInt,
			homekit.CharValveType:                  constant(0),
		},
	}
}

// Has reports whether the table has an entry for kind.
func (g *GetTable) Has(kind homekit.CharKind) bool {
	_, ok := g.entries[kind]
	return ok
}

// Apply computes c's value from props and stores it. It returns false and
// leaves the prior value untouched when the input is missing or unusable.
func (g *GetTable) Apply(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) bool {
	fn, ok := g.entries[c.Kind]
	if !ok {
		return false
	}
	v, ok := fn(g, c, svc, props)
	if !ok {
		return false
	}
	c.SetValue(v)
	return true
}

// Value computes c's value without storing it.
func (g *GetTable) Value(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	fn, ok := g.entries[c.Kind]
	if !ok {
		return nil, false
	}
	return fn(g, c, svc, props)
}

func (g *GetTable) skip(c *homekit.Characteristic, svc *homekit.Service, raw any) {
	if g.opts.Logger == nil {
		return
	}
	g.opts.Logger.Debug("conversion skipped",
		"subtype", svc.Subtype.String(),
		"characteristic", string(c.Kind),
		"raw", raw,
	)
}

func constant(v any) getFunc {
	return func(*GetTable, *homekit.Characteristic, *homekit.Service, map[string]any) (any, bool) {
		return v, true
	}
}

// boolValue reads the value category as a boolean. Numbers count as on when
// positive so dimmer levels work too.
func (g *GetTable) boolValue(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (bool, bool) {
	raw, ok := props[PropValue]
	if !ok || raw == nil {
		return false, false
	}
	if f, ok := ToFloat(raw); ok {
		return f > 0, true
	}
	if b, ok := ParseBool(raw); ok {
		return b, true
	}
	g.skip(c, svc, raw)
	return false, false
}

func (g *GetTable) number(c *homekit.Characteristic, svc *homekit.Service, props map[string]any, category string) (float64, bool) {
	raw, ok := Lookup(props, category)
	if !ok {
		return 0, false
	}
	f, ok := ToFloat(raw)
	if !ok {
		g.skip(c, svc, raw)
		return 0, false
	}
	return f, true
}

func getOn(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	b, ok := g.boolValue(c, svc, props)
	return b, ok
}

func getBrightness(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropValue)
	if !ok {
		return nil, false
	}
	if g.opts.SnapDimmer99 && f >= 99 {
		f = 100
	}
	return int(math.Round(Clamp(f, 0, 100))), true
}

func (g *GetTable) hsv(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (h, s float64, ok bool) {
	raw, present := Lookup(props, PropColor)
	if !present {
		return 0, 0, false
	}
	str, isString := raw.(string)
	if !isString {
		g.skip(c, svc, raw)
		return 0, 0, false
	}
	r, gr, b, w, err := ParseRGBW(str)
	if err != nil {
		g.skip(c, svc, raw)
		return 0, 0, false
	}
	h, s, _ = RGBWToHSV(r, gr, b, w)
	return math.Round(h), math.Round(s), true
}

func getHue(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	h, _, ok := g.hsv(c, svc, props)
	return h, ok
}

func getSaturation(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	_, s, ok := g.hsv(c, svc, props)
	return s, ok
}

// coverPosition reads a cover position, falling back to the open/closed
// state string when no numeric value is available.
func (g *GetTable) coverPosition(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (int, bool) {
	if raw, ok := props[PropValue]; ok && raw != nil {
		if f, ok := ToFloat(raw); ok {
			return SnapPosition(f), true
		}
		if b, ok := ParseBool(raw); ok {
			if b {
				return 100, true
			}
			return 0, true
		}
	}
	if state, ok := props["state"].(string); ok {
		switch strings.ToLower(state) {
		case "open", "opened", "opening":
			return 100, true
		case "closed", "closing":
			return 0, true
		}
	}
	if raw, ok := props[PropValue]; ok {
		g.skip(c, svc, raw)
	}
	return 0, false
}

func getPosition(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	p, ok := g.coverPosition(c, svc, props)
	return p, ok
}

func getTilt(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropValue2)
	if !ok {
		return nil, false
	}
	lo, hi := c.Range()
	return int(math.Round(Rescale(f, 0, 100, lo, hi))), true
}

func getDoorState(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	p, ok := g.coverPosition(c, svc, props)
	if !ok {
		return nil, false
	}
	if p > 0 {
		return homekit.DoorOpen, true
	}
	return homekit.DoorClosed, true
}

func getLockState(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	b, ok := g.boolValue(c, svc, props)
	if !ok {
		return nil, false
	}
	if b {
		return homekit.LockSecured, true
	}
	return homekit.LockUnsecured, true
}

func (g *GetTable) celsius(f float64) float64 {
	if g.opts.Fahrenheit {
		return FahrenheitToCelsius(f)
	}
	return round1(f)
}

func getCurrentTemperature(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropValue)
	if !ok {
		return nil, false
	}
	lo, hi := c.Range()
	return Clamp(g.celsius(f), lo, hi), true
}

func getTargetTemperature(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropSetpoint)
	if !ok {
		return nil, false
	}
	lo, hi := c.Range()
	return Clamp(g.celsius(f), lo, hi), true
}

func (g *GetTable) mode(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (int, bool) {
	raw, ok := Lookup(props, PropMode)
	if !ok {
		return 0, false
	}
	m, ok := ParseMode(raw)
	if !ok {
		g.skip(c, svc, raw)
	}
	return m, ok
}

func getCurrentMode(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	m, ok := g.mode(c, svc, props)
	if !ok {
		return nil, false
	}
	if m == homekit.ModeAuto {
		m = homekit.ModeHeat
	}
	return m, true
}

func getTargetMode(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	m, ok := g.mode(c, svc, props)
	return m, ok
}

func getDisplayUnits(g *GetTable, _ *homekit.Characteristic, _ *homekit.Service, _ map[string]any) (any, bool) {
	if g.opts.Fahrenheit {
		return homekit.UnitsFahrenheit, true
	}
	return homekit.UnitsCelsius, true
}

func getHumidity(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropValue)
	if !ok {
		return nil, false
	}
	return math.Round(Clamp(f, 0, 100)), true
}

func getLightLevel(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropValue)
	if !ok {
		return nil, false
	}
	lo, hi := c.Range()
	return Clamp(f, lo, hi), true
}

func getDetected(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	b, ok := g.boolValue(c, svc, props)
	return b, ok
}

func getDetectedInt(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	b, ok := g.boolValue(c, svc, props)
	if !ok {
		return nil, false
	}
	if b {
		return 1, true
	}
	return 0, true
}

// getContact reports an open contact (controller value true) as not detected.
func getContact(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	b, ok := g.boolValue(c, svc, props)
	if !ok {
		return nil, false
	}
	if b {
		return homekit.ContactNotDetected, true
	}
	return homekit.ContactDetected, true
}

func (g *GetTable) security(c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (int, bool) {
	raw, ok := props[PropValue]
	if !ok || raw == nil {
		return 0, false
	}
	s, ok := raw.(string)
	if !ok {
		g.skip(c, svc, raw)
		return 0, false
	}
	return SecurityState(s), true
}

func getSecurityCurrent(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	s, ok := g.security(c, svc, props)
	return s, ok
}

func getSecurityTarget(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	s, ok := g.security(c, svc, props)
	if !ok || s == homekit.SecurityAlarmTriggered {
		return nil, false
	}
	return s, true
}

// Central-scene key attributes mapped to switch events.
var keyAttributes = map[string]int{
	"Pressed":  homekit.SinglePress,
	"Pressed2": homekit.DoublePress,
	"HeldDown": homekit.LongPress,
}

// getSwitchEvent derives a button press from a synthesized event property.
// Scene-numbered remotes use two scene numbers per button: odd for a single
// press and even for a long press.
func getSwitchEvent(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	switch {
	case svc.Subtype.Role == homekit.RoleDoorbell:
		b, ok := g.boolValue(c, svc, props)
		if !ok || !b {
			return nil, false
		}
		return homekit.SinglePress, true

	case svc.Subtype.Variant == homekit.VariantSceneRemote:
		f, ok := g.number(c, svc, props, PropSceneActivation)
		if !ok {
			return nil, false
		}
		scene := int(f)
		if scene <= 0 || strconv.Itoa(ButtonForScene(scene)) != svc.Subtype.Sub {
			return nil, false
		}
		if scene%2 == 1 {
			return homekit.SinglePress, true
		}
		return homekit.LongPress, true

	case svc.Subtype.Variant == homekit.VariantKeyRemote:
		raw, ok := props[PropCentralScene]
		if !ok {
			return nil, false
		}
		ev, ok := raw.(map[string]any)
		if !ok {
			g.skip(c, svc, raw)
			return nil, false
		}
		key, ok := ToFloat(ev["keyId"])
		if !ok || strconv.Itoa(int(key)) != svc.Subtype.Sub {
			return nil, false
		}
		attr, _ := ev["keyAttribute"].(string)
		press, ok := keyAttributes[attr]
		return press, ok
	}
	return nil, false
}

// ButtonForScene returns the 1-based button index a scene number belongs to.
func ButtonForScene(scene int) int {
	return (scene + 1) / 2
}

func getLabelIndex(_ *GetTable, _ *homekit.Characteristic, svc *homekit.Service, _ map[string]any) (any, bool) {
	n, err := strconv.Atoi(svc.Subtype.Sub)
	if err != nil || n < 1 {
		return 1, true
	}
	return n, true
}

func getLowBattery(g *GetTable, c *homekit.Characteristic, svc *homekit.Service, props map[string]any) (any, bool) {
	f, ok := g.number(c, svc, props, PropBattery)
	if !ok {
		return nil, false
	}
	if _, low := BatteryLevel(f); low {
		return homekit.BatteryLow, true
	}
	return homekit.BatteryNormal, true
}
