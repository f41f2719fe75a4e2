package transform

import "github.com/nerrad567/hcbridge/internal/homekit"

// Property categories used for subscriptions and delta routing.
const (
	PropValue           = "value"
	PropValue2          = "value2"
	PropColor           = "color"
	PropMode            = "mode"
	PropSetpoint        = "setpoint"
	PropSetpointFuture  = "setpointFuture"
	PropDead            = "dead"
	PropBattery         = "battery"
	PropSceneActivation = "sceneActivation"
	PropCentralScene    = "centralSceneEvent"
)

// aliases lists the raw controller fields feeding each category, in lookup
// order.
var aliases = map[string][]string{
	PropValue:           {"value", "state"},
	PropValue2:          {"value2"},
	PropColor:           {"color"},
	PropMode:            {"mode", "thermostatMode"},
	PropSetpoint:        {"setpoint", "heatingThermostatSetpoint", "targetLevel"},
	PropSetpointFuture:  {"setpointFuture", "heatingThermostatSetpointFuture"},
	PropDead:            {"dead"},
	PropBattery:         {"batteryLevel"},
	PropSceneActivation: {"sceneActivation"},
	PropCentralScene:    {"centralSceneEvent"},
}

var categories = func() map[string]string {
	m := make(map[string]string)
	for cat, fields := range aliases {
		for _, f := range fields {
			m[f] = cat
		}
	}
	return m
}()

// Category returns the category of a raw controller field, or "" when the
// field is not consumed by any characteristic.
func Category(field string) string {
	return categories[field]
}

// Lookup returns the first raw field present for category.
func Lookup(props map[string]any, category string) (any, bool) {
	for _, f := range aliases[category] {
		if v, ok := props[f]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// PropertyFor returns the category a characteristic is subscribed to.
func PropertyFor(c homekit.CharKind, svc *homekit.Service) string {
	switch c {
	case homekit.CharHue, homekit.CharSaturation:
		return PropColor
	case homekit.CharCurrentHorizontalTilt, homekit.CharTargetHorizontalTilt:
		return PropValue2
	case homekit.CharTargetTemperature:
		return PropSetpoint
	case homekit.CharCurrentHeatingCoolingState, homekit.CharTargetHeatingCoolingState:
		return PropMode
	case homekit.CharStatusLowBattery:
		return PropBattery
	case homekit.CharProgrammableSwitchEvent:
		if svc != nil {
			switch svc.Subtype.Variant {
			case homekit.VariantSceneRemote:
				return PropSceneActivation
			case homekit.VariantKeyRemote:
				return PropCentralScene
			}
		}
	}
	return PropValue
}
