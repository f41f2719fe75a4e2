package capability

import (
	"fmt"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// SecurityVariable is the global variable holding the alarm state.
const SecurityVariable = "SecuritySystem"

// Descriptor is one resolved capability: a service kind, its ordered
// characteristics and the subtype key that identifies the service instance.
type Descriptor struct {
	Service         homekit.ServiceKind
	Characteristics []homekit.CharKind
	Subtype         homekit.SubtypeKey
	Name            string
}

// NewService instantiates the descriptor as a live service.
func (d Descriptor) NewService() *homekit.Service {
	return homekit.NewService(d.Service, d.Name, d.Subtype, d.Characteristics...)
}

// Shapes shared by rules, overrides and pseudo devices.
var (
	switchChars     = []homekit.CharKind{homekit.CharName, homekit.CharOn}
	dimmerChars     = []homekit.CharKind{homekit.CharName, homekit.CharOn, homekit.CharBrightness}
	colourChars     = []homekit.CharKind{homekit.CharName, homekit.CharOn, homekit.CharBrightness, homekit.CharHue, homekit.CharSaturation}
	outletChars     = []homekit.CharKind{homekit.CharName, homekit.CharOn, homekit.CharOutletInUse}
	coverChars      = []homekit.CharKind{homekit.CharName, homekit.CharCurrentPosition, homekit.CharTargetPosition, homekit.CharPositionState}
	tiltChars       = []homekit.CharKind{homekit.CharCurrentHorizontalTilt, homekit.CharTargetHorizontalTilt}
	garageChars     = []homekit.CharKind{homekit.CharName, homekit.CharCurrentDoorState, homekit.CharTargetDoorState, homekit.CharObstructionDetected}
	lockChars       = []homekit.CharKind{homekit.CharName, homekit.CharLockCurrentState, homekit.CharLockTargetState}
	valveChars      = []homekit.CharKind{homekit.CharName, homekit.CharActive, homekit.CharInUse, homekit.CharValveType}
	thermostatChars = []homekit.CharKind{
		homekit.CharName,
		homekit.CharCurrentHeatingCoolingState,
		homekit.CharTargetHeatingCoolingState,
		homekit.CharCurrentTemperature,
		homekit.CharTargetTemperature,
		homekit.CharTemperatureDisplayUnits,
	}
	securityChars = []homekit.CharKind{homekit.CharName, homekit.CharSecuritySystemCurrentState, homekit.CharSecuritySystemTargetState}
	buttonChars   = []homekit.CharKind{homekit.CharName, homekit.CharProgrammableSwitchEvent, homekit.CharServiceLabelIndex}
	doorbellChars = []homekit.CharKind{homekit.CharName, homekit.CharProgrammableSwitchEvent}
)

func sensorChars(c homekit.CharKind) []homekit.CharKind {
	return []homekit.CharKind{homekit.CharName, c}
}

func single(kind homekit.ServiceKind, chars []homekit.CharKind, key homekit.SubtypeKey, name string) []Descriptor {
	return []Descriptor{{
		Service:         kind,
		Characteristics: append([]homekit.CharKind(nil), chars...),
		Subtype:         key,
		Name:            name,
	}}
}

// GlobalVariable describes a switch or dimmer backed by a global variable.
func GlobalVariable(name string, dimmer bool) Descriptor {
	if dimmer {
		return Descriptor{
			Service:         homekit.ServiceLightbulb,
			Characteristics: append([]homekit.CharKind(nil), dimmerChars...),
			Subtype:         homekit.SubtypeKey{Sub: name, Role: homekit.RoleGlobalDimmer},
			Name:            name,
		}
	}
	return Descriptor{
		Service:         homekit.ServiceSwitch,
		Characteristics: append([]homekit.CharKind(nil), switchChars...),
		Subtype:         homekit.SubtypeKey{Sub: name, Role: homekit.RoleGlobalSwitch},
		Name:            name,
	}
}

// Scene describes a momentary switch that starts a controller scene.
func Scene(id int, name string) Descriptor {
	return Descriptor{
		Service:         homekit.ServiceSwitch,
		Characteristics: append([]homekit.CharKind(nil), switchChars...),
		Subtype:         homekit.SubtypeKey{DeviceID: id, Role: homekit.RoleScene},
		Name:            name,
	}
}

// SecuritySystem describes the alarm panel backed by SecurityVariable.
func SecuritySystem() Descriptor {
	return Descriptor{
		Service:         homekit.ServiceSecuritySystem,
		Characteristics: append([]homekit.CharKind(nil), securityChars...),
		Subtype:         homekit.SubtypeKey{Sub: SecurityVariable, Role: homekit.RoleSecurity},
		Name:            "Security System",
	}
}

// Zone describes a heating or climate panel zone as a thermostat. role must
// be RoleHeatingZone or RoleClimateZone.
func Zone(role homekit.Role, id int, name string) (Descriptor, error) {
	if role != homekit.RoleHeatingZone && role != homekit.RoleClimateZone {
		return Descriptor{}, fmt.Errorf("%w: zone role %q", ErrNotSupported, role)
	}
	if name == "" {
		name = fmt.Sprintf("Zone %d", id)
	}
	return Descriptor{
		Service:         homekit.ServiceThermostat,
		Characteristics: append([]homekit.CharKind(nil), thermostatChars...),
		Subtype:         homekit.SubtypeKey{DeviceID: id, Role: role},
		Name:            name,
	}, nil
}
