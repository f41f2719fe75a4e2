package accessory

import (
	haccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// HAP service type UUIDs (short form).
var serviceTypes = map[homekit.ServiceKind]string{
	homekit.ServiceSwitch:                      service.TypeSwitch,
	homekit.ServiceLightbulb:                   service.TypeLightbulb,
	homekit.ServiceOutlet:                      service.TypeOutlet,
	homekit.ServiceWindowCovering:              service.TypeWindowCovering,
	homekit.ServiceGarageDoorOpener:            service.TypeGarageDoorOpener,
	homekit.ServiceLockMechanism:               service.TypeLockMechanism,
	homekit.ServiceTemperatureSensor:           service.TypeTemperatureSensor,
	homekit.ServiceHumiditySensor:              service.TypeHumiditySensor,
	homekit.ServiceLightSensor:                 service.TypeLightSensor,
	homekit.ServiceMotionSensor:                service.TypeMotionSensor,
	homekit.ServiceContactSensor:               service.TypeContactSensor,
	homekit.ServiceLeakSensor:                  service.TypeLeakSensor,
	homekit.ServiceSmokeSensor:                 service.TypeSmokeSensor,
	homekit.ServiceCarbonMonoxideSensor:        service.TypeCarbonMonoxideSensor,
	homekit.ServiceThermostat:                  service.TypeThermostat,
	homekit.ServiceSecuritySystem:              service.TypeSecuritySystem,
	homekit.ServiceStatelessProgrammableSwitch: service.TypeStatelessProgrammableSwitch,
	homekit.ServiceDoorbell:                    service.TypeDoorbell,
	homekit.ServiceValve:                       service.TypeValve,
}

// characteristic constructors carry the protocol metadata (permissions,
// units, bounds) for each kind.
var charConstructors = map[homekit.CharKind]func() *characteristic.C{
	homekit.CharName:                       func() *characteristic.C { return characteristic.NewName().C },
	homekit.CharOn:                         func() *characteristic.C { return characteristic.NewOn().C },
	homekit.CharBrightness:                 func() *characteristic.C { return characteristic.NewBrightness().C },
	homekit.CharHue:                        func() *characteristic.C { return characteristic.NewHue().C },
	homekit.CharSaturation:                 func() *characteristic.C { return characteristic.NewSaturation().C },
	homekit.CharOutletInUse:                func() *characteristic.C { return characteristic.NewOutletInUse().C },
	homekit.CharCurrentPosition:            func() *characteristic.C { return characteristic.NewCurrentPosition().C },
	homekit.CharTargetPosition:             func() *characteristic.C { return characteristic.NewTargetPosition().C },
	homekit.CharPositionState:              func() *characteristic.C { return characteristic.NewPositionState().C },
	homekit.CharCurrentHorizontalTilt:      func() *characteristic.C { return characteristic.NewCurrentHorizontalTiltAngle().C },
	homekit.CharTargetHorizontalTilt:       func() *characteristic.C { return characteristic.NewTargetHorizontalTiltAngle().C },
	homekit.CharCurrentDoorState:           func() *characteristic.C { return characteristic.NewCurrentDoorState().C },
	homekit.CharTargetDoorState:            func() *characteristic.C { return characteristic.NewTargetDoorState().C },
	homekit.CharObstructionDetected:        func() *characteristic.C { return characteristic.NewObstructionDetected().C },
	homekit.CharLockCurrentState:           func() *characteristic.C { return characteristic.NewLockCurrentState().C },
	homekit.CharLockTargetState:            func() *characteristic.C { return characteristic.NewLockTargetState().C },
	homekit.CharCurrentTemperature:         func() *characteristic.C { return characteristic.NewCurrentTemperature().C },
	homekit.CharTargetTemperature:          func() *characteristic.C { return characteristic.NewTargetTemperature().C },
	homekit.CharCurrentHeatingCoolingState: func() *characteristic.C { return characteristic.NewCurrentHeatingCoolingState().C },
	homekit.CharTargetHeatingCoolingState:  func() *characteristic.C { return characteristic.NewTargetHeatingCoolingState().C },
	homekit.CharTemperatureDisplayUnits:    func() *characteristic.C { return characteristic.NewTemperatureDisplayUnits().C },
	homekit.CharCurrentRelativeHumidity:    func() *characteristic.C { return characteristic.NewCurrentRelativeHumidity().C },
	homekit.CharCurrentAmbientLightLevel:   func() *characteristic.C { return characteristic.NewCurrentAmbientLightLevel().C },
	homekit.CharMotionDetected:             func() *characteristic.C { return characteristic.NewMotionDetected().C },
	homekit.CharContactSensorState:         func() *characteristic.C { return characteristic.NewContactSensorState().C },
	homekit.CharLeakDetected:               func() *characteristic.C { return characteristic.NewLeakDetected().C },
	homekit.CharSmokeDetected:              func() *characteristic.C { return characteristic.NewSmokeDetected().C },
	homekit.CharCarbonMonoxideDetected:     func() *characteristic.C { return characteristic.NewCarbonMonoxideDetected().C },
	homekit.CharSecuritySystemCurrentState: func() *characteristic.C { return characteristic.NewSecuritySystemCurrentState().C },
	homekit.CharSecuritySystemTargetState:  func() *characteristic.C { return characteristic.NewSecuritySystemTargetState().C },
	homekit.CharProgrammableSwitchEvent:    func() *characteristic.C { return characteristic.NewProgrammableSwitchEvent().C },
	homekit.CharServiceLabelIndex:          func() *characteristic.C { return characteristic.NewServiceLabelIndex().C },
	homekit.CharStatusLowBattery:           func() *characteristic.C { return characteristic.NewStatusLowBattery().C },
	homekit.CharActive:                     func() *characteristic.C { return characteristic.NewActive().C },
	homekit.CharInUse:                      func() *characteristic.C { return characteristic.NewInUse().C },
	homekit.CharValveType:                  func() *characteristic.C { return characteristic.NewValveType().C },
}

// categoryDoorbell is the HAP video doorbell category.
const categoryDoorbell byte = 18

// category picks the accessory category shown during pairing from the
// primary service.
func category(kind homekit.ServiceKind) byte {
	switch kind {
	case homekit.ServiceLightbulb:
		return haccessory.TypeLightbulb
	case homekit.ServiceSwitch:
		return haccessory.TypeSwitch
	case homekit.ServiceOutlet:
		return haccessory.TypeOutlet
	case homekit.ServiceWindowCovering:
		return haccessory.TypeWindowCovering
	case homekit.ServiceGarageDoorOpener:
		return haccessory.TypeGarageDoorOpener
	case homekit.ServiceLockMechanism:
		return haccessory.TypeDoorLock
	case homekit.ServiceThermostat:
		return haccessory.TypeThermostat
	case homekit.ServiceSecuritySystem:
		return haccessory.TypeSecuritySystem
	case homekit.ServiceStatelessProgrammableSwitch:
		return haccessory.TypeProgrammableSwitch
	case homekit.ServiceDoorbell:
		return categoryDoorbell
	case homekit.ServiceValve:
		return haccessory.TypeOther
	}
	return haccessory.TypeSensor
}
