package capability

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/hcbridge/internal/device"
	"github.com/nerrad567/hcbridge/internal/homekit"
)

// BuildFunc produces the capabilities for a device a rule matched.
type BuildFunc func(d device.Descriptor) ([]Descriptor, error)

// Rule binds a type matcher to a builder. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name  string
	Match Matcher
	Build BuildFunc
}

// deviceControlType code the controller uses for garage doors.
const controlGarageDoor = 55

var dimmerControlTypes = map[int]bool{2: true, 23: true, 24: true, 32: true}
var lightControlTypes = map[int]bool{2: true, 5: true, 20: true, 21: true, 23: true, 24: true}

// DefaultRules returns the built-in rule table. Order matters: narrower
// families precede the broader patterns that would also match them.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "colour-light",
			Match: AnyOf(Prefix("com.fibaro.FGRGBW"), Exact("com.fibaro.colorController")),
			Build: buildColourLight,
		},
		{
			Name: "roller-shutter",
			Match: AnyOf(
				Except(Pattern(`^com\.fibaro\.FGR`), Prefix("com.fibaro.FGRGBW")),
				Exact("com.fibaro.rollerShutter", "com.fibaro.FGWR111", "com.fibaro.remoteBaseShutter"),
			),
			Build: buildRollerShutter,
		},
		{
			Name:  "binary-cover",
			Match: Exact("com.fibaro.baseShutter", "com.fibaro.barrier"),
			Build: buildBinaryCover,
		},
		{
			Name:  "multilevel-switch",
			Match: Exact("com.fibaro.multilevelSwitch", "com.fibaro.FGD212", "com.fibaro.FGD211", "com.fibaro.FGWD111"),
			Build: buildMultilevelSwitch,
		},
		{
			Name:  "wall-plug",
			Match: Prefix("com.fibaro.FGWP"),
			Build: buildKind(homekit.ServiceOutlet, outletChars),
		},
		{
			Name:  "binary-switch",
			Match: Exact("com.fibaro.binarySwitch", "com.fibaro.developer.bxs.virtualBinarySwitch", "com.fibaro.satelOutput", "com.fibaro.FGWDS221"),
			Build: buildBinarySwitch,
		},
		{
			Name:  "door-lock",
			Match: Exact("com.fibaro.doorLock", "com.fibaro.gerda"),
			Build: buildKind(homekit.ServiceLockMechanism, lockChars),
		},
		{
			Name:  "thermostat",
			Match: AnyOf(Exact("com.fibaro.thermostatDanfoss", "com.fibaro.FGT001"), Prefix("com.fibaro.hvacSystem")),
			Build: buildKind(homekit.ServiceThermostat, thermostatChars),
		},
		{
			Name:  "motion-sensor",
			Match: AnyOf(Prefix("com.fibaro.FGMS001"), Exact("com.fibaro.motionSensor")),
			Build: buildKind(homekit.ServiceMotionSensor, sensorChars(homekit.CharMotionDetected)),
		},
		{
			Name:  "temperature-sensor",
			Match: Exact("com.fibaro.temperatureSensor"),
			Build: buildKind(homekit.ServiceTemperatureSensor, sensorChars(homekit.CharCurrentTemperature)),
		},
		{
			Name:  "humidity-sensor",
			Match: Exact("com.fibaro.humiditySensor"),
			Build: buildKind(homekit.ServiceHumiditySensor, sensorChars(homekit.CharCurrentRelativeHumidity)),
		},
		{
			Name:  "light-sensor",
			Match: Exact("com.fibaro.lightSensor"),
			Build: buildKind(homekit.ServiceLightSensor, sensorChars(homekit.CharCurrentAmbientLightLevel)),
		},
		{
			Name:  "flood-sensor",
			Match: Exact("com.fibaro.FGFS101", "com.fibaro.floodSensor"),
			Build: buildKind(homekit.ServiceLeakSensor, sensorChars(homekit.CharLeakDetected)),
		},
		{
			Name:  "smoke-sensor",
			Match: Exact("com.fibaro.FGSS001", "com.fibaro.smokeSensor"),
			Build: buildKind(homekit.ServiceSmokeSensor, sensorChars(homekit.CharSmokeDetected)),
		},
		{
			Name:  "co-sensor",
			Match: Exact("com.fibaro.FGCD001"),
			Build: buildKind(homekit.ServiceCarbonMonoxideSensor, sensorChars(homekit.CharCarbonMonoxideDetected)),
		},
		{
			Name:  "contact-sensor",
			Match: AnyOf(Exact("com.fibaro.doorSensor", "com.fibaro.windowSensor"), Prefix("com.fibaro.FGDW")),
			Build: buildKind(homekit.ServiceContactSensor, sensorChars(homekit.CharContactSensorState)),
		},
		{
			Name:  "binary-sensor",
			Match: Exact("com.fibaro.binarySensor", "com.fibaro.doorWindowSensor"),
			Build: buildBinarySensor,
		},
		{
			Name:  "multilevel-sensor",
			Match: Exact("com.fibaro.multilevelSensor"),
			Build: buildMultilevelSensor,
		},
		{
			Name:  "remote-controller",
			Match: AnyOf(Exact("com.fibaro.remoteController", "com.fibaro.remoteSceneController", "com.fibaro.sceneController"), Prefix("com.fibaro.FGKF", "com.fibaro.FGPB")),
			Build: buildRemote,
		},
		{
			Name:  "virtual-device",
			Match: Exact("virtual_device", "com.fibaro.virtualDevice"),
			Build: buildVirtualDevice,
		},
	}
}

func plainKey(d device.Descriptor) homekit.SubtypeKey {
	return homekit.SubtypeKey{DeviceID: d.ID}
}

func buildKind(kind homekit.ServiceKind, chars []homekit.CharKind) BuildFunc {
	return func(d device.Descriptor) ([]Descriptor, error) {
		return single(kind, chars, plainKey(d), d.Name), nil
	}
}

func buildColourLight(d device.Descriptor) ([]Descriptor, error) {
	key := plainKey(d)
	key.Variant = homekit.VariantColourLight
	return single(homekit.ServiceLightbulb, colourChars, key, d.Name), nil
}

func isGarage(d device.Descriptor) bool {
	return d.Properties.DeviceControlType == controlGarageDoor || d.Properties.DeviceRole == "GarageDoor"
}

func buildRollerShutter(d device.Descriptor) ([]Descriptor, error) {
	if isGarage(d) {
		return single(homekit.ServiceGarageDoorOpener, garageChars, plainKey(d), d.Name), nil
	}
	chars := coverChars
	if d.Properties.FavoritePositionsNativeSupport {
		chars = append(append([]homekit.CharKind(nil), coverChars...), tiltChars...)
	}
	return single(homekit.ServiceWindowCovering, chars, plainKey(d), d.Name), nil
}

func buildBinaryCover(d device.Descriptor) ([]Descriptor, error) {
	if isGarage(d) {
		return single(homekit.ServiceGarageDoorOpener, garageChars, plainKey(d), d.Name), nil
	}
	key := plainKey(d)
	key.Variant = homekit.VariantBinaryCover
	return single(homekit.ServiceWindowCovering, coverChars, key, d.Name), nil
}

func buildMultilevelSwitch(d device.Descriptor) ([]Descriptor, error) {
	if dimmerControlTypes[d.Properties.DeviceControlType] {
		return single(homekit.ServiceLightbulb, dimmerChars, plainKey(d), d.Name), nil
	}
	return single(homekit.ServiceSwitch, switchChars, plainKey(d), d.Name), nil
}

func buildBinarySwitch(d device.Descriptor) ([]Descriptor, error) {
	switch d.Properties.DeviceRole {
	case "Light":
		return single(homekit.ServiceLightbulb, switchChars, plainKey(d), d.Name), nil
	case "Outlet":
		return single(homekit.ServiceOutlet, outletChars, plainKey(d), d.Name), nil
	case "Valve":
		return single(homekit.ServiceValve, valveChars, plainKey(d), d.Name), nil
	}
	if lightControlTypes[d.Properties.DeviceControlType] {
		return single(homekit.ServiceLightbulb, switchChars, plainKey(d), d.Name), nil
	}
	return single(homekit.ServiceSwitch, switchChars, plainKey(d), d.Name), nil
}

func buildBinarySensor(d device.Descriptor) ([]Descriptor, error) {
	switch d.Properties.DeviceRole {
	case "MotionSensor", "PresenceSensor":
		return single(homekit.ServiceMotionSensor, sensorChars(homekit.CharMotionDetected), plainKey(d), d.Name), nil
	case "FloodSensor":
		return single(homekit.ServiceLeakSensor, sensorChars(homekit.CharLeakDetected), plainKey(d), d.Name), nil
	case "SmokeSensor", "FireSensor":
		return single(homekit.ServiceSmokeSensor, sensorChars(homekit.CharSmokeDetected), plainKey(d), d.Name), nil
	case "CoDetector":
		return single(homekit.ServiceCarbonMonoxideSensor, sensorChars(homekit.CharCarbonMonoxideDetected), plainKey(d), d.Name), nil
	}
	return single(homekit.ServiceContactSensor, sensorChars(homekit.CharContactSensorState), plainKey(d), d.Name), nil
}

func buildMultilevelSensor(d device.Descriptor) ([]Descriptor, error) {
	switch d.Properties.DeviceRole {
	case "TemperatureSensor":
		return single(homekit.ServiceTemperatureSensor, sensorChars(homekit.CharCurrentTemperature), plainKey(d), d.Name), nil
	case "HumiditySensor":
		return single(homekit.ServiceHumiditySensor, sensorChars(homekit.CharCurrentRelativeHumidity), plainKey(d), d.Name), nil
	case "LightSensor":
		return single(homekit.ServiceLightSensor, sensorChars(homekit.CharCurrentAmbientLightLevel), plainKey(d), d.Name), nil
	}
	return nil, fmt.Errorf("%w: multilevel sensor role %q", ErrNotSupported, d.Properties.DeviceRole)
}

// buildRemote expands a remote controller into one button service per
// logical button. Central-scene keys take precedence over scene numbers;
// every announced button has two scene numbers (single and long press).
func buildRemote(d device.Descriptor) ([]Descriptor, error) {
	if keys := d.Properties.CentralSceneSupport; len(keys) > 0 {
		out := make([]Descriptor, 0, len(keys))
		for i, k := range keys {
			out = append(out, button(d, i+1, strconv.Itoa(k.KeyID), homekit.VariantKeyRemote))
		}
		return out, nil
	}

	n := len(d.Properties.AvailableScenes) / 2
	if n == 0 {
		return nil, fmt.Errorf("%w: remote %d announces no buttons", ErrNotSupported, d.ID)
	}
	out := make([]Descriptor, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, button(d, i, strconv.Itoa(i), homekit.VariantSceneRemote))
	}
	return out, nil
}

func button(d device.Descriptor, index int, sub string, variant homekit.Variant) Descriptor {
	return Descriptor{
		Service:         homekit.ServiceStatelessProgrammableSwitch,
		Characteristics: append([]homekit.CharKind(nil), buttonChars...),
		Subtype: homekit.SubtypeKey{
			DeviceID: d.ID,
			Sub:      sub,
			Role:     homekit.RoleRemoteButton,
			Variant:  variant,
		},
		Name: fmt.Sprintf("%s %d", d.Name, index),
	}
}

func buildVirtualDevice(d device.Descriptor) ([]Descriptor, error) {
	buttons := d.Properties.Buttons
	if len(buttons) == 0 {
		return nil, fmt.Errorf("%w: virtual device %d has no buttons", ErrNotSupported, d.ID)
	}
	out := make([]Descriptor, 0, len(buttons))
	for _, b := range buttons {
		name := b.Caption
		if name == "" {
			name = fmt.Sprintf("%s %d", d.Name, b.ID)
		}
		out = append(out, Descriptor{
			Service:         homekit.ServiceSwitch,
			Characteristics: append([]homekit.CharKind(nil), switchChars...),
			Subtype: homekit.SubtypeKey{
				DeviceID: d.ID,
				Sub:      strconv.Itoa(b.ID),
				Role:     homekit.RoleVirtualButton,
			},
			Name: name,
		})
	}
	return out, nil
}
