package capability

import (
	"fmt"
	"strings"

	"github.com/nerrad567/hcbridge/internal/device"
	"github.com/nerrad567/hcbridge/internal/homekit"
)

// Logger is the logging interface used by the resolver.
type Logger interface {
	Debug(msg string, args ...any)
}

// Config holds the per-installation inputs to resolution.
type Config struct {
	// Overrides maps a device id to a manual capability name such as
	// "switch", "dimmer" or "exclude".
	Overrides map[int]string

	// DoorbellID marks one device as the doorbell. Zero disables it.
	DoorbellID int

	Logger Logger
}

// Resolver maps device descriptors to capability descriptors. It performs no
// I/O and holds no mutable state.
type Resolver struct {
	cfg   Config
	rules []Rule
}

// NewResolver creates a resolver. A nil rules slice selects DefaultRules.
func NewResolver(cfg Config, rules []Rule) *Resolver {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Resolver{cfg: cfg, rules: rules}
}

// Resolve returns the capabilities for d, or an error wrapping
// ErrNotSupported. Subtype keys are unique within the returned slice.
func (r *Resolver) Resolve(d device.Descriptor) ([]Descriptor, error) {
	out, rule, err := r.resolve(d)
	if err != nil {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Debug("device not supported", "device_id", d.ID, "type", d.Type, "reason", err)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: rule %s produced nothing", ErrNotSupported, rule)
	}
	if d.HasInterface("battery") {
		addBattery(&out[0])
	}
	return out, nil
}

func (r *Resolver) resolve(d device.Descriptor) ([]Descriptor, string, error) {
	if name, ok := r.cfg.Overrides[d.ID]; ok {
		out, err := override(d, name)
		return out, "override:" + name, err
	}

	if r.cfg.DoorbellID != 0 && d.ID == r.cfg.DoorbellID {
		key := homekit.SubtypeKey{DeviceID: d.ID, Role: homekit.RoleDoorbell}
		return single(homekit.ServiceDoorbell, doorbellChars, key, d.Name), "doorbell", nil
	}

	for _, rule := range r.rules {
		if rule.Match(d.Type) {
			out, err := rule.Build(d)
			return out, rule.Name, err
		}
	}

	return nil, "", fmt.Errorf("%w: no rule for type %q", ErrNotSupported, d.Type)
}

// override builds the shape named by a manual configuration entry.
func override(d device.Descriptor, name string) ([]Descriptor, error) {
	key := plainKey(d)
	switch strings.ToLower(name) {
	case "switch":
		return single(homekit.ServiceSwitch, switchChars, key, d.Name), nil
	case "dimmer":
		return single(homekit.ServiceLightbulb, dimmerChars, key, d.Name), nil
	case "light":
		return single(homekit.ServiceLightbulb, switchChars, key, d.Name), nil
	case "outlet":
		return single(homekit.ServiceOutlet, outletChars, key, d.Name), nil
	case "blind":
		return single(homekit.ServiceWindowCovering, coverChars, key, d.Name), nil
	case "garage":
		return single(homekit.ServiceGarageDoorOpener, garageChars, key, d.Name), nil
	case "lock":
		return single(homekit.ServiceLockMechanism, lockChars, key, d.Name), nil
	case "temperature":
		return single(homekit.ServiceTemperatureSensor, sensorChars(homekit.CharCurrentTemperature), key, d.Name), nil
	case "humidity":
		return single(homekit.ServiceHumiditySensor, sensorChars(homekit.CharCurrentRelativeHumidity), key, d.Name), nil
	case "motion":
		return single(homekit.ServiceMotionSensor, sensorChars(homekit.CharMotionDetected), key, d.Name), nil
	case "contact":
		return single(homekit.ServiceContactSensor, sensorChars(homekit.CharContactSensorState), key, d.Name), nil
	case "leak":
		return single(homekit.ServiceLeakSensor, sensorChars(homekit.CharLeakDetected), key, d.Name), nil
	case "smoke":
		return single(homekit.ServiceSmokeSensor, sensorChars(homekit.CharSmokeDetected), key, d.Name), nil
	case "exclude":
		return nil, fmt.Errorf("%w: excluded by configuration", ErrNotSupported)
	}
	return nil, fmt.Errorf("%w: unknown override %q", ErrNotSupported, name)
}

var batteryServices = map[homekit.ServiceKind]bool{
	homekit.ServiceMotionSensor:         true,
	homekit.ServiceContactSensor:        true,
	homekit.ServiceLeakSensor:           true,
	homekit.ServiceSmokeSensor:          true,
	homekit.ServiceCarbonMonoxideSensor: true,
	homekit.ServiceTemperatureSensor:    true,
	homekit.ServiceHumiditySensor:       true,
	homekit.ServiceLightSensor:          true,
	homekit.ServiceLockMechanism:        true,
}

func addBattery(d *Descriptor) {
	if batteryServices[d.Service] {
		d.Characteristics = append(d.Characteristics, homekit.CharStatusLowBattery)
	}
}
