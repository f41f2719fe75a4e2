package transform

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// Debounce windows per write class.
const (
	LevelDebounce    = 500 * time.Millisecond
	PositionDebounce = 1200 * time.Millisecond
)

// Debounce classes.
const (
	ClassLevel    = "level"
	ClassPosition = "position"
	ClassTilt     = "tilt"
)

// Target selects which controller API a command uses.
type Target int

// Command targets.
const (
	TargetDevice Target = iota
	TargetScene
	TargetVariable
	TargetZone
)

func (t Target) String() string {
	switch t {
	case TargetDevice:
		return "device"
	case TargetScene:
		return "scene"
	case TargetVariable:
		return "variable"
	case TargetZone:
		return "zone"
	}
	return "unknown"
}

// ZoneCommand is a hand-temperature override for a panel zone.
type ZoneCommand struct {
	Kind        string
	ID          int
	Mode        string
	Temperature float64
}

// Command is an outbound controller request together with its dispatch
// policy.
type Command struct {
	Target   Target
	DeviceID int
	Action   string
	Args     []any

	Variable string
	Value    string
	// ReadFirst skips an "on" variable write when the variable is already
	// non-zero.
	ReadFirst bool

	Zone ZoneCommand

	// Debounce delays the command; later writes with the same Class replace
	// it.
	Debounce time.Duration
	Class    string

	// Momentary resets the characteristic to false after the trigger.
	Momentary bool

	// Colour marks a hue or saturation write that is accumulated before a
	// combined setColor is sent.
	Colour bool

	// ConfirmLock requests a follow-up check that the lock reached
	// LockTarget.
	ConfirmLock bool
	LockTarget  bool
}

// Name returns a short label for logs.
func (c Command) Name() string {
	switch c.Target {
	case TargetScene:
		return "startScene"
	case TargetVariable:
		return "setVariable"
	case TargetZone:
		return "setHandTemperature"
	}
	return c.Action
}

type setFunc func(s *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error)

// SetTable translates characteristic writes into controller commands.
type SetTable struct {
	opts    Options
	entries map[homekit.CharKind]setFunc
}

// NewSetTable builds the set-direction table.
func NewSetTable(opts Options) *SetTable {
	return &SetTable{
		opts: opts,
		entries: map[homekit.CharKind]setFunc{
			homekit.CharOn:                        setOn,
			homekit.CharBrightness:                setBrightness,
			homekit.CharHue:                       setColour,
			homekit.CharSaturation:                setColour,
			homekit.CharTargetPosition:            setPosition,
			homekit.CharTargetHorizontalTilt:      setTilt,
			homekit.CharTargetDoorState:           setDoor,
			homekit.CharLockTargetState:           setLock,
			homekit.CharTargetTemperature:         setTemperature,
			homekit.CharTargetHeatingCoolingState: setMode,
			homekit.CharSecuritySystemTargetState: setSecurity,
			homekit.CharActive:                    setActive,
		},
	}
}

// Command returns the controller command for writing value to c.
func (s *SetTable) Command(c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	fn, ok := s.entries[c.Kind]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrNotWritable, c.Kind)
	}
	return fn(s, c, svc, value)
}

func deviceCommand(svc *homekit.Service, action string, args ...any) Command {
	return Command{Target: TargetDevice, DeviceID: svc.Subtype.DeviceID, Action: action, Args: args}
}

func invalid(c *homekit.Characteristic, value any) error {
	return fmt.Errorf("%w: %v for %s", ErrInvalidValue, value, c.Kind)
}

func number(c *homekit.Characteristic, value any) (float64, error) {
	f, ok := ToFloat(value)
	if !ok {
		return 0, invalid(c, value)
	}
	return f, nil
}

func setOn(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	on, ok := ParseBool(value)
	if !ok {
		return Command{}, invalid(c, value)
	}

	switch svc.Subtype.Role {
	case homekit.RoleGlobalSwitch:
		return Command{Target: TargetVariable, Variable: svc.Subtype.Sub, Value: strconv.FormatBool(on)}, nil

	case homekit.RoleGlobalDimmer:
		if on {
			return Command{Target: TargetVariable, Variable: svc.Subtype.Sub, Value: "100", ReadFirst: true}, nil
		}
		return Command{Target: TargetVariable, Variable: svc.Subtype.Sub, Value: "0"}, nil

	case homekit.RoleScene:
		if !on {
			return Command{}, ErrNoCommand
		}
		return Command{Target: TargetScene, DeviceID: svc.Subtype.DeviceID, Momentary: true}, nil

	case homekit.RoleVirtualButton:
		if !on {
			return Command{}, ErrNoCommand
		}
		button, err := strconv.Atoi(svc.Subtype.Sub)
		if err != nil {
			return Command{}, fmt.Errorf("%w: button id %q", ErrInvalidValue, svc.Subtype.Sub)
		}
		cmd := deviceCommand(svc, "pressButton", button)
		cmd.Momentary = true
		return cmd, nil
	}

	if on {
		return deviceCommand(svc, "turnOn"), nil
	}
	return deviceCommand(svc, "turnOff"), nil
}

func setBrightness(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}
	level := int(math.Round(Clamp(f, 0, 100)))

	if svc.Subtype.Role == homekit.RoleGlobalDimmer {
		return Command{Target: TargetVariable, Variable: svc.Subtype.Sub, Value: strconv.Itoa(level)}, nil
	}

	cmd := deviceCommand(svc, "setValue", level)
	cmd.Debounce = LevelDebounce
	cmd.Class = ClassLevel
	return cmd, nil
}

func setColour(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	if _, err := number(c, value); err != nil {
		return Command{}, err
	}
	cmd := deviceCommand(svc, "setColor")
	cmd.Colour = true
	return cmd, nil
}

func setPosition(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}

	if svc.Subtype.Variant == homekit.VariantBinaryCover {
		if f >= 50 {
			return deviceCommand(svc, "open"), nil
		}
		return deviceCommand(svc, "close"), nil
	}

	// The controller's range tops out at 99.
	pos := int(math.Round(Clamp(f, 0, 99)))
	cmd := deviceCommand(svc, "setValue", pos)
	cmd.Debounce = PositionDebounce
	cmd.Class = ClassPosition
	return cmd, nil
}

func setTilt(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}
	lo, hi := c.Range()
	cmd := deviceCommand(svc, "setValue2", int(math.Round(Rescale(f, lo, hi, 0, 100))))
	cmd.Debounce = LevelDebounce
	cmd.Class = ClassTilt
	return cmd, nil
}

func setDoor(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}
	if int(f) == homekit.DoorOpen {
		return deviceCommand(svc, "open"), nil
	}
	return deviceCommand(svc, "close"), nil
}

func setLock(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}
	var cmd Command
	locked := int(f) == homekit.LockSecured
	if locked {
		cmd = deviceCommand(svc, "secure")
	} else {
		cmd = deviceCommand(svc, "unsecure")
	}
	cmd.ConfirmLock = true
	cmd.LockTarget = locked
	return cmd, nil
}

// ZoneKind returns the panel kind for a zone role.
func ZoneKind(role homekit.Role) (string, bool) {
	switch role {
	case homekit.RoleHeatingZone:
		return "heating", true
	case homekit.RoleClimateZone:
		return "climate", true
	}
	return "", false
}

func setTemperature(s *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}
	if s.opts.Fahrenheit {
		f = CelsiusToFahrenheit(f)
	}

	if kind, ok := ZoneKind(svc.Subtype.Role); ok {
		return Command{
			Target: TargetZone,
			Zone: ZoneCommand{
				Kind:        kind,
				ID:          svc.Subtype.DeviceID,
				Mode:        "Manual",
				Temperature: f,
			},
		}, nil
	}
	return deviceCommand(svc, "setTargetLevel", f), nil
}

func setMode(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	if _, ok := ZoneKind(svc.Subtype.Role); ok {
		return Command{}, fmt.Errorf("%w: zone mode", ErrNotWritable)
	}
	m, ok := ParseMode(value)
	if !ok {
		return Command{}, invalid(c, value)
	}
	name, _ := ModeName(m)
	return deviceCommand(svc, "setThermostatMode", name), nil
}

func setSecurity(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	f, err := number(c, value)
	if err != nil {
		return Command{}, err
	}
	symbol, ok := SecuritySymbol(int(f))
	if !ok {
		return Command{}, invalid(c, value)
	}
	return Command{Target: TargetVariable, Variable: svc.Subtype.Sub, Value: symbol}, nil
}

func setActive(_ *SetTable, c *homekit.Characteristic, svc *homekit.Service, value any) (Command, error) {
	on, ok := ParseBool(value)
	if !ok {
		return Command{}, invalid(c, value)
	}
	if on {
		return deviceCommand(svc, "turnOn"), nil
	}
	return deviceCommand(svc, "turnOff"), nil
}
