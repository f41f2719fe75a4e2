package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/hcbridge/internal/homekit"
)

// ParseBool recognises boolean-like values. ok is false for anything it
// cannot interpret.
func ParseBool(v any) (b bool, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case float32:
		return t != 0, true
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	case json.Number:
		f, err := t.Float64()
		return f != 0, err == nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true, true
		case "false", "off", "no", "0":
			return false, true
		}
	}
	return false, false
}

// ToBool coerces v to a boolean. Unrecognised values are false.
func ToBool(v any) bool {
	b, _ := ParseBool(v)
	return b
}

// ToFloat converts numbers and numeric strings.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint8:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// SnapPosition clamps a controller position to [0,100] and snaps the
// controller's semi-open edges (99 and 1) to fully open and closed. Applying
// it to its own output is a no-op.
func SnapPosition(v float64) int {
	switch {
	case v >= 99:
		return 100
	case v <= 1:
		return 0
	}
	return int(math.Round(v))
}

// Clamp limits v to [min,max].
func Clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

// Rescale maps v linearly from [fromMin,fromMax] to [toMin,toMax], clamping
// to the target range.
func Rescale(v, fromMin, fromMax, toMin, toMax float64) float64 {
	if fromMax == fromMin {
		return toMin
	}
	out := toMin + (v-fromMin)*(toMax-toMin)/(fromMax-fromMin)
	lo, hi := toMin, toMax
	if lo > hi {
		lo, hi = hi, lo
	}
	return Clamp(out, lo, hi)
}

// FahrenheitToCelsius converts and rounds to one decimal.
func FahrenheitToCelsius(f float64) float64 {
	return round1((f - 32) * 5 / 9)
}

// CelsiusToFahrenheit converts and rounds to one decimal.
func CelsiusToFahrenheit(c float64) float64 {
	return round1(c*9/5 + 32)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// BatteryLevel clamps a reported level to [0,100]. Out-of-range readings
// (the controller reports 255 for a flat battery) count as low.
func BatteryLevel(v float64) (level int, low bool) {
	if v < 0 || v > 100 {
		return 0, true
	}
	level = int(math.Round(v))
	return level, level <= 20
}

// RGBWToHSV converts 0-255 channel values to hue (0-360), saturation and
// value (0-100). The white channel is folded back into the colour channels.
func RGBWToHSV(r, g, b, w int) (h, s, v float64) {
	rf := math.Min(255, float64(r+w)) / 255
	gf := math.Min(255, float64(g+w)) / 255
	bf := math.Min(255, float64(b+w)) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	v = max * 100
	if max == 0 {
		return 0, 0, 0
	}
	s = delta / max * 100
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// HSVToRGBW converts hue (0-360), saturation and value (0-100) to 0-255
// channel values, moving the common component into the white channel.
func HSVToRGBW(h, s, v float64) (r, g, b, w int) {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	sf := Clamp(s, 0, 100) / 100
	vf := Clamp(v, 0, 100) / 100

	c := vf * sf
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := vf - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}

	r = int(math.Round((rf + m) * 255))
	g = int(math.Round((gf + m) * 255))
	b = int(math.Round((bf + m) * 255))
	w = min(r, g, b)
	return r - w, g - w, b - w, w
}

// ParseRGBW parses the controller's "r,g,b,w" colour string.
func ParseRGBW(s string) (r, g, b, w int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return 0, 0, 0, 0, fmt.Errorf("%w: colour %q", ErrInvalidValue, s)
	}
	vals := [4]int{}
	for i := 0; i < len(parts) && i < 4; i++ {
		n, convErr := strconv.Atoi(strings.TrimSpace(parts[i]))
		if convErr != nil {
			return 0, 0, 0, 0, fmt.Errorf("%w: colour %q", ErrInvalidValue, s)
		}
		vals[i] = n
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

var securityStates = map[string]int{
	"stayarmed":      homekit.SecurityStayArm,
	"homearmed":      homekit.SecurityStayArm,
	"awayarmed":      homekit.SecurityAwayArm,
	"nightarmed":     homekit.SecurityNightArm,
	"disarmed":       homekit.SecurityDisarmed,
	"alarmtriggered": homekit.SecurityAlarmTriggered,
}

var securitySymbols = map[int]string{
	homekit.SecurityStayArm:  "StayArmed",
	homekit.SecurityAwayArm:  "AwayArmed",
	homekit.SecurityNightArm: "NightArmed",
	homekit.SecurityDisarmed: "Disarmed",
}

// SecurityState maps a controller alarm symbol to the characteristic value.
// Unknown symbols map to disarmed.
func SecurityState(symbol string) int {
	if s, ok := securityStates[strings.ToLower(strings.TrimSpace(symbol))]; ok {
		return s
	}
	return homekit.SecurityDisarmed
}

// SecuritySymbol maps a target state back to the controller symbol.
func SecuritySymbol(state int) (string, bool) {
	s, ok := securitySymbols[state]
	return s, ok
}

var modeValues = map[string]int{
	"off":  homekit.ModeOff,
	"heat": homekit.ModeHeat,
	"cool": homekit.ModeCool,
	"auto": homekit.ModeAuto,
}

var modeNames = map[int]string{
	homekit.ModeOff:  "Off",
	homekit.ModeHeat: "Heat",
	homekit.ModeCool: "Cool",
	homekit.ModeAuto: "Auto",
}

// ParseMode maps a thermostat mode name or code to a heating/cooling state.
func ParseMode(v any) (int, bool) {
	if f, ok := ToFloat(v); ok {
		n := int(f)
		if n >= homekit.ModeOff && n <= homekit.ModeAuto {
			return n, true
		}
		return 0, false
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	m, ok := modeValues[strings.ToLower(strings.TrimSpace(s))]
	return m, ok
}

// ModeName returns the controller name for a heating/cooling state.
func ModeName(mode int) (string, bool) {
	s, ok := modeNames[mode]
	return s, ok
}
