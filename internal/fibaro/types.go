package fibaro

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event kinds carried by refreshStates.
const (
	EventSceneActivation = "SceneActivationEvent"
	EventCentralScene    = "CentralSceneEvent"
)

// Refresh is one incremental state response.
type Refresh struct {
	Last    int64
	Changes []Change
	Events  []Event
}

// Change is the set of properties that changed on one device.
type Change struct {
	ID         int
	Properties map[string]any
}

// Event is a transient controller event such as a button press.
type Event struct {
	Type     string
	DeviceID int
	Data     map[string]any
}

// Scene is a controller scene.
type Scene struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// Zone is a heating or climate panel zone.
type Zone struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// Props normalizes the zone into value, setpoint and mode properties. A hand
// override that has not expired takes precedence over the scheduled setpoint.
func (z Zone) Props(now time.Time) map[string]any {
	p := z.Properties
	out := map[string]any{}

	if v, ok := first(p, "currentTemperature", "currentTemperatureHeating"); ok {
		out["value"] = v
	}

	hand, handOK := first(p, "handTemperature", "handSetPointHeating")
	until, _ := asInt64(p["handTimestamp"])
	switch {
	case handOK && until > now.Unix():
		out["setpoint"] = hand
	default:
		if v, ok := first(p, "currentSetpoint", "setPointHeating", "temperature"); ok {
			out["setpoint"] = v
		} else if handOK {
			out["setpoint"] = hand
		}
	}

	mode, _ := p["mode"].(string)
	switch strings.ToLower(mode) {
	case "off":
		out["mode"] = "Off"
	case "cool":
		out["mode"] = "Cool"
	case "auto":
		out["mode"] = "Auto"
	default:
		out["mode"] = "Heat"
	}
	return out
}

func first(p map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

type refreshPayload struct {
	Last    int64            `json:"last"`
	Changes []map[string]any `json:"changes"`
	Events  []struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	} `json:"events"`
}

func (p refreshPayload) refresh() Refresh {
	r := Refresh{Last: p.Last}
	for _, c := range p.Changes {
		id, ok := asInt64(c["id"])
		if !ok {
			continue
		}
		props := make(map[string]any, len(c))
		for k, v := range c {
			if k != "id" {
				props[k] = v
			}
		}
		r.Changes = append(r.Changes, Change{ID: int(id), Properties: props})
	}
	for _, e := range p.Events {
		id, ok := asInt64(e.Data["id"])
		if !ok {
			id, _ = asInt64(e.Data["deviceId"])
		}
		r.Events = append(r.Events, Event{Type: e.Type, DeviceID: int(id), Data: e.Data})
	}
	return r
}
