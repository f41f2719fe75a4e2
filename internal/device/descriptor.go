package device

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Raw is the untyped property bag reported by the controller.
type Raw map[string]any

// Get returns the named property.
func (r Raw) Get(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// Merge returns a new Raw containing r overlaid with delta. Neither input is
// modified.
func (r Raw) Merge(delta map[string]any) Raw {
	out := make(Raw, len(r)+len(delta))
	maps.Copy(out, r)
	maps.Copy(out, delta)
	return out
}

// CentralSceneKey is one key announced in centralSceneSupport.
type CentralSceneKey struct {
	KeyID         int      `json:"keyId"`
	KeyAttributes []string `json:"keyAttributes"`
}

// VirtualButton is one button element of a virtual device.
type VirtualButton struct {
	ID      int    `json:"id"`
	Caption string `json:"caption"`
}

// Properties is the typed subset of device properties used for capability
// resolution. Raw keeps everything the controller sent.
type Properties struct {
	DeviceControlType              int
	DeviceRole                     string
	FavoritePositionsNativeSupport bool
	Dead                           bool
	AvailableScenes                []int
	CentralSceneSupport            []CentralSceneKey
	Buttons                        []VirtualButton
	Raw                            Raw
}

// Descriptor is an immutable snapshot of one controller device.
type Descriptor struct {
	ID         int
	Type       string
	Name       string
	RoomID     int
	ParentID   int
	Enabled    bool
	Visible    bool
	Interfaces []string
	Properties Properties
}

// HasInterface reports whether the device announces the named interface.
func (d Descriptor) HasInterface(name string) bool {
	for _, i := range d.Interfaces {
		if i == name {
			return true
		}
	}
	return false
}

// WithProperties returns a copy of d whose raw properties are overlaid with
// delta and whose typed fields are re-derived.
func (d Descriptor) WithProperties(delta map[string]any) Descriptor {
	out := d
	out.Interfaces = append([]string(nil), d.Interfaces...)
	out.Properties = ParseProperties(d.Properties.Raw.Merge(delta))
	return out
}

type payload struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	RoomID     int            `json:"roomID"`
	ParentID   int            `json:"parentId"`
	Enabled    *bool          `json:"enabled"`
	Visible    *bool          `json:"visible"`
	Interfaces []string       `json:"interfaces"`
	Properties map[string]any `json:"properties"`
}

// FromPayload decodes one device object as returned by the controller.
func FromPayload(data []byte) (Descriptor, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Descriptor{}, fmt.Errorf("decoding device: %w", err)
	}
	if p.ID <= 0 {
		return Descriptor{}, fmt.Errorf("%w: id %d", ErrInvalidDescriptor, p.ID)
	}
	return p.descriptor(), nil
}

// ListFromPayload decodes an array of device objects.
func ListFromPayload(data []byte) ([]Descriptor, error) {
	var ps []payload
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("decoding device list: %w", err)
	}
	out := make([]Descriptor, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.descriptor())
	}
	return out, nil
}

func (p payload) descriptor() Descriptor {
	d := Descriptor{
		ID:         p.ID,
		Type:       p.Type,
		Name:       p.Name,
		RoomID:     p.RoomID,
		ParentID:   p.ParentID,
		Enabled:    p.Enabled == nil || *p.Enabled,
		Visible:    p.Visible == nil || *p.Visible,
		Interfaces: p.Interfaces,
	}
	d.Properties = ParseProperties(p.Properties)
	return d
}

// ParseProperties derives the typed fields from a raw property bag.
// Malformed optional fields are left at their zero value.
func ParseProperties(raw map[string]any) Properties {
	if raw == nil {
		raw = map[string]any{}
	}
	p := Properties{Raw: Raw(raw)}

	if n, ok := asInt(raw["deviceControlType"]); ok {
		p.DeviceControlType = n
	}
	if s, ok := raw["deviceRole"].(string); ok {
		p.DeviceRole = s
	}
	p.FavoritePositionsNativeSupport = asBool(raw["favoritePositionsNativeSupport"])
	p.Dead = asBool(raw["dead"])
	p.AvailableScenes = parseScenes(raw["availableScenes"])
	p.CentralSceneSupport = parseCentralScenes(raw["centralSceneSupport"])
	p.Buttons = parseButtons(raw["rows"])

	return p
}

// parseScenes accepts a list of numbers, numeric strings or objects with a
// sceneId field, optionally JSON-encoded as a string.
func parseScenes(v any) []int {
	list, ok := asList(v)
	if !ok {
		return nil
	}
	var out []int
	for _, item := range list {
		if m, isMap := item.(map[string]any); isMap {
			item = m["sceneId"]
		}
		n, ok := asInt(item)
		if !ok {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func parseCentralScenes(v any) []CentralSceneKey {
	list, ok := asList(v)
	if !ok {
		return nil
	}
	var out []CentralSceneKey
	for _, item := range list {
		m, isMap := item.(map[string]any)
		if !isMap {
			return nil
		}
		id, ok := asInt(m["keyId"])
		if !ok {
			return nil
		}
		key := CentralSceneKey{KeyID: id}
		if attrs, ok := m["keyAttributes"].([]any); ok {
			for _, a := range attrs {
				if s, ok := a.(string); ok {
					key.KeyAttributes = append(key.KeyAttributes, s)
				}
			}
		}
		out = append(out, key)
	}
	return out
}

// parseButtons collects the button elements of a virtual device's rows.
func parseButtons(v any) []VirtualButton {
	rows, ok := asList(v)
	if !ok {
		return nil
	}
	var out []VirtualButton
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := row["type"].(string); t != "" && t != "button" {
			continue
		}
		elements, _ := row["elements"].([]any)
		for _, e := range elements {
			el, ok := e.(map[string]any)
			if !ok {
				continue
			}
			id, ok := asInt(el["id"])
			if !ok {
				continue
			}
			caption, _ := el["caption"].(string)
			out = append(out, VirtualButton{ID: id, Caption: caption})
		}
	}
	return out
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		var out []any
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	}
	return false
}
