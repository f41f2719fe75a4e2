package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hcbridge/internal/device"
)

// DeviceView is the JSON form of a cached controller device snapshot.
type DeviceView struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	RoomID     int        `json:"room_id,omitempty"`
	ParentID   int        `json:"parent_id,omitempty"`
	Enabled    bool       `json:"enabled"`
	Visible    bool       `json:"visible"`
	Dead       bool       `json:"dead"`
	Interfaces []string   `json:"interfaces,omitempty"`
	Properties device.Raw `json:"properties,omitempty"`
}

func deviceView(d device.Descriptor) DeviceView {
	return DeviceView{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		RoomID:     d.RoomID,
		ParentID:   d.ParentID,
		Enabled:    d.Enabled,
		Visible:    d.Visible,
		Dead:       d.Properties.Dead,
		Interfaces: d.Interfaces,
		Properties: d.Properties.Raw,
	}
}

// handleListDevices returns the cached device snapshots.
//
// Query parameters:
//   - type: substring match on the device type
//   - dead: "true" returns only unreachable devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")
	deadOnly := r.URL.Query().Get("dead") == "true"

	all := s.bridge.Devices().All()
	out := make([]DeviceView, 0, len(all))
	for _, d := range all {
		if typeFilter != "" && !strings.Contains(d.Type, typeFilter) {
			continue
		}
		if deadOnly && !d.Properties.Dead {
			continue
		}
		out = append(out, deviceView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// handleGetDevice returns one device snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeBadRequest(w, "device id must be a positive integer")
		return
	}
	d, ok := s.bridge.Devices().Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, deviceView(d))
}
