package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hcbridge/internal/bridge"
	"github.com/nerrad567/hcbridge/internal/homekit"
	"github.com/nerrad567/hcbridge/internal/transform"
)

// AccessoryView is the JSON form of one exposed accessory.
type AccessoryView struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	DeviceID int           `json:"device_id,omitempty"`
	Services []ServiceView `json:"services"`
}

// ServiceView is the JSON form of one service.
type ServiceView struct {
	Kind            homekit.ServiceKind  `json:"kind"`
	Name            string               `json:"name"`
	Subtype         string               `json:"subtype"`
	Characteristics []CharacteristicView `json:"characteristics"`
}

// CharacteristicView is the JSON form of one characteristic.
type CharacteristicView struct {
	Kind     homekit.CharKind `json:"kind"`
	Format   homekit.Format   `json:"format"`
	Value    any              `json:"value"`
	Writable bool             `json:"writable"`
	Min      *float64         `json:"min,omitempty"`
	Max      *float64         `json:"max,omitempty"`
}

// writeRequest is the body of a characteristic write.
type writeRequest struct {
	Value any `json:"value"`
}

func accessoryView(a bridge.Accessory) AccessoryView {
	v := AccessoryView{
		Key:      a.Key,
		Name:     a.Name,
		DeviceID: a.DeviceID,
		Services: make([]ServiceView, 0, len(a.Services)),
	}
	for _, svc := range a.Services {
		sv := ServiceView{
			Kind:            svc.Kind,
			Name:            svc.Name,
			Subtype:         svc.Subtype.String(),
			Characteristics: make([]CharacteristicView, 0, len(svc.Characteristics)),
		}
		for _, c := range svc.Characteristics {
			cv := CharacteristicView{
				Kind:     c.Kind,
				Format:   c.Meta.Format,
				Value:    c.Value(),
				Writable: c.Meta.Writable,
			}
			if c.Meta.Format != homekit.FormatBool && c.Meta.Format != homekit.FormatString {
				lo, hi := c.Range()
				cv.Min, cv.Max = &lo, &hi
			}
			sv.Characteristics = append(sv.Characteristics, cv)
		}
		v.Services = append(v.Services, sv)
	}
	return v
}

// handleListAccessories returns every exposed accessory with live values.
func (s *Server) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	accs := s.bridge.Accessories()
	out := make([]AccessoryView, 0, len(accs))
	for _, a := range accs {
		out = append(out, accessoryView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": out,
		"count":       len(out),
	})
}

// handleGetAccessory returns one accessory by key.
func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.findAccessory(chi.URLParam(r, "key"))
	if !ok {
		writeNotFound(w, "accessory not found")
		return
	}
	writeJSON(w, http.StatusOK, accessoryView(a))
}

// handleWriteCharacteristic performs a write as if it came from HomeKit.
func (s *Server) handleWriteCharacteristic(w http.ResponseWriter, r *http.Request) {
	a, ok := s.findAccessory(chi.URLParam(r, "key"))
	if !ok {
		writeNotFound(w, "accessory not found")
		return
	}
	subtype := chi.URLParam(r, "subtype")
	key, err := homekit.ParseSubtype(subtype)
	if err != nil {
		writeBadRequest(w, "invalid subtype")
		return
	}
	var svc *homekit.Service
	for _, candidate := range a.Services {
		if candidate.Subtype == key {
			svc = candidate
			break
		}
	}
	if svc == nil {
		writeNotFound(w, "service not found")
		return
	}
	c := svc.Get(homekit.CharKind(chi.URLParam(r, "char")))
	if c == nil {
		writeNotFound(w, "characteristic not found")
		return
	}
	if !c.Meta.Writable {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "characteristic is read-only")
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "value is required")
		return
	}

	err = s.bridge.HandleCharacteristicWrite(r.Context(), c, svc, req.Value)
	switch {
	case err == nil:
	case errors.Is(err, bridge.ErrDeviceUnreachable):
		writeUnavailable(w, err.Error())
		return
	case errors.Is(err, bridge.ErrUnknownService):
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, transform.ErrInvalidValue), errors.Is(err, transform.ErrNotWritable), errors.Is(err, transform.ErrNoCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	default:
		s.logger.Warn("characteristic write failed", "subtype", subtype, "characteristic", c.Kind, "error", err)
		writeInternalError(w, "write failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"subtype":        subtype,
		"characteristic": c.Kind,
		"value":          c.Value(),
	})
}

func (s *Server) findAccessory(key string) (bridge.Accessory, bool) {
	for _, a := range s.bridge.Accessories() {
		if a.Key == key {
			return a, true
		}
	}
	return bridge.Accessory{}, false
}
