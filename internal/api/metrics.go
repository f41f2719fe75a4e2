package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Bridge        BridgeMetrics  `json:"bridge"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// BridgeMetrics summarises what the bridge exposes.
type BridgeMetrics struct {
	Status          string `json:"status"`
	Accessories     int    `json:"accessories"`
	DevicesManaged  int    `json:"devices_managed"`
	ServicesExposed int    `json:"services_exposed"`
	DeadDevices     int    `json:"dead_devices"`
	PendingCommands int    `json:"pending_commands"`
	LoopState       string `json:"loop_state,omitempty"`
	Cursor          int64  `json:"cursor"`
}

// handleMetrics returns runtime and bridge metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h := s.bridge.Health()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Bridge: BridgeMetrics{
			Status:          string(h.Status),
			Accessories:     len(s.bridge.Accessories()),
			DevicesManaged:  h.DevicesManaged,
			ServicesExposed: h.ServicesExposed,
			PendingCommands: s.bridge.PendingCommands(),
		},
	}
	if h.Controller != nil {
		metrics.Bridge.LoopState = h.Controller.State
		metrics.Bridge.Cursor = h.Controller.Cursor
	}
	for _, d := range s.bridge.Devices().All() {
		if d.Properties.Dead {
			metrics.Bridge.DeadDevices++
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
