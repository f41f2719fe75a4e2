package api

import (
	"net/http"
	"strconv"
)

// parseLimit reads the optional limit query parameter. Zero lets the store
// apply its default.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// handleHistory returns recent characteristic changes, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	subtype := r.URL.Query().Get("subtype")

	changes, err := s.history.RecentChanges(r.Context(), subtype, limit)
	if err != nil {
		s.logger.Error("querying characteristic history", "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subtype": subtype,
		"changes": changes,
		"count":   len(changes),
	})
}

// handleCommands returns recently executed controller commands.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	cmds, err := s.history.RecentCommands(r.Context(), limit)
	if err != nil {
		s.logger.Error("querying command log", "error", err)
		writeInternalError(w, "failed to query commands")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": cmds,
		"count":    len(cmds),
	})
}
