package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const scoreboardCacheControl = "public, s-maxage=3600, stale-while-revalidate=600"

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorEnvelope is the stable JSON shape for every error response.
type errorEnvelope struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorEnvelope{Error: message})
}

// handleScoreboard serves GET /api/public/stress: the current
// cross-country stress scoreboard, ranked descending by score.
func (s *Server) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.composer.Scoreboard()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build scoreboard")
		s.writeError(w, http.StatusInternalServerError, "failed to build scoreboard")
		return
	}
	w.Header().Set("Cache-Control", scoreboardCacheControl)
	s.writeJSON(w, http.StatusOK, rows)
}

// handleHistory serves GET /api/public/stress/{code}/history: up to the
// last 30 scored days for one country, chronological order.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if len(code) != 2 {
		s.writeError(w, http.StatusNotFound, "unknown country code")
		return
	}

	rows, err := s.composer.History(code)
	if err != nil {
		s.log.Error().Err(err).Str("code", code).Msg("failed to build history")
		s.writeError(w, http.StatusInternalServerError, "failed to build history")
		return
	}
	if rows == nil {
		s.writeError(w, http.StatusNotFound, "unknown country code")
		return
	}

	w.Header().Set("Cache-Control", scoreboardCacheControl)
	s.writeJSON(w, http.StatusOK, rows)
}
