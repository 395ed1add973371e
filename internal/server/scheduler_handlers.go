package server

import (
	"crypto/subtle"
	"net"
	"net/http"

	"github.com/aristath/macrostress/internal/domain"
)

// handleSchedulerTrigger serves GET /api/scheduler/trigger: runs the daily
// orchestrator pipeline synchronously and reports its outcome. Requires
// the shared secret in an Authorization: Bearer header unless the request
// comes from localhost, per the documented developer exemption.
func (s *Server) handleSchedulerTrigger(w http.ResponseWriter, r *http.Request) {
	if !isLocalhost(r) && !s.checkSharedSecret(r) {
		s.writeError(w, http.StatusUnauthorized, "invalid or missing shared secret")
		return
	}

	result, err := s.orchestrator.DailyRun(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("orchestrator run failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, statusCodeForRunStatus(result.Status), result)
}

// statusCodeForRunStatus maps a run outcome to the HTTP status reported by
// the trigger endpoint: success is 200, a partial run (some countries
// failed) is 207, and a run that produced no usable output is 500.
func statusCodeForRunStatus(status domain.RunStatus) int {
	switch status {
	case domain.RunStatusPartial:
		return http.StatusMultiStatus
	case domain.RunStatusError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (s *Server) checkSharedSecret(r *http.Request) bool {
	if s.sharedSecret == "" {
		return false
	}
	given := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(given) > len(prefix) && given[:len(prefix)] == prefix {
		given = given[len(prefix):]
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(s.sharedSecret)) == 1
}

func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
