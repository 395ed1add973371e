package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/macrostress/internal/domain"
)

func TestStatusCodeForRunStatus(t *testing.T) {
	cases := []struct {
		status domain.RunStatus
		want   int
	}{
		{domain.RunStatusSuccess, http.StatusOK},
		{domain.RunStatusPartial, http.StatusMultiStatus},
		{domain.RunStatusError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusCodeForRunStatus(tc.status))
	}
}

func TestCheckSharedSecretRejectsEmptyConfiguredSecret(t *testing.T) {
	s := &Server{sharedSecret: ""}
	req := httptest.NewRequest(http.MethodGet, "/api/scheduler/trigger", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	assert.False(t, s.checkSharedSecret(req))
}

func TestCheckSharedSecretAcceptsMatchingBearerToken(t *testing.T) {
	s := &Server{sharedSecret: "topsecret"}
	req := httptest.NewRequest(http.MethodGet, "/api/scheduler/trigger", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	assert.True(t, s.checkSharedSecret(req))
}

func TestCheckSharedSecretRejectsMismatch(t *testing.T) {
	s := &Server{sharedSecret: "topsecret"}
	req := httptest.NewRequest(http.MethodGet, "/api/scheduler/trigger", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.False(t, s.checkSharedSecret(req))
}

func TestIsLocalhostRecognizesLoopbackRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	assert.True(t, isLocalhost(req))
}

func TestIsLocalhostRejectsRemoteHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	assert.False(t, isLocalhost(req))
}
