package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KAsare1/Kodefx-capital/cmd/utils"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/KAsare1/Kodefx-capital/service/metrics"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	secret := []byte("api-test")
	svc := ledger.NewService(ledger.NewMemoryStore())
	srv := NewApiServer(":0", svc, metrics.NewRegistry(), secret, zerolog.Nop())

	token, err := utils.SignToken(secret, 1, jwt.RegisteredClaims{})
	require.NoError(t, err)
	return srv.Handler(), token
}

func TestHandler_Health(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHandler_SignalRoutesAndMetrics(t *testing.T) {
	h, token := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signal/schedule", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signal/schedule", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `route="/api/v1/signal/schedule"`))
}

func TestHandler_CORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/signal/daily", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
