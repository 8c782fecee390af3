package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubProbes struct{}

func (stubProbes) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
}

func (stubProbes) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestOpsServerRoutes(t *testing.T) {
	h := NewOpsServer(ServerConfig{Port: 0, Probes: stubProbes{}}).Handler()

	assert.Equal(t, http.StatusOK, get(h, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(h, "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/health/ready").Code)

	index := get(h, "/")
	assert.Equal(t, http.StatusOK, index.Code)
	assert.Contains(t, index.Body.String(), "/health/ready")
	assert.Equal(t, http.StatusNotFound, get(h, "/unknown").Code)
}

func TestOpsServerWithoutProbes(t *testing.T) {
	h := NewOpsServer(ServerConfig{}).Handler()

	assert.Equal(t, http.StatusOK, get(h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/health/ready").Code)
	assert.NotContains(t, get(h, "/").Body.String(), "/health/ready")
}
