package engine

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() (*Server, *Registry) {
	r := NewRegistry(nil, nil)
	return NewServer(r, testConfig(), nil), r
}

func TestHandleHealthz(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}

func TestHandleScheduleUnknownReturns404(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	req := httptest.NewRequest("GET", "/schedule/none/none", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 404, w.Code)
}

func TestHandleDefaultScheduleBecomesReady(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	req := httptest.NewRequest("GET", "/schedule", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Contains(t, []int{200, 202}, w.Code)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest("GET", "/schedule", nil)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w.Code == 200
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleSetScheduleThenGet(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	body, _ := json.Marshal(map[string]any{"flavourWeights": map[string]int{"manual": 100}})
	req := httptest.NewRequest("POST", "/setschedule", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 202, w.Code)

	req = httptest.NewRequest("GET", "/schedule", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decoded))
	weights := decoded["flavourWeights"].(map[string]any)
	assert.Equal(t, float64(100), weights["manual"])
}

func TestHandleConfigureRejectsBadOverrideType(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	body, _ := json.Marshal(map[string]any{"targetError": "not-a-number"})
	req := httptest.NewRequest("PUT", "/config/ns/svc", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 400, w.Code)
}

func TestHandleConfigureAcceptsValidOverride(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	body, _ := json.Marshal(map[string]any{"policy": "round-robin"})
	req := httptest.NewRequest("PUT", "/config/ns/svc", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 202, w.Code)
}

func TestHandleConfigHistoryUnknownReturns404(t *testing.T) {
	s, r := newTestServer()
	defer r.Shutdown()

	req := httptest.NewRequest("GET", "/schedule/none/none/config-history", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, 404, w.Code)
}
