package web

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCounter int64

func (s stubCounter) Calls() int64 { return int64(s) }

func TestHealthCheckReportsCounters(t *testing.T) {
	hub := NewTurnHub()
	hub.clients["a"] = &Client{ID: "a"}
	h := NewHandlers(nil, nil, nil, nil, stubCounter(7), hub)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 200, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "tale-weaver", body["service"])
	assert.Equal(t, float64(1), body["clients"])
	assert.Equal(t, float64(7), body["model_calls"])
}
