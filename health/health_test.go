package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateAllHealthy(t *testing.T) {
	m := NewMonitor("flowrt")
	m.Update("runtime", NewHealthy("runtime", "2 flows running"))
	m.Update("nats", NewHealthy("nats", "connected"))

	agg := m.Aggregate()
	assert.True(t, agg.Healthy)
	assert.Equal(t, StateHealthy, agg.Status)
	assert.Len(t, agg.SubStatuses, 2)
}

func TestAggregateDegradedWins(t *testing.T) {
	m := NewMonitor("flowrt")
	m.Update("runtime", NewHealthy("runtime", ""))
	m.Update("nats", NewDegraded("nats", "reconnecting"))

	agg := m.Aggregate()
	assert.Equal(t, StateDegraded, agg.Status)
}

func TestAggregateUnhealthyWinsOverDegraded(t *testing.T) {
	m := NewMonitor("flowrt")
	m.Update("nats", NewDegraded("nats", "reconnecting"))
	m.Update("runtime", NewUnhealthy("runtime", "no generation deployed"))

	agg := m.Aggregate()
	assert.False(t, agg.Healthy)
	assert.Equal(t, StateUnhealthy, agg.Status)
}

func TestUpdateOverwrites(t *testing.T) {
	m := NewMonitor("flowrt")
	m.Update("nats", NewUnhealthy("nats", "down"))
	m.Update("nats", NewHealthy("nats", "recovered"))

	status, ok := m.Get("nats")
	require.True(t, ok)
	assert.True(t, status.Healthy)
}

func TestServeHTTPStatusCodes(t *testing.T) {
	m := NewMonitor("flowrt")
	m.Update("runtime", NewHealthy("runtime", ""))

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var agg Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, "flowrt", agg.Component)

	// Degraded still answers 200.
	m.Update("nats", NewDegraded("nats", "reconnecting"))
	rec = httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.Update("runtime", NewUnhealthy("runtime", "stopped"))
	rec = httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
