package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/core/services"
	"callrelay/internal/infrastructure/monitoring"
	"callrelay/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newStatsRouter(t *testing.T, checker *monitoring.Checker) (*gin.Engine, ports.RelayService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	relay := services.NewRelayService(
		memory.NewMemorySessionRegistry(),
		nil,
		monitoring.NewNopCollector(),
		nil,
		"relay_test",
		services.RelayConfig{MediaQueueSize: 8, ControlQueueSize: 4},
		zaptest.NewLogger(t).Sugar(),
	)

	router := gin.New()
	NewStatsHandler(relay, checker, 0).SetupRoutes(router)
	return router, relay
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newStatsRouter(t, monitoring.NewChecker(time.Second))

	w := get(router, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestReadyz_NoDependencies(t *testing.T) {
	router, _ := newStatsRouter(t, monitoring.NewChecker(time.Second))

	w := get(router, "/readyz")

	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz_FailingDependency(t *testing.T) {
	checker := monitoring.NewChecker(time.Second)
	checker.Add("bus", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	router, _ := newStatsRouter(t, checker)

	w := get(router, "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var status monitoring.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "connection refused", status.Checks["bus"])
}

func TestStats(t *testing.T) {
	router, relay := newStatsRouter(t, monitoring.NewChecker(time.Second))

	_, err := relay.Admit(context.Background(), &domain.AdmissionClaim{
		Identity: "alice",
		RoomID:   "standup",
	}, domain.TransportWebSocket)
	require.NoError(t, err)

	w := get(router, "/api/v1/stats")

	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.RelayStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "relay_test", stats.InstanceID)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Rooms)
	require.Len(t, stats.RoomList, 1)
	assert.Equal(t, "standup", string(stats.RoomList[0].RoomID))
	assert.Equal(t, 1, stats.RoomList[0].Sessions)
}
