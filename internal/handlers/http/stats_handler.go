package http

import (
	"context"
	"net/http"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/infrastructure/monitoring"
	"callrelay/pkg/cache"
	"callrelay/pkg/utils"

	"github.com/gin-gonic/gin"
)

// defaultStatsTTL bounds how often a polling dashboard makes the relay
// walk its room table.
const defaultStatsTTL = 2 * time.Second

type StatsHandler struct {
	relay     ports.RelayService
	checker   *monitoring.Checker
	stats     *cache.WithFallback[*domain.RelayStats]
	statsTTL  time.Duration
	startedAt time.Time
}

func NewStatsHandler(relay ports.RelayService, checker *monitoring.Checker, statsTTL time.Duration) *StatsHandler {
	if statsTTL <= 0 {
		statsTTL = defaultStatsTTL
	}
	return &StatsHandler{
		relay:     relay,
		checker:   checker,
		stats:     cache.NewWithFallback[*domain.RelayStats](statsTTL),
		statsTTL:  statsTTL,
		startedAt: time.Now(),
	}
}

func (h *StatsHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)

	api := router.Group("/api/v1")
	{
		api.GET("/stats", h.Stats)
	}
}

// Healthz is the liveness probe. It answers as long as the process can
// serve HTTP at all.
func (h *StatsHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    utils.FormatDuration(time.Since(h.startedAt)),
	})
}

// Readyz runs the registered dependency probes. The bus check is only
// present when the bus is enabled, so a single-instance relay is ready
// without Redis.
func (h *StatsHandler) Readyz(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *StatsHandler) Stats(c *gin.Context) {
	stats, err := h.stats.GetOrSet(c.Request.Context(), "relay",
		func(ctx context.Context) (*domain.RelayStats, error) {
			return h.relay.Stats(ctx), nil
		}, h.statsTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
