package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/careline/realtime/internal/cache"
	ws "github.com/careline/realtime/internal/websocket"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheReporter exposes cache counters for the health report.
type CacheReporter interface {
	Stats() cache.Stats
}

type HealthHandlers struct {
	hub   *ws.Hub
	db    Pinger
	cache CacheReporter
}

// NewHealthHandlers builds the health endpoint. profiles may be nil when no
// profile cache is configured.
func NewHealthHandlers(hub *ws.Hub, db Pinger, profiles CacheReporter) *HealthHandlers {
	return &HealthHandlers{hub: hub, db: db, cache: profiles}
}

func (h *HealthHandlers) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

type healthResponse struct {
	Status   string       `json:"status"`
	Database string       `json:"database"`
	Hub      ws.Stats     `json:"hub"`
	Cache    *cache.Stats `json:"cache,omitempty"`
}

func (h *HealthHandlers) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Hub: h.hub.Stats()}
	if h.cache != nil {
		stats := h.cache.Stats()
		resp.Cache = &stats
	}
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
