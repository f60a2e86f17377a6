package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler serves the liveness probe; it carries no dependencies since
// the engine components it would otherwise report on are checked by their
// own readiness (DB ping, Redis ping) at startup instead.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}
