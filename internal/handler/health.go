package handler

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	DB *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler { return &HealthHandler{DB: db} }

// Healthz returns 200 while the database answers pings, 503 otherwise.
func (h *HealthHandler) Healthz(c echo.Context) error {
	if h.DB != nil {
		if err := h.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "db": "down"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
