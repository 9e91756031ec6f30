package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"firmfeed/internal/scheduler"
)

// SchedulerHandler exposes the loop's observability snapshot.
type SchedulerHandler struct {
	loop *scheduler.Loop
}

// NewSchedulerHandler creates a new SchedulerHandler.
func NewSchedulerHandler(loop *scheduler.Loop) *SchedulerHandler {
	return &SchedulerHandler{loop: loop}
}

// Stats returns the loop's last-run information.
func (h *SchedulerHandler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.loop.Stats())
}
