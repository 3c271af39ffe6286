package jobs

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/litgraph/litgraph/pkg/apperror"
)

// HTTPHandler exposes read-only job inspection routes.
type HTTPHandler struct {
	store Store
}

// NewHTTPHandler creates the jobs HTTP handler.
func NewHTTPHandler(store Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

// RegisterRoutes mounts job routes on the API group.
func RegisterRoutes(e *echo.Echo, h *HTTPHandler) {
	g := e.Group("/api/jobs")
	g.GET("/stats", h.GetStats)
	g.GET("/:id", h.GetJob)
}

// GetJob returns one job row, including status, attempts, result and
// error.
func (h *HTTPHandler) GetJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid job id")
	}

	job, err := h.store.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return apperror.NewNotFound("job", id.String())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

// GetStats returns job counts grouped by kind and status.
func (h *HTTPHandler) GetStats(c echo.Context) error {
	stats, err := h.store.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
