package papers

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/litgraph/litgraph/pkg/apperror"
)

// Handler exposes paper routes.
type Handler struct {
	service *Service
}

// NewHandler creates the papers HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts paper routes on the API group.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/papers")
	g.POST("", h.Upload)
	g.GET("/:id", h.Get)
}

// Upload accepts a multipart PDF under the "file" field.
func (h *Handler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apperror.NewBadRequest("multipart field 'file' is required")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return apperror.NewBadRequest("could not open uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if len(data) == 0 {
		return apperror.NewBadRequest("uploaded file is empty")
	}

	paper, created, err := h.service.Upload(c.Request().Context(), fileHeader.Filename, data)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, paper)
}

// Get returns one paper.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid paper id")
	}

	paper, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, paper)
}
