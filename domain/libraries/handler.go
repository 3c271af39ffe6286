package libraries

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/litgraph/litgraph/pkg/apperror"
)

// Handler exposes library routes.
type Handler struct {
	service *Service
}

// NewHandler creates the libraries HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts library routes on the API group.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/libraries")
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.POST("/:id/papers", h.AddPapers)
	g.GET("/:id/status", h.Status)
}

type createRequest struct {
	Title   string  `json:"title"`
	OwnerID *string `json:"owner_id"`
}

// Create makes a new library.
func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Title == "" {
		return apperror.NewBadRequest("title is required")
	}

	library, err := h.service.Create(c.Request().Context(), req.Title, req.OwnerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, library)
}

// Get returns one library.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid library id")
	}

	library, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, library)
}

type addPapersRequest struct {
	PaperIDs []uuid.UUID `json:"paper_ids"`
}

// AddPapers adds papers to the library and may trigger linking.
func (h *Handler) AddPapers(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid library id")
	}

	var req addPapersRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if len(req.PaperIDs) == 0 {
		return apperror.NewBadRequest("paper_ids is required")
	}

	added, err := h.service.AddPapers(c.Request().Context(), id, req.PaperIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"added": added})
}

// Status returns the per-library processing counters.
func (h *Handler) Status(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid library id")
	}

	status, err := h.service.ProcessingStatus(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}
