package conflicts

import (
	"errors"

	"site-sync/core/logger"
	"site-sync/core/report"
	"site-sync/core/resolver"
	"site-sync/feature/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for conflicts and site matching.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ResolveRequest is the body of a resolve call.
type ResolveRequest struct {
	Status     string `json:"status" example:"resolved"`
	Resolution string `json:"resolution" example:"client mapping fixed in maintenance"`
}

// LinkRequest is the body of a link call.
type LinkRequest struct {
	MaintenanceID string `json:"maintenance_id" example:"601"`
}

// IgnoreRequest is the body of an ignore call.
type IgnoreRequest struct {
	Ignore bool `json:"ignore"`
}

// CandidatesResponse lists the pairings of unlinked sites.
type CandidatesResponse struct {
	Matches    []report.Match       `json:"matches"`
	UnmatchedA []resolver.Candidate `json:"unmatched_store"`
	UnmatchedB []resolver.Candidate `json:"unmatched_maintenance"`
}

// RegisterRoutes registers the conflict and matching routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/conflicts")
	group.Get("/", h.HandleList)
	group.Post("/:id/resolve", h.HandleResolve)

	sites := app.Group("/sites")
	sites.Get("/candidates", h.HandleCandidates)
	sites.Post("/:key/link", h.HandleLink)
	sites.Post("/:key/ignore", h.HandleIgnore)
}

// HandleList lists conflicts.
// @Summary List Conflicts
// @Description Lists the conflicts raised by sync runs, optionally filtered by status.
// @Tags conflicts
// @Produce json
// @Param status query string false "pending, resolved or ignored"
// @Success 200 {array} store.Conflict
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /conflicts [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	rows, err := h.service.List(c.Context(), c.Query("status"))
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to list conflicts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rows)
}

// HandleResolve closes a conflict.
// @Summary Resolve Conflict
// @Description Marks a pending conflict as resolved or ignored.
// @Tags conflicts
// @Accept json
// @Produce json
// @Param id path int true "Conflict ID"
// @Param body body ResolveRequest true "Decision"
// @Success 200 {object} store.Conflict
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Conflict already closed"
// @Router /conflicts/{id}/resolve [post]
func (h *Handler) HandleResolve(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid conflict id"})
	}
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Status != store.ConflictResolved && req.Status != store.ConflictIgnored {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be resolved or ignored"})
	}

	row, err := h.service.Resolve(c.Context(), uint(id), req.Status, req.Resolution)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrConflictClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		l.Error("Failed to resolve conflict", zap.Int("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	l.Info("Conflict closed", zap.Int("id", id), zap.String("status", req.Status))
	return c.JSON(row)
}

// HandleCandidates previews site matching.
// @Summary Preview Site Matches
// @Description Pairs store sites without a maintenance link with maintenance sites without a monitoring key.
// @Tags sites
// @Produce json
// @Success 200 {object} CandidatesResponse
// @Failure 503 {object} map[string]string "Matching not configured"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /sites/candidates [get]
func (h *Handler) HandleCandidates(c *fiber.Ctx) error {
	res, err := h.service.Candidates(c.Context())
	if errors.Is(err, ErrMatchingDisabled) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to resolve candidates", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	var r report.Report
	for _, m := range res.Matches {
		r.AddMatch(m, false)
	}
	return c.JSON(CandidatesResponse{
		Matches:    r.Matches,
		UnmatchedA: res.UnmatchedA,
		UnmatchedB: res.UnmatchedB,
	})
}

// HandleLink links a site.
// @Summary Link Site
// @Description Links a store site to a maintenance site and writes the monitoring key back.
// @Tags sites
// @Accept json
// @Produce json
// @Param key path string true "Monitoring system key"
// @Param body body LinkRequest true "Maintenance site"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Already linked"
// @Router /sites/{key}/link [post]
func (h *Handler) HandleLink(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	key := c.Params("key")
	var req LinkRequest
	if err := c.BodyParser(&req); err != nil || req.MaintenanceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "maintenance_id is required"})
	}

	err := h.service.Link(c.Context(), key, req.MaintenanceID)
	switch {
	case errors.Is(err, ErrMatchingDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrAlreadyLinked):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		l.Error("Failed to link site", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "linked", "key": key, "maintenance_id": req.MaintenanceID})
}

// HandleIgnore flags a site.
// @Summary Ignore Site
// @Description Excludes a site from matching and from pushes to the maintenance platform.
// @Tags sites
// @Accept json
// @Produce json
// @Param key path string true "Monitoring system key"
// @Param body body IgnoreRequest true "Flag"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Not Found"
// @Router /sites/{key}/ignore [post]
func (h *Handler) HandleIgnore(c *fiber.Ctx) error {
	key := c.Params("key")
	var req IgnoreRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	err := h.service.Ignore(c.Context(), key, req.Ignore)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to flag site", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"key": key, "ignore": req.Ignore})
}
