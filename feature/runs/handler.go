package runs

import (
	"bytes"
	"errors"

	"site-sync/core/lock"
	"site-sync/core/logger"
	"site-sync/core/report"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for sync runs.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RunRequest is the body of a run call.
type RunRequest struct {
	Phases    string `json:"phases" example:"all"`
	DryRun    bool   `json:"dry_run"`
	Confirmed bool   `json:"confirmed"`
}

// RegisterRoutes registers the runs routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/runs")
	group.Post("/", h.HandleRun)
	group.Get("/latest", h.HandleLatest)
	group.Get("/logs", h.HandleLogs)
	group.Get("/schema", h.HandleSchema)
}

// HandleRun executes a sync run.
// @Summary Run Sync
// @Description Runs the selected phases and returns the report. Nothing is written unless confirmed is true and dry_run is false.
// @Tags runs
// @Accept json
// @Produce json
// @Param body body RunRequest true "Run options"
// @Success 200 {object} report.Report
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 409 {object} map[string]string "Another run holds the lock"
// @Failure 500 {object} map[string]interface{} "Run aborted"
// @Router /runs [post]
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	var req RunRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	l.Info("Triggering sync run", zap.String("phases", req.Phases), zap.Bool("dry_run", req.DryRun), zap.Bool("confirmed", req.Confirmed))
	rep, err := h.service.Run(c.Context(), req.Phases, req.DryRun, req.Confirmed)
	switch {
	case err == nil:
		return c.JSON(rep)
	case errors.Is(err, ErrRunsDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, lock.ErrLocked):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		l.Error("Sync run aborted", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "report": rep})
	}
}

// HandleLatest returns the newest archived report.
// @Summary Latest Report
// @Description Downloads the most recent archived run report.
// @Tags runs
// @Produce json
// @Produce application/yaml
// @Param format query string false "json or yaml"
// @Success 200 {object} report.Report
// @Failure 404 {object} map[string]string "No report"
// @Router /runs/latest [get]
func (h *Handler) HandleLatest(c *fiber.Ctx) error {
	rep, err := h.service.Latest(c.Context())
	switch {
	case errors.Is(err, ErrArchiveDisabled), errors.Is(err, report.ErrNoReport):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		logger.WithRayID(h.service.logger, c).Error("Failed to load latest report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if format == report.FormatJSON {
		return c.JSON(rep)
	}
	var buf bytes.Buffer
	if err := report.Encode(&buf, rep, format); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "application/yaml")
	return c.Send(buf.Bytes())
}

// HandleLogs returns the audit trail.
// @Summary Sync Logs
// @Description Lists the newest audit entries written by runs and operators.
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {array} store.SyncLog
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /runs/logs [get]
func (h *Handler) HandleLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	logs, err := h.service.Logs(c.Context(), limit)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Failed to load sync logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(logs)
}

// HandleSchema checks the store schema.
// @Summary Check Store Schema
// @Description Checks if the store database has every column the sync expects.
// @Tags runs
// @Produce json
// @Success 200 {object} map[string]interface{} "Schema Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /runs/schema [get]
func (h *Handler) HandleSchema(c *fiber.Ctx) error {
	missing, err := h.service.Schema(c.Context())
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Schema check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	status := "ok"
	if len(missing) > 0 {
		status = "missing"
	}
	return c.JSON(fiber.Map{"status": status, "missing": missing})
}
