package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/peerlens-go-api/internal/service"
	"github.com/noah-isme/peerlens-go-api/internal/utils"
)

// MetricsHandler serves derived evaluation metrics.
type MetricsHandler struct {
	service service.MetricsService
	logger  zerolog.Logger
}

// NewMetricsHandler constructs the handler.
func NewMetricsHandler(service service.MetricsService, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{
		service: service,
		logger:  logger.With().Str("component", "metrics_handler").Logger(),
	}
}

// RegisterEvaluationRoutes attaches per-evaluation metric endpoints.
func (h *MetricsHandler) RegisterEvaluationRoutes(router fiber.Router) {
	router.Get("/:id/metrics", h.evaluationMetrics)
}

// RegisterAssignmentRoutes attaches assignment-level aggregation endpoints.
func (h *MetricsHandler) RegisterAssignmentRoutes(router fiber.Router) {
	router.Get("/:id/overview", h.assignmentOverview)
}

func (h *MetricsHandler) evaluationMetrics(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	metrics, err := h.service.EvaluationMetrics(c.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrEvaluationNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "evaluation not found")
		}
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "evaluation metrics retrieved", metrics)
}

func (h *MetricsHandler) assignmentOverview(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	overview, err := h.service.AssignmentOverview(c.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "assignment overview retrieved", overview)
}
