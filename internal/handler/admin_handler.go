package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// AdminHandler exposes moderation endpoints for score overrides and
// operational OCR sweeps.
type AdminHandler struct {
	submissions service.SubmissionService
	ocr         service.OCRService
	logger      zerolog.Logger
}

func NewAdminHandler(submissions service.SubmissionService, ocr service.OCRService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		submissions: submissions,
		ocr:         ocr,
		logger:      logger.With().Str("component", "admin_handler").Logger(),
	}
}

// OverrideEvaluation patches a single evaluation in place.
func (h *AdminHandler) OverrideEvaluation(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var patch dto.EvaluationOverrideRequest
	if err := c.BodyParser(&patch); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.submissions.OverrideEvaluation(c.UserContext(), submissionID, patch)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "evaluation overridden", response)
}

type bulkOverrideRequest struct {
	Filter dto.EvaluationListFilter      `json:"filter"`
	Patch  dto.EvaluationOverrideRequest `json:"patch"`
}

// BulkOverrideEvaluation applies one patch to every evaluation matching the
// filter and reports how many rows changed.
func (h *AdminHandler) BulkOverrideEvaluation(c *fiber.Ctx) error {
	var payload bulkOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.submissions.BulkOverrideEvaluation(c.UserContext(), payload.Filter, payload.Patch)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "evaluations overridden", fiber.Map{"updated": updated})
}

// SweepOCR reprocesses every submission whose text extraction has not
// completed yet.
func (h *AdminHandler) SweepOCR(c *fiber.Ctx) error {
	result, err := h.ocr.ProcessPending(c.UserContext())
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "ocr sweep completed", result)
}
