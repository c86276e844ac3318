package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// ReviewHandler exposes the expert review workflow endpoints.
type ReviewHandler struct {
	reviews service.ReviewService
	logger  zerolog.Logger
}

func NewReviewHandler(reviews service.ReviewService, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger.With().Str("component", "review_handler").Logger(),
	}
}

// Accept assigns an open review request to the calling evaluator.
func (h *ReviewHandler) Accept(c *fiber.Ctx) error {
	evaluatorID, ok := userIDFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
	requestID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.reviews.Accept(c.UserContext(), requestID, evaluatorID)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "review request accepted", response)
}

// Submit records the evaluator's verdict and merges it into the evaluation.
func (h *ReviewHandler) Submit(c *fiber.Ctx) error {
	requestID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.reviews.SubmitReview(c.UserContext(), requestID, payload)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "review submitted", response)
}

// Queue lists review requests matching the query filters.
func (h *ReviewHandler) Queue(c *fiber.Ctx) error {
	var filter dto.ReviewQueueFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	responses, err := h.reviews.ListQueue(c.UserContext(), filter)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "review queue retrieved", responses)
}
