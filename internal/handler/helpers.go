package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(value), nil
}

func userIDFromContext(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("user_id").(uint)
	return userID, ok && userID > 0
}

// handleError translates service sentinels into HTTP responses.
func handleError(c *fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return utils.SendError(c, fiber.StatusBadRequest, "validation failed: "+validationErrs.Error())
	}

	switch {
	case errors.Is(err, service.ErrEmptyRemarks),
		errors.Is(err, service.ErrEmptyFeedback):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrReviewAccessDenied):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrReviewRequestNotFound),
		errors.Is(err, service.ErrEvaluatorNotFound),
		errors.Is(err, service.ErrImageNotFound),
		errors.Is(err, service.ErrFeedbackUnavailable):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidReviewState),
		errors.Is(err, service.ErrFeedbackAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSubmissionLimitExceeded):
		return utils.SendError(c, fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrSubmissionCreationFailed):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "submission could not be created, please try again")
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
