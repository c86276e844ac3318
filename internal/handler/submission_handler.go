package handler

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/observability"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/utils"
)

// ImageUploader stores a raw image and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// SubmissionHandler exposes the answer submission and evaluation endpoints.
type SubmissionHandler struct {
	submissions service.SubmissionService
	reviews     service.ReviewService
	uploader    ImageUploader
	logger      zerolog.Logger
}

func NewSubmissionHandler(
	submissions service.SubmissionService,
	reviews service.ReviewService,
	uploader ImageUploader,
	logger zerolog.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		reviews:     reviews,
		uploader:    uploader,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Submit creates a new answer attempt. Accepts either a JSON payload with
// hosted image URLs or a multipart form with raw image files.
func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		parsed, err := h.parseMultipart(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		payload = parsed
	} else if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.submissions.Submit(c.UserContext(), payload)
	if err != nil {
		return handleError(c, err)
	}

	observability.SubmissionsCreated().Inc()
	return utils.SendCreated(c, "submission created", response)
}

func (h *SubmissionHandler) parseMultipart(c *fiber.Ctx) (dto.SubmissionCreateRequest, error) {
	var payload dto.SubmissionCreateRequest

	userID, err := strconv.ParseUint(c.FormValue("user_id"), 10, 32)
	if err != nil {
		return payload, fiber.NewError(fiber.StatusBadRequest, "invalid user_id")
	}
	questionID, err := strconv.ParseUint(c.FormValue("question_id"), 10, 32)
	if err != nil {
		return payload, fiber.NewError(fiber.StatusBadRequest, "invalid question_id")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return payload, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
	}

	files := form.File["images"]
	if len(files) == 0 {
		return payload, fiber.NewError(fiber.StatusBadRequest, "at least one image is required")
	}

	urls := make([]string, 0, len(files))
	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			return payload, fiber.NewError(fiber.StatusBadRequest, "unable to read uploaded file")
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return payload, fiber.NewError(fiber.StatusBadRequest, "unable to read uploaded file")
		}

		detected := mimetype.Detect(data)
		if !strings.HasPrefix(detected.String(), "image/") {
			return payload, fiber.NewError(fiber.StatusBadRequest, "file "+file.Filename+" is not an image")
		}

		url, err := h.uploader.Upload(c.UserContext(), file.Filename, bytes.NewReader(data))
		if err != nil {
			h.logger.Error().Err(err).Str("file", file.Filename).Msg("image upload failed")
			return payload, fiber.NewError(fiber.StatusBadRequest, "image upload failed")
		}
		urls = append(urls, url)
	}

	payload.UserID = uint(userID)
	payload.QuestionID = uint(questionID)
	payload.Images = urls
	return payload, nil
}

// GetLatest returns the newest attempt for the caller on a question.
func (h *SubmissionHandler) GetLatest(c *fiber.Ctx) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
	questionID, err := parseUintParam(c, "question_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.submissions.GetLatest(c.UserContext(), userID, questionID)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "latest submission retrieved", response)
}

// ListAttempts returns every attempt for the caller on a question.
func (h *SubmissionHandler) ListAttempts(c *fiber.Ctx) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
	questionID, err := parseUintParam(c, "question_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	responses, err := h.submissions.ListAttempts(c.UserContext(), userID, questionID)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "attempts retrieved", responses)
}

// GetByAttempt returns one specific attempt for the caller on a question.
func (h *SubmissionHandler) GetByAttempt(c *fiber.Ctx) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
	questionID, err := parseUintParam(c, "question_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	attempt, err := strconv.Atoi(c.Params("attempt"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid attempt number")
	}

	response, err := h.submissions.GetByAttempt(c.UserContext(), userID, questionID, attempt)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "submission retrieved", response)
}

// ListEvaluations returns evaluations matching the query filters.
func (h *SubmissionHandler) ListEvaluations(c *fiber.Ctx) error {
	var filter dto.EvaluationListFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	responses, err := h.submissions.ListEvaluations(c.UserContext(), filter)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "evaluations retrieved", responses)
}

// Reevaluate reruns the scoring pipeline for one submission.
func (h *SubmissionHandler) Reevaluate(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.submissions.Reevaluate(c.UserContext(), submissionID)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "submission re-evaluated", response)
}

// RequestReview opens an expert review request for the caller's submission.
func (h *SubmissionHandler) RequestReview(c *fiber.Ctx) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.reviews.RequestReview(c.UserContext(), submissionID, userID)
	if err != nil {
		return handleError(c, err)
	}
	return utils.SendCreated(c, "review requested", response)
}

// SubmitFeedback records the student's one-shot response to their feedback.
func (h *SubmissionHandler) SubmitFeedback(c *fiber.Ctx) error {
	userID, ok := userIDFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.StudentFeedbackRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.reviews.SubmitStudentFeedback(c.UserContext(), submissionID, userID, payload.Message); err != nil {
		return handleError(c, err)
	}
	return utils.SendSuccess(c, "feedback recorded", nil)
}
