package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/repository"
)

// ErrReviewRequestNotFound indicates the review request does not exist.
var ErrReviewRequestNotFound = errors.New("review request not found")

// ErrEvaluatorNotFound indicates the evaluator does not exist.
var ErrEvaluatorNotFound = errors.New("evaluator not found")

// ErrReviewAccessDenied indicates a tenant or ownership mismatch.
var ErrReviewAccessDenied = errors.New("review access denied")

// ErrInvalidReviewState indicates an illegal workflow transition; the record
// is left unchanged.
var ErrInvalidReviewState = errors.New("invalid review state")

// ErrEmptyRemarks indicates the review remarks were blank after trimming.
var ErrEmptyRemarks = errors.New("review remarks must not be empty")

// ErrEmptyFeedback indicates the student feedback message was blank.
var ErrEmptyFeedback = errors.New("feedback message must not be empty")

// ErrFeedbackUnavailable indicates the submission has no evaluation feedback
// for the student to respond to yet.
var ErrFeedbackUnavailable = errors.New("evaluation feedback not available")

// ErrFeedbackAlreadySubmitted indicates the one-shot feedback was already used.
var ErrFeedbackAlreadySubmitted = errors.New("feedback already submitted")

// ReviewService drives the human expert review state machine and student
// feedback capture on completed evaluations.
type ReviewService interface {
	RequestReview(ctx context.Context, submissionID, requesterID uint) (dto.ReviewRequestResponse, error)
	Accept(ctx context.Context, requestID, evaluatorID uint) (dto.ReviewRequestResponse, error)
	SubmitReview(ctx context.Context, requestID uint, payload dto.ReviewSubmissionRequest) (dto.ReviewRequestResponse, error)
	SubmitStudentFeedback(ctx context.Context, submissionID, requesterID uint, message string) error
	ListQueue(ctx context.Context, filter dto.ReviewQueueFilter) ([]dto.ReviewRequestResponse, error)
}

type reviewService struct {
	reviews     repository.ReviewRequestRepository
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	evaluators  repository.EvaluatorRepository
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReviewService constructs the review workflow service.
func NewReviewService(
	reviews repository.ReviewRequestRepository,
	submissions repository.SubmissionRepository,
	questions repository.QuestionRepository,
	evaluators repository.EvaluatorRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) ReviewService {
	return &reviewService{
		reviews:     reviews,
		submissions: submissions,
		questions:   questions,
		evaluators:  evaluators,
		validator:   validate,
		logger:      logger.With().Str("component", "review_service").Logger(),
		now:         time.Now,
	}
}

// RequestReview escalates a learner's own submission to human review, used
// when the automatic evaluation is insufficient.
func (s *reviewService) RequestReview(ctx context.Context, submissionID, requesterID uint) (dto.ReviewRequestResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewRequestResponse{}, ErrSubmissionNotFound
		}
		return dto.ReviewRequestResponse{}, err
	}

	if submission.UserID != requesterID {
		return dto.ReviewRequestResponse{}, ErrReviewAccessDenied
	}

	open, err := s.reviews.HasOpenRequest(ctx, submissionID)
	if err != nil {
		return dto.ReviewRequestResponse{}, err
	}
	if open {
		return dto.ReviewRequestResponse{}, ErrInvalidReviewState
	}

	question, err := s.questions.GetByID(ctx, submission.QuestionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ReviewRequestResponse{}, err
	}

	request := models.ReviewRequest{
		UserID:        submission.UserID,
		QuestionID:    submission.QuestionID,
		AnswerID:      submission.ID,
		ClientID:      question.ClientID,
		RequestStatus: models.ReviewRequestPending,
		RequestedAt:   s.now(),
	}
	if err := s.reviews.Create(ctx, &request); err != nil {
		return dto.ReviewRequestResponse{}, err
	}

	submission.ReviewStatus = models.ReviewStatusRequested
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to mirror review_requested status")
	}

	return dto.NewReviewRequestResponse(request), nil
}

// Accept assigns an open review request to an evaluator of the same tenant.
func (s *reviewService) Accept(ctx context.Context, requestID, evaluatorID uint) (dto.ReviewRequestResponse, error) {
	request, err := s.reviews.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewRequestResponse{}, ErrReviewRequestNotFound
		}
		return dto.ReviewRequestResponse{}, err
	}

	evaluator, err := s.evaluators.GetByID(ctx, evaluatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewRequestResponse{}, ErrEvaluatorNotFound
		}
		return dto.ReviewRequestResponse{}, err
	}

	if evaluator.ClientID != request.ClientID {
		return dto.ReviewRequestResponse{}, ErrReviewAccessDenied
	}

	if !request.CanBeAccepted() {
		return dto.ReviewRequestResponse{}, ErrInvalidReviewState
	}

	assignedAt := s.now()
	request.RequestStatus = models.ReviewRequestAccepted
	request.AssignedEvaluatorID = &evaluator.ID
	request.AssignedAt = &assignedAt
	if err := s.reviews.Update(ctx, &request); err != nil {
		return dto.ReviewRequestResponse{}, err
	}

	s.mirrorReviewStatus(ctx, request.AnswerID, models.ReviewStatusAccepted)

	return dto.NewReviewRequestResponse(request), nil
}

// SubmitReview completes an accepted request and merges the expert judgment
// back into the submission's evaluation.
func (s *reviewService) SubmitReview(ctx context.Context, requestID uint, payload dto.ReviewSubmissionRequest) (dto.ReviewRequestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReviewRequestResponse{}, err
	}
	if strings.TrimSpace(payload.Remarks) == "" {
		return dto.ReviewRequestResponse{}, ErrEmptyRemarks
	}

	request, err := s.reviews.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewRequestResponse{}, ErrReviewRequestNotFound
		}
		return dto.ReviewRequestResponse{}, err
	}

	if !request.CanReceiveReview() {
		return dto.ReviewRequestResponse{}, ErrInvalidReviewState
	}

	completedAt := s.now()
	data := models.ReviewData{
		Score:        payload.Score,
		Remarks:      strings.TrimSpace(payload.Remarks),
		Strengths:    payload.Strengths,
		Improvements: payload.Improvements,
		Suggestions:  payload.Suggestions,
		ReviewedAt:   completedAt,
	}

	reviewData := datatypes.NewJSONType(data)
	request.RequestStatus = models.ReviewRequestCompleted
	request.CompletedAt = &completedAt
	request.ReviewData = &reviewData
	if err := s.reviews.Update(ctx, &request); err != nil {
		return dto.ReviewRequestResponse{}, err
	}

	s.mergeExpertReview(ctx, request.AnswerID, data)

	return dto.NewReviewRequestResponse(request), nil
}

// mergeExpertReview copies the completed review data onto the submission's
// evaluation, creating a shell evaluation for manual-mode submissions that
// were never auto-scored.
func (s *reviewService) mergeExpertReview(ctx context.Context, submissionID uint, data models.ReviewData) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("could not load submission to merge expert review")
		return
	}

	evaluation := submission.Evaluation
	if evaluation == nil {
		question, err := s.questions.GetByID(ctx, submission.QuestionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("could not load question for expert review shell")
		}
		evaluation = &models.Evaluation{
			SubmissionID:    submission.ID,
			Score:           data.Score,
			MaxScore:        question.MaxMarks,
			Feedback:        data.Remarks,
			Provider:        "expert",
			FeedbackPending: true,
		}
	}

	expert := datatypes.NewJSONType(data)
	evaluation.ExpertReview = &expert
	if err := s.submissions.SaveEvaluation(ctx, evaluation); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to merge expert review into evaluation")
		return
	}

	submission.ReviewStatus = models.ReviewStatusCompleted
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to mirror review_completed status")
	}
}

func (s *reviewService) mirrorReviewStatus(ctx context.Context, submissionID uint, status string) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("could not load submission to mirror review status")
		return
	}

	submission.ReviewStatus = status
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to mirror review status")
	}
}

// SubmitStudentFeedback records the learner's one-shot response to their
// evaluation feedback.
func (s *reviewService) SubmitStudentFeedback(ctx context.Context, submissionID, requesterID uint, message string) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if submission.UserID != requesterID {
		return ErrReviewAccessDenied
	}

	evaluation := submission.Evaluation
	if evaluation == nil || evaluation.Feedback == "" {
		return ErrFeedbackUnavailable
	}
	if !evaluation.FeedbackPending {
		return ErrFeedbackAlreadySubmitted
	}

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return ErrEmptyFeedback
	}

	submittedAt := s.now()
	evaluation.UserFeedbackMessage = trimmed
	evaluation.UserFeedbackAt = &submittedAt
	evaluation.FeedbackPending = false

	return s.submissions.SaveEvaluation(ctx, evaluation)
}

// ListQueue returns review requests for the evaluator queue.
func (s *reviewService) ListQueue(ctx context.Context, filter dto.ReviewQueueFilter) ([]dto.ReviewRequestResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	requests, err := s.reviews.List(ctx, repository.ReviewRequestFilter{
		Status:      filter.Status,
		ClientID:    filter.ClientID,
		EvaluatorID: filter.EvaluatorID,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewReviewRequestResponseSlice(requests), nil
}
