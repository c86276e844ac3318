package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/repository"
)

// ErrSubmissionNotFound indicates a submission could not be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrQuestionNotFound indicates the referenced question does not exist.
var ErrQuestionNotFound = errors.New("question not found")

// ErrSubmissionLimitExceeded indicates the learner has used all attempts.
var ErrSubmissionLimitExceeded = errors.New("submission limit exceeded")

// ErrSubmissionCreationFailed indicates the attempt-number retry budget was
// exhausted; the caller should simply try again.
var ErrSubmissionCreationFailed = errors.New("submission creation failed")

// SubmissionConfig carries the attempt and retry knobs. The defaults mirror
// the product rules but are configuration, not invariants.
type SubmissionConfig struct {
	AttemptLimit   int
	CreateRetries  uint
	LatestCacheTTL time.Duration
}

// SubmissionService creates and reads answer submissions and orchestrates the
// OCR and evaluation pipeline for new ones.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	GetLatest(ctx context.Context, userID, questionID uint) (dto.SubmissionResponse, error)
	GetByAttempt(ctx context.Context, userID, questionID uint, attempt int) (dto.SubmissionResponse, error)
	ListAttempts(ctx context.Context, userID, questionID uint) ([]dto.SubmissionResponse, error)
	ListEvaluations(ctx context.Context, filter dto.EvaluationListFilter) ([]dto.EvaluationResponse, error)
	Reevaluate(ctx context.Context, submissionID uint) (dto.SubmissionResponse, error)
	OverrideEvaluation(ctx context.Context, submissionID uint, patch dto.EvaluationOverrideRequest) (dto.EvaluationResponse, error)
	BulkOverrideEvaluation(ctx context.Context, filter dto.EvaluationListFilter, patch dto.EvaluationOverrideRequest) (int, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	reviews     repository.ReviewRequestRepository
	ocr         OCRService
	evaluations EvaluationService
	validator   *validator.Validate
	cache       *redis.Client
	logger      zerolog.Logger
	config      SubmissionConfig
	now         func() time.Time
}

// NewSubmissionService constructs the submission manager.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	questions repository.QuestionRepository,
	reviews repository.ReviewRequestRepository,
	ocrService OCRService,
	evaluations EvaluationService,
	validate *validator.Validate,
	cache *redis.Client,
	logger zerolog.Logger,
	cfg SubmissionConfig,
) SubmissionService {
	if cfg.AttemptLimit <= 0 {
		cfg.AttemptLimit = 5
	}
	if cfg.CreateRetries == 0 {
		cfg.CreateRetries = 3
	}
	if cfg.LatestCacheTTL == 0 {
		cfg.LatestCacheTTL = 5 * time.Minute
	}

	return &submissionService{
		submissions: submissions,
		questions:   questions,
		reviews:     reviews,
		ocr:         ocrService,
		evaluations: evaluations,
		validator:   validate,
		cache:       cache,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		config:      cfg,
		now:         time.Now,
	}
}

// Submit creates a new bounded-attempt submission and runs the extraction and
// evaluation pipeline for it. Pipeline failures never fail the submit itself;
// they are visible as failed statuses on the record.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	question, err := s.questions.GetByID(ctx, payload.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrQuestionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.createWithAttemptNumber(ctx, payload)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.invalidateLatest(ctx, payload.UserID, payload.QuestionID)

	s.runPipeline(ctx, question, submission.ID)

	created, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(created), nil
}

// createWithAttemptNumber assigns the next attempt number under the storage
// uniqueness constraint. The count is re-read on every retry; the constraint,
// not the count, is the authority under concurrent submits.
func (s *submissionService) createWithAttemptNumber(ctx context.Context, payload dto.SubmissionCreateRequest) (models.Submission, error) {
	var submission models.Submission

	err := retry.Do(
		func() error {
			count, err := s.submissions.CountAttempts(ctx, payload.UserID, payload.QuestionID)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if count >= int64(s.config.AttemptLimit) {
				return retry.Unrecoverable(ErrSubmissionLimitExceeded)
			}

			images := make([]models.AnswerImage, 0, len(payload.Images))
			for position, url := range payload.Images {
				images = append(images, models.AnswerImage{
					Position:         position,
					ImageURL:         url,
					ProcessingStatus: models.OCRStatusPending,
				})
			}

			submission = models.Submission{
				UserID:        payload.UserID,
				QuestionID:    payload.QuestionID,
				AttemptNumber: int(count) + 1,
				Images:        images,
				OCRStatus:     models.OCRStatusPending,
				ReviewStatus:  models.ReviewStatusNone,
				SubmittedAt:   s.now(),
			}

			if err := s.submissions.Create(ctx, &submission); err != nil {
				if repository.IsDuplicateKey(err) {
					// A concurrent submit raced us to this number; recount.
					return err
				}
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(s.config.CreateRetries),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.Delay(10*time.Millisecond),
	)
	if err != nil {
		if errors.Is(err, ErrSubmissionLimitExceeded) {
			return models.Submission{}, ErrSubmissionLimitExceeded
		}
		if repository.IsDuplicateKey(err) {
			s.logger.Error().Err(err).
				Uint("user_id", payload.UserID).
				Uint("question_id", payload.QuestionID).
				Msg("attempt number retry budget exhausted")
			return models.Submission{}, ErrSubmissionCreationFailed
		}
		return models.Submission{}, err
	}

	return submission, nil
}

// runPipeline performs OCR and, for auto-mode questions, AI evaluation. For
// manual-mode questions it opens a pending review request instead.
func (s *submissionService) runPipeline(ctx context.Context, question models.Question, submissionID uint) {
	if _, err := s.ocr.ProcessAllImages(ctx, submissionID); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("ocr batch did not complete")
	}

	if question.RequiresManualReview() {
		s.openReviewRequest(ctx, question, submissionID)
		return
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("could not reload submission for evaluation")
		return
	}

	outcome := s.evaluations.Evaluate(ctx, question, submission.ExtractedTexts())
	evaluation := models.Evaluation{
		SubmissionID:    submissionID,
		Score:           outcome.Score,
		MaxScore:        outcome.MaxScore,
		Feedback:        outcome.Feedback,
		Breakdown:       datatypes.JSONMap(outcome.Breakdown),
		Provider:        outcome.Provider,
		FeedbackPending: true,
	}
	if err := s.submissions.SaveEvaluation(ctx, &evaluation); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to store evaluation")
	}
}

func (s *submissionService) openReviewRequest(ctx context.Context, question models.Question, submissionID uint) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("could not reload submission for review request")
		return
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
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to open review request")
		return
	}

	submission.ReviewStatus = models.ReviewStatusRequested
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to mark submission as review requested")
	}
}

func (s *submissionService) latestCacheKey(userID, questionID uint) string {
	return fmt.Sprintf("submission:latest:%d:%d", userID, questionID)
}

func (s *submissionService) invalidateLatest(ctx context.Context, userID, questionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.latestCacheKey(userID, questionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate latest submission cache")
	}
}

// GetLatest returns the highest-numbered attempt, served from cache when warm.
func (s *submissionService) GetLatest(ctx context.Context, userID, questionID uint) (dto.SubmissionResponse, error) {
	cacheKey := s.latestCacheKey(userID, questionID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SubmissionResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read latest submission cache")
		}
	}

	submission, err := s.submissions.GetLatest(ctx, userID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	response := dto.NewSubmissionResponse(submission)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.config.LatestCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store latest submission cache")
			}
		}
	}

	return response, nil
}

// GetByAttempt fetches one specific attempt.
func (s *submissionService) GetByAttempt(ctx context.Context, userID, questionID uint, attempt int) (dto.SubmissionResponse, error) {
	if attempt <= 0 {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	submission, err := s.submissions.GetByAttempt(ctx, userID, questionID, attempt)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission), nil
}

// ListAttempts returns every attempt for the user/question pair in order.
func (s *submissionService) ListAttempts(ctx context.Context, userID, questionID uint) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListAttempts(ctx, userID, questionID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

// ListEvaluations is a read-only projection over stored evaluations.
func (s *submissionService) ListEvaluations(ctx context.Context, filter dto.EvaluationListFilter) ([]dto.EvaluationResponse, error) {
	evaluations, err := s.submissions.ListEvaluations(ctx, repository.EvaluationFilter{
		UserID:     filter.UserID,
		QuestionID: filter.QuestionID,
		Provider:   filter.Provider,
		MinScore:   filter.MinScore,
		MaxScore:   filter.MaxScore,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewEvaluationResponseSlice(evaluations), nil
}

// Reevaluate reruns the scoring engine against the already-extracted text.
// OCR is not repeated, and a prior expert review survives the rewrite.
func (s *submissionService) Reevaluate(ctx context.Context, submissionID uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	question, err := s.questions.GetByID(ctx, submission.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrQuestionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	outcome := s.evaluations.Evaluate(ctx, question, submission.ExtractedTexts())

	evaluation := submission.Evaluation
	if evaluation == nil {
		evaluation = &models.Evaluation{SubmissionID: submission.ID, FeedbackPending: true}
	}
	evaluation.Score = outcome.Score
	evaluation.MaxScore = outcome.MaxScore
	evaluation.Feedback = outcome.Feedback
	evaluation.Breakdown = datatypes.JSONMap(outcome.Breakdown)
	evaluation.Provider = outcome.Provider

	if err := s.submissions.SaveEvaluation(ctx, evaluation); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.invalidateLatest(ctx, submission.UserID, submission.QuestionID)

	refreshed, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(refreshed), nil
}

// OverrideEvaluation applies an administrative patch to one evaluation,
// bypassing the scoring pipeline. Feedback state is never touched.
func (s *submissionService) OverrideEvaluation(ctx context.Context, submissionID uint, patch dto.EvaluationOverrideRequest) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(patch); err != nil {
		return dto.EvaluationResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrSubmissionNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	evaluation := submission.Evaluation
	if evaluation == nil {
		question, err := s.questions.GetByID(ctx, submission.QuestionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, err
		}
		evaluation = &models.Evaluation{
			SubmissionID:    submission.ID,
			MaxScore:        question.MaxMarks,
			FeedbackPending: true,
		}
	}

	applyOverride(evaluation, patch)

	if err := s.submissions.SaveEvaluation(ctx, evaluation); err != nil {
		return dto.EvaluationResponse{}, err
	}

	s.invalidateLatest(ctx, submission.UserID, submission.QuestionID)

	return dto.NewEvaluationResponse(*evaluation), nil
}

// BulkOverrideEvaluation patches every evaluation matching the filter and
// returns how many records changed.
func (s *submissionService) BulkOverrideEvaluation(ctx context.Context, filter dto.EvaluationListFilter, patch dto.EvaluationOverrideRequest) (int, error) {
	if err := s.validator.Struct(patch); err != nil {
		return 0, err
	}

	evaluations, err := s.submissions.ListEvaluations(ctx, repository.EvaluationFilter{
		UserID:     filter.UserID,
		QuestionID: filter.QuestionID,
		Provider:   filter.Provider,
		MinScore:   filter.MinScore,
		MaxScore:   filter.MaxScore,
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range evaluations {
		applyOverride(&evaluations[i], patch)
		if err := s.submissions.SaveEvaluation(ctx, &evaluations[i]); err != nil {
			s.logger.Error().Err(err).Uint("evaluation_id", evaluations[i].ID).Msg("bulk override write failed")
			continue
		}
		updated++
	}

	return updated, nil
}

func applyOverride(evaluation *models.Evaluation, patch dto.EvaluationOverrideRequest) {
	evaluation.Provider = "admin_override"
	if patch.Score != nil {
		evaluation.Score = *patch.Score
	}
	if patch.Feedback != nil {
		evaluation.Feedback = *patch.Feedback
	}
	if patch.Breakdown != nil {
		evaluation.Breakdown = datatypes.JSONMap(patch.Breakdown)
	}
}
