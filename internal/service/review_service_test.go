package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/models"
)

type reviewFixture struct {
	repo       *fakeSubmissionRepo
	reviews    *fakeReviewRepo
	evaluators *fakeEvaluatorRepo
	service    ReviewService
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()

	repo := newFakeSubmissionRepo()
	reviews := newFakeReviewRepo()
	evaluators := newFakeEvaluatorRepo(
		models.Evaluator{ID: 10, Name: "Dr. Rao", Email: "rao@example.com", ClientID: "client-a", Active: true},
		models.Evaluator{ID: 20, Name: "Prof. Chen", Email: "chen@example.com", ClientID: "client-b", Active: true},
	)

	svc := NewReviewService(
		reviews,
		repo,
		newFakeQuestionRepo(autoQuestion()),
		evaluators,
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
	)

	return &reviewFixture{repo: repo, reviews: reviews, evaluators: evaluators, service: svc}
}

func (fx *reviewFixture) seedAnswer(t *testing.T, userID uint, evaluation *models.Evaluation) uint {
	t.Helper()

	submission := &models.Submission{
		UserID:        userID,
		QuestionID:    1,
		AttemptNumber: len(fx.repo.submissions) + 1,
		Images: []models.AnswerImage{{
			Position:         0,
			ImageURL:         "https://cdn.example.com/a.jpg",
			ProcessingStatus: models.OCRStatusCompleted,
			ExtractedText:    "answer text",
		}},
		OCRStatus:    models.OCRStatusCompleted,
		ReviewStatus: models.ReviewStatusNone,
		SubmittedAt:  time.Now(),
	}
	require.NoError(t, fx.repo.Create(context.Background(), submission))
	if evaluation != nil {
		evaluation.SubmissionID = submission.ID
		require.NoError(t, fx.repo.SaveEvaluation(context.Background(), evaluation))
	}
	return submission.ID
}

func reviewPayload() dto.ReviewSubmissionRequest {
	return dto.ReviewSubmissionRequest{
		Score:        8,
		Remarks:      "strong grasp of the material",
		Strengths:    []string{"clear structure"},
		Improvements: []string{"cite more sources"},
	}
}

func TestRequestReview(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)

	response, err := fx.service.RequestReview(context.Background(), answerID, 42)

	require.NoError(t, err)
	require.Equal(t, models.ReviewRequestPending, response.RequestStatus)
	require.Equal(t, "client-a", response.ClientID)

	submission, err := fx.repo.GetByID(context.Background(), answerID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusRequested, submission.ReviewStatus)
}

func TestRequestReviewOwnershipEnforced(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)

	_, err := fx.service.RequestReview(context.Background(), answerID, 7)
	require.ErrorIs(t, err, ErrReviewAccessDenied)
}

func TestRequestReviewRejectsDuplicateOpenRequest(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)

	_, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)

	_, err = fx.service.RequestReview(context.Background(), answerID, 42)
	require.ErrorIs(t, err, ErrInvalidReviewState)
}

func TestAcceptAssignsEvaluator(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)

	accepted, err := fx.service.Accept(context.Background(), request.ID, 10)

	require.NoError(t, err)
	require.Equal(t, models.ReviewRequestAccepted, accepted.RequestStatus)
	require.NotNil(t, accepted.AssignedEvaluatorID)
	require.Equal(t, uint(10), *accepted.AssignedEvaluatorID)
	require.NotNil(t, accepted.AssignedAt)

	submission, err := fx.repo.GetByID(context.Background(), answerID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusAccepted, submission.ReviewStatus)
}

func TestAcceptTenantMismatch(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)

	// Evaluator 20 belongs to client-b, the request to client-a.
	_, err = fx.service.Accept(context.Background(), request.ID, 20)
	require.ErrorIs(t, err, ErrReviewAccessDenied)
}

func TestAcceptUnknownEvaluator(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)

	_, err = fx.service.Accept(context.Background(), request.ID, 999)
	require.ErrorIs(t, err, ErrEvaluatorNotFound)
}

func TestAcceptCompletedRequestRejected(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)

	_, err = fx.service.Accept(context.Background(), request.ID, 10)
	require.NoError(t, err)
	_, err = fx.service.SubmitReview(context.Background(), request.ID, reviewPayload())
	require.NoError(t, err)

	_, err = fx.service.Accept(context.Background(), request.ID, 10)
	require.ErrorIs(t, err, ErrInvalidReviewState)
}

func TestSubmitReviewRequiresAcceptedState(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)

	// Still pending, nobody accepted it yet.
	_, err = fx.service.SubmitReview(context.Background(), request.ID, reviewPayload())
	require.ErrorIs(t, err, ErrInvalidReviewState)
}

func TestSubmitReviewRejectsBlankRemarks(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)
	_, err = fx.service.Accept(context.Background(), request.ID, 10)
	require.NoError(t, err)

	payload := reviewPayload()
	payload.Remarks = "   "
	_, err = fx.service.SubmitReview(context.Background(), request.ID, payload)
	require.ErrorIs(t, err, ErrEmptyRemarks)
}

func TestSubmitReviewMergesIntoEvaluation(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, &models.Evaluation{
		Score:           6,
		MaxScore:        10,
		Feedback:        "automated feedback",
		Provider:        "primary",
		FeedbackPending: true,
	})
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)
	_, err = fx.service.Accept(context.Background(), request.ID, 10)
	require.NoError(t, err)

	completed, err := fx.service.SubmitReview(context.Background(), request.ID, reviewPayload())

	require.NoError(t, err)
	require.Equal(t, models.ReviewRequestCompleted, completed.RequestStatus)
	require.NotNil(t, completed.CompletedAt)
	require.NotNil(t, completed.ReviewData)
	require.Equal(t, 8.0, completed.ReviewData.Score)

	submission, err := fx.repo.GetByID(context.Background(), answerID)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusCompleted, submission.ReviewStatus)
	require.NotNil(t, submission.Evaluation.ExpertReview)
	merged := submission.Evaluation.ExpertReview.Data()
	require.Equal(t, 8.0, merged.Score)
	require.Equal(t, "strong grasp of the material", merged.Remarks)
	// The automated score stays; the expert verdict rides alongside it.
	require.Equal(t, 6.0, submission.Evaluation.Score)
}

func TestSubmitReviewCreatesShellEvaluationForManualAnswers(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, nil)
	request, err := fx.service.RequestReview(context.Background(), answerID, 42)
	require.NoError(t, err)
	_, err = fx.service.Accept(context.Background(), request.ID, 10)
	require.NoError(t, err)

	_, err = fx.service.SubmitReview(context.Background(), request.ID, reviewPayload())
	require.NoError(t, err)

	submission, err := fx.repo.GetByID(context.Background(), answerID)
	require.NoError(t, err)
	require.NotNil(t, submission.Evaluation)
	require.Equal(t, "expert", submission.Evaluation.Provider)
	require.Equal(t, 8.0, submission.Evaluation.Score)
	require.Equal(t, 10.0, submission.Evaluation.MaxScore)
	require.True(t, submission.Evaluation.FeedbackPending)
}

func TestSubmitStudentFeedbackOneShot(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, &models.Evaluation{
		Score:           6,
		MaxScore:        10,
		Feedback:        "solid work",
		Provider:        "primary",
		FeedbackPending: true,
	})

	err := fx.service.SubmitStudentFeedback(context.Background(), answerID, 42, "thanks, this helps")
	require.NoError(t, err)

	submission, err := fx.repo.GetByID(context.Background(), answerID)
	require.NoError(t, err)
	require.False(t, submission.Evaluation.FeedbackPending)
	require.Equal(t, "thanks, this helps", submission.Evaluation.UserFeedbackMessage)
	require.NotNil(t, submission.Evaluation.UserFeedbackAt)

	err = fx.service.SubmitStudentFeedback(context.Background(), answerID, 42, "one more thing")
	require.ErrorIs(t, err, ErrFeedbackAlreadySubmitted)
}

func TestSubmitStudentFeedbackGuards(t *testing.T) {
	fx := newReviewFixture(t)
	answerID := fx.seedAnswer(t, 42, &models.Evaluation{
		Score:           6,
		MaxScore:        10,
		Feedback:        "solid work",
		Provider:        "primary",
		FeedbackPending: true,
	})
	bareID := fx.seedAnswer(t, 42, nil)

	err := fx.service.SubmitStudentFeedback(context.Background(), answerID, 7, "not mine")
	require.ErrorIs(t, err, ErrReviewAccessDenied)

	err = fx.service.SubmitStudentFeedback(context.Background(), answerID, 42, "   ")
	require.ErrorIs(t, err, ErrEmptyFeedback)

	err = fx.service.SubmitStudentFeedback(context.Background(), bareID, 42, "hello")
	require.ErrorIs(t, err, ErrFeedbackUnavailable)

	err = fx.service.SubmitStudentFeedback(context.Background(), 999, 42, "hello")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestListQueueFilters(t *testing.T) {
	fx := newReviewFixture(t)
	firstID := fx.seedAnswer(t, 42, nil)
	secondID := fx.seedAnswer(t, 43, nil)

	first, err := fx.service.RequestReview(context.Background(), firstID, 42)
	require.NoError(t, err)
	_, err = fx.service.RequestReview(context.Background(), secondID, 43)
	require.NoError(t, err)

	_, err = fx.service.Accept(context.Background(), first.ID, 10)
	require.NoError(t, err)

	pending := models.ReviewRequestPending
	queue, err := fx.service.ListQueue(context.Background(), dto.ReviewQueueFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, uint(43), queue[0].UserID)

	evaluatorID := uint(10)
	mine, err := fx.service.ListQueue(context.Background(), dto.ReviewQueueFilter{EvaluatorID: &evaluatorID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, first.ID, mine[0].ID)
}
