package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Question{},
		&models.Submission{},
		&models.AnswerImage{},
		&models.Evaluation{},
		&models.ReviewRequest{},
		&models.Evaluator{},
	))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func newSubmission(userID, questionID uint, attempt int, urls ...string) *models.Submission {
	images := make([]models.AnswerImage, 0, len(urls))
	for i, url := range urls {
		images = append(images, models.AnswerImage{
			Position:         i,
			ImageURL:         url,
			ProcessingStatus: models.OCRStatusPending,
		})
	}
	return &models.Submission{
		UserID:        userID,
		QuestionID:    questionID,
		AttemptNumber: attempt,
		Images:        images,
		OCRStatus:     models.OCRStatusPending,
		ReviewStatus:  models.ReviewStatusNone,
		SubmittedAt:   time.Now(),
	}
}

func TestCreateEnforcesAttemptUniqueness(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSubmission(1, 1, 1, "https://img/a.jpg")))

	err := repo.Create(ctx, newSubmission(1, 1, 1, "https://img/b.jpg"))
	require.Error(t, err)
	require.True(t, IsDuplicateKey(err))

	// Different attempt number, different question and different user all pass.
	require.NoError(t, repo.Create(ctx, newSubmission(1, 1, 2, "https://img/c.jpg")))
	require.NoError(t, repo.Create(ctx, newSubmission(1, 2, 1, "https://img/d.jpg")))
	require.NoError(t, repo.Create(ctx, newSubmission(2, 1, 1, "https://img/e.jpg")))
}

func TestGetByIDPreloadsImagesInOrder(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	submission := newSubmission(1, 1, 1, "https://img/p0.jpg", "https://img/p1.jpg", "https://img/p2.jpg")
	require.NoError(t, repo.Create(ctx, submission))

	stored, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, stored.Images, 3)
	for i, image := range stored.Images {
		require.Equal(t, i, image.Position)
	}
}

func TestCountAttemptsAndLatest(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		require.NoError(t, repo.Create(ctx, newSubmission(1, 1, attempt, "https://img/a.jpg")))
	}
	require.NoError(t, repo.Create(ctx, newSubmission(1, 2, 1, "https://img/z.jpg")))

	count, err := repo.CountAttempts(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	latest, err := repo.GetLatest(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 3, latest.AttemptNumber)

	attempts, err := repo.ListAttempts(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	require.Equal(t, 1, attempts[0].AttemptNumber)
	require.Equal(t, 3, attempts[2].AttemptNumber)

	_, err = repo.GetLatest(ctx, 9, 9)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListPendingOCR(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	pending := newSubmission(1, 1, 1, "https://img/a.jpg")
	require.NoError(t, repo.Create(ctx, pending))

	done := newSubmission(1, 1, 2, "https://img/b.jpg")
	done.OCRStatus = models.OCRStatusCompleted
	done.Images[0].ProcessingStatus = models.OCRStatusCompleted
	require.NoError(t, repo.Create(ctx, done))

	failed := newSubmission(1, 1, 3, "https://img/c.jpg")
	failed.OCRStatus = models.OCRStatusFailed
	require.NoError(t, repo.Create(ctx, failed))

	list, err := repo.ListPendingOCR(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, pending.ID, list[0].ID)
	require.Equal(t, failed.ID, list[1].ID)
}

func TestUpdateImageAndAggregate(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	submission := newSubmission(1, 1, 1, "https://img/a.jpg")
	require.NoError(t, repo.Create(ctx, submission))

	image := submission.Images[0]
	image.ProcessingStatus = models.OCRStatusCompleted
	image.ExtractedText = "hello"
	image.Confidence = 0.9
	require.NoError(t, repo.UpdateImage(ctx, &image))

	submission.OCRStatus = models.OCRStatusCompleted
	require.NoError(t, repo.Update(ctx, submission))

	stored, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.OCRStatusCompleted, stored.OCRStatus)
	require.Equal(t, "hello", stored.Images[0].ExtractedText)
}

func TestSaveAndListEvaluations(t *testing.T) {
	repo := NewSubmissionRepository(newTestDB(t))
	ctx := context.Background()

	first := newSubmission(1, 1, 1, "https://img/a.jpg")
	require.NoError(t, repo.Create(ctx, first))
	second := newSubmission(2, 1, 1, "https://img/b.jpg")
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.SaveEvaluation(ctx, &models.Evaluation{
		SubmissionID: first.ID, Score: 8, MaxScore: 10, Feedback: "good", Provider: "primary",
	}))
	require.NoError(t, repo.SaveEvaluation(ctx, &models.Evaluation{
		SubmissionID: second.ID, Score: 4, MaxScore: 10, Feedback: "weak", Provider: "mock",
	}))

	all, err := repo.ListEvaluations(ctx, EvaluationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	userID := uint(1)
	mine, err := repo.ListEvaluations(ctx, EvaluationFilter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, first.ID, mine[0].SubmissionID)

	provider := "mock"
	minScore := 3.0
	maxScore := 5.0
	filtered, err := repo.ListEvaluations(ctx, EvaluationFilter{Provider: &provider, MinScore: &minScore, MaxScore: &maxScore})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, second.ID, filtered[0].SubmissionID)

	// Save with an existing ID rewrites in place.
	updated := mine[0]
	updated.Score = 9
	require.NoError(t, repo.SaveEvaluation(ctx, &updated))
	refetched, err := repo.ListEvaluations(ctx, EvaluationFilter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, refetched, 1)
	require.Equal(t, 9.0, refetched[0].Score)
}
