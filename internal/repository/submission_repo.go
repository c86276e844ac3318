package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// EvaluationFilter narrows evaluation listings and bulk override targets.
type EvaluationFilter struct {
	UserID     *uint
	QuestionID *uint
	Provider   *string
	MinScore   *float64
	MaxScore   *float64
}

// SubmissionRepository defines persistence operations for submissions, their
// answer images and evaluations.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAttempt(ctx context.Context, userID, questionID uint, attempt int) (models.Submission, error)
	GetLatest(ctx context.Context, userID, questionID uint) (models.Submission, error)
	ListAttempts(ctx context.Context, userID, questionID uint) ([]models.Submission, error)
	CountAttempts(ctx context.Context, userID, questionID uint) (int64, error)
	ListPendingOCR(ctx context.Context) ([]models.Submission, error)
	UpdateImage(ctx context.Context, image *models.AnswerImage) error
	SaveEvaluation(ctx context.Context, evaluation *models.Evaluation) error
	ListEvaluations(ctx context.Context, filter EvaluationFilter) ([]models.Evaluation, error)
}

// NewSubmissionRepository instantiates the gorm-backed repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Evaluation")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Images", "Evaluation", "Question").Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByAttempt(ctx context.Context, userID, questionID uint, attempt int) (models.Submission, error) {
	var submission models.Submission
	err := r.baseQuery(ctx).
		Where("user_id = ?", userID).
		Where("question_id = ?", questionID).
		Where("attempt_number = ?", attempt).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetLatest(ctx context.Context, userID, questionID uint) (models.Submission, error) {
	var submission models.Submission
	err := r.baseQuery(ctx).
		Where("user_id = ?", userID).
		Where("question_id = ?", questionID).
		Order("attempt_number DESC").
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListAttempts(ctx context.Context, userID, questionID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.baseQuery(ctx).
		Where("user_id = ?", userID).
		Where("question_id = ?", questionID).
		Order("attempt_number ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) CountAttempts(ctx context.Context, userID, questionID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ?", userID).
		Where("question_id = ?", questionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *submissionRepository) ListPendingOCR(ctx context.Context) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.baseQuery(ctx).
		Where("ocr_status <> ?", models.OCRStatusCompleted).
		Order("id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) UpdateImage(ctx context.Context, image *models.AnswerImage) error {
	return r.db.WithContext(ctx).Save(image).Error
}

func (r *submissionRepository) SaveEvaluation(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Save(evaluation).Error
}

func (r *submissionRepository) ListEvaluations(ctx context.Context, filter EvaluationFilter) ([]models.Evaluation, error) {
	query := r.db.WithContext(ctx).Model(&models.Evaluation{}).
		Joins("JOIN submissions ON submissions.id = evaluations.submission_id")

	if filter.UserID != nil {
		query = query.Where("submissions.user_id = ?", *filter.UserID)
	}
	if filter.QuestionID != nil {
		query = query.Where("submissions.question_id = ?", *filter.QuestionID)
	}
	if filter.Provider != nil {
		query = query.Where("evaluations.provider = ?", *filter.Provider)
	}
	if filter.MinScore != nil {
		query = query.Where("evaluations.score >= ?", *filter.MinScore)
	}
	if filter.MaxScore != nil {
		query = query.Where("evaluations.score <= ?", *filter.MaxScore)
	}

	var evaluations []models.Evaluation
	if err := query.Order("evaluations.created_at DESC").Find(&evaluations).Error; err != nil {
		return nil, err
	}
	return evaluations, nil
}
