package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// ReviewRequestFilter narrows review queue listings.
type ReviewRequestFilter struct {
	Status      *string
	ClientID    *string
	EvaluatorID *uint
	UserID      *uint
	AnswerID    *uint
}

// ReviewRequestRepository exposes persistence helpers for review requests.
type ReviewRequestRepository interface {
	Create(ctx context.Context, request *models.ReviewRequest) error
	Update(ctx context.Context, request *models.ReviewRequest) error
	GetByID(ctx context.Context, id uint) (models.ReviewRequest, error)
	List(ctx context.Context, filter ReviewRequestFilter) ([]models.ReviewRequest, error)
	HasOpenRequest(ctx context.Context, answerID uint) (bool, error)
}

// NewReviewRequestRepository constructs a review request repository.
func NewReviewRequestRepository(db *gorm.DB) ReviewRequestRepository {
	return &reviewRequestRepository{db: db}
}

type reviewRequestRepository struct {
	db *gorm.DB
}

func (r *reviewRequestRepository) Create(ctx context.Context, request *models.ReviewRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *reviewRequestRepository) Update(ctx context.Context, request *models.ReviewRequest) error {
	return r.db.WithContext(ctx).Omit("Answer").Save(request).Error
}

func (r *reviewRequestRepository) GetByID(ctx context.Context, id uint) (models.ReviewRequest, error) {
	var request models.ReviewRequest
	if err := r.db.WithContext(ctx).First(&request, id).Error; err != nil {
		return models.ReviewRequest{}, err
	}
	return request, nil
}

func (r *reviewRequestRepository) List(ctx context.Context, filter ReviewRequestFilter) ([]models.ReviewRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.ReviewRequest{})

	if filter.Status != nil {
		query = query.Where("request_status = ?", *filter.Status)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.EvaluatorID != nil {
		query = query.Where("assigned_evaluator_id = ?", *filter.EvaluatorID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.AnswerID != nil {
		query = query.Where("answer_id = ?", *filter.AnswerID)
	}

	var requests []models.ReviewRequest
	if err := query.Order("requested_at ASC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *reviewRequestRepository) HasOpenRequest(ctx context.Context, answerID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReviewRequest{}).
		Where("answer_id = ?", answerID).
		Where("request_status <> ?", models.ReviewRequestCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
