package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// EvaluatorRepository resolves human evaluators and their tenant scope.
type EvaluatorRepository interface {
	GetByID(ctx context.Context, id uint) (models.Evaluator, error)
}

// NewEvaluatorRepository instantiates the evaluator repository.
func NewEvaluatorRepository(db *gorm.DB) EvaluatorRepository {
	return &evaluatorRepository{db: db}
}

type evaluatorRepository struct {
	db *gorm.DB
}

func (r *evaluatorRepository) GetByID(ctx context.Context, id uint) (models.Evaluator, error) {
	var evaluator models.Evaluator
	if err := r.db.WithContext(ctx).First(&evaluator, id).Error; err != nil {
		return models.Evaluator{}, err
	}
	return evaluator, nil
}
