package models

import (
	"time"

	"gorm.io/datatypes"
)

// Evaluation stores the scoring outcome for a submission. It is created by the
// AI pipeline for auto-mode questions, or as a shell holding the expert review
// for manual-mode questions.
type Evaluation struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SubmissionID uint              `gorm:"not null;uniqueIndex" json:"submission_id"`
	Score        float64           `gorm:"not null" json:"score"`
	MaxScore     float64           `gorm:"not null" json:"max_score"`
	Feedback     string            `gorm:"type:text" json:"feedback"`
	Breakdown    datatypes.JSONMap `json:"breakdown"`
	Provider     string            `gorm:"size:32" json:"provider"`

	// ExpertReview is a copy of the completed review request's data; the
	// review request remains the system of record.
	ExpertReview *datatypes.JSONType[ReviewData] `json:"expert_review"`

	// FeedbackPending is true until the student submits feedback on this
	// evaluation. Submitting flips it false, permanently.
	FeedbackPending     bool       `gorm:"not null;default:true" json:"feedback_pending"`
	UserFeedbackMessage string     `gorm:"type:text" json:"user_feedback_message"`
	UserFeedbackAt      *time.Time `json:"user_feedback_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasExpertReview reports whether an expert judgment has been merged in.
func (e Evaluation) HasExpertReview() bool {
	return e.ExpertReview != nil
}
