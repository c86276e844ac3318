package models

import "time"

// Question evaluation modes.
const (
	// EvaluationModeAuto means the answer is scored by the AI pipeline.
	EvaluationModeAuto = "auto"
	// EvaluationModeManual means the answer must be reviewed by a human expert.
	EvaluationModeManual = "manual"
)

// Question is a subjective exam question. Question content is owned by the
// content-management service; this API only reads it.
type Question struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Text             string    `gorm:"type:text;not null" json:"text"`
	MaxMarks         float64   `gorm:"not null" json:"max_marks"`
	WordLimit        int       `gorm:"default:0" json:"word_limit"`
	EstimatedTimeMin int       `gorm:"default:0" json:"estimated_time_min"`
	Difficulty       string    `gorm:"size:32" json:"difficulty"`
	LanguageMode     string    `gorm:"size:32" json:"language_mode"`
	EvaluationMode   string    `gorm:"size:16;not null;default:auto" json:"evaluation_mode"`
	EvaluationType   string    `gorm:"size:32" json:"evaluation_type"`
	ClientID         string    `gorm:"size:64;index" json:"client_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RequiresManualReview reports whether answers to this question must go to a
// human evaluator instead of the AI pipeline.
func (q Question) RequiresManualReview() bool {
	return q.EvaluationMode == EvaluationModeManual
}
