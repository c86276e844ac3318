package models

import (
	"time"

	"gorm.io/datatypes"
)

// Per-image OCR processing states. Transitions are monotonic: an image never
// returns to pending once processing has started.
const (
	OCRStatusPending    = "pending"
	OCRStatusProcessing = "processing"
	OCRStatusCompleted  = "completed"
	OCRStatusFailed     = "failed"
)

// Submission review escalation states mirrored from the review request.
const (
	ReviewStatusNone      = "none"
	ReviewStatusRequested = "review_requested"
	ReviewStatusAccepted  = "review_accepted"
	ReviewStatusCompleted = "review_completed"
)

// Submission is one learner's attempt at answering a question. The composite
// unique index on (user_id, question_id, attempt_number) is the arbiter of
// attempt numbering under concurrent submits.
type Submission struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	UserID        uint          `gorm:"not null;uniqueIndex:idx_user_question_attempt" json:"user_id"`
	QuestionID    uint          `gorm:"not null;uniqueIndex:idx_user_question_attempt" json:"question_id"`
	AttemptNumber int           `gorm:"not null;uniqueIndex:idx_user_question_attempt" json:"attempt_number"`
	Images        []AnswerImage `gorm:"foreignKey:SubmissionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"images"`
	OCRStatus     string        `gorm:"size:16;not null;default:pending" json:"ocr_status"`
	Evaluation    *Evaluation   `gorm:"foreignKey:SubmissionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"evaluation"`
	ReviewStatus  string        `gorm:"size:32;not null;default:none" json:"review_status"`
	SubmittedAt   time.Time     `gorm:"not null" json:"submitted_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Question      Question      `gorm:"constraint:OnUpdate:CASCADE" json:"question"`
}

// ExtractedTexts returns the OCR text of completed images in position order.
func (s Submission) ExtractedTexts() []string {
	texts := make([]string, 0, len(s.Images))
	for _, image := range s.Images {
		if image.ProcessingStatus == OCRStatusCompleted {
			texts = append(texts, image.ExtractedText)
		}
	}
	return texts
}

// IsEvaluated reports whether the submission carries an evaluation result.
func (s Submission) IsEvaluated() bool {
	return s.Evaluation != nil
}

// AnswerImage is one photographed answer page within a submission, together
// with its OCR outcome. Position is the zero-based order within the attempt.
type AnswerImage struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	SubmissionID     uint              `gorm:"not null;index" json:"submission_id"`
	Position         int               `gorm:"not null" json:"position"`
	ImageURL         string            `gorm:"size:512;not null" json:"image_url"`
	ExtractedText    string            `gorm:"type:text" json:"extracted_text"`
	Confidence       float64           `gorm:"default:0" json:"confidence"`
	ProcessingStatus string            `gorm:"size:16;not null;default:pending" json:"processing_status"`
	ErrorMessage     string            `gorm:"type:text" json:"error_message"`
	ProcessedAt      *time.Time        `json:"processed_at"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// RecomputeAggregateStatus derives a submission's OCR status from its images:
// completed only when every image completed, failed when at least one image
// failed and none are still pending or processing, processing once any image
// has started, pending otherwise.
func RecomputeAggregateStatus(images []AnswerImage) string {
	if len(images) == 0 {
		return OCRStatusPending
	}

	completed, failed, started := 0, 0, 0
	for _, image := range images {
		switch image.ProcessingStatus {
		case OCRStatusCompleted:
			completed++
			started++
		case OCRStatusFailed:
			failed++
			started++
		case OCRStatusProcessing:
			started++
		}
	}

	switch {
	case completed == len(images):
		return OCRStatusCompleted
	case failed > 0 && completed+failed == len(images):
		return OCRStatusFailed
	case started > 0:
		return OCRStatusProcessing
	default:
		return OCRStatusPending
	}
}
