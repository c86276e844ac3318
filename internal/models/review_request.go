package models

import (
	"time"

	"gorm.io/datatypes"
)

// Review request lifecycle states. A request normally starts pending and moves
// through accepted to completed; an external scheduler may create it already
// assigned.
const (
	ReviewRequestPending    = "pending"
	ReviewRequestAssigned   = "assigned"
	ReviewRequestAccepted   = "accepted"
	ReviewRequestInProgress = "in_progress"
	ReviewRequestCompleted  = "completed"
)

// ReviewData is the expert judgment captured when a review completes. The same
// shape is copied onto the submission's evaluation.
type ReviewData struct {
	Score        float64   `json:"score"`
	Remarks      string    `json:"remarks"`
	Strengths    []string  `json:"strengths"`
	Improvements []string  `json:"improvements"`
	Suggestions  []string  `json:"suggestions"`
	ReviewedAt   time.Time `json:"reviewed_at"`
}

// ReviewRequest queues a submission for human expert review. Requests are
// never deleted; completed ones are kept for audit.
type ReviewRequest struct {
	ID                  uint                            `gorm:"primaryKey" json:"id"`
	UserID              uint                            `gorm:"not null;index" json:"user_id"`
	QuestionID          uint                            `gorm:"not null" json:"question_id"`
	AnswerID            uint                            `gorm:"not null;index" json:"answer_id"`
	ClientID            string                          `gorm:"size:64;not null;index" json:"client_id"`
	RequestStatus       string                          `gorm:"size:16;not null;default:pending" json:"request_status"`
	AssignedEvaluatorID *uint                           `json:"assigned_evaluator_id"`
	RequestedAt         time.Time                       `gorm:"not null" json:"requested_at"`
	AssignedAt          *time.Time                      `json:"assigned_at"`
	CompletedAt         *time.Time                      `json:"completed_at"`
	ReviewData          *datatypes.JSONType[ReviewData] `json:"review_data"`
	CreatedAt           time.Time                       `json:"created_at"`
	UpdatedAt           time.Time                       `json:"updated_at"`
	Answer              Submission                      `gorm:"foreignKey:AnswerID;constraint:OnUpdate:CASCADE" json:"answer"`
}

// CanBeAccepted reports whether an evaluator may accept the request.
func (r ReviewRequest) CanBeAccepted() bool {
	return r.RequestStatus == ReviewRequestPending || r.RequestStatus == ReviewRequestAssigned
}

// CanReceiveReview reports whether a review may be submitted for the request.
func (r ReviewRequest) CanReceiveReview() bool {
	return r.RequestStatus == ReviewRequestAccepted || r.RequestStatus == ReviewRequestInProgress
}

// IsOpen reports whether the request still awaits a completed review.
func (r ReviewRequest) IsOpen() bool {
	return r.RequestStatus != ReviewRequestCompleted
}
