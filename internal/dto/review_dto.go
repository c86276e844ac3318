package dto

import (
	"time"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// ReviewSubmissionRequest is the expert's judgment for an accepted review.
type ReviewSubmissionRequest struct {
	Score        float64  `json:"score" validate:"gte=0,lte=100"`
	Remarks      string   `json:"remarks" validate:"required"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
}

// StudentFeedbackRequest captures a learner's one-shot feedback on their
// evaluation.
type StudentFeedbackRequest struct {
	Message string `json:"message" validate:"required"`
}

// ReviewQueueFilter describes query filters for the evaluator queue.
type ReviewQueueFilter struct {
	Status      *string `query:"status" validate:"omitempty,oneof=pending assigned accepted in_progress completed"`
	ClientID    *string `query:"client_id"`
	EvaluatorID *uint   `query:"evaluator_id"`
}

// ReviewRequestResponse serializes a review request for API clients.
type ReviewRequestResponse struct {
	ID                  uint                  `json:"id"`
	UserID              uint                  `json:"user_id"`
	QuestionID          uint                  `json:"question_id"`
	AnswerID            uint                  `json:"answer_id"`
	ClientID            string                `json:"client_id"`
	RequestStatus       string                `json:"request_status"`
	AssignedEvaluatorID *uint                 `json:"assigned_evaluator_id"`
	RequestedAt         time.Time             `json:"requested_at"`
	AssignedAt          *time.Time            `json:"assigned_at,omitempty"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
	ReviewData          *ExpertReviewResponse `json:"review_data,omitempty"`
}

// NewReviewRequestResponse converts a ReviewRequest model into a DTO.
func NewReviewRequestResponse(model models.ReviewRequest) ReviewRequestResponse {
	response := ReviewRequestResponse{
		ID:                  model.ID,
		UserID:              model.UserID,
		QuestionID:          model.QuestionID,
		AnswerID:            model.AnswerID,
		ClientID:            model.ClientID,
		RequestStatus:       model.RequestStatus,
		AssignedEvaluatorID: model.AssignedEvaluatorID,
		RequestedAt:         model.RequestedAt,
		AssignedAt:          model.AssignedAt,
		CompletedAt:         model.CompletedAt,
	}

	if model.ReviewData != nil {
		data := NewExpertReviewResponse(model.ReviewData.Data())
		response.ReviewData = &data
	}

	return response
}

// NewReviewRequestResponseSlice converts review requests preserving order.
func NewReviewRequestResponseSlice(requests []models.ReviewRequest) []ReviewRequestResponse {
	responses := make([]ReviewRequestResponse, 0, len(requests))
	for _, request := range requests {
		responses = append(responses, NewReviewRequestResponse(request))
	}
	return responses
}
