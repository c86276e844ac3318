package dto

import (
	"time"

	"github.com/gradeflow/gradeflow-api/internal/models"
)

// SubmissionCreateRequest carries a learner's answer images for one question.
type SubmissionCreateRequest struct {
	UserID     uint     `json:"user_id" validate:"required,gt=0"`
	QuestionID uint     `json:"question_id" validate:"required,gt=0"`
	Images     []string `json:"images" validate:"required,min=1,max=10,dive,url"`
}

// AnswerImageResponse serializes one answer image with its OCR state.
type AnswerImageResponse struct {
	Position         int            `json:"position"`
	ImageURL         string         `json:"image_url"`
	ExtractedText    string         `json:"extracted_text"`
	Confidence       float64        `json:"confidence"`
	ProcessingStatus string         `json:"processing_status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ExpertReviewResponse serializes the expert judgment merged into an evaluation.
type ExpertReviewResponse struct {
	Score        float64   `json:"score"`
	Remarks      string    `json:"remarks"`
	Strengths    []string  `json:"strengths"`
	Improvements []string  `json:"improvements"`
	Suggestions  []string  `json:"suggestions"`
	ReviewedAt   time.Time `json:"reviewed_at"`
}

// EvaluationResponse serializes a submission's evaluation.
type EvaluationResponse struct {
	ID              uint                  `json:"id"`
	SubmissionID    uint                  `json:"submission_id"`
	Score           float64               `json:"score"`
	MaxScore        float64               `json:"max_score"`
	Feedback        string                `json:"feedback"`
	Breakdown       map[string]any        `json:"breakdown,omitempty"`
	Provider        string                `json:"provider"`
	ExpertReview    *ExpertReviewResponse `json:"expert_review,omitempty"`
	FeedbackPending bool                  `json:"feedback_pending"`
	CreatedAt       time.Time             `json:"created_at"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint                  `json:"id"`
	UserID        uint                  `json:"user_id"`
	QuestionID    uint                  `json:"question_id"`
	AttemptNumber int                   `json:"attempt_number"`
	Images        []AnswerImageResponse `json:"images"`
	OCRStatus     string                `json:"ocr_status"`
	Evaluation    *EvaluationResponse   `json:"evaluation"`
	ReviewStatus  string                `json:"review_status"`
	SubmittedAt   time.Time             `json:"submitted_at"`
}

// EvaluationListFilter describes query filters for listing evaluations.
type EvaluationListFilter struct {
	UserID     *uint    `query:"user_id"`
	QuestionID *uint    `query:"question_id"`
	Provider   *string  `query:"provider"`
	MinScore   *float64 `query:"min_score"`
	MaxScore   *float64 `query:"max_score"`
}

// EvaluationOverrideRequest patches an evaluation directly, bypassing the
// scoring pipeline. Nil fields are left untouched.
type EvaluationOverrideRequest struct {
	Score     *float64       `json:"score" validate:"omitempty,gte=0"`
	Feedback  *string        `json:"feedback" validate:"omitempty,min=3"`
	Breakdown map[string]any `json:"breakdown"`
}

// NewExpertReviewResponse converts stored review data into its DTO.
func NewExpertReviewResponse(data models.ReviewData) ExpertReviewResponse {
	return ExpertReviewResponse{
		Score:        data.Score,
		Remarks:      data.Remarks,
		Strengths:    data.Strengths,
		Improvements: data.Improvements,
		Suggestions:  data.Suggestions,
		ReviewedAt:   data.ReviewedAt,
	}
}

// NewEvaluationResponse converts an Evaluation model into a DTO.
func NewEvaluationResponse(model models.Evaluation) EvaluationResponse {
	response := EvaluationResponse{
		ID:              model.ID,
		SubmissionID:    model.SubmissionID,
		Score:           model.Score,
		MaxScore:        model.MaxScore,
		Feedback:        model.Feedback,
		Breakdown:       model.Breakdown,
		Provider:        model.Provider,
		FeedbackPending: model.FeedbackPending,
		CreatedAt:       model.CreatedAt,
	}

	if model.ExpertReview != nil {
		review := NewExpertReviewResponse(model.ExpertReview.Data())
		response.ExpertReview = &review
	}

	return response
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	images := make([]AnswerImageResponse, 0, len(model.Images))
	for _, image := range model.Images {
		images = append(images, AnswerImageResponse{
			Position:         image.Position,
			ImageURL:         image.ImageURL,
			ExtractedText:    image.ExtractedText,
			Confidence:       image.Confidence,
			ProcessingStatus: image.ProcessingStatus,
			ErrorMessage:     image.ErrorMessage,
			ProcessedAt:      image.ProcessedAt,
			Metadata:         image.Metadata,
		})
	}

	response := SubmissionResponse{
		ID:            model.ID,
		UserID:        model.UserID,
		QuestionID:    model.QuestionID,
		AttemptNumber: model.AttemptNumber,
		Images:        images,
		OCRStatus:     model.OCRStatus,
		ReviewStatus:  model.ReviewStatus,
		SubmittedAt:   model.SubmittedAt,
	}

	if model.Evaluation != nil {
		evaluation := NewEvaluationResponse(*model.Evaluation)
		response.Evaluation = &evaluation
	}

	return response
}

// NewSubmissionResponseSlice converts submissions into DTOs preserving order.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}

// NewEvaluationResponseSlice converts evaluations into DTOs preserving order.
func NewEvaluationResponseSlice(evaluations []models.Evaluation) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		responses = append(responses, NewEvaluationResponse(evaluation))
	}
	return responses
}
