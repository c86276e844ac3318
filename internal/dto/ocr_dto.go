package dto

// ImageOCRResult reports the outcome of processing one answer image.
type ImageOCRResult struct {
	Position     int     `json:"position"`
	Status       string  `json:"status"`
	Confidence   float64 `json:"confidence"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// BatchOCRResult aggregates per-image outcomes for one submission. A batch
// always attempts every image; failures are counted, not fatal.
type BatchOCRResult struct {
	SubmissionID          uint             `json:"submission_id"`
	Results               []ImageOCRResult `json:"results"`
	ProcessedSuccessfully int              `json:"processed_successfully"`
	Failed                int              `json:"failed"`
	AggregateStatus       string           `json:"aggregate_status"`
}

// SweepResult summarises a system-wide pending-OCR sweep.
type SweepResult struct {
	SubmissionsProcessed  int `json:"submissions_processed"`
	ImagesProcessed       int `json:"images_processed"`
	ProcessedSuccessfully int `json:"processed_successfully"`
	Failed                int `json:"failed"`
}
