package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/dto"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/repository"
	"github.com/gradeflow/gradeflow-api/pkg/ocr"
)

// ErrImageNotFound indicates the submission has no image at the given index.
var ErrImageNotFound = errors.New("answer image not found")

// TextExtractor is the OCR provider dependency.
type TextExtractor interface {
	Extract(ctx context.Context, image ocr.ImageInput, opts ocr.Options) (ocr.Result, error)
}

// OCRConfig tunes the sequential processing delays. The delays are deliberate
// backpressure against the OCR provider, not a performance concern.
type OCRConfig struct {
	ImageDelay time.Duration
	BatchDelay time.Duration
	Language   string
}

// OCRService drives text extraction across the images of submissions,
// tracking per-image status and the submission's aggregate status.
type OCRService interface {
	ProcessImage(ctx context.Context, submissionID uint, imageIndex int) (dto.ImageOCRResult, error)
	ProcessAllImages(ctx context.Context, submissionID uint) (dto.BatchOCRResult, error)
	ProcessPending(ctx context.Context) (dto.SweepResult, error)
}

type ocrService struct {
	submissions repository.SubmissionRepository
	extractor   TextExtractor
	logger      zerolog.Logger
	config      OCRConfig
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewOCRService constructs the OCR coordinator.
func NewOCRService(submissions repository.SubmissionRepository, extractor TextExtractor, logger zerolog.Logger, cfg OCRConfig) OCRService {
	if cfg.ImageDelay == 0 {
		cfg.ImageDelay = time.Second
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = 2 * time.Second
	}

	return &ocrService{
		submissions: submissions,
		extractor:   extractor,
		logger:      logger.With().Str("component", "ocr_service").Logger(),
		config:      cfg,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProcessImage runs OCR for a single image of a submission and persists its
// terminal state plus the recomputed aggregate status.
func (s *ocrService) ProcessImage(ctx context.Context, submissionID uint, imageIndex int) (dto.ImageOCRResult, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ImageOCRResult{}, ErrSubmissionNotFound
		}
		return dto.ImageOCRResult{}, err
	}

	if imageIndex < 0 || imageIndex >= len(submission.Images) {
		return dto.ImageOCRResult{}, ErrImageNotFound
	}

	image := submission.Images[imageIndex]
	image.ProcessingStatus = models.OCRStatusProcessing
	if err := s.submissions.UpdateImage(ctx, &image); err != nil {
		return dto.ImageOCRResult{}, fmt.Errorf("mark image processing: %w", err)
	}

	result, err := s.finishImage(ctx, &submission, &image)
	if err != nil {
		// The image is stuck in processing unless we can flip it to failed.
		s.markImageFailed(ctx, &image, err)
		return dto.ImageOCRResult{}, err
	}

	return result, nil
}

func (s *ocrService) finishImage(ctx context.Context, submission *models.Submission, image *models.AnswerImage) (dto.ImageOCRResult, error) {
	extraction, err := s.extractor.Extract(ctx, ocr.ImageInput{URL: image.ImageURL}, ocr.Options{Language: s.config.Language})
	if err != nil {
		// Programming error from the extractor; treat it like a provider
		// failure so the image still reaches a terminal state.
		extraction = ocr.Result{Success: false, Error: err.Error()}
	}

	processedAt := s.now()
	image.ProcessedAt = &processedAt
	image.Metadata = datatypes.JSONMap{
		"processing_time_ms": extraction.Metadata.ProcessingTimeMs,
		"provider":           extraction.Metadata.Provider,
	}

	if extraction.Success {
		image.ProcessingStatus = models.OCRStatusCompleted
		image.ExtractedText = extraction.Text
		image.Confidence = extraction.Confidence
		image.ErrorMessage = ""
	} else {
		image.ProcessingStatus = models.OCRStatusFailed
		image.ErrorMessage = extraction.Error
	}

	if err := s.submissions.UpdateImage(ctx, image); err != nil {
		return dto.ImageOCRResult{}, fmt.Errorf("persist ocr result: %w", err)
	}

	submission.Images[image.Position] = *image
	submission.OCRStatus = models.RecomputeAggregateStatus(submission.Images)
	if err := s.submissions.Update(ctx, submission); err != nil {
		return dto.ImageOCRResult{}, fmt.Errorf("persist aggregate ocr status: %w", err)
	}

	return dto.ImageOCRResult{
		Position:     image.Position,
		Status:       image.ProcessingStatus,
		Confidence:   image.Confidence,
		ErrorMessage: image.ErrorMessage,
	}, nil
}

// markImageFailed is best effort: a failure here is logged, not retried, so a
// broken storage layer cannot wedge the whole batch.
func (s *ocrService) markImageFailed(ctx context.Context, image *models.AnswerImage, cause error) {
	image.ProcessingStatus = models.OCRStatusFailed
	image.ErrorMessage = cause.Error()
	if err := s.submissions.UpdateImage(ctx, image); err != nil {
		s.logger.Error().Err(err).
			Uint("submission_id", image.SubmissionID).
			Int("position", image.Position).
			Msg("failed to mark image as failed")
	}
}

// ProcessAllImages processes every image of a submission in position order,
// sleeping between calls but never after the last. A failing image does not
// stop the batch.
func (s *ocrService) ProcessAllImages(ctx context.Context, submissionID uint) (dto.BatchOCRResult, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BatchOCRResult{}, ErrSubmissionNotFound
		}
		return dto.BatchOCRResult{}, err
	}

	batch := dto.BatchOCRResult{SubmissionID: submissionID}
	for index := range submission.Images {
		result, err := s.ProcessImage(ctx, submissionID, index)
		if err != nil {
			s.logger.Warn().Err(err).
				Uint("submission_id", submissionID).
				Int("position", index).
				Msg("image processing failed")
			result = dto.ImageOCRResult{
				Position:     index,
				Status:       models.OCRStatusFailed,
				ErrorMessage: err.Error(),
			}
		}

		if result.Status == models.OCRStatusCompleted {
			batch.ProcessedSuccessfully++
		} else {
			batch.Failed++
		}
		batch.Results = append(batch.Results, result)

		if index < len(submission.Images)-1 {
			if err := s.sleep(ctx, s.config.ImageDelay); err != nil {
				return batch, err
			}
		}
	}

	refreshed, err := s.submissions.GetByID(ctx, submissionID)
	if err == nil {
		batch.AggregateStatus = refreshed.OCRStatus
	}

	return batch, nil
}

// ProcessPending sweeps every submission whose aggregate OCR status is not
// completed. This is a maintenance operation, not part of the submit path.
func (s *ocrService) ProcessPending(ctx context.Context) (dto.SweepResult, error) {
	pending, err := s.submissions.ListPendingOCR(ctx)
	if err != nil {
		return dto.SweepResult{}, err
	}

	sweep := dto.SweepResult{}
	for i, submission := range pending {
		batch, err := s.ProcessAllImages(ctx, submission.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sweep, err
			}
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("sweep skipped submission")
			continue
		}

		sweep.SubmissionsProcessed++
		sweep.ImagesProcessed += len(batch.Results)
		sweep.ProcessedSuccessfully += batch.ProcessedSuccessfully
		sweep.Failed += batch.Failed

		if i < len(pending)-1 {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				return sweep, err
			}
		}
	}

	return sweep, nil
}
