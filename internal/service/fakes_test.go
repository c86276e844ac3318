package service

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/repository"
	"github.com/gradeflow/gradeflow-api/pkg/ocr"
)

// fakeSubmissionRepo is an in-memory SubmissionRepository that enforces the
// same attempt-number uniqueness the database index would.
type fakeSubmissionRepo struct {
	submissions map[uint]*models.Submission
	evaluations map[uint]*models.Evaluation
	nextID      uint
	nextEvalID  uint

	createHook func(*models.Submission) error
	countHook  func(userID, questionID uint) (int64, error)
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submissions: make(map[uint]*models.Submission),
		evaluations: make(map[uint]*models.Evaluation),
	}
}

func (f *fakeSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	if f.createHook != nil {
		if err := f.createHook(submission); err != nil {
			return err
		}
	}
	for _, existing := range f.submissions {
		if existing.UserID == submission.UserID &&
			existing.QuestionID == submission.QuestionID &&
			existing.AttemptNumber == submission.AttemptNumber {
			return gorm.ErrDuplicatedKey
		}
	}

	f.nextID++
	submission.ID = f.nextID
	for i := range submission.Images {
		submission.Images[i].SubmissionID = submission.ID
	}
	stored := *submission
	stored.Images = append([]models.AnswerImage(nil), submission.Images...)
	f.submissions[submission.ID] = &stored
	return nil
}

func (f *fakeSubmissionRepo) Update(_ context.Context, submission *models.Submission) error {
	stored, ok := f.submissions[submission.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.OCRStatus = submission.OCRStatus
	stored.ReviewStatus = submission.ReviewStatus
	stored.SubmittedAt = submission.SubmittedAt
	return nil
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	stored, ok := f.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return f.project(stored), nil
}

func (f *fakeSubmissionRepo) project(stored *models.Submission) models.Submission {
	out := *stored
	out.Images = append([]models.AnswerImage(nil), stored.Images...)
	sort.Slice(out.Images, func(i, j int) bool { return out.Images[i].Position < out.Images[j].Position })
	if evaluation, ok := f.evaluations[stored.ID]; ok {
		copied := *evaluation
		out.Evaluation = &copied
	} else {
		out.Evaluation = nil
	}
	return out
}

func (f *fakeSubmissionRepo) GetByAttempt(_ context.Context, userID, questionID uint, attempt int) (models.Submission, error) {
	for _, stored := range f.submissions {
		if stored.UserID == userID && stored.QuestionID == questionID && stored.AttemptNumber == attempt {
			return f.project(stored), nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) GetLatest(_ context.Context, userID, questionID uint) (models.Submission, error) {
	var latest *models.Submission
	for _, stored := range f.submissions {
		if stored.UserID != userID || stored.QuestionID != questionID {
			continue
		}
		if latest == nil || stored.AttemptNumber > latest.AttemptNumber {
			latest = stored
		}
	}
	if latest == nil {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return f.project(latest), nil
}

func (f *fakeSubmissionRepo) ListAttempts(_ context.Context, userID, questionID uint) ([]models.Submission, error) {
	var out []models.Submission
	for _, stored := range f.submissions {
		if stored.UserID == userID && stored.QuestionID == questionID {
			out = append(out, f.project(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (f *fakeSubmissionRepo) CountAttempts(_ context.Context, userID, questionID uint) (int64, error) {
	if f.countHook != nil {
		return f.countHook(userID, questionID)
	}
	var count int64
	for _, stored := range f.submissions {
		if stored.UserID == userID && stored.QuestionID == questionID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSubmissionRepo) ListPendingOCR(_ context.Context) ([]models.Submission, error) {
	var out []models.Submission
	for _, stored := range f.submissions {
		if stored.OCRStatus != models.OCRStatusCompleted {
			out = append(out, f.project(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSubmissionRepo) UpdateImage(_ context.Context, image *models.AnswerImage) error {
	stored, ok := f.submissions[image.SubmissionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range stored.Images {
		if stored.Images[i].Position == image.Position {
			stored.Images[i] = *image
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) SaveEvaluation(_ context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == 0 {
		f.nextEvalID++
		evaluation.ID = f.nextEvalID
	}
	stored := *evaluation
	f.evaluations[evaluation.SubmissionID] = &stored
	return nil
}

func (f *fakeSubmissionRepo) ListEvaluations(_ context.Context, filter repository.EvaluationFilter) ([]models.Evaluation, error) {
	var out []models.Evaluation
	for submissionID, evaluation := range f.evaluations {
		submission, ok := f.submissions[submissionID]
		if !ok {
			continue
		}
		if filter.UserID != nil && submission.UserID != *filter.UserID {
			continue
		}
		if filter.QuestionID != nil && submission.QuestionID != *filter.QuestionID {
			continue
		}
		if filter.Provider != nil && evaluation.Provider != *filter.Provider {
			continue
		}
		if filter.MinScore != nil && evaluation.Score < *filter.MinScore {
			continue
		}
		if filter.MaxScore != nil && evaluation.Score > *filter.MaxScore {
			continue
		}
		out = append(out, *evaluation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeQuestionRepo struct {
	questions map[uint]models.Question
}

func newFakeQuestionRepo(questions ...models.Question) *fakeQuestionRepo {
	repo := &fakeQuestionRepo{questions: make(map[uint]models.Question)}
	for _, question := range questions {
		repo.questions[question.ID] = question
	}
	return repo
}

func (f *fakeQuestionRepo) GetByID(_ context.Context, id uint) (models.Question, error) {
	question, ok := f.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return question, nil
}

type fakeReviewRepo struct {
	requests map[uint]*models.ReviewRequest
	nextID   uint
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{requests: make(map[uint]*models.ReviewRequest)}
}

func (f *fakeReviewRepo) Create(_ context.Context, request *models.ReviewRequest) error {
	f.nextID++
	request.ID = f.nextID
	stored := *request
	f.requests[request.ID] = &stored
	return nil
}

func (f *fakeReviewRepo) Update(_ context.Context, request *models.ReviewRequest) error {
	if _, ok := f.requests[request.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *request
	f.requests[request.ID] = &stored
	return nil
}

func (f *fakeReviewRepo) GetByID(_ context.Context, id uint) (models.ReviewRequest, error) {
	stored, ok := f.requests[id]
	if !ok {
		return models.ReviewRequest{}, gorm.ErrRecordNotFound
	}
	return *stored, nil
}

func (f *fakeReviewRepo) List(_ context.Context, filter repository.ReviewRequestFilter) ([]models.ReviewRequest, error) {
	var out []models.ReviewRequest
	for _, stored := range f.requests {
		if filter.Status != nil && stored.RequestStatus != *filter.Status {
			continue
		}
		if filter.ClientID != nil && stored.ClientID != *filter.ClientID {
			continue
		}
		if filter.EvaluatorID != nil && (stored.AssignedEvaluatorID == nil || *stored.AssignedEvaluatorID != *filter.EvaluatorID) {
			continue
		}
		if filter.UserID != nil && stored.UserID != *filter.UserID {
			continue
		}
		if filter.AnswerID != nil && stored.AnswerID != *filter.AnswerID {
			continue
		}
		out = append(out, *stored)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (f *fakeReviewRepo) HasOpenRequest(_ context.Context, answerID uint) (bool, error) {
	for _, stored := range f.requests {
		if stored.AnswerID == answerID && stored.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

type fakeEvaluatorRepo struct {
	evaluators map[uint]models.Evaluator
}

func newFakeEvaluatorRepo(evaluators ...models.Evaluator) *fakeEvaluatorRepo {
	repo := &fakeEvaluatorRepo{evaluators: make(map[uint]models.Evaluator)}
	for _, evaluator := range evaluators {
		repo.evaluators[evaluator.ID] = evaluator
	}
	return repo
}

func (f *fakeEvaluatorRepo) GetByID(_ context.Context, id uint) (models.Evaluator, error) {
	evaluator, ok := f.evaluators[id]
	if !ok {
		return models.Evaluator{}, gorm.ErrRecordNotFound
	}
	return evaluator, nil
}

// fakeExtractor returns scripted OCR results keyed by image URL.
type fakeExtractor struct {
	results map[string]extractionScript
	calls   []string
}

type extractionScript struct {
	text       string
	confidence float64
	fail       bool
	err        error
}

func (f *fakeExtractor) Extract(_ context.Context, input ocr.ImageInput, _ ocr.Options) (ocr.Result, error) {
	f.calls = append(f.calls, input.URL)
	script := f.results[input.URL]
	if script.err != nil {
		return ocr.Result{}, script.err
	}
	if script.fail {
		return ocr.Result{Success: false, Error: "provider rejected image"}, nil
	}
	return ocr.Result{Success: true, Text: script.text, Confidence: script.confidence}, nil
}

func noSleep(context.Context, time.Duration) error {
	return nil
}
