package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/pkg/ai"
)

// MockProviderName labels evaluations produced by the offline fallback scorer.
const MockProviderName = "mock"

// EvaluationOutcome is the structured result of scoring one answer. The
// engine always produces one, falling back to the deterministic mock scorer
// when every provider fails.
type EvaluationOutcome struct {
	Score     float64
	MaxScore  float64
	Feedback  string
	Breakdown map[string]any
	Provider  string
}

// EvaluationService scores extracted answer text against a question.
type EvaluationService interface {
	BuildPrompt(question models.Question, texts []string) string
	Evaluate(ctx context.Context, question models.Question, texts []string) EvaluationOutcome
}

type evaluationService struct {
	primary   ai.Completer
	secondary ai.Completer
	logger    zerolog.Logger
}

// NewEvaluationService constructs the scoring engine. Either provider may be
// nil; the mock fallback keeps the pipeline terminating regardless.
func NewEvaluationService(primary, secondary ai.Completer, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
	}
}

// BuildPrompt renders the deterministic scoring prompt: question, constraints
// and the extracted answer text in image order. Pure, no I/O.
func (s *evaluationService) BuildPrompt(question models.Question, texts []string) string {
	builder := strings.Builder{}
	builder.WriteString("# Question\n")
	builder.WriteString(question.Text)
	builder.WriteString(fmt.Sprintf("\n\n## Maximum Marks\n%.1f", question.MaxMarks))
	if question.WordLimit > 0 {
		builder.WriteString(fmt.Sprintf("\n\n## Word Limit\n%d words", question.WordLimit))
	}
	builder.WriteString("\n\n## Student Answer (transcribed from answer sheets, in page order)\n")
	if len(texts) == 0 {
		builder.WriteString("(no text could be extracted)")
	}
	for i, text := range texts {
		if i > 0 {
			builder.WriteString("\n\n--- page break ---\n\n")
		}
		builder.WriteString(text)
	}
	builder.WriteString("\n\nGrade the answer out of the maximum marks. Return JSON with score, feedback, and breakdown.")
	return builder.String()
}

// Evaluate scores the answer, trying the primary provider, then the secondary,
// then the offline mock scorer. Provider failures are recovered here and never
// surface to the caller.
func (s *evaluationService) Evaluate(ctx context.Context, question models.Question, texts []string) EvaluationOutcome {
	prompt := s.BuildPrompt(question, texts)

	for _, provider := range []ai.Completer{s.primary, s.secondary} {
		if provider == nil {
			continue
		}

		raw, err := provider.Complete(ctx, prompt)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", provider.Name()).Msg("evaluation provider unavailable, falling back")
			continue
		}

		score, feedback, ok := parseCompletion(raw, question.MaxMarks)
		if !ok {
			s.logger.Warn().Str("provider", provider.Name()).Msg("unparseable evaluation response, using midpoint score")
		}

		return EvaluationOutcome{
			Score:    score,
			MaxScore: question.MaxMarks,
			Feedback: feedback,
			Breakdown: map[string]any{
				"parsed": ok,
			},
			Provider: provider.Name(),
		}
	}

	return s.mockEvaluate(question, texts)
}

// mockEvaluate is the deterministic offline scorer: coverage of the word limit
// drives the score, with canned feedback. It guarantees the pipeline always
// terminates with some evaluation.
func (s *evaluationService) mockEvaluate(question models.Question, texts []string) EvaluationOutcome {
	words := 0
	for _, text := range texts {
		words += len(strings.Fields(text))
	}

	if words == 0 {
		return EvaluationOutcome{
			Score:    0,
			MaxScore: question.MaxMarks,
			Feedback: "No readable answer text was found. Please resubmit with clearer images.",
			Breakdown: map[string]any{
				"word_count": 0,
			},
			Provider: MockProviderName,
		}
	}

	limit := question.WordLimit
	if limit <= 0 {
		limit = 250
	}

	coverage := math.Min(1, float64(words)/float64(limit))
	score := math.Round(question.MaxMarks*(0.3+0.5*coverage)*10) / 10

	return EvaluationOutcome{
		Score:    score,
		MaxScore: question.MaxMarks,
		Feedback: "Automated provisional score based on answer length and structure. A detailed evaluation was not available; request an expert review for full feedback.",
		Breakdown: map[string]any{
			"word_count": words,
			"word_limit": limit,
			"coverage":   coverage,
		},
		Provider: MockProviderName,
	}
}

var scorePattern = regexp.MustCompile(`(?i)\bscore\b\s*[:=]?\s*"?([0-9]+(?:\.[0-9]+)?)\s*(?:/\s*([0-9]+(?:\.[0-9]+)?))?`)

// parseCompletion extracts a score and feedback from free-form model output.
// It prefers a JSON object, then a textual score pattern, and finally falls
// back to maxScore/2 with the raw response as feedback. Never panics.
func parseCompletion(raw string, maxScore float64) (float64, string, bool) {
	trimmed := strings.TrimSpace(raw)

	// Models often wrap JSON in markdown fences.
	if stripped, found := strings.CutPrefix(trimmed, "```json"); found {
		trimmed = strings.TrimSuffix(strings.TrimSpace(stripped), "```")
	} else if stripped, found := strings.CutPrefix(trimmed, "```"); found {
		trimmed = strings.TrimSuffix(strings.TrimSpace(stripped), "```")
	}
	trimmed = strings.TrimSpace(trimmed)

	var parsed struct {
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Score != nil {
		feedback := parsed.Feedback
		if feedback == "" {
			feedback = raw
		}
		return clampScore(*parsed.Score, maxScore), feedback, true
	}

	if match := scorePattern.FindStringSubmatch(trimmed); match != nil {
		score, err := strconv.ParseFloat(match[1], 64)
		if err == nil {
			// "7/10" style: rescale to the question's maximum.
			if match[2] != "" {
				if outOf, err := strconv.ParseFloat(match[2], 64); err == nil && outOf > 0 {
					score = score / outOf * maxScore
				}
			}
			return clampScore(score, maxScore), raw, true
		}
	}

	return maxScore / 2, raw, false
}

func clampScore(score, maxScore float64) float64 {
	if score < 0 {
		return 0
	}
	if maxScore > 0 && score > maxScore {
		return maxScore
	}
	return score
}
