package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ocrDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradeflow",
		Subsystem: "ocr",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of OCR provider requests",
	}, []string{"outcome"})

	ocrFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gradeflow",
		Subsystem: "ocr",
		Name:      "extraction_failures_total",
		Help:      "Number of failed OCR provider requests",
	})
)

// ImageInput references the image to extract text from. Exactly one of URL or
// Base64 must be set.
type ImageInput struct {
	URL    string
	Base64 string
}

// Options tune a single extraction call.
type Options struct {
	Language    string
	DetectBoxes bool
	Timeout     time.Duration
}

// BoundingBox locates a recognised text fragment on the image. Fields missing
// from the provider payload default to zero values.
type BoundingBox struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Metadata carries per-call diagnostics alongside the extraction outcome.
type Metadata struct {
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Provider         string        `json:"provider"`
	ImageEcho        string        `json:"image_echo,omitempty"`
	Boxes            []BoundingBox `json:"boxes,omitempty"`
}

// Result is the tagged outcome of one extraction call. Provider-side failures
// are reported through Success/Error, never as a Go error.
type Result struct {
	Success    bool     `json:"success"`
	Text       string   `json:"extracted_text"`
	Confidence float64  `json:"confidence"`
	Error      string   `json:"error,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

// Config describes the OCR provider endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client calls an external OCR provider for single images. It never persists
// anything itself.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// New constructs an OCR client against the configured provider.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ocr base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer("github.com/gradeflow/gradeflow-api/pkg/ocr"),
		logger: logger.With().Str("component", "ocr_client").Logger(),
	}, nil
}

type extractionRequest struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Language    string `json:"language,omitempty"`
	DetectBoxes bool   `json:"detect_boxes,omitempty"`
}

// extractionResponse accepts the loose shapes OCR providers return. Boxes stay
// raw maps until normalised.
type extractionResponse struct {
	Text       string           `json:"text"`
	Extracted  string           `json:"extracted_text"`
	Confidence float64          `json:"confidence"`
	Image      string           `json:"image"`
	Boxes      []map[string]any `json:"boxes"`
	Words      []map[string]any `json:"words"`
}

// Extract runs OCR over a single image. It returns an error only for malformed
// input; provider errors and timeouts come back as a failed Result with the
// elapsed time recorded.
func (c *Client) Extract(parent context.Context, image ImageInput, opts Options) (Result, error) {
	if image.URL == "" && image.Base64 == "" {
		return Result{}, fmt.Errorf("image url or base64 payload is required")
	}
	if image.URL != "" && image.Base64 != "" {
		return Result{}, fmt.Errorf("image url and base64 payload are mutually exclusive")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "ocr.extract", trace.WithAttributes(
		attribute.Bool("ocr.has_url", image.URL != ""),
	))
	defer span.End()

	start := time.Now()
	payload := extractionRequest{
		ImageURL:    image.URL,
		ImageBase64: image.Base64,
		Language:    opts.Language,
		DetectBoxes: opts.DetectBoxes,
	}

	response, err := c.doRequest(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		ocrDuration.WithLabelValues("failure").Observe(elapsed.Seconds())
		ocrFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("ocr extraction failed")
		return Result{
			Success: false,
			Error:   err.Error(),
			Metadata: Metadata{
				ProcessingTimeMs: elapsed.Milliseconds(),
				Provider:         c.cfg.BaseURL,
			},
		}, nil
	}

	ocrDuration.WithLabelValues("success").Observe(elapsed.Seconds())

	text := response.Extracted
	if text == "" {
		text = response.Text
	}

	rawBoxes := response.Boxes
	if len(rawBoxes) == 0 {
		rawBoxes = response.Words
	}

	return Result{
		Success:    true,
		Text:       text,
		Confidence: response.Confidence,
		Metadata: Metadata{
			ProcessingTimeMs: elapsed.Milliseconds(),
			Provider:         c.cfg.BaseURL,
			ImageEcho:        response.Image,
			Boxes:            NormalizeBoxes(rawBoxes),
		},
	}, nil
}

func (c *Client) doRequest(ctx context.Context, payload extractionRequest) (extractionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return extractionResponse{}, fmt.Errorf("marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return extractionResponse{}, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return extractionResponse{}, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return extractionResponse{}, fmt.Errorf("read ocr response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return extractionResponse{}, fmt.Errorf("ocr provider returned status %d", resp.StatusCode)
	}

	var parsed extractionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return extractionResponse{}, fmt.Errorf("decode ocr response: %w", err)
	}

	return parsed, nil
}

// NormalizeBoxes converts provider bounding boxes into the canonical shape.
// Providers disagree on field names; unknown or missing numeric fields default
// to 0 and missing text to the empty string.
func NormalizeBoxes(raw []map[string]any) []BoundingBox {
	if len(raw) == 0 {
		return nil
	}

	boxes := make([]BoundingBox, 0, len(raw))
	for _, entry := range raw {
		box := BoundingBox{
			Text:       stringField(entry, "text", "word", "content"),
			X:          numericField(entry, "x", "left"),
			Y:          numericField(entry, "y", "top"),
			Width:      numericField(entry, "width", "w"),
			Height:     numericField(entry, "height", "h"),
			Confidence: numericField(entry, "confidence", "conf"),
		}

		// Some providers pack the geometry into a bbox array [x, y, w, h].
		if bbox, ok := entry["bbox"].([]any); ok && len(bbox) >= 4 {
			box.X = toFloat(bbox[0])
			box.Y = toFloat(bbox[1])
			box.Width = toFloat(bbox[2])
			box.Height = toFloat(bbox[3])
		}

		boxes = append(boxes, box)
	}

	return boxes
}

func stringField(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := entry[key].(string); ok {
			return value
		}
	}
	return ""
}

func numericField(entry map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if value, ok := entry[key]; ok {
			return toFloat(value)
		}
	}
	return 0
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
