package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractSuccess(t *testing.T) {
	var captured extractionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/extract", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"extracted_text": "two pages of handwriting",
			"confidence":     0.91,
			"boxes": []map[string]any{
				{"text": "two", "x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0, "confidence": 0.9},
			},
		})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, APIKey: "secret"})
	require.NoError(t, err)

	result, err := client.Extract(context.Background(), ImageInput{URL: "https://img/a.jpg"}, Options{Language: "en"})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "two pages of handwriting", result.Text)
	require.Equal(t, 0.91, result.Confidence)
	require.Len(t, result.Metadata.Boxes, 1)
	require.GreaterOrEqual(t, result.Metadata.ProcessingTimeMs, int64(0))

	require.Equal(t, "https://img/a.jpg", captured.ImageURL)
	require.Equal(t, "en", captured.Language)
}

func TestExtractFallsBackToTextField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "plain field", "confidence": 0.5})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Extract(context.Background(), ImageInput{URL: "https://img/a.jpg"}, Options{})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "plain field", result.Text)
}

func TestExtractProviderFailureIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Extract(context.Background(), ImageInput{URL: "https://img/a.jpg"}, Options{})

	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "502")
}

func TestExtractInputValidation(t *testing.T) {
	client, err := New(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), ImageInput{}, Options{})
	require.Error(t, err)

	_, err = client.Extract(context.Background(), ImageInput{URL: "https://img/a.jpg", Base64: "aGk="}, Options{})
	require.Error(t, err)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNormalizeBoxes(t *testing.T) {
	boxes := NormalizeBoxes([]map[string]any{
		{"text": "canonical", "x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0, "confidence": 0.75},
		{"word": "alt-names", "left": 10.0, "top": 20.0, "w": 30.0, "h": 40.0, "conf": 0.5},
		{"content": "bbox-style", "bbox": []any{5.0, 6.0, 7.0, 8.0}},
		{},
	})

	require.Len(t, boxes, 4)

	require.Equal(t, BoundingBox{Text: "canonical", X: 1, Y: 2, Width: 3, Height: 4, Confidence: 0.75}, boxes[0])
	require.Equal(t, BoundingBox{Text: "alt-names", X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.5}, boxes[1])
	require.Equal(t, BoundingBox{Text: "bbox-style", X: 5, Y: 6, Width: 7, Height: 8}, boxes[2])
	require.Equal(t, BoundingBox{}, boxes[3])

	require.Nil(t, NormalizeBoxes(nil))
}
