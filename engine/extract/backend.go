package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/planit-ai/planit/pkg/fn"
)

// TextRequest is one batch of texts for the inference backend.
type TextRequest struct {
	Model     string
	Texts     []string
	MaxTokens int
	PadToMax  bool
}

// ImageRequest is one batch of PNG-encoded images for the inference backend.
type ImageRequest struct {
	Model      string
	ImagesPNG  [][]byte
	Resolution int
}

// Backend performs raw model inference. Implementations must be safe for
// concurrent use; model parameters live server-side, are loaded once, and are
// read-only thereafter.
type Backend interface {
	EmbedText(ctx context.Context, req TextRequest) ([][]float32, error)
	EmbedImage(ctx context.Context, req ImageRequest) ([][]float32, error)
}

// HTTPBackend talks to a model-server over its JSON embedding API.
type HTTPBackend struct {
	baseURL       string
	device        string
	client        *http.Client
	retry         fn.RetryOpts
	maxConcurrent int
}

// HTTPBackendOption configures an HTTPBackend.
type HTTPBackendOption func(*HTTPBackend)

// WithDevice sets the server-side device placement hint (e.g. "cpu", "cuda").
func WithDevice(device string) HTTPBackendOption {
	return func(b *HTTPBackend) { b.device = device }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) { b.client = c }
}

// WithRetry overrides the retry policy for backend calls.
func WithRetry(opts fn.RetryOpts) HTTPBackendOption {
	return func(b *HTTPBackend) { b.retry = opts }
}

// NewHTTPBackend creates an inference backend rooted at baseURL.
func NewHTTPBackend(baseURL string, opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL:       baseURL,
		device:        "cpu",
		client:        &http.Client{},
		retry:         fn.DefaultRetry,
		maxConcurrent: 4,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type embedTextPayload struct {
	Model     string   `json:"model"`
	Device    string   `json:"device"`
	Texts     []string `json:"texts"`
	MaxTokens int      `json:"max_tokens"`
	PadToMax  bool     `json:"pad_to_max"`
}

type embedImagePayload struct {
	Model      string   `json:"model"`
	Device     string   `json:"device"`
	Images     []string `json:"images"` // base64 PNG
	Resolution int      `json:"resolution"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedText implements Backend.
func (b *HTTPBackend) EmbedText(ctx context.Context, req TextRequest) ([][]float32, error) {
	payload := embedTextPayload{
		Model:     req.Model,
		Device:    b.device,
		Texts:     req.Texts,
		MaxTokens: req.MaxTokens,
		PadToMax:  req.PadToMax,
	}
	result := fn.Retry(ctx, b.retry, func(ctx context.Context) fn.Result[[][]float32] {
		return fn.FromPair(b.post(ctx, "/v1/embed/text", payload))
	})
	return result.Unwrap()
}

// EmbedImage implements Backend. Large batches are split into chunks embedded
// with bounded concurrency; row order is preserved.
func (b *HTTPBackend) EmbedImage(ctx context.Context, req ImageRequest) ([][]float32, error) {
	const chunkSize = 16

	chunks := fn.Chunk(req.ImagesPNG, chunkSize)
	results := fn.ParMapResult(chunks, b.maxConcurrent, func(chunk [][]byte) fn.Result[[][]float32] {
		images := fn.Map(chunk, base64.StdEncoding.EncodeToString)
		payload := embedImagePayload{
			Model:      req.Model,
			Device:     b.device,
			Images:     images,
			Resolution: req.Resolution,
		}
		return fn.Retry(ctx, b.retry, func(ctx context.Context) fn.Result[[][]float32] {
			return fn.FromPair(b.post(ctx, "/v1/embed/image", payload))
		})
	})

	collected, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, err
	}
	var rows [][]float32
	for _, part := range collected {
		rows = append(rows, part...)
	}
	return rows, nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, payload any) ([][]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("model-server: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model-server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model-server: %s: status %d", path, resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("model-server: decode: %w", err)
	}
	return result.Embeddings, nil
}
