package amenity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

const extractSystemPrompt = `You are a helpful assistant that extracts a city and amenities with distances from a user's request. Only output JSON in this exact structure:

{
  "city": "CityName",
  "filters": {
    "category1": distance_in_miles,
    "category2": distance_in_miles
  }
}

Use null for city if not mentioned. Include filters even if the user does not give an exact distance: if a category is mentioned as being 'close', 'nearby', or 'within walking distance', use reasonable defaults.`

// Extraction is the structured result of parsing a free-form request.
type Extraction struct {
	// City is empty when the request names none.
	City string `json:"city"`
	// Filters maps amenity name to a distance in miles.
	Filters map[string]float64 `json:"filters"`
}

// LLMExtractorConfig configures the chat model used for extraction.
type LLMExtractorConfig struct {
	BaseURL string
	Token   string
	Model   string
	// RequestsPerSecond caps outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
}

// LLMExtractor pulls {city, filters} out of natural language using an
// OpenAI-compatible chat model.
type LLMExtractor struct {
	client  llms.Model
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewLLMExtractor creates an extractor from config.
func NewLLMExtractor(cfg LLMExtractorConfig, logger *slog.Logger) (*LLMExtractor, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("amenity: llm client: %w", err)
	}
	return NewLLMExtractorWithModel(client, cfg.RequestsPerSecond, logger), nil
}

// NewLLMExtractorWithModel wires a pre-built model. Used by tests.
func NewLLMExtractorWithModel(client llms.Model, rps float64, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &LLMExtractor{client: client, limiter: limiter, logger: logger}
}

// Extract parses one request. Malformed model output is retried up to three
// times before failing.
func (e *LLMExtractor) Extract(ctx context.Context, prompt string) (*Extraction, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("amenity: rate limit: %w", err)
		}
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(extractSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0), llms.WithJSONMode())
		if err != nil {
			return nil, fmt.Errorf("amenity: generate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("amenity: empty model response")
		}

		var out struct {
			City    *string            `json:"city"`
			Filters map[string]float64 `json:"filters"`
		}
		text := stripCodeFences(resp.Choices[0].Content)
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			lastErr = err
			e.logger.Warn("amenity: malformed extraction response",
				"attempt", attempt+1, "error", err)
			continue
		}

		ex := &Extraction{Filters: out.Filters}
		if ex.Filters == nil {
			ex.Filters = map[string]float64{}
		}
		if out.City != nil {
			ex.City = *out.City
		}
		return ex, nil
	}
	return nil, fmt.Errorf("amenity: parse extraction: %w", lastErr)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
