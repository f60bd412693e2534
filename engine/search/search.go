// Package search orchestrates the retrieval scoring pipeline. It embeds a
// text query, fans out one index search per requested amenity, normalizes
// each raw score vector, optionally applies the significance filter, and
// assembles the keyed heatmap response.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/planit-ai/planit/engine/domain"
	"github.com/planit-ai/planit/engine/extract"
	"github.com/planit-ai/planit/engine/index"
	"github.com/planit-ai/planit/engine/score"
)

// Options configures request defaults.
type Options struct {
	// DefaultTopK is applied when a request leaves TopK unset.
	DefaultTopK int
	// DefaultTemperature is applied when a request leaves Temperature unset.
	DefaultTemperature float64
	// Policy selects the score normalization.
	Policy score.Policy
	// MaxMultiplier rescales min-max output; ignored under softmax.
	MaxMultiplier float64
}

// DefaultOptions returns the defaults served to the frontend.
func DefaultOptions() Options {
	return Options{
		DefaultTopK:        50,
		DefaultTemperature: 1.0,
		Policy:             score.PolicySoftmax,
	}
}

// Service runs search requests against a shared extractor and index
// connection. The extractor is constructed lazily on first use and reused by
// every in-flight request; construction happens at most once even under
// concurrent first access.
type Service struct {
	extractor func() (extract.Extractor, error)
	gateway   index.Gateway
	opts      Options
	logger    *slog.Logger
}

// New creates a Service. provider builds the process-wide extractor; it is
// called at most once.
func New(provider func() (extract.Extractor, error), gateway index.Gateway, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor: sync.OnceValues(provider),
		gateway:   gateway,
		opts:      opts,
		logger:    logger,
	}
}

// SignificanceOptions are the per-request tuning parameters of the
// significance filter. A nil options pointer disables the filter.
type SignificanceOptions struct {
	Components int     `json:"components"`
	Percentile float64 `json:"percentile"`
	HighScore  float64 `json:"high_score"`
	MinSamples int     `json:"min_samples"`
}

// Request is one search invocation.
type Request struct {
	Query        string               `json:"query"`
	TopK         int                  `json:"top_k"`
	Temperature  float64              `json:"temperature"`
	Filters      map[string]float64   `json:"filters,omitempty"`
	Significance *SignificanceOptions `json:"significance,omitempty"`
}

// Hit is one scored location in the response.
type Hit struct {
	ID       string   `json:"id"`
	Path     string   `json:"path,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	Score    float64  `json:"score"`
	Distance float64  `json:"distance"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// Response is the assembled search result. HeatmapScores is keyed by amenity
// name, or by "default" when the request carried no filters. Score vectors
// are positionally aligned with Results only by the first-sub-query-wins
// convention; callers must key by amenity, never assume shape equality.
type Response struct {
	Status        string                 `json:"status"`
	Query         string                 `json:"query"`
	Results       []Hit                  `json:"results"`
	HeatmapScores domain.AmenityScoreMap `json:"heatmap_scores"`
}

// Query runs one request through the full pipeline. A failure in any
// sub-query fails the whole request: a heatmap with silently missing amenity
// layers is worse than an explicit error.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	if req.TopK == 0 {
		req.TopK = s.opts.DefaultTopK
	}
	if req.Temperature == 0 {
		req.Temperature = s.opts.DefaultTemperature
	}
	if err := domain.ValidateSearchInput(req.Query, req.TopK, req.Temperature); err != nil {
		return nil, err
	}

	s.logger.Info("search: query start",
		"query_len", len(req.Query), "top_k", req.TopK, "filters", len(req.Filters))

	resp := &Response{
		Status:        "success",
		Query:         req.Query,
		HeatmapScores: make(domain.AmenityScoreMap),
	}

	if len(req.Filters) == 0 {
		hits, scores, err := s.runSubQuery(ctx, req.Query, req)
		if err != nil {
			return nil, err
		}
		resp.Results = toHits(hits)
		resp.HeatmapScores[domain.DefaultKey] = scores
		return resp, nil
	}

	// Deterministic fan-out order.
	amenities := make([]string, 0, len(req.Filters))
	for a := range req.Filters {
		amenities = append(amenities, a)
	}
	sort.Strings(amenities)

	var canonical []domain.SearchHit
	for _, amenity := range amenities {
		sub := fmt.Sprintf("%s near %s", req.Query, amenity)
		hits, scores, err := s.runSubQuery(ctx, sub, req)
		if err != nil {
			return nil, fmt.Errorf("search: amenity %q: %w", amenity, err)
		}
		resp.HeatmapScores[amenity] = scores
		if canonical == nil && len(hits) > 0 {
			canonical = hits
		}
	}
	resp.Results = toHits(canonical)
	return resp, nil
}

// runSubQuery embeds one query text, searches the index, and produces the
// normalized (and optionally significance-filtered) score vector alongside
// the raw hits.
func (s *Service) runSubQuery(ctx context.Context, query string, req Request) ([]domain.SearchHit, []float64, error) {
	ext, err := s.extractor()
	if err != nil {
		return nil, nil, fmt.Errorf("search: extractor init: %w", err)
	}

	vecs, err := ext.ExtractTextFeatures(ctx, []string{query})
	if err != nil {
		return nil, nil, fmt.Errorf("search: embed query: %w", err)
	}

	hits, err := s.gateway.Search(ctx, vecs[0].Values, req.TopK)
	if err != nil {
		return nil, nil, err
	}

	raw := make([]float64, len(hits))
	for i, h := range hits {
		raw[i] = h.Score
	}

	scores, err := score.Normalize(raw, score.NormalizerConfig{
		Policy:        s.opts.Policy,
		Temperature:   req.Temperature,
		MaxMultiplier: s.opts.MaxMultiplier,
	})
	if err != nil {
		return nil, nil, err
	}

	if req.Significance != nil {
		cfg := score.DefaultSignificanceConfig()
		if req.Significance.Components > 0 {
			cfg.Components = req.Significance.Components
		}
		if req.Significance.Percentile > 0 {
			cfg.Percentile = req.Significance.Percentile
		}
		if req.Significance.HighScore > 0 {
			cfg.HighScore = req.Significance.HighScore
		}
		if req.Significance.MinSamples > 0 {
			cfg.MinSamples = req.Significance.MinSamples
		}
		scores = score.NewFilter(cfg, s.logger).Apply(scores)
	}

	return hits, scores, nil
}

func toHits(hits []domain.SearchHit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{
			ID:       h.ID,
			Path:     h.Path,
			Caption:  h.Caption,
			Score:    h.Score,
			Distance: h.Distance,
			Lat:      h.Coords.Lat,
			Lng:      h.Coords.Lng,
		}
	}
	return out
}
