// Command heatmap runs one query through the search pipeline and writes the
// weighted coordinates as JSON for the map frontend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/planit-ai/planit/engine/domain"
	"github.com/planit-ai/planit/engine/extract"
	"github.com/planit-ai/planit/engine/index"
	"github.com/planit-ai/planit/engine/search"
	"github.com/planit-ai/planit/engine/score"
)

// point is one heatmap cell in the frontend's format.
type point struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

func main() {
	var (
		query       = flag.String("query", "", "search text (required)")
		topK        = flag.Int("top-k", 50, "number of locations to score")
		temperature = flag.Float64("temperature", 0.1, "softmax temperature; lower sharpens the map")
		out         = flag.String("out", "similarities.json", "output file")
		mode        = flag.String("index-mode", "required", "index mode: required or mock")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "locations", "Qdrant collection name")
		modelServer = flag.String("model-server", "http://localhost:9000", "embedding model server base URL")
		modelName   = flag.String("model", "google/siglip2-base-patch16-224", "embedding model identifier")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *query == "" {
		fmt.Fprintln(os.Stderr, "heatmap: -query is required")
		os.Exit(2)
	}

	if err := run(context.Background(), *query, *topK, *temperature, *out,
		*mode, *qdrantAddr, *collection, *modelServer, *modelName, logger); err != nil {
		logger.Error("heatmap failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, query string, topK int, temperature float64, out,
	modeStr, qdrantAddr, collection, modelServer, modelName string, logger *slog.Logger) error {

	mode, ok := index.ParseMode(modeStr)
	if !ok {
		return fmt.Errorf("invalid -index-mode %q", modeStr)
	}

	var gateway index.Gateway
	if mode == index.ModeMock {
		gateway = index.NewMock()
	} else {
		qg, err := index.Connect(ctx, qdrantAddr, collection, logger)
		if err != nil {
			return err
		}
		defer qg.Close()
		gateway = qg
	}

	backend := extract.NewHTTPBackend(modelServer)
	provider := func() (extract.Extractor, error) {
		return extract.New(modelName, backend)
	}

	opts := search.DefaultOptions()
	opts.Policy = score.PolicySoftmax
	svc := search.New(provider, gateway, opts, logger)

	resp, err := svc.Query(ctx, search.Request{
		Query:       query,
		TopK:        topK,
		Temperature: temperature,
	})
	if err != nil {
		return err
	}

	weights := resp.HeatmapScores[domain.DefaultKey]
	points := make([]point, 0, len(resp.Results))
	for i, hit := range resp.Results {
		if hit.Lat == nil || hit.Lng == nil || i >= len(weights) {
			continue
		}
		points = append(points, point{Lat: *hit.Lat, Lng: *hit.Lng, Weight: weights[i]})
	}

	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("heatmap written", "points", len(points), "file", out)
	return nil
}
