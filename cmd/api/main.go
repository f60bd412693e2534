// Package main implements the location search API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/planit-ai/planit/engine/amenity"
	"github.com/planit-ai/planit/engine/domain"
	"github.com/planit-ai/planit/engine/extract"
	"github.com/planit-ai/planit/engine/index"
	"github.com/planit-ai/planit/engine/search"
	"github.com/planit-ai/planit/engine/score"
	"github.com/planit-ai/planit/pkg/metrics"
	"github.com/planit-ai/planit/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	ModelServerURL string
	ModelName      string
	ModelDevice    string
	QdrantURL      string
	Collection     string
	IndexMode      string
	Neo4jURL       string
	Neo4jUser      string
	Neo4jPass      string
	OpenAIBaseURL  string
	OpenAIToken    string
	OpenAIModel    string
	CORSOrigin     string
	ScorePolicy    string
	RequestTimeout time.Duration
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		ModelServerURL: envOr("MODEL_SERVER_URL", "http://localhost:9000"),
		ModelName:      envOr("MODEL_NAME", "google/siglip2-base-patch16-512"),
		ModelDevice:    envOr("MODEL_DEVICE", "cpu"),
		QdrantURL:      envOr("QDRANT_URL", "localhost:6334"),
		Collection:     envOr("QDRANT_COLLECTION", "locations"),
		IndexMode:      envOr("INDEX_MODE", "required"),
		Neo4jURL:       envOr("NEO4J_URL", ""),
		Neo4jUser:      envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:      envOr("NEO4J_PASS", "password"),
		OpenAIBaseURL:  envOr("OPENAI_BASE_URL", ""),
		OpenAIToken:    envOr("OPENAI_API_KEY", ""),
		OpenAIModel:    envOr("OPENAI_MODEL", "gpt-4"),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		ScorePolicy:    envOr("SCORE_POLICY", "softmax"),
		RequestTimeout: envDurationOr("REQUEST_TIMEOUT", 30*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Vector index: explicit mode, never inferred ---
	mode, ok := index.ParseMode(cfg.IndexMode)
	if !ok {
		return fmt.Errorf("invalid INDEX_MODE %q (want required or mock)", cfg.IndexMode)
	}

	var gateway index.Gateway
	switch mode {
	case index.ModeMock:
		logger.Warn("serving deterministic mock search results", "mode", mode)
		gateway = index.NewMock()
	case index.ModeRequired:
		qg, err := index.Connect(ctx, cfg.QdrantURL, cfg.Collection, logger)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer qg.Close()
		gateway = qg
	}

	// --- Embedding extractor: lazily built, shared across requests ---
	backend := extract.NewHTTPBackend(cfg.ModelServerURL, extract.WithDevice(cfg.ModelDevice))
	provider := func() (extract.Extractor, error) {
		return extract.New(cfg.ModelName, backend)
	}

	policy, ok := score.ParsePolicy(cfg.ScorePolicy)
	if !ok {
		return fmt.Errorf("invalid SCORE_POLICY %q", cfg.ScorePolicy)
	}
	opts := search.DefaultOptions()
	opts.Policy = policy

	searchSvc := search.New(provider, gateway, opts, logger)

	// --- Topic catalog: stored registry with builtin fallback ---
	catalog := amenity.NewCatalog()
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		catalog = amenity.NewRegistry(driver, logger).LoadOrBuiltin(ctx)
	}

	// --- Optional LLM filter extraction ---
	var llm *amenity.LLMExtractor
	if cfg.OpenAIToken != "" || cfg.OpenAIBaseURL != "" {
		var err error
		llm, err = amenity.NewLLMExtractor(amenity.LLMExtractorConfig{
			BaseURL:           cfg.OpenAIBaseURL,
			Token:             cfg.OpenAIToken,
			Model:             cfg.OpenAIModel,
			RequestsPerSecond: 2,
		}, logger)
		if err != nil {
			return fmt.Errorf("llm extractor: %w", err)
		}
	}

	// --- HTTP server ---
	reg := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /api/search", handleSearch(searchSvc, reg, logger))
	mux.Handle("POST /api/extract", handleExtract(llm, catalog, logger))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("planit-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.Timeout(cfg.RequestTimeout),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "index_mode", mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Status: "error", Message: msg})
}

func handleSearch(svc *search.Service, reg *metrics.Registry, logger *slog.Logger) http.HandlerFunc {
	searches := reg.Counter("searches_total", "Total search requests served.")
	failures := reg.Counter("search_failures_total", "Search requests that returned an error.")
	latency := reg.Histogram("search_seconds", "Search request latency.", nil)

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		searches.Inc()

		var req search.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			failures.Inc()
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Query(r.Context(), req)
		if err != nil {
			failures.Inc()
			logger.Error("search query failed", "err", err)
			switch {
			case errors.Is(err, domain.ErrEmptyQuery),
				errors.Is(err, domain.ErrInvalidTopK),
				errors.Is(err, domain.ErrInvalidTemperature):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, domain.ErrIndexUnavailable):
				writeError(w, http.StatusServiceUnavailable, "search index unavailable")
			case errors.Is(err, domain.ErrUnsupportedModel):
				writeError(w, http.StatusInternalServerError, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}

		latency.Since(start)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// ExtractRequest is the JSON body for POST /api/extract.
type ExtractRequest struct {
	Prompt string `json:"prompt"`
}

// ExtractResponse mirrors amenity.Extraction with a nullable city.
type ExtractResponse struct {
	City    *string            `json:"city"`
	Filters map[string]float64 `json:"filters"`
}

// defaultFilterDistance is used when only the keyword classifier ran and no
// distance was stated, in miles.
const defaultFilterDistance = 1

func handleExtract(llm *amenity.LLMExtractor, catalog *amenity.Catalog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Prompt == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		if llm != nil {
			ex, err := llm.Extract(r.Context(), req.Prompt)
			if err == nil {
				writeExtraction(w, ex)
				return
			}
			logger.Warn("llm extraction failed, using keyword classifier", "err", err)
		}

		topic := catalog.ClassifyOrDefault(req.Prompt)
		writeExtraction(w, &amenity.Extraction{
			Filters: map[string]float64{topic: defaultFilterDistance},
		})
	}
}

func writeExtraction(w http.ResponseWriter, ex *amenity.Extraction) {
	resp := ExtractResponse{Filters: ex.Filters}
	if ex.City != "" {
		city := ex.City
		resp.City = &city
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
