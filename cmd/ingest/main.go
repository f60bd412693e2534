// Command ingest consumes location records from NATS and writes their
// embeddings into the vector index. It can also submit records from a JSON
// file and seed the amenity topic registry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/planit-ai/planit/engine/amenity"
	"github.com/planit-ai/planit/engine/extract"
	"github.com/planit-ai/planit/engine/index"
	"github.com/planit-ai/planit/engine/ingest"
	"github.com/planit-ai/planit/pkg/metrics"
	"github.com/planit-ai/planit/pkg/natsutil"
)

var met = metrics.New()

var (
	mRecords  = met.Counter("planit_ingest_records_total", "Location records consumed")
	mFailures = met.Counter("planit_ingest_failures_total", "Pipeline failures")
	mDuration = met.Histogram("planit_ingest_pipeline_seconds", "Per-record pipeline time", nil)
)

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		modelServer = flag.String("model-server", "http://localhost:9000", "embedding model server base URL")
		modelName   = flag.String("model", "google/siglip2-base-patch16-512", "embedding model identifier")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "locations", "Qdrant collection name")
		neo4jURL    = flag.String("neo4j", "", "Neo4j bolt URL (only needed with -seed-topics)")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
		submitFile  = flag.String("submit", "", "publish records from a JSON file and exit")
		seedTopics  = flag.Bool("seed-topics", false, "seed the builtin topic catalog into Neo4j and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, runConfig{
		natsURL:     *natsURL,
		modelServer: *modelServer,
		modelName:   *modelName,
		qdrantAddr:  *qdrantAddr,
		collection:  *collection,
		neo4jURL:    *neo4jURL,
		neo4jUser:   *neo4jUser,
		neo4jPass:   *neo4jPass,
		metricsPort: *metricsPort,
		submitFile:  *submitFile,
		seedTopics:  *seedTopics,
	}, logger); err != nil {
		logger.Error("ingest exited with error", "err", err)
		os.Exit(1)
	}
}

type runConfig struct {
	natsURL     string
	modelServer string
	modelName   string
	qdrantAddr  string
	collection  string
	neo4jURL    string
	neo4jUser   string
	neo4jPass   string
	metricsPort int
	submitFile  string
	seedTopics  bool
}

func run(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	if cfg.seedTopics {
		return seedTopicRegistry(ctx, cfg, logger)
	}
	if cfg.submitFile != "" {
		return submitRecords(ctx, cfg, logger)
	}
	return consume(ctx, cfg, logger)
}

func seedTopicRegistry(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	if cfg.neo4jURL == "" {
		return fmt.Errorf("-seed-topics requires -neo4j")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	if err := amenity.NewRegistry(driver, logger).SeedBuiltin(ctx); err != nil {
		return err
	}
	logger.Info("seeded builtin topic catalog")
	return nil
}

func submitRecords(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	data, err := os.ReadFile(cfg.submitFile)
	if err != nil {
		return fmt.Errorf("read submit file: %w", err)
	}
	var records []ingest.LocationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse submit file: %w", err)
	}

	nc, err := nats.Connect(cfg.natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	for _, rec := range records {
		if err := natsutil.Publish(ctx, nc, ingest.Subject, rec); err != nil {
			return fmt.Errorf("publish %s: %w", rec.LocationID(), err)
		}
	}
	logger.Info("submitted records", "count", len(records))
	return nil
}

func consume(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	met.ServeAsync(cfg.metricsPort)

	gateway, err := index.Connect(ctx, cfg.qdrantAddr, cfg.collection, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer gateway.Close()

	backend := extract.NewHTTPBackend(cfg.modelServer)
	extractor, err := extract.New(cfg.modelName, backend)
	if err != nil {
		return fmt.Errorf("extractor: %w", err)
	}
	if err := gateway.EnsureCollection(ctx, extractor.Descriptor().FeatureDim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	logger.Info("connected to Qdrant",
		"collection", cfg.collection, "dims", extractor.Descriptor().FeatureDim)

	nc, err := nats.Connect(cfg.natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, ingest.Deps{
		Embedder: extractor,
		Store:    gateway,
		Logger:   logger,
		OnProcessed: func(err error, d time.Duration) {
			mRecords.Inc()
			if err != nil {
				mFailures.Inc()
			}
			mDuration.Observe(d.Seconds())
		},
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("consuming location records", "subject", ingest.Subject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
