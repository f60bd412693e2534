// Package ingest feeds location captures into the vector index through
// validation, embedding, and storage stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/planit-ai/planit/engine/domain"
	"github.com/planit-ai/planit/engine/index"
	"github.com/planit-ai/planit/pkg/fn"
)

const (
	// Subject is the NATS subject for incoming location records.
	Subject = "engine.locations"
	// DLQSubject is the dead letter queue for records that keep failing.
	DLQSubject = "engine.locations.dlq"
	// MaxRetries before a record is sent to the DLQ.
	MaxRetries = 3
)

// CaptionEmbedder produces a text embedding for records submitted without a
// precomputed vector.
type CaptionEmbedder interface {
	ExtractTextFeatures(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)
}

// Upserter stores resolved records. Satisfied by index.QdrantGateway.
type Upserter interface {
	Upsert(ctx context.Context, records []index.PointRecord) error
}

// Deps holds the external dependencies of the pipeline.
type Deps struct {
	Embedder CaptionEmbedder
	Store    Upserter
	Logger   *slog.Logger
	// OnProcessed, when set, observes each record's outcome and duration.
	OnProcessed func(err error, d time.Duration)
}

// --- Pipeline stages ---

// Validate rejects records with out-of-range coordinates or nothing to index.
var Validate fn.Stage[LocationRecord, LocationRecord] = func(_ context.Context, r LocationRecord) fn.Result[LocationRecord] {
	if err := validateRecord(r); err != nil {
		return fn.Err[LocationRecord](err)
	}
	return fn.Ok(r)
}

// NewEmbed resolves each record's vector: a precomputed embedding is passed
// through untouched, otherwise the caption is embedded.
func NewEmbed(embedder CaptionEmbedder) fn.Stage[LocationRecord, EmbeddedRecord] {
	return func(ctx context.Context, r LocationRecord) fn.Result[EmbeddedRecord] {
		if len(r.Embedding) > 0 {
			return fn.Ok(EmbeddedRecord{LocationRecord: r, Vector: r.Embedding})
		}
		vecs, err := embedder.ExtractTextFeatures(ctx, []string{r.Caption})
		if err != nil {
			return fn.Err[EmbeddedRecord](fmt.Errorf("embed caption: %w", err))
		}
		return fn.Ok(EmbeddedRecord{LocationRecord: r, Vector: vecs[0].Values})
	}
}

// NewStore writes the record to the vector index. The storage UUID is
// derived from the location key, so re-ingesting the same location
// overwrites rather than duplicates.
func NewStore(store Upserter) fn.Stage[EmbeddedRecord, string] {
	return func(ctx context.Context, r EmbeddedRecord) fn.Result[string] {
		locationID := r.LocationID()
		rec := index.PointRecord{
			LocationID: locationID,
			PointID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte(locationID)).String(),
			Embedding:  r.Vector,
			Path:       r.Path,
			Caption:    r.Caption,
			Lat:        r.Lat,
			Lng:        r.Lng,
		}
		if err := store.Upsert(ctx, []index.PointRecord{rec}); err != nil {
			return fn.Err[string](fmt.Errorf("vector upsert: %w", err))
		}
		return fn.Ok(locationID)
	}
}

// LoggedTap returns a stage that logs entry and exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline composes validate → embed → store.
func NewPipeline(deps Deps) fn.Stage[LocationRecord, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[LocationRecord]("validate", log), fn.TracedStage("ingest.validate", Validate))
	embedded := fn.Then(validated, fn.Then(LoggedTap[LocationRecord]("embed", log), fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder))))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedRecord]("store", log), fn.TracedStage("ingest.store", NewStore(deps.Store))))
	return stored
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Record  LocationRecord `json:"record"`
	Error   string         `json:"error"`
	Retries int            `json:"retries"`
}

// StartConsumer subscribes to location records and runs each through the
// pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(Subject, func(msg *nats.Msg) {
		var rec LocationRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		start := time.Now()
		result := pipeline(ctx, rec)
		if deps.OnProcessed != nil {
			_, pipeErr := result.Unwrap()
			deps.OnProcessed(pipeErr, time.Since(start))
		}
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"location", rec.LocationID(),
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Record: rec, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(Subject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			locationID, _ := result.Unwrap()
			log.Info("ingest: success", "location", locationID)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
