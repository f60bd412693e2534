package amenity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Registry stores curated topic/keyword sets in Neo4j so deployments can
// extend the builtin catalog without a code change.
type Registry struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// NewRegistry creates a Registry over an existing driver.
func NewRegistry(driver neo4j.DriverWithContext, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{driver: driver, logger: logger}
}

// Save creates or updates one topic's keyword list.
func (r *Registry) Save(ctx context.Context, topic string, keywords []string) error {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (t:Topic {name: $name}) SET t.keywords = $keywords`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"name":     topic,
		"keywords": keywords,
	})
	if err != nil {
		return fmt.Errorf("amenity: save topic %s: %w", topic, err)
	}
	return nil
}

// Load builds a Catalog from the stored topics.
func (r *Registry) Load(ctx context.Context) (*Catalog, error) {
	sess := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (t:Topic) RETURN t.name AS name, t.keywords AS keywords`
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("amenity: load topics: %w", err)
	}

	keywords := make(map[string][]string)
	for result.Next(ctx) {
		rec := result.Record()
		name, _ := rec.Get("name")
		raw, _ := rec.Get("keywords")
		topic, ok := name.(string)
		if !ok || topic == "" {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		kws := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok && s != "" {
				kws = append(kws, s)
			}
		}
		if len(kws) > 0 {
			keywords[topic] = kws
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("amenity: load topics: %w", err)
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("amenity: no topics stored")
	}
	return newCatalog(keywords), nil
}

// LoadOrBuiltin loads the stored catalog, falling back to the builtin table
// when the registry is empty or unreachable.
func (r *Registry) LoadOrBuiltin(ctx context.Context) *Catalog {
	c, err := r.Load(ctx)
	if err != nil {
		r.logger.Warn("amenity: using builtin topic catalog", "error", err)
		return NewCatalog()
	}
	return c
}

// SeedBuiltin writes the builtin topic table into the registry. Used by the
// ingest tool to bootstrap a fresh deployment.
func (r *Registry) SeedBuiltin(ctx context.Context) error {
	for topic, kws := range topicKeywords {
		if err := r.Save(ctx, topic, kws); err != nil {
			return err
		}
	}
	return nil
}
