// Package domain holds the core types shared across the retrieval scoring
// pipeline: embedding vectors, model descriptors, search hits, and the
// error taxonomy.
package domain

import "math"

// Modality tags an embedding vector with the kind of input it summarizes.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
)

// ModelFamily identifies one of the supported vision-language model families.
type ModelFamily string

const (
	FamilyCLIP     ModelFamily = "clip-hf"
	FamilyOpenCLIP ModelFamily = "open-clip"
	FamilySigLIP   ModelFamily = "siglip"
	FamilySigLIP2  ModelFamily = "siglip2"
)

// ModelDescriptor is the immutable record describing a concrete checkpoint.
// It is resolved once at extractor construction and never mutated.
type ModelDescriptor struct {
	Identifier      string
	Family          ModelFamily
	FeatureDim      int
	InputResolution int
	MaxTextTokens   int
}

// EmbeddingVector is a fixed-length, L2-normalized feature vector. Two
// vectors are only comparable by inner product when they come from the same
// model family and share the same dimension.
type EmbeddingVector struct {
	Values   []float32
	Modality Modality
	Dim      int
}

// Norm returns the L2 norm of the vector.
func (v EmbeddingVector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product with another vector of the same dimension.
// For unit vectors this equals cosine similarity.
func (v EmbeddingVector) Dot(other EmbeddingVector) (float64, error) {
	if v.Dim != other.Dim || len(v.Values) != len(other.Values) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i, x := range v.Values {
		sum += float64(x) * float64(other.Values[i])
	}
	return sum, nil
}

// Coordinates is a decimal-degree point. Nil fields mean the coordinate
// could not be recovered from the hit.
type Coordinates struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// SearchHit is a single ranked result from the vector index. Hit collections
// are owned per-request and consumed read-only downstream.
type SearchHit struct {
	ID       string
	Score    float64
	Distance float64
	Path     string
	Caption  string
	Coords   Coordinates
}

// AmenityScoreMap maps an amenity name to its ordered normalized score
// vector. Score sequences are positionally aligned with that sub-query's
// hits, keyed by amenity rather than assumed shape-equal.
type AmenityScoreMap = map[string][]float64

// DefaultKey is the heatmap key used when a request carries no amenity
// filters.
const DefaultKey = "default"
