// Package extract produces comparable, unit-normalized embedding vectors for
// images and text across several vision-language model families. The model
// family is resolved once from the checkpoint identifier; inference runs on a
// shared model-server backend whose weights are loaded once and never mutated,
// so a single extractor is safe for concurrent use across requests.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/planit-ai/planit/engine/domain"
)

// Extractor turns raw inputs into L2-normalized embedding vectors. Output
// order matches input order and output length equals input length.
type Extractor interface {
	ExtractImageFeatures(ctx context.Context, images []image.Image) ([]domain.EmbeddingVector, error)
	ExtractTextFeatures(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)
	Descriptor() domain.ModelDescriptor
}

// remote is the shared implementation behind every model family. Variants
// differ only in their descriptor (dimension table lookup, input resolution,
// token limit) and text preprocessing policy.
type remote struct {
	desc      domain.ModelDescriptor
	backend   Backend
	lowercase bool
}

var _ Extractor = (*remote)(nil)

func (r *remote) Descriptor() domain.ModelDescriptor { return r.desc }

func (r *remote) ExtractTextFeatures(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("extract: texts: %w", domain.ErrEmptyBatch)
	}

	prepared := texts
	if r.lowercase {
		prepared = make([]string, len(texts))
		for i, t := range texts {
			prepared[i] = strings.ToLower(t)
		}
	}

	rows, err := r.backend.EmbedText(ctx, TextRequest{
		Model:     r.desc.Identifier,
		Texts:     prepared,
		MaxTokens: r.desc.MaxTextTokens,
		PadToMax:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: embed text: %w", err)
	}
	return r.toVectors(rows, len(texts), domain.ModalityText)
}

func (r *remote) ExtractImageFeatures(ctx context.Context, images []image.Image) ([]domain.EmbeddingVector, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("extract: images: %w", domain.ErrEmptyBatch)
	}

	encoded := make([][]byte, len(images))
	for i, img := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("extract: encode image %d: %w", i, err)
		}
		encoded[i] = buf.Bytes()
	}

	rows, err := r.backend.EmbedImage(ctx, ImageRequest{
		Model:      r.desc.Identifier,
		ImagesPNG:  encoded,
		Resolution: r.desc.InputResolution,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: embed image: %w", err)
	}
	return r.toVectors(rows, len(images), domain.ModalityImage)
}

// toVectors normalizes raw model output rows. Normalization is never skipped:
// downstream scoring assumes unit vectors so that inner product equals cosine
// similarity.
func (r *remote) toVectors(rows [][]float32, want int, modality domain.Modality) ([]domain.EmbeddingVector, error) {
	if len(rows) != want {
		return nil, fmt.Errorf("extract: backend returned %d rows for %d inputs", len(rows), want)
	}
	out := make([]domain.EmbeddingVector, len(rows))
	for i, row := range rows {
		if len(row) != r.desc.FeatureDim {
			return nil, fmt.Errorf("extract: row %d has dim %d, model %s expects %d",
				i, len(row), r.desc.Identifier, r.desc.FeatureDim)
		}
		out[i] = domain.EmbeddingVector{
			Values:   l2Normalize(row),
			Modality: modality,
			Dim:      r.desc.FeatureDim,
		}
	}
	return out, nil
}

// l2Normalize returns v / ||v||₂. A zero vector is returned unchanged since
// it has no direction to preserve.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
