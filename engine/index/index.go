// Package index talks to the vector store behind the retrieval pipeline. The
// live implementation fronts Qdrant; a deterministic mock serves local
// development when no index is reachable. Which one a deployment gets is an
// explicit configuration choice, never inferred from missing credentials.
package index

import (
	"context"

	"github.com/planit-ai/planit/engine/domain"
)

// Mode selects the gateway behavior when the backing index is unavailable.
type Mode string

const (
	// ModeRequired fails fast with domain.ErrIndexUnavailable.
	ModeRequired Mode = "required"
	// ModeMock serves deterministic synthetic results for local testing.
	ModeMock Mode = "mock"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeRequired, ModeMock:
		return Mode(s), true
	}
	return "", false
}

// Gateway submits a query vector and receives hits ordered by descending
// inner-product similarity. Valid because stored and query vectors are all
// unit-normalized.
type Gateway interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error)
}
