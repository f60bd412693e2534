package extract

import (
	"fmt"
	"strings"

	"github.com/planit-ai/planit/engine/domain"
)

// New resolves a checkpoint identifier to its extractor variant. Matching is
// case-insensitive and most-specific-first: "clip-vit" wins over the generic
// "vit-" prefix and "siglip2" wins over "siglip", so a SigLIP 2 checkpoint can
// never resolve to the v1 family. Pure dispatch; the only effect is
// constructing the chosen variant.
func New(identifier string, backend Backend) (Extractor, error) {
	lower := strings.ToLower(identifier)
	switch {
	case strings.Contains(lower, "openai/clip") || strings.Contains(lower, "clip-vit"):
		return newCLIP(identifier, backend), nil
	case strings.Contains(lower, "siglip2"):
		return newSigLIP2(identifier, backend), nil
	case strings.Contains(lower, "siglip"):
		return newSigLIP(identifier, backend), nil
	case strings.Contains(lower, "vit-"):
		return newOpenCLIP(identifier, backend), nil
	}
	return nil, fmt.Errorf("extract: %w: %q", domain.ErrUnsupportedModel, identifier)
}
