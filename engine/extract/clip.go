package extract

import (
	"strings"

	"github.com/planit-ai/planit/engine/domain"
)

// Feature dimensions per published CLIP checkpoint. Unlisted identifiers fall
// back to clipDefaultFeatureDim.
var clipFeatureDims = map[string]int{
	"openai/clip-vit-base-patch32":     512,
	"openai/clip-vit-base-patch16":     512,
	"openai/clip-vit-large-patch14":    768,
	"openai/clip-vit-large-patch14-336": 768,
}

const (
	clipDefaultFeatureDim = 768
	clipMaxTextTokens     = 77
)

// newCLIP builds the Hugging Face CLIP variant. CLIP pads text to its fixed
// 77-token context and does not lower-case input.
func newCLIP(identifier string, backend Backend) *remote {
	dim, ok := clipFeatureDims[strings.ToLower(identifier)]
	if !ok {
		dim = clipDefaultFeatureDim
	}
	resolution := 224
	if strings.Contains(identifier, "336") {
		resolution = 336
	}
	return &remote{
		desc: domain.ModelDescriptor{
			Identifier:      identifier,
			Family:          domain.FamilyCLIP,
			FeatureDim:      dim,
			InputResolution: resolution,
			MaxTextTokens:   clipMaxTextTokens,
		},
		backend: backend,
	}
}
