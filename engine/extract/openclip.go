package extract

import (
	"strings"

	"github.com/planit-ai/planit/engine/domain"
)

// Feature dimensions per OpenCLIP architecture name. Unlisted identifiers
// fall back to openCLIPDefaultFeatureDim.
var openCLIPFeatureDims = map[string]int{
	"vit-b-32": 512,
	"vit-b-16": 512,
	"vit-l-14": 768,
	"vit-h-14": 1024,
}

const (
	openCLIPDefaultFeatureDim = 512
	openCLIPMaxTextTokens     = 77
	openCLIPResolution        = 224
)

// newOpenCLIP builds the OpenCLIP variant. Its tokenizer has a fixed 77-token
// context; text is not lower-cased.
func newOpenCLIP(identifier string, backend Backend) *remote {
	dim, ok := openCLIPFeatureDims[strings.ToLower(identifier)]
	if !ok {
		dim = openCLIPDefaultFeatureDim
	}
	return &remote{
		desc: domain.ModelDescriptor{
			Identifier:      identifier,
			Family:          domain.FamilyOpenCLIP,
			FeatureDim:      dim,
			InputResolution: openCLIPResolution,
			MaxTextTokens:   openCLIPMaxTextTokens,
		},
		backend: backend,
	}
}
