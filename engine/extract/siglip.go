package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/planit-ai/planit/engine/domain"
)

// Feature dimensions per published SigLIP v1 checkpoint.
var siglipFeatureDims = map[string]int{
	"google/siglip-base-patch16-224":    768,
	"google/siglip-large-patch16-384":   1024,
	"google/siglip-so400m-patch14-224":  1152,
	"google/siglip-so400m-patch14-384":  1152,
	"google/siglip-so400m-patch16-256":  1152,
	"google/siglip-so400m-patch16-384":  1152,
	"google/siglip-so400m-patch16-512":  1152,
	"google/siglip-giant-opt-patch16-256": 1280,
	"google/siglip-giant-opt-patch16-384": 1280,
}

// Feature dimensions per published SigLIP 2 checkpoint.
var siglip2FeatureDims = map[string]int{
	"google/siglip2-base-patch16-224":   768,
	"google/siglip2-base-patch16-256":   768,
	"google/siglip2-base-patch16-384":   768,
	"google/siglip2-base-patch16-512":   768,
	"google/siglip2-base-patch32-256":   768,
	"google/siglip2-large-patch16-256":  1024,
	"google/siglip2-large-patch16-384":  1024,
	"google/siglip2-large-patch16-512":  1024,
	"google/siglip2-so400m-patch14-224": 1152,
	"google/siglip2-so400m-patch14-384": 1152,
	"google/siglip2-so400m-patch16-256": 1152,
	"google/siglip2-so400m-patch16-384": 1152,
	"google/siglip2-so400m-patch16-512": 1152,
	"google/siglip2-giant-opt-patch16-256": 1280,
	"google/siglip2-giant-opt-patch16-384": 1280,
}

const (
	siglipDefaultFeatureDim = 768
	siglipMaxTextTokens     = 64
	siglipDefaultResolution = 224
)

var siglipResolutionPattern = regexp.MustCompile(`patch\d+-(\d+)`)

// siglipResolution parses the input resolution out of checkpoint names like
// "google/siglip2-base-patch16-512".
func siglipResolution(identifier string) int {
	m := siglipResolutionPattern.FindStringSubmatch(identifier)
	if m == nil {
		return siglipDefaultResolution
	}
	res, err := strconv.Atoi(m[1])
	if err != nil {
		return siglipDefaultResolution
	}
	return res
}

// Both SigLIP generations share one text policy: a short fixed token budget
// and lower-cased input, matching how their checkpoints were trained. This is
// family-specific; CLIP variants must not lower-case.
func newSigLIPFamily(identifier string, family domain.ModelFamily, dims map[string]int, backend Backend) *remote {
	dim, ok := dims[strings.ToLower(identifier)]
	if !ok {
		dim = siglipDefaultFeatureDim
	}
	return &remote{
		desc: domain.ModelDescriptor{
			Identifier:      identifier,
			Family:          family,
			FeatureDim:      dim,
			InputResolution: siglipResolution(identifier),
			MaxTextTokens:   siglipMaxTextTokens,
		},
		backend:   backend,
		lowercase: true,
	}
}

func newSigLIP(identifier string, backend Backend) *remote {
	return newSigLIPFamily(identifier, domain.FamilySigLIP, siglipFeatureDims, backend)
}

func newSigLIP2(identifier string, backend Backend) *remote {
	return newSigLIPFamily(identifier, domain.FamilySigLIP2, siglip2FeatureDims, backend)
}
