package ingest

import (
	"fmt"

	"github.com/planit-ai/planit/engine/domain"
)

// LocationRecord is one street-level capture submitted for indexing. Either a
// precomputed embedding or a caption to embed must be present.
type LocationRecord struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Path      string    `json:"path"`
	Caption   string    `json:"caption,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// LocationID returns the "<lat>_<lng>" key the search pipeline uses.
func (r LocationRecord) LocationID() string {
	return domain.FormatLocationID(r.Lat, r.Lng)
}

// EmbeddedRecord is a LocationRecord with its embedding resolved.
type EmbeddedRecord struct {
	LocationRecord
	Vector []float32
}

var (
	errCoordinateRange = fmt.Errorf("coordinate out of range")
	errMissingPath     = fmt.Errorf("path is required")
	errNothingToEmbed  = fmt.Errorf("record carries neither embedding nor caption")
)

func validateRecord(r LocationRecord) error {
	if r.Lat < -90 || r.Lat > 90 {
		return domain.NewValidationError("lat", fmt.Sprint(r.Lat), errCoordinateRange)
	}
	if r.Lng < -180 || r.Lng > 180 {
		return domain.NewValidationError("lng", fmt.Sprint(r.Lng), errCoordinateRange)
	}
	if r.Path == "" {
		return domain.NewValidationError("path", "", errMissingPath)
	}
	if len(r.Embedding) == 0 && r.Caption == "" {
		return domain.NewValidationError("caption", "", errNothingToEmbed)
	}
	return nil
}
