package index

import (
	"context"
	"strconv"

	"github.com/planit-ai/planit/engine/domain"
)

// The synthetic result set is anchored on downtown St. Louis and spreads
// northeast with monotonically decreasing scores.
const (
	mockAnchorLat  = 38.6270
	mockAnchorLng  = -90.1994
	mockMaxResults = 20
)

// MockGateway returns a deterministic synthetic result set so the full
// pipeline can run without a live index. Same inputs, same outputs, always.
type MockGateway struct{}

var _ Gateway = (*MockGateway)(nil)

// NewMock creates a MockGateway.
func NewMock() *MockGateway { return &MockGateway{} }

// Search implements Gateway. The query vector is ignored; at most
// mockMaxResults hits are produced.
func (m *MockGateway) Search(_ context.Context, _ []float32, topK int) ([]domain.SearchHit, error) {
	n := topK
	if n > mockMaxResults {
		n = mockMaxResults
	}
	if n < 0 {
		n = 0
	}

	hits := make([]domain.SearchHit, n)
	for i := 0; i < n; i++ {
		lat := mockAnchorLat + float64(i)*0.01 - 0.1
		lng := mockAnchorLng + float64(i)*0.01 - 0.1
		latCopy, lngCopy := lat, lng
		hits[i] = domain.SearchHit{
			ID:       domain.FormatLocationID(lat, lng),
			Score:    0.9 - float64(i)*0.05,
			Distance: float64(i) * 0.1,
			Path:     "/mock/path/" + strconv.Itoa(i),
			Coords:   domain.Coordinates{Lat: &latCopy, Lng: &lngCopy},
		}
	}
	return hits, nil
}
