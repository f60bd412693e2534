package domain

import (
	"strconv"
	"strings"
)

// ParseLocationID recovers coordinates from a "<latitude>_<longitude>"
// identifier. A malformed identifier yields nil coordinates rather than an
// error; missing coordinates degrade the heatmap, they never fail a request.
func ParseLocationID(id string) Coordinates {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return Coordinates{}
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Coordinates{}
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Coordinates{}
	}
	return Coordinates{Lat: &lat, Lng: &lng}
}

// FormatLocationID builds the canonical "<latitude>_<longitude>" identifier
// for a point.
func FormatLocationID(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "_" + strconv.FormatFloat(lng, 'f', -1, 64)
}
