package domain

import (
	"strconv"
	"strings"
)

// MaxTopK bounds how many hits a single request may ask for.
const MaxTopK = 10000

// ValidateSearchInput checks the user-supplied knobs of a search request.
func ValidateSearchInput(query string, topK int, temperature float64) error {
	if strings.TrimSpace(query) == "" {
		return NewValidationError("query", query, ErrEmptyQuery)
	}
	if topK <= 0 || topK > MaxTopK {
		return NewValidationError("top_k", strconv.Itoa(topK), ErrInvalidTopK)
	}
	if temperature <= 0 {
		return NewValidationError("temperature", strconv.FormatFloat(temperature, 'g', -1, 64), ErrInvalidTemperature)
	}
	return nil
}
