// Package amenity classifies natural-language queries into amenity topics and
// extracts structured filters from free-form requests. The keyword classifier
// is the fast path; the LLM extractor handles requests the keywords cannot.
package amenity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultTopic is the generic fallback when no topic matches confidently.
const DefaultTopic = "attractions"

// topicKeywords maps each topic to its lowercase trigger keywords.
var topicKeywords = map[string][]string{
	"parks":           {"park", "parks", "playground", "dog park", "green space", "botanical", "garden", "picnic", "trail", "hike", "hiking"},
	"restaurants":     {"restaurant", "restaurants", "food", "eat", "dining", "cuisine", "brunch", "dinner"},
	"cafes":           {"cafe", "coffee", "espresso", "latte"},
	"bars":            {"bar", "bars", "pub", "cocktail", "happy hour", "brewery"},
	"museums":         {"museum", "museums", "exhibit", "gallery", "art museum", "science museum"},
	"attractions":     {"attraction", "landmark", "tourist spot", "sightseeing", "points of interest"},
	"beaches":         {"beach", "beaches", "shore", "coast"},
	"hiking":          {"hike", "hiking", "trailhead", "trail", "nature walk"},
	"shopping":        {"mall", "shopping", "boutique", "store", "market"},
	"gyms":            {"gym", "fitness", "workout", "yoga", "pilates"},
	"schools":         {"school", "schools", "elementary", "middle school", "high school", "university", "college"},
	"safety":          {"safe", "crime", "dangerous", "safety"},
	"affordability":   {"affordable", "cheap", "expensive", "cost of living", "rent", "prices"},
	"housing":         {"apartment", "housing", "real estate", "condo", "house"},
	"weather":         {"weather", "rain", "temperature", "climate"},
	"events":          {"event", "events", "festival", "concert"},
	"transportation":  {"transport", "transportation", "bus", "subway", "metro", "train", "station", "tram"},
	"traffic_parking": {"traffic", "parking", "congestion"},
	"healthcare":      {"hospital", "clinic", "urgent care", "doctor", "healthcare", "pharmacy"},
	"pets":            {"pet", "dog", "cat", "veterinary", "dog park", "pet store"},
	"nightlife":       {"nightlife", "club", "late night", "dance"},
	"family_kids":     {"family", "kid", "kids", "playground", "children"},
	"accessibility":   {"accessible", "wheelchair", "ada"},
	"internet":        {"internet", "wifi", "cell", "5g", "coverage"},
	"cleanliness":     {"clean", "cleanliness", "dirty", "trash", "litter"},
	"noise":           {"noise", "quiet", "loud"},
	"community":       {"community", "neighbors", "friendly", "vibe"},
	"sports":          {"stadium", "arena", "sports", "game", "field", "court"},
	"libraries":       {"library", "libraries"},
	"markets":         {"farmers market", "market", "street market"},
}

// Catalog classifies questions against a fixed topic/keyword table.
type Catalog struct {
	patterns map[string][]*regexp.Regexp
	topics   []string
}

// NewCatalog compiles the builtin topic table.
func NewCatalog() *Catalog {
	return newCatalog(topicKeywords)
}

func newCatalog(keywords map[string][]string) *Catalog {
	c := &Catalog{patterns: make(map[string][]*regexp.Regexp, len(keywords))}
	for topic, kws := range keywords {
		pats := make([]*regexp.Regexp, len(kws))
		for i, k := range kws {
			pats[i] = regexp.MustCompile(fmt.Sprintf(`\b%s\b`, regexp.QuoteMeta(k)))
		}
		c.patterns[topic] = pats
		c.topics = append(c.topics, topic)
	}
	sort.Strings(c.topics)
	return c
}

// Topics returns the known topic names, sorted.
func (c *Catalog) Topics() []string {
	return append([]string(nil), c.topics...)
}

// Classify picks the topic with the most keyword hits. It reports false on
// zero hits or a tie for first place, so callers can apply a fallback.
func (c *Catalog) Classify(question string) (string, bool) {
	q := strings.ToLower(question)

	type hit struct {
		topic string
		count int
	}
	var hits []hit
	for _, topic := range c.topics {
		n := 0
		for _, p := range c.patterns[topic] {
			if p.MatchString(q) {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, hit{topic, n})
		}
	}
	if len(hits) == 0 {
		return "", false
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].count > hits[j].count })
	if len(hits) > 1 && hits[0].count == hits[1].count {
		return "", false
	}
	return hits[0].topic, true
}

// ClassifyOrDefault classifies and falls back to DefaultTopic when unsure.
func (c *Catalog) ClassifyOrDefault(question string) string {
	if t, ok := c.Classify(question); ok {
		return t
	}
	return DefaultTopic
}

// Group buckets questions by their classified topic.
func (c *Catalog) Group(questions []string) map[string][]string {
	buckets := make(map[string][]string)
	for _, q := range questions {
		t := c.ClassifyOrDefault(q)
		buckets[t] = append(buckets[t], q)
	}
	return buckets
}
