package service

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"dora/internal/metrics"
	"dora/internal/model"
	"dora/internal/utils"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SearchLayer names the strategy that produced a search result
type SearchLayer string

const (
	LayerName     SearchLayer = "name"
	LayerCategory SearchLayer = "category"
	LayerContent  SearchLayer = "content"
	LayerFacility SearchLayer = "facility"
	LayerNone     SearchLayer = "none"
)

type searchHit struct {
	records []model.LocationRecord
	layer   SearchLayer
}

// LocationSearch answers free-text location queries with a layered strategy:
// name, then category, then description content, then facility notes. The
// first layer with any match wins and results keep dataset order.
type LocationSearch struct {
	store     *LocationStore
	cache     *lru.Cache[string, searchHit]
	threshold float64
}

// NewLocationSearch creates a search over store. cacheSize <= 0 disables caching.
func NewLocationSearch(store *LocationStore, cacheSize int) *LocationSearch {
	s := &LocationSearch{store: store, threshold: utils.DefaultSimilarityThreshold}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes
		s.cache, _ = lru.New[string, searchHit](cacheSize)
	}
	return s
}

// Search returns the locations matching query, possibly none
func (s *LocationSearch) Search(ctx context.Context, query string) []model.LocationRecord {
	records, _ := s.SearchWithLayer(ctx, query)
	return records
}

// SearchWithLayer is Search that also reports which layer matched
func (s *LocationSearch) SearchWithLayer(ctx context.Context, query string) ([]model.LocationRecord, SearchLayer) {
	q := utils.Normalize(query)
	all := s.store.All(ctx)
	if q == "" || len(all) == 0 {
		return nil, LayerNone
	}

	if s.cache != nil {
		if hit, ok := s.cache.Get(q); ok {
			metrics.LocationSearches.WithLabelValues(string(hit.layer), "hit").Inc()
			return clone(hit.records), hit.layer
		}
	}

	hit := s.search(all, q)
	metrics.LocationSearches.WithLabelValues(string(hit.layer), "miss").Inc()
	if s.cache != nil {
		s.cache.Add(q, hit)
	}
	return clone(hit.records), hit.layer
}

func (s *LocationSearch) search(all []model.LocationRecord, q string) searchHit {
	if m := filter(all, func(l model.LocationRecord) bool {
		return utils.FuzzyMatch(l.Name, q, s.threshold)
	}); len(m) > 0 {
		return searchHit{m, LayerName}
	}

	if m := filter(all, func(l model.LocationRecord) bool {
		c := utils.Normalize(l.Category)
		return c != "" && (strings.Contains(c, q) || strings.Contains(q, c))
	}); len(m) > 0 {
		return searchHit{m, LayerCategory}
	}

	words := queryWords(q)
	if m := filter(all, func(l model.LocationRecord) bool {
		return s.contentMatches(l, words)
	}); len(m) > 0 {
		return searchHit{m, LayerContent}
	}

	if m := filter(all, func(l model.LocationRecord) bool {
		text := strings.ToLower(strings.Join(l.AccessibilityNotes, " ") + " " + l.VoiceHint)
		return strings.Contains(text, q)
	}); len(m) > 0 {
		return searchHit{m, LayerFacility}
	}

	return searchHit{nil, LayerNone}
}

func (s *LocationSearch) contentMatches(l model.LocationRecord, words []string) bool {
	if len(words) == 0 {
		return false
	}
	h := l.DirectionalHints
	text := strings.ToLower(strings.Join([]string{
		l.Description,
		strings.Join(l.NearbyLandmarks, " "),
		h.Front, h.Back, h.Left, h.Right,
	}, " "))
	tokens := tokenize(text)

	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
		for _, t := range tokens {
			if utils.Similarity(t, w) >= s.threshold {
				return true
			}
		}
	}
	return false
}

// stopWords are question and navigation words that appear in nearly every
// description
var stopWords = map[string]bool{
	"the": true, "where": true, "what": true, "which": true, "how": true,
	"and": true, "for": true, "can": true, "you": true, "tell": true,
	"about": true, "show": true, "find": true, "reach": true, "get": true,
	"way": true, "there": true, "near": true, "located": true, "location": true,
	"direction": true, "directions": true, "route": true, "path": true,
}

// queryWords keeps the query words longer than two characters that are not
// stop words
func queryWords(q string) []string {
	var words []string
	for _, w := range tokenize(q) {
		if utf8.RuneCountInString(w) > 2 && !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func filter(all []model.LocationRecord, keep func(model.LocationRecord) bool) []model.LocationRecord {
	var out []model.LocationRecord
	for _, l := range all {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func clone(records []model.LocationRecord) []model.LocationRecord {
	if records == nil {
		return nil
	}
	return append([]model.LocationRecord(nil), records...)
}
