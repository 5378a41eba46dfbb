package database

import (
	"sort"
	"strings"

	"github.com/platewise/platewise-api/internal/database/models"
)

// Page is a zero-based page request. Size 0 means no limit.
type Page struct {
	Index int `json:"page"`
	Size  int `json:"page_size"`
}

// Bounds returns the [lo, hi) window of a page over n items.
func (p Page) Bounds(n int) (int, int) {
	if p.Size <= 0 {
		return 0, n
	}
	idx := p.Index
	if idx < 0 {
		idx = 0
	}
	lo := idx * p.Size
	if lo > n {
		lo = n
	}
	hi := lo + p.Size
	if hi > n {
		hi = n
	}
	return lo, hi
}

// Paginate slices items to the requested page.
func Paginate[T any](items []T, p Page) []T {
	lo, hi := p.Bounds(len(items))
	return items[lo:hi]
}

// SortKey selects the ordering of a result set.
type SortKey string

const (
	SortDefault     SortKey = ""
	SortDistance    SortKey = "distance"
	SortName        SortKey = "name"
	SortPriceLevel  SortKey = "price_level"
	SortLastUpdated SortKey = "last_updated"
)

// Sort is an ordering request.
type Sort struct {
	Key  SortKey `json:"key"`
	Desc bool    `json:"desc"`
}

// Column maps a sort key to its store column, empty for computed keys.
func (s Sort) Column() string {
	switch s.Key {
	case SortName:
		return "name"
	case SortPriceLevel:
		return "price_level"
	case SortLastUpdated:
		return "last_updated"
	}
	return ""
}

// Hit is a restaurant with the query-specific metric that ranked it.
type Hit struct {
	Restaurant     *models.Restaurant `json:"restaurant"`
	DistanceMeters float64            `json:"distance_meters,omitempty"`
	Score          float64            `json:"score,omitempty"`
}

// SortHits orders hits in place. SortDefault falls back to fallback.
// Ties break on id so the order is deterministic.
func SortHits(hits []Hit, s Sort, fallback SortKey) {
	key := s.Key
	if key == SortDefault {
		key = fallback
	}
	less := func(a, b Hit) int {
		switch key {
		case SortDistance:
			return cmpFloat(a.DistanceMeters, b.DistanceMeters)
		case SortName:
			return strings.Compare(strings.ToLower(a.Restaurant.Name), strings.ToLower(b.Restaurant.Name))
		case SortPriceLevel:
			return int(a.Restaurant.PriceLevel) - int(b.Restaurant.PriceLevel)
		case SortLastUpdated:
			return a.Restaurant.LastUpdated.Compare(b.Restaurant.LastUpdated)
		}
		// Relevance: higher score first.
		return -cmpFloat(a.Score, b.Score)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		c := less(hits[i], hits[j])
		if s.Desc && key != SortDefault {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return hits[i].Restaurant.ID < hits[j].Restaurant.ID
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
