// Package association links posts, articles and awards to canonical restaurants.
package association

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/usecase/resolve"
)

// Mention is a content item naming a restaurant by name and free-text location.
type Mention struct {
	Item           repository.ContentItem `json:"item"`
	RestaurantName string                 `json:"restaurant_name"`
	LocationText   string                 `json:"location"`
}

// Page is one batch of mentions. An empty NextCursor ends the sweep.
type Page struct {
	Mentions   []Mention
	NextCursor string
}

// ContentSource pages through mentions. The empty cursor is the first page.
type ContentSource interface {
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

type NameResolver interface {
	ResolveByNameAndLocation(ctx context.Context, name, locationText string) (*models.Restaurant, error)
}

// ContentLinker records a restaurant-to-content edge.
type ContentLinker interface {
	LinkContent(ctx context.Context, restaurantID string, item repository.ContentItem) error
}

type Report struct {
	Pages      int `json:"pages"`
	Scanned    int `json:"scanned"`
	Linked     int `json:"linked"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
	// Resume is the cursor a stopped sweep should restart from. Empty once the source is exhausted.
	Resume string `json:"resume_cursor,omitempty"`
}

type Sweeper struct {
	source   ContentSource
	resolver NameResolver
	linker   ContentLinker
	maxPages int
}

// NewSweeper creates a sweeper. maxPages 0 means no page limit.
func NewSweeper(source ContentSource, resolver NameResolver, linker ContentLinker, maxPages int) *Sweeper {
	return &Sweeper{source: source, resolver: resolver, linker: linker, maxPages: maxPages}
}

// Run walks the source page by page until the cursor runs out, the page limit is hit
// or ctx is cancelled. A page fetch error stops the sweep; per-mention failures do not.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	return s.RunFrom(ctx, "")
}

// RunFrom is Run starting at cursor instead of the first page.
func (s *Sweeper) RunFrom(ctx context.Context, cursor string) (Report, error) {
	var report Report
	for {
		if err := ctx.Err(); err != nil {
			report.Resume = cursor
			return report, err
		}
		if s.maxPages > 0 && report.Pages >= s.maxPages {
			log.Printf("[Association] Page limit %d reached, stopping at cursor %q", s.maxPages, cursor)
			report.Resume = cursor
			return report, nil
		}

		page, err := s.source.FetchPage(ctx, cursor)
		if err != nil {
			report.Resume = cursor
			return report, fmt.Errorf("failed to fetch page at cursor %q: %w", cursor, err)
		}
		report.Pages++

		for _, m := range page.Mentions {
			report.Scanned++
			s.associate(ctx, m, &report)
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}
	log.Printf("[Association] Sweep complete: %d pages, %d scanned, %d linked, %d unresolved, %d failed",
		report.Pages, report.Scanned, report.Linked, report.Unresolved, report.Failed)
	return report, nil
}

func (s *Sweeper) associate(ctx context.Context, m Mention, report *Report) {
	r, err := s.resolver.ResolveByNameAndLocation(ctx, m.RestaurantName, m.LocationText)
	if errors.Is(err, resolve.ErrUnresolved) || (err == nil && r == nil) {
		report.Unresolved++
		return
	}
	if err != nil {
		log.Printf("[Association] Warning: resolving %q (%s) failed: %v", m.RestaurantName, m.LocationText, err)
		report.Failed++
		return
	}
	if err := s.linker.LinkContent(ctx, r.ID, m.Item); err != nil {
		log.Printf("[Association] Warning: linking %s to %s failed: %v", m.Item.ID, r.ID, err)
		report.Failed++
		return
	}
	report.Linked++
}
