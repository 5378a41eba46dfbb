// Package integration connects reservation-platform records to canonical restaurants.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/usecase/resolve"
	"golang.org/x/time/rate"
)

// Record is one restaurant listing on a reservation platform.
type Record struct {
	Platform   string `json:"platform" validate:"required"`
	ExternalID string `json:"external_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Location   string `json:"location"`
	BookingURL string `json:"booking_url" validate:"required,url"`
}

type NameResolver interface {
	ResolveByNameAndLocation(ctx context.Context, name, locationText string) (*models.Restaurant, error)
}

// LinkWriter stores the booking link and marks the restaurant reservable.
type LinkWriter interface {
	SetReservationLink(ctx context.Context, id, link string) error
}

type Report struct {
	Connected  int `json:"connected"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// Connector resolves records one at a time with a fixed delay between provider calls.
// Every resolution may hit the same provider account, so records are never fanned out.
type Connector struct {
	resolver NameResolver
	links    LinkWriter
	limiter  *rate.Limiter
}

func NewConnector(resolver NameResolver, links LinkWriter, delay time.Duration) *Connector {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Connector{
		resolver: resolver,
		links:    links,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Connect processes records in order. It stops early only when ctx is done.
func (c *Connector) Connect(ctx context.Context, records []Record) (Report, error) {
	var report Report
	for _, rec := range records {
		if err := c.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("connect interrupted after %d records: %w", report.Connected+report.Unresolved+report.Failed, err)
		}

		r, err := c.resolver.ResolveByNameAndLocation(ctx, rec.Name, rec.Location)
		if errors.Is(err, resolve.ErrUnresolved) || (err == nil && r == nil) {
			log.Printf("[Integration] %s/%s %q did not resolve to a restaurant", rec.Platform, rec.ExternalID, rec.Name)
			report.Unresolved++
			continue
		}
		if err != nil {
			log.Printf("[Integration] Warning: resolving %s/%s failed: %v", rec.Platform, rec.ExternalID, err)
			report.Failed++
			continue
		}
		if err := c.links.SetReservationLink(ctx, r.ID, rec.BookingURL); err != nil {
			log.Printf("[Integration] Warning: storing booking link for %s failed: %v", r.ID, err)
			report.Failed++
			continue
		}
		report.Connected++
	}
	log.Printf("[Integration] Connected %d, unresolved %d, failed %d", report.Connected, report.Unresolved, report.Failed)
	return report, nil
}
