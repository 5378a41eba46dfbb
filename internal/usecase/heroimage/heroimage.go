// Package heroimage resolves a restaurant's hero image through a fixed fallback chain:
// explicit hero, first collection image, donor post media, none.
package heroimage

import (
	"context"
	"log"

	"github.com/platewise/platewise-api/internal/database/models"
)

// Source names the step of the chain that produced the image.
type Source string

const (
	SourceExplicit   Source = "explicit"
	SourceCollection Source = "collection"
	SourceDonor      Source = "donor"
	SourceNone       Source = "none"
)

// DonorSource looks up media from content already associated with a restaurant.
type DonorSource interface {
	DonorMedia(ctx context.Context, restaurantID string) (string, error)
}

// Resolve returns the first defined value of the chain. donors may be nil.
// A failing donor lookup is logged and treated as absent.
func Resolve(ctx context.Context, r *models.Restaurant, donors DonorSource) (string, Source) {
	if r.HeroImageURL != "" {
		return r.HeroImageURL, SourceExplicit
	}
	for _, u := range r.ImageCollectionURLs {
		if u != "" {
			return u, SourceCollection
		}
		break
	}
	if donors != nil && r.ID != "" {
		media, err := donors.DonorMedia(ctx, r.ID)
		if err != nil {
			log.Printf("[HeroImage] Warning: donor lookup failed for %s: %v", r.ID, err)
		} else if media != "" {
			return media, SourceDonor
		}
	}
	return "", SourceNone
}

// ApplyFallback fills in missing hero images on records about to be served.
// It only mutates the given records, never the store.
func ApplyFallback(ctx context.Context, rs []*models.Restaurant, donors DonorSource) {
	for _, r := range rs {
		if r == nil || r.HeroImageURL != "" {
			continue
		}
		r.HeroImageURL, _ = Resolve(ctx, r, donors)
	}
}
