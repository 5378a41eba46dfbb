package heroimage

import (
	"context"
	"errors"
	"log"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/models"
)

// Override is a manually chosen hero image for a record the chain left empty.
type Override struct {
	RestaurantID string `json:"restaurant_id" validate:"required"`
	URL          string `json:"hero_image_url" validate:"required,url"`
}

// RecordStore is the slice of the canonical store a backfill writes through.
type RecordStore interface {
	FindByID(ctx context.Context, id string) (*models.Restaurant, error)
	UpsertByID(ctx context.Context, r *models.Restaurant) error
}

type BackfillReport struct {
	Applied   int `json:"applied"`
	Unchanged int `json:"unchanged"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

// Backfill stores each override as the record's explicit hero image.
// Unknown ids and write failures are counted and skipped; only cancellation stops the run.
func Backfill(ctx context.Context, store RecordStore, overrides []Override) (BackfillReport, error) {
	var report BackfillReport
	for _, o := range overrides {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r, err := store.FindByID(ctx, o.RestaurantID)
		if errors.Is(err, database.ErrNotFound) {
			log.Printf("[HeroImage] Warning: backfill target %s does not exist", o.RestaurantID)
			report.Missing++
			continue
		}
		if err != nil {
			log.Printf("[HeroImage] Error: failed to load %s: %v", o.RestaurantID, err)
			report.Failed++
			continue
		}
		if r.HeroImageURL == o.URL {
			report.Unchanged++
			continue
		}
		r.HeroImageURL = o.URL
		if err := store.UpsertByID(ctx, r); err != nil {
			log.Printf("[HeroImage] Error: failed to store hero image for %s: %v", o.RestaurantID, err)
			report.Failed++
			continue
		}
		report.Applied++
	}
	return report, nil
}
