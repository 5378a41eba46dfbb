package database

import (
	"context"
	"errors"

	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/database/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateIdentity = errors.New("restaurant with the same anchor or secondary id already exists")
	ErrUnsupported       = errors.New("operation not supported")
)

// RestaurantRepository is the canonical store for reconciled restaurants.
type RestaurantRepository interface {
	FindByID(ctx context.Context, id string) (*models.Restaurant, error)
	FindByAnchorID(ctx context.Context, anchorID string) (*models.Restaurant, error)
	// FindByIDs returns the records in the order of ids, skipping unknown ids.
	FindByIDs(ctx context.Context, ids []string) ([]*models.Restaurant, error)
	FindByProperties(ctx context.Context, f filter.Filter, page Page, sort Sort) ([]*models.Restaurant, error)

	// GeoNear returns records within radiusMeters of center. Default order is distance ascending.
	GeoNear(ctx context.Context, center models.Coordinates, radiusMeters float64, f filter.Filter, page Page, sort Sort) ([]Hit, error)
	// TextSearch matches query tokens against the mapped text fields, best match first.
	TextSearch(ctx context.Context, query string, f filter.Filter, page Page) ([]Hit, error)

	// CreateRestaurants inserts records whose anchor id and secondary id are both unused.
	// It returns the subset actually created; the rest were rejected by the dedup gate.
	CreateRestaurants(ctx context.Context, batch []*models.Restaurant) ([]*models.Restaurant, error)
	// UpdateRestaurants rewrites existing records in one transaction.
	// id, anchor_id and creation_date are never modified.
	UpdateRestaurants(ctx context.Context, batch []*models.Restaurant) error
	UpsertByID(ctx context.Context, r *models.Restaurant) error
	SetReservationLink(ctx context.Context, id, link string) error

	// DeleteRestaurant is disabled pending a dependent-data cleanup design. Always ErrUnsupported.
	DeleteRestaurant(ctx context.Context, id string) error
}
