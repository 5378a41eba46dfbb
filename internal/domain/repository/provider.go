package repository

import (
	"context"

	"github.com/platewise/platewise-api/internal/database/models"
)

// Category is a discovery-provider category; only Title is kept on merge.
type Category struct {
	Alias string
	Title string
}

// BusinessStub is the discovery provider's partial view of a business.
type BusinessStub struct {
	ExternalID   string
	Name         string
	Address      string
	City         string
	Coordinates  models.Coordinates
	Rating       float64
	Price        models.PriceLevel
	HeroImageURL string
	Categories   []Category
}

// DetailStub is the anchor provider's partial view of a business.
type DetailStub struct {
	Name             string
	Rating           float64
	Coordinates      models.Coordinates
	Hours            map[string]string
	ServesAlcohol    bool
	Reservable       bool
	Website          string
	PhoneNumber      string
	PhotoURLs        []string
	PriceLevel       models.PriceLevel
	EditorialSummary string
	UTCOffsetMinutes *int
}

// DiscoveryProvider performs area-based business search.
type DiscoveryProvider interface {
	SearchBusinessesNear(ctx context.Context, point models.Coordinates, radiusMeters float64) ([]BusinessStub, error)
	// GetBusiness returns nil, nil when the id is unknown.
	GetBusiness(ctx context.Context, externalID string) (*BusinessStub, error)
	Name() string
}

// AnchorProvider is the identity anchor. Lookups return nil, nil on a miss.
type AnchorProvider interface {
	ResolvePlaceID(ctx context.Context, name, locationText string) (string, error)
	GetAddressComponents(ctx context.Context, anchorID string) (*models.Address, error)
	GetPlaceDetails(ctx context.Context, anchorID string) (*DetailStub, error)
	Name() string
}
