package repository

import (
	"context"

	"github.com/platewise/platewise-api/internal/database/models"
)

// Requester identifies who is asking and from where. Both are optional.
type Requester struct {
	UserID   string
	Location *models.Coordinates
}

// Personalizer scores restaurants for a requester. The formulas live outside this service.
type Personalizer interface {
	// MatchScore returns nil when no score can be computed.
	MatchScore(ctx context.Context, requester Requester, r *models.Restaurant) (*float64, error)
	QualityScore(ctx context.Context, r *models.Restaurant) (float64, error)
}

type SavedLookup interface {
	IsSaved(ctx context.Context, userID, restaurantID string) (bool, error)
}

type RatingLookup interface {
	// AverageRating returns nil when the restaurant has no ratings.
	AverageRating(ctx context.Context, restaurantID string) (*float64, error)
}

type ReservationLookup interface {
	HasAvailability(ctx context.Context, r *models.Restaurant) (bool, error)
}
