package mocks

import (
	"context"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

// Personalizer returns table-driven scores keyed by restaurant id.
type Personalizer struct {
	Match   map[string]float64
	Quality map[string]float64
}

var _ repository.Personalizer = (*Personalizer)(nil)

func (p *Personalizer) MatchScore(_ context.Context, _ repository.Requester, r *models.Restaurant) (*float64, error) {
	v, ok := p.Match[r.ID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (p *Personalizer) QualityScore(_ context.Context, r *models.Restaurant) (float64, error) {
	return p.Quality[r.ID], nil
}

// Lookups serves saved, rating and availability data from maps.
type Lookups struct {
	Saved     map[string]bool
	Ratings   map[string]float64
	Available map[string]bool
}

func (l *Lookups) IsSaved(_ context.Context, _ string, restaurantID string) (bool, error) {
	return l.Saved[restaurantID], nil
}

func (l *Lookups) AverageRating(_ context.Context, restaurantID string) (*float64, error) {
	v, ok := l.Ratings[restaurantID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (l *Lookups) HasAvailability(_ context.Context, r *models.Restaurant) (bool, error) {
	return l.Available[r.ID], nil
}
