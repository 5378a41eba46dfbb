// Package mocks provides in-memory implementations of the store, provider and
// index collaborators for use-case and handler tests.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/database/textmatch"
	"github.com/platewise/platewise-api/internal/geo"
)

// MemoryStore is a RestaurantRepository over a map. Reads and writes copy records.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*models.Restaurant
	order []string

	CreateCalls int
	UpdateCalls int
	// FailWrites makes every write return an error.
	FailWrites error
	failReads  error
}

var _ database.RestaurantRepository = (*MemoryStore)(nil)

func NewMemoryStore(seed ...*models.Restaurant) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]*models.Restaurant)}
	for _, r := range seed {
		s.byID[r.ID] = r.Clone()
		s.order = append(s.order, r.ID)
	}
	return s
}

// SetFailReads makes the query methods return err until reset with nil.
func (s *MemoryStore) SetFailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = err
}

// All returns every record in insertion order.
func (s *MemoryStore) All() []*models.Restaurant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Restaurant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) FindByAnchorID(_ context.Context, anchorID string) (*models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if r := s.byID[id]; r.AnchorID == anchorID {
			return r.Clone(), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *MemoryStore) FindByIDs(_ context.Context, ids []string) ([]*models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Restaurant
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) matching(f filter.Filter) []*models.Restaurant {
	var out []*models.Restaurant
	for _, id := range s.order {
		if r := s.byID[id]; f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *MemoryStore) FindByProperties(_ context.Context, f filter.Filter, page database.Page, sort database.Sort) ([]*models.Restaurant, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rows := s.matching(f)
	s.mu.Unlock()

	if sort.Key != database.SortDefault {
		hits := make([]database.Hit, len(rows))
		for i, r := range rows {
			hits[i] = database.Hit{Restaurant: r}
		}
		database.SortHits(hits, sort, sort.Key)
		for i, h := range hits {
			rows[i] = h.Restaurant
		}
	}
	return database.Paginate(rows, page), nil
}

func (s *MemoryStore) GeoNear(_ context.Context, center models.Coordinates, radiusMeters float64, f filter.Filter, page database.Page, sort database.Sort) ([]database.Hit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.failReads != nil {
		defer s.mu.Unlock()
		return nil, s.failReads
	}
	rows := s.matching(f)
	s.mu.Unlock()

	var hits []database.Hit
	for _, r := range rows {
		if d := geo.DistanceMeters(center, r.Coordinates); d <= radiusMeters {
			hits = append(hits, database.Hit{Restaurant: r, DistanceMeters: d})
		}
	}
	database.SortHits(hits, sort, database.SortDistance)
	return database.Paginate(hits, page), nil
}

func (s *MemoryStore) TextSearch(_ context.Context, query string, f filter.Filter, page database.Page) ([]database.Hit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	tokens := textmatch.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	if s.failReads != nil {
		defer s.mu.Unlock()
		return nil, s.failReads
	}
	rows := s.matching(f)
	s.mu.Unlock()

	var hits []database.Hit
	for _, r := range rows {
		if score := textmatch.Score(r, tokens); score > 0 {
			hits = append(hits, database.Hit{Restaurant: r, Score: score})
		}
	}
	database.SortHits(hits, database.Sort{}, database.SortDefault)
	return database.Paginate(hits, page), nil
}

// CreateRestaurants applies the dedup gate under the store lock.
func (s *MemoryStore) CreateRestaurants(_ context.Context, batch []*models.Restaurant) ([]*models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	var created []*models.Restaurant
	for _, r := range batch {
		if s.identityTaken(r) {
			continue
		}
		s.byID[r.ID] = r.Clone()
		s.order = append(s.order, r.ID)
		created = append(created, r)
	}
	return created, nil
}

func (s *MemoryStore) identityTaken(r *models.Restaurant) bool {
	if _, ok := s.byID[r.ID]; ok {
		return true
	}
	for _, existing := range s.byID {
		if existing.AnchorID == r.AnchorID {
			return true
		}
		if r.SecondaryID != "" && existing.SecondaryID == r.SecondaryID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) UpdateRestaurants(_ context.Context, batch []*models.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if s.FailWrites != nil {
		return s.FailWrites
	}
	for _, r := range batch {
		if _, ok := s.byID[r.ID]; !ok {
			return fmt.Errorf("restaurant %s: %w", r.ID, database.ErrNotFound)
		}
	}
	for _, r := range batch {
		prev := s.byID[r.ID]
		next := r.Clone()
		next.AnchorID = prev.AnchorID
		next.CreationDate = prev.CreationDate
		s.byID[r.ID] = next
	}
	return nil
}

func (s *MemoryStore) UpsertByID(_ context.Context, r *models.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if prev, ok := s.byID[r.ID]; ok {
		next := r.Clone()
		next.AnchorID = prev.AnchorID
		next.CreationDate = prev.CreationDate
		s.byID[r.ID] = next
		return nil
	}
	s.byID[r.ID] = r.Clone()
	s.order = append(s.order, r.ID)
	return nil
}

func (s *MemoryStore) SetReservationLink(_ context.Context, id, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	r, ok := s.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	r.ReservationLink = link
	r.Reservable = true
	return nil
}

func (s *MemoryStore) DeleteRestaurant(context.Context, string) error {
	return database.ErrUnsupported
}
