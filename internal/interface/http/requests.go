package http

import (
	"fmt"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/usecase/search"
)

// FilterSpec is the wire form of one filter predicate.
type FilterSpec struct {
	Field  string   `json:"field" validate:"required"`
	Op     string   `json:"op" validate:"required,oneof=eq in exists range"`
	Value  any      `json:"value,omitempty"`
	Values []any    `json:"values,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Exists bool     `json:"exists,omitempty"`
}

func (fs FilterSpec) predicate() filter.Predicate {
	f := filter.Field(fs.Field)
	switch fs.Op {
	case "in":
		return filter.In(f, fs.Values...)
	case "exists":
		return filter.Exists(f, fs.Exists)
	case "range":
		return filter.Range(f, fs.Min, fs.Max)
	}
	return filter.Eq(f, fs.Value)
}

func buildFilter(specs []FilterSpec) (filter.Filter, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	f := make(filter.Filter, 0, len(specs))
	for _, s := range specs {
		f = append(f, s.predicate())
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return f, nil
}

type LocationBody struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type NearbyBody struct {
	LocationBody
	RadiusMeters float64       `json:"radius_meters" validate:"gt=0,lte=50000"`
	Filters      []FilterSpec  `json:"filters,omitempty" validate:"dive"`
	Page         database.Page `json:"page"`
	Sort         database.Sort `json:"sort"`
}

func (b NearbyBody) toRequest() (search.NearbyRequest, error) {
	f, err := buildFilter(b.Filters)
	if err != nil {
		return search.NearbyRequest{}, err
	}
	return search.NearbyRequest{
		Center:       models.Coordinates{Lat: b.Lat, Lng: b.Lng},
		RadiusMeters: b.RadiusMeters,
		Filter:       f,
		Page:         b.Page,
		Sort:         b.Sort,
	}, nil
}

type TextBody struct {
	Query   string        `json:"query" validate:"required"`
	Filters []FilterSpec  `json:"filters,omitempty" validate:"dive"`
	Page    database.Page `json:"page"`
}

func (b TextBody) toRequest() (search.TextRequest, error) {
	f, err := buildFilter(b.Filters)
	if err != nil {
		return search.TextRequest{}, err
	}
	return search.TextRequest{Query: b.Query, Filter: f, Page: b.Page}, nil
}

type HybridBody struct {
	Query       string       `json:"query" validate:"required"`
	QueryVector []float32    `json:"query_vector,omitempty"`
	Filters     []FilterSpec `json:"filters,omitempty" validate:"dive"`
	Limit       int          `json:"limit,omitempty" validate:"gte=0,lte=100"`
}

type SimilarBody struct {
	QueryText     string    `json:"query_text,omitempty"`
	QueryVector   []float32 `json:"query_vector,omitempty"`
	SourceID      string    `json:"source_id,omitempty"`
	NumCandidates int       `json:"num_candidates,omitempty" validate:"gte=0"`
	Limit         int       `json:"limit,omitempty" validate:"gte=0,lte=100"`
	MinSimilarity float32   `json:"min_similarity,omitempty" validate:"gte=-1,lte=1"`
	ExcludeIDs    []string  `json:"exclude_ids,omitempty"`
}

func (b SimilarBody) toRequest() search.SimilarRequest {
	return search.SimilarRequest{
		QueryText:     b.QueryText,
		QueryVector:   b.QueryVector,
		SourceID:      b.SourceID,
		NumCandidates: b.NumCandidates,
		Limit:         b.Limit,
		MinSimilarity: b.MinSimilarity,
		ExcludeIDs:    b.ExcludeIDs,
	}
}

type ExploreBody struct {
	UserID         string        `json:"user_id,omitempty"`
	Location       *LocationBody `json:"location,omitempty"`
	Origin         string        `json:"origin" validate:"required,oneof=nearby text similar"`
	Nearby         *NearbyBody   `json:"nearby,omitempty" validate:"required_if=Origin nearby"`
	Text           *TextBody     `json:"text,omitempty" validate:"required_if=Origin text"`
	Similar        *SimilarBody  `json:"similar,omitempty" validate:"required_if=Origin similar"`
	ReservableOnly bool          `json:"reservable_only"`
}

func (b ExploreBody) toRequest() (search.ExploreRequest, error) {
	req := search.ExploreRequest{
		Requester:      requester(b.UserID, b.Location),
		Origin:         search.Origin(b.Origin),
		ReservableOnly: b.ReservableOnly,
	}
	if b.Nearby != nil {
		nr, err := b.Nearby.toRequest()
		if err != nil {
			return req, err
		}
		req.Nearby = &nr
	}
	if b.Text != nil {
		tr, err := b.Text.toRequest()
		if err != nil {
			return req, err
		}
		req.Text = &tr
	}
	if b.Similar != nil {
		sr := b.Similar.toRequest()
		req.Similar = &sr
	}
	return req, nil
}
