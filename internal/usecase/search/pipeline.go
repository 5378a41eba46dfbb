// Package search composes geospatial, full-text and vector-similarity queries over
// canonical records, with an optional personalization pass for the explore path.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/metrics"
	"github.com/platewise/platewise-api/internal/usecase/heroimage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidRequest = errors.New("invalid search request")

var tracer = otel.Tracer("github.com/platewise/platewise-api/internal/usecase/search")

const (
	defaultSimilarLimit = 10
	candidateFactor     = 10
	defaultEdgeCap      = 10
)

// NearbyRequest is a radius query around a point.
type NearbyRequest struct {
	Center       models.Coordinates `json:"center"`
	RadiusMeters float64            `json:"radius_meters" validate:"gt=0,lte=50000"`
	Filter       filter.Filter      `json:"-"`
	Page         database.Page      `json:"page"`
	Sort         database.Sort      `json:"sort"`
}

// TextRequest is a token match over the mapped text fields.
type TextRequest struct {
	Query  string        `json:"query" validate:"required"`
	Filter filter.Filter `json:"-"`
	Page   database.Page `json:"page"`
}

// SimilarRequest is a nearest-neighbor query. Exactly one of QueryVector, SourceID
// or QueryText is used, in that order. NumCandidates 0 defaults to 10x Limit.
type SimilarRequest struct {
	QueryText     string    `json:"query_text,omitempty"`
	QueryVector   []float32 `json:"query_vector,omitempty"`
	SourceID      string    `json:"source_id,omitempty"`
	NumCandidates int       `json:"num_candidates,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	MinSimilarity float32   `json:"min_similarity,omitempty"`
	ExcludeIDs    []string  `json:"exclude_ids,omitempty"`
}

// Result is one ranked restaurant.
type Result struct {
	Restaurant      *models.Restaurant `json:"restaurant"`
	DistanceMeters  float64            `json:"distance_meters,omitempty"`
	TextScore       float64            `json:"text_score,omitempty"`
	SimilarityScore float32            `json:"similarity_score,omitempty"`
	FusedScore      float64            `json:"fused_score,omitempty"`
	Personalization *Personalization   `json:"personalization,omitempty"`
}

type Pipeline struct {
	store    database.RestaurantRepository
	vectors  repository.VectorRepository
	embedder repository.EmbeddingClient

	graph        repository.GraphRepository
	personalizer repository.Personalizer
	saved        repository.SavedLookup
	ratings      repository.RatingLookup
	reservations repository.ReservationLookup
	edgeCap      int
}

type Option func(*Pipeline)

// WithGraph enables donor hero images and the post/article/award edge collections.
func WithGraph(g repository.GraphRepository) Option {
	return func(p *Pipeline) { p.graph = g }
}

func WithPersonalizer(pz repository.Personalizer) Option {
	return func(p *Pipeline) { p.personalizer = pz }
}

func WithLookups(saved repository.SavedLookup, ratings repository.RatingLookup, reservations repository.ReservationLookup) Option {
	return func(p *Pipeline) {
		p.saved = saved
		p.ratings = ratings
		p.reservations = reservations
	}
}

// WithEdgeCap caps each edge collection of the personalization pass.
func WithEdgeCap(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.edgeCap = n
		}
	}
}

func NewPipeline(store database.RestaurantRepository, vectors repository.VectorRepository, embedder repository.EmbeddingClient, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		edgeCap:  defaultEdgeCap,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Nearby returns records within the radius, distance ascending unless req.Sort says otherwise.
func (p *Pipeline) Nearby(ctx context.Context, req NearbyRequest) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "search.Nearby", trace.WithAttributes(attribute.Float64("radius_meters", req.RadiusMeters)))
	defer span.End()
	defer func() { metrics.RecordSearch("nearby", err) }()

	if req.RadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidRequest)
	}
	hits, err := p.store.GeoNear(ctx, req.Center, req.RadiusMeters, req.Filter, req.Page, req.Sort)
	if err != nil {
		return nil, fmt.Errorf("geo query failed: %w", err)
	}
	return p.fromHits(ctx, hits), nil
}

// Text returns records matching the query tokens, best match first.
func (p *Pipeline) Text(ctx context.Context, req TextRequest) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "search.Text", trace.WithAttributes(attribute.String("query", req.Query)))
	defer span.End()
	defer func() { metrics.RecordSearch("text", err) }()

	hits, err := p.store.TextSearch(ctx, req.Query, req.Filter, req.Page)
	if err != nil {
		return nil, fmt.Errorf("text query failed: %w", err)
	}
	return p.fromHits(ctx, hits), nil
}

// Similar returns the nearest neighbors of the query in similarity order.
// Every result scores at least MinSimilarity; a source record never matches itself.
func (p *Pipeline) Similar(ctx context.Context, req SimilarRequest) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "search.Similar")
	defer span.End()
	defer func() { metrics.RecordSearch("similar", err) }()

	if p.vectors == nil {
		return nil, fmt.Errorf("%w: vector index not configured", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultSimilarLimit
	}
	numCandidates := req.NumCandidates
	if numCandidates == 0 {
		numCandidates = limit * candidateFactor
	}
	if limit < 0 || numCandidates < limit {
		return nil, fmt.Errorf("%w: num_candidates (%d) must be >= limit (%d) > 0", ErrInvalidRequest, numCandidates, limit)
	}

	exclude := slices.Clone(req.ExcludeIDs)
	vector, err := p.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, nil
	}
	if req.SourceID != "" && len(req.QueryVector) == 0 {
		exclude = append(exclude, req.SourceID)
	}

	matches, err := p.vectors.Search(ctx, repository.VectorQuery{
		Vector:        vector,
		NumCandidates: numCandidates,
		Limit:         limit,
		MinSimilarity: req.MinSimilarity,
		ExcludeIDs:    exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	scores := make(map[string]float32, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score < req.MinSimilarity || slices.Contains(exclude, m.ID) {
			continue
		}
		scores[m.ID] = m.Score
		ids = append(ids, m.ID)
	}
	rows, err := p.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load similar restaurants: %w", err)
	}
	heroimage.ApplyFallback(ctx, rows, p.donors())

	results = make([]Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, Result{Restaurant: r, SimilarityScore: scores[r.ID]})
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// queryVector returns the vector to search with, or nil when the source record has none.
func (p *Pipeline) queryVector(ctx context.Context, req SimilarRequest) ([]float32, error) {
	switch {
	case len(req.QueryVector) > 0:
		return req.QueryVector, nil
	case req.SourceID != "":
		src, err := p.store.FindByID(ctx, req.SourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load source restaurant %s: %w", req.SourceID, err)
		}
		if !src.HasEmbedding() {
			log.Printf("[Search] Source %s has no embedding yet, returning no similar restaurants", req.SourceID)
			return nil, nil
		}
		return src.EmbeddingVector, nil
	case req.QueryText != "":
		if p.embedder == nil {
			return nil, fmt.Errorf("%w: no embedding provider configured", ErrInvalidRequest)
		}
		vecs, err := p.embedder.Embed(ctx, []string{req.QueryText})
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vecs))
		}
		return vecs[0], nil
	}
	return nil, fmt.Errorf("%w: one of query_vector, source_id or query_text is required", ErrInvalidRequest)
}

func (p *Pipeline) fromHits(ctx context.Context, hits []database.Hit) []Result {
	rs := make([]*models.Restaurant, len(hits))
	results := make([]Result, len(hits))
	for i, h := range hits {
		rs[i] = h.Restaurant
		results[i] = Result{Restaurant: h.Restaurant, DistanceMeters: h.DistanceMeters, TextScore: h.Score}
	}
	heroimage.ApplyFallback(ctx, rs, p.donors())
	return results
}

func (p *Pipeline) donors() heroimage.DonorSource {
	if p.graph == nil {
		return nil
	}
	return p.graph
}
