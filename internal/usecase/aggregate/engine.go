// Package aggregate turns discovery and anchor provider payloads into canonical
// restaurant records, deduplicated by anchor id and refreshed once stale.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/metrics"
	"github.com/platewise/platewise-api/internal/usecase/heroimage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingAnchorMatch     = errors.New("no anchor match for candidate")
	ErrIncompleteProviderData = errors.New("anchor provider returned incomplete data")
	ErrStoreFailure           = errors.New("canonical store failure")
)

var tracer = otel.Tracer("github.com/platewise/platewise-api/internal/usecase/aggregate")

// Engine resolves, merges and persists canonical restaurants.
type Engine struct {
	store     database.RestaurantRepository
	discovery repository.DiscoveryProvider
	anchor    repository.AnchorProvider
	embedder  repository.EmbeddingClient
	vectors   repository.VectorRepository
	donors    heroimage.DonorSource

	ttl         time.Duration
	now         func() time.Time
	newID       func() string
	concurrency int

	flights singleflight.Group
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithVectorIndex keeps the vector index in sync with every persisted merge.
func WithVectorIndex(v repository.VectorRepository) Option {
	return func(e *Engine) { e.vectors = v }
}

// WithDonorSource enables the donor-media step of the hero image chain.
func WithDonorSource(d heroimage.DonorSource) Option {
	return func(e *Engine) { e.donors = d }
}

// WithConcurrency bounds per-candidate work in AggregateAround. 0 means unbounded.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

func NewEngine(store database.RestaurantRepository, discovery repository.DiscoveryProvider, anchor repository.AnchorProvider, embedder repository.EmbeddingClient, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		discovery: discovery,
		anchor:    anchor,
		embedder:  embedder,
		ttl:       models.DefaultStalenessTTL,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveByAnchor returns the canonical record for anchorID, aggregating or refreshing it when needed.
// Concurrent calls for the same anchor id share one resolution.
// A stale record whose refresh fails is returned as is.
func (e *Engine) ResolveByAnchor(ctx context.Context, anchorID string, forceRefresh bool) (*models.Restaurant, error) {
	if anchorID == "" {
		return nil, ErrMissingAnchorMatch
	}
	ctx, span := tracer.Start(ctx, "aggregate.ResolveByAnchor", trace.WithAttributes(
		attribute.String("anchor_id", anchorID),
		attribute.Bool("force_refresh", forceRefresh),
	))
	defer span.End()

	v, err, shared := e.flights.Do(anchorID, func() (any, error) {
		return e.resolve(ctx, anchorID, forceRefresh)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r := v.(*models.Restaurant)
	if shared {
		r = r.Clone()
	}
	return r, nil
}

func (e *Engine) resolve(ctx context.Context, anchorID string, forceRefresh bool) (*models.Restaurant, error) {
	started := time.Now()
	now := e.clock()

	existing, err := e.store.FindByAnchorID(ctx, anchorID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		metrics.ObserveResolve("failed", started)
		return nil, fmt.Errorf("%w: find anchor %s: %w", ErrStoreFailure, anchorID, err)
	}
	if existing != nil && !existing.IsStale(now) && !forceRefresh {
		metrics.ObserveResolve("fresh", started)
		return existing, nil
	}

	merged, err := e.prepare(ctx, anchorID, existing, nil, now)
	if err != nil {
		metrics.ObserveResolve("failed", started)
		if existing != nil {
			log.Printf("[Aggregate] Warning: refresh of %s failed, serving stale record: %v", anchorID, err)
			return existing, nil
		}
		log.Printf("[Aggregate] Discarding %s: %v", anchorID, err)
		return nil, err
	}
	e.embedAll(ctx, []*models.Restaurant{merged})

	if existing != nil {
		if err := e.store.UpdateRestaurants(ctx, []*models.Restaurant{merged}); err != nil {
			metrics.ObserveResolve("failed", started)
			return nil, fmt.Errorf("%w: update %s: %w", ErrStoreFailure, merged.ID, err)
		}
		e.syncVectors(ctx, merged)
		metrics.ObserveResolve("refresh", started)
		return e.persisted(ctx, merged), nil
	}

	created, err := e.store.CreateRestaurants(ctx, []*models.Restaurant{merged})
	if err != nil {
		metrics.ObserveResolve("failed", started)
		return nil, fmt.Errorf("%w: create %s: %w", ErrStoreFailure, anchorID, err)
	}
	if len(created) == 0 {
		metrics.DuplicateIdentityTotal.Inc()
		metrics.ObserveResolve("failed", started)
		log.Printf("[Aggregate] Warning: creation for anchor %s (secondary %q) rejected as duplicate identity", anchorID, merged.SecondaryID)
		return nil, fmt.Errorf("anchor %s: %w", anchorID, database.ErrDuplicateIdentity)
	}
	e.syncVectors(ctx, merged)
	metrics.ObserveResolve("create", started)
	return e.persisted(ctx, merged), nil
}

// clock is e.now in UTC at the precision the stores keep.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// persisted re-reads a just-written record so the caller gets the same value a later read returns.
func (e *Engine) persisted(ctx context.Context, r *models.Restaurant) *models.Restaurant {
	stored, err := e.store.FindByAnchorID(ctx, r.AnchorID)
	if err != nil {
		log.Printf("[Aggregate] Warning: re-read of %s failed, returning the merged record: %v", r.AnchorID, err)
		return r.Clone()
	}
	return stored
}

// prepare fetches anchor payloads (plus the discovery stub when only its id is known) and merges them.
// The result carries identity and timestamps but no embedding yet.
func (e *Engine) prepare(ctx context.Context, anchorID string, existing *models.Restaurant, stub *repository.BusinessStub, now time.Time) (*models.Restaurant, error) {
	var (
		addr   *models.Address
		detail *repository.DetailStub
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		addr, err = e.anchor.GetAddressComponents(gctx, anchorID)
		return err
	})
	g.Go(func() error {
		var err error
		detail, err = e.anchor.GetPlaceDetails(gctx, anchorID)
		return err
	})
	if stub == nil && existing != nil && existing.SecondaryID != "" && e.discovery != nil {
		secondaryID := existing.SecondaryID
		g.Go(func() error {
			b, err := e.discovery.GetBusiness(gctx, secondaryID)
			if err != nil {
				log.Printf("[Aggregate] Warning: discovery lookup for %s failed, merging without it: %v", secondaryID, err)
				return nil
			}
			stub = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIncompleteProviderData, anchorID, err)
	}
	if addr == nil || detail == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteProviderData, anchorID)
	}

	merged := Merge(MergeInput{Address: addr, Detail: detail, Discovery: stub, Existing: existing})
	merged.AnchorID = anchorID
	if existing != nil {
		merged.ID = existing.ID
		merged.CreationDate = existing.CreationDate
	} else {
		merged.ID = e.newID()
		merged.CreationDate = now
	}
	merged.LastUpdated = now
	merged.StaleAfter = now.Add(e.ttl)
	merged.HeroImageURL, _ = heroimage.Resolve(ctx, merged, e.donors)
	return merged, nil
}

// embedAll computes vectors for rs in one request. On failure every record keeps a nil vector.
func (e *Engine) embedAll(ctx context.Context, rs []*models.Restaurant) {
	if len(rs) == 0 || e.embedder == nil {
		return
	}
	texts := make([]string, len(rs))
	for i, r := range rs {
		texts[i] = r.EmbeddingText()
	}
	vecs, err := e.embedder.Embed(ctx, texts)
	if err == nil && len(vecs) != len(rs) {
		err = fmt.Errorf("got %d vectors for %d records", len(vecs), len(rs))
	}
	if err != nil {
		metrics.EmbeddingFailuresTotal.Add(float64(len(rs)))
		log.Printf("[Aggregate] Warning: embedding failed for %d records, persisting without vectors: %v", len(rs), err)
		for _, r := range rs {
			r.EmbeddingVector = nil
		}
		return
	}
	for i, r := range rs {
		r.EmbeddingVector = vecs[i]
	}
}

// syncVectors mirrors persisted embeddings into the vector index. The index is derived data,
// so failures are logged and the next refresh repairs them.
func (e *Engine) syncVectors(ctx context.Context, rs ...*models.Restaurant) {
	if e.vectors == nil {
		return
	}
	for _, r := range rs {
		var err error
		if r.HasEmbedding() {
			err = e.vectors.Upsert(ctx, r.ID, r.EmbeddingVector)
		} else {
			err = e.vectors.Delete(ctx, r.ID)
		}
		if err != nil {
			log.Printf("[Aggregate] Warning: vector index sync failed for %s: %v", r.ID, err)
		}
	}
}

// Delete is disabled until dependent data can be cleaned up with the record.
func (e *Engine) Delete(_ context.Context, id string) error {
	return fmt.Errorf("delete restaurant %s: %w", id, database.ErrUnsupported)
}

func candidateLocation(b *repository.BusinessStub) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{b.Address, b.City} {
		if p = strings.TrimSpace(p); p != "" && !strings.Contains(strings.Join(parts, ", "), p) {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
