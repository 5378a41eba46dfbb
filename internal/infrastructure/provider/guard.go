package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/infrastructure/resilience"
	"github.com/platewise/platewise-api/internal/metrics"
	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 15 * time.Second

// Guard throttles and circuit-breaks calls to one provider account.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewGuard allows rps sustained calls with the given burst and trips after failThreshold consecutive failures.
func NewGuard(name string, rps float64, burst, failThreshold int, openTimeout time.Duration) *Guard {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Guard{
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker(name, failThreshold, openTimeout),
	}
}

func guarded[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if err := g.limiter.Wait(ctx); err != nil {
		metrics.RecordProviderCall(g.name, op, err)
		return out, fmt.Errorf("%s %s: rate limiter: %w", g.name, op, err)
	}
	err := g.breaker.Execute(func() error {
		var callErr error
		out, callErr = fn(ctx)
		return callErr
	})
	metrics.RecordProviderCall(g.name, op, err)
	return out, err
}

// GuardedDiscovery decorates a DiscoveryProvider with a Guard.
type GuardedDiscovery struct {
	inner repository.DiscoveryProvider
	guard *Guard
}

var _ repository.DiscoveryProvider = (*GuardedDiscovery)(nil)

func NewGuardedDiscovery(inner repository.DiscoveryProvider, guard *Guard) *GuardedDiscovery {
	return &GuardedDiscovery{inner: inner, guard: guard}
}

func (d *GuardedDiscovery) SearchBusinessesNear(ctx context.Context, point models.Coordinates, radiusMeters float64) ([]repository.BusinessStub, error) {
	return guarded(ctx, d.guard, "search", func(ctx context.Context) ([]repository.BusinessStub, error) {
		return d.inner.SearchBusinessesNear(ctx, point, radiusMeters)
	})
}

func (d *GuardedDiscovery) GetBusiness(ctx context.Context, externalID string) (*repository.BusinessStub, error) {
	return guarded(ctx, d.guard, "business", func(ctx context.Context) (*repository.BusinessStub, error) {
		return d.inner.GetBusiness(ctx, externalID)
	})
}

func (d *GuardedDiscovery) Name() string { return d.inner.Name() }

// GuardedAnchor decorates an AnchorProvider with a Guard.
type GuardedAnchor struct {
	inner repository.AnchorProvider
	guard *Guard
}

var _ repository.AnchorProvider = (*GuardedAnchor)(nil)

func NewGuardedAnchor(inner repository.AnchorProvider, guard *Guard) *GuardedAnchor {
	return &GuardedAnchor{inner: inner, guard: guard}
}

func (a *GuardedAnchor) ResolvePlaceID(ctx context.Context, name, locationText string) (string, error) {
	return guarded(ctx, a.guard, "find_place", func(ctx context.Context) (string, error) {
		return a.inner.ResolvePlaceID(ctx, name, locationText)
	})
}

func (a *GuardedAnchor) GetAddressComponents(ctx context.Context, anchorID string) (*models.Address, error) {
	return guarded(ctx, a.guard, "address", func(ctx context.Context) (*models.Address, error) {
		return a.inner.GetAddressComponents(ctx, anchorID)
	})
}

func (a *GuardedAnchor) GetPlaceDetails(ctx context.Context, anchorID string) (*repository.DetailStub, error) {
	return guarded(ctx, a.guard, "details", func(ctx context.Context) (*repository.DetailStub, error) {
		return a.inner.GetPlaceDetails(ctx, anchorID)
	})
}

func (a *GuardedAnchor) Name() string { return a.inner.Name() }
