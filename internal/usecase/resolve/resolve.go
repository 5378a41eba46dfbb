// Package resolve finds a canonical restaurant from a free-text name and location
// when no anchor id is known yet.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrAmbiguousLocation means a bare city name exists in more than one country.
	ErrAmbiguousLocation = errors.New("city name maps to more than one country")
	// ErrUnresolved means neither the store nor the anchor provider knows the restaurant.
	ErrUnresolved = errors.New("restaurant could not be resolved")
)

var tracer = otel.Tracer("github.com/platewise/platewise-api/internal/usecase/resolve")

// AnchorResolver aggregates or refreshes a record by anchor id.
type AnchorResolver interface {
	ResolveByAnchor(ctx context.Context, anchorID string, forceRefresh bool) (*models.Restaurant, error)
}

type Resolver struct {
	store     database.RestaurantRepository
	anchor    repository.AnchorProvider
	engine    AnchorResolver
	parser    repository.AddressParser
	gazetteer repository.Gazetteer
}

func NewResolver(store database.RestaurantRepository, anchor repository.AnchorProvider, engine AnchorResolver, parser repository.AddressParser, gazetteer repository.Gazetteer) *Resolver {
	return &Resolver{
		store:     store,
		anchor:    anchor,
		engine:    engine,
		parser:    parser,
		gazetteer: gazetteer,
	}
}

// ResolveByNameAndLocation tries an exact store match on the parsed address first,
// then the anchor provider's place id (store lookup, then aggregation of a new record).
func (r *Resolver) ResolveByNameAndLocation(ctx context.Context, name, locationText string) (*models.Restaurant, error) {
	ctx, span := tracer.Start(ctx, "resolve.ResolveByNameAndLocation", trace.WithAttributes(
		attribute.String("name", name),
		attribute.String("location", locationText),
	))
	defer span.End()
	started := time.Now()
	defer metrics.ObserveResolve("by_name", started)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUnresolved
	}

	loc, err := r.normalize(locationText)
	if err != nil {
		log.Printf("[Resolve] %q: %v, falling back to the anchor provider", locationText, err)
	}

	if f := propertyFilter(name, loc); f != nil {
		rows, err := r.store.FindByProperties(ctx, f, database.Page{Size: 1}, database.Sort{})
		if err != nil {
			return nil, fmt.Errorf("failed to query store for %q: %w", name, err)
		}
		if len(rows) > 0 {
			return rows[0], nil
		}
	}

	placeID, err := r.anchor.ResolvePlaceID(ctx, name, locationText)
	if err != nil {
		log.Printf("[Resolve] Warning: place id lookup for %q failed: %v", name, err)
		return nil, ErrUnresolved
	}
	if placeID == "" {
		return nil, ErrUnresolved
	}
	span.SetAttributes(attribute.String("anchor_id", placeID))

	existing, err := r.store.FindByAnchorID(ctx, placeID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up anchor %s: %w", placeID, err)
	}

	created, err := r.engine.ResolveByAnchor(ctx, placeID, false)
	if errors.Is(err, database.ErrDuplicateIdentity) {
		// Another path created it first.
		return r.store.FindByAnchorID(ctx, placeID)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// normalize parses locationText and fills in the country from the gazetteer when it is missing.
func (r *Resolver) normalize(locationText string) (repository.ParsedLocation, error) {
	loc := r.parser.Parse(locationText)
	if loc.Country != "" || loc.City == "" || r.gazetteer == nil {
		return loc, nil
	}
	countries := r.gazetteer.CountriesForCity(loc.City)
	switch len(countries) {
	case 0:
		return loc, nil
	case 1:
		loc.Country = countries[0]
		return loc, nil
	}
	return loc, fmt.Errorf("%w: %s in %v", ErrAmbiguousLocation, loc.City, countries)
}

// propertyFilter matches the name as given or upper-cased plus the resolved address.
// It returns nil unless the country and a postal code or city are known.
func propertyFilter(name string, loc repository.ParsedLocation) filter.Filter {
	if loc.Country == "" || (loc.PostalCode == "" && loc.City == "") {
		return nil
	}
	names := []any{name}
	if upper := strings.ToUpper(name); upper != name {
		names = append(names, upper)
	}
	f := filter.Filter{
		filter.In(filter.FieldName, names...),
		filter.Eq(filter.FieldCountry, loc.Country),
	}
	if loc.PostalCode != "" {
		return f.And(filter.Eq(filter.FieldPostalCode, loc.PostalCode))
	}
	return f.And(filter.Eq(filter.FieldCity, loc.City))
}
