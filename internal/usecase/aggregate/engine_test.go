package aggregate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/mocks"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("r%d", n.Add(1)) }
}

func newAnchor() *mocks.Anchor {
	return &mocks.Anchor{
		PlaceIDs: map[string]string{
			"lupa":          "place-lupa",
			"via carota":    "place-carota",
			"dame":          "place-dame",
			"ghost kitchen": "place-ghost",
		},
		Addresses: map[string]*models.Address{
			"place-lupa":   {Street: "170 Thompson St", City: "New York", State: "NY", CountryCode: "US", PostalCode: "10012", Formatted: "170 Thompson St, New York, NY 10012, USA"},
			"place-carota": {Street: "51 Grove St", City: "New York", State: "NY", CountryCode: "US", PostalCode: "10014"},
			"place-dame":   {Street: "87 MacDougal St", City: "New York", State: "NY", CountryCode: "US", PostalCode: "10012"},
		},
		Details: map[string]*repository.DetailStub{
			"place-lupa": {
				Name:             "Lupa Osteria Romana",
				Coordinates:      models.Coordinates{Lat: 40.7276, Lng: -74.0000},
				Hours:            map[string]string{"monday": "12:00-23:00"},
				Website:          "https://luparestaurant.com",
				PhoneNumber:      "+1 212-982-5089",
				ServesAlcohol:    true,
				PhotoURLs:        []string{"https://photos.example/lupa-1"},
				EditorialSummary: "Roman trattoria",
			},
			"place-carota": {Name: "Via Carota", Coordinates: models.Coordinates{Lat: 40.7331, Lng: -74.0040}, PriceLevel: models.PriceModerate},
			"place-dame":   {Name: "Dame", Coordinates: models.Coordinates{Lat: 40.7301, Lng: -74.0003}, PriceLevel: models.PriceExpensive},
		},
		Fail: map[string]error{},
	}
}

func lupaStub() repository.BusinessStub {
	return repository.BusinessStub{
		ExternalID:   "yelp-lupa",
		Name:         "Lupa",
		Address:      "170 Thompson St",
		City:         "New York",
		Coordinates:  models.Coordinates{Lat: 40.7277, Lng: -74.0001},
		Price:        models.PriceExpensive,
		HeroImageURL: "https://yelp.example/lupa.jpg",
		Categories:   []repository.Category{{Alias: "italian", Title: "Italian"}, {Alias: "wine_bars", Title: "Wine Bars"}},
	}
}

type fixture struct {
	engine    *Engine
	clock     *testClock
	store     *mocks.MemoryStore
	discovery *mocks.Discovery
	anchor    *mocks.Anchor
	embedder  *mocks.Embedder
	vectors   *mocks.Vectors
	graph     *mocks.Graph
}

func newFixture(seed ...*models.Restaurant) *fixture {
	f := &fixture{
		clock:     &testClock{t: t0},
		store:     mocks.NewMemoryStore(seed...),
		discovery: &mocks.Discovery{},
		anchor:    newAnchor(),
		embedder:  &mocks.Embedder{Dimension: 4},
		vectors:   mocks.NewVectors(),
		graph:     mocks.NewGraph(),
	}
	f.engine = NewEngine(f.store, f.discovery, f.anchor, f.embedder,
		WithClock(f.clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithVectorIndex(f.vectors),
		WithDonorSource(f.graph),
	)
	return f
}

func stored(id, anchorID string, created, staleAfter time.Time) *models.Restaurant {
	return &models.Restaurant{
		ID:           id,
		AnchorID:     anchorID,
		Name:         "Stored " + id,
		CreationDate: created,
		LastUpdated:  created,
		StaleAfter:   staleAfter,
	}
}

func TestResolveByAnchorCreatesAndIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.engine.ResolveByAnchor(ctx, "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != "r1" || first.AnchorID != "place-lupa" {
		t.Fatalf("unexpected identity: %s/%s", first.ID, first.AnchorID)
	}
	if !first.CreationDate.Equal(t0) || !first.StaleAfter.Equal(t0.Add(models.DefaultStalenessTTL)) {
		t.Errorf("unexpected timestamps: created %v, stale after %v", first.CreationDate, first.StaleAfter)
	}
	if !first.HasEmbedding() || !f.vectors.Has(first.ID) {
		t.Error("expected record to be embedded and indexed")
	}
	if first.HeroImageURL != "https://photos.example/lupa-1" {
		t.Errorf("expected first collection image as hero, got %q", first.HeroImageURL)
	}

	callsBefore := mocks.TotalCalls(f.discovery, f.anchor)
	embedsBefore := f.embedder.Calls.Load()

	second, err := f.engine.ResolveByAnchor(ctx, "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical records:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if calls := mocks.TotalCalls(f.discovery, f.anchor); calls != callsBefore {
		t.Errorf("expected no provider calls on the fresh path, got %d", calls-callsBefore)
	}
	if f.embedder.Calls.Load() != embedsBefore {
		t.Error("expected no embedding call on the fresh path")
	}
}

func TestResolveByAnchorStalenessBoundary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	orig, err := f.engine.ResolveByAnchor(ctx, "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.anchor.SetDetail("place-lupa", &repository.DetailStub{
		Name:        "Lupa",
		Coordinates: models.Coordinates{Lat: 40.7276, Lng: -74.0000},
	})

	f.clock.Set(t0.Add(models.DefaultStalenessTTL - time.Second))
	calls := f.anchor.DetailCalls.Load()
	got, err := f.engine.ResolveByAnchor(ctx, "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != orig.Name || f.anchor.DetailCalls.Load() != calls {
		t.Error("expected fresh path one second before the staleness deadline")
	}

	refreshAt := t0.Add(models.DefaultStalenessTTL + time.Second)
	f.clock.Set(refreshAt)
	got, err = f.engine.ResolveByAnchor(ctx, "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.anchor.DetailCalls.Load() != calls+1 {
		t.Error("expected a refresh one second after the staleness deadline")
	}
	if got.Name != "Lupa" {
		t.Errorf("expected refreshed name, got %q", got.Name)
	}
	if got.ID != orig.ID || !got.CreationDate.Equal(orig.CreationDate) {
		t.Errorf("identity changed on refresh: %s/%v -> %s/%v", orig.ID, orig.CreationDate, got.ID, got.CreationDate)
	}
	if !got.LastUpdated.Equal(refreshAt) || !got.StaleAfter.Equal(refreshAt.Add(models.DefaultStalenessTTL)) {
		t.Errorf("unexpected refresh timestamps: %v / %v", got.LastUpdated, got.StaleAfter)
	}
	if n := len(f.store.All()); n != 1 {
		t.Errorf("expected 1 stored record, got %d", n)
	}
}

func TestResolveByAnchorForceRefresh(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.engine.ResolveByAnchor(ctx, "place-lupa", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := f.anchor.DetailCalls.Load()
	if _, err := f.engine.ResolveByAnchor(ctx, "place-lupa", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.anchor.DetailCalls.Load() != calls+1 {
		t.Error("expected forced refresh to refetch details")
	}
}

func TestResolveByAnchorIncompleteProviderData(t *testing.T) {
	f := newFixture()

	got, err := f.engine.ResolveByAnchor(context.Background(), "place-ghost", false)
	if got != nil {
		t.Errorf("expected nil record, got %+v", got)
	}
	if !errors.Is(err, ErrIncompleteProviderData) {
		t.Errorf("expected ErrIncompleteProviderData, got %v", err)
	}
	if n := len(f.store.All()); n != 0 {
		t.Errorf("expected no partial record, got %d", n)
	}
}

func TestResolveByAnchorServesStaleWhenRefreshFails(t *testing.T) {
	existing := stored("legacy", "place-lupa", t0.Add(-30*24*time.Hour), t0.Add(-time.Hour))
	f := newFixture(existing)
	f.anchor.Fail["place-lupa"] = errors.New("deadline exceeded")

	got, err := f.engine.ResolveByAnchor(context.Background(), "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "legacy" || got.Name != existing.Name {
		t.Errorf("expected the stale record, got %+v", got)
	}
	if f.store.UpdateCalls != 0 {
		t.Error("expected no write when the refresh failed")
	}
}

func TestResolveByAnchorPersistsWithoutVectorOnEmbeddingFailure(t *testing.T) {
	f := newFixture()
	f.embedder.Err = errors.New("quota exceeded")

	got, err := f.engine.ResolveByAnchor(context.Background(), "place-lupa", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HasEmbedding() {
		t.Error("expected no embedding")
	}
	if f.vectors.Has(got.ID) {
		t.Error("expected record to stay out of the vector index")
	}
	if _, err := f.store.FindByID(context.Background(), got.ID); err != nil {
		t.Errorf("expected record to be persisted: %v", err)
	}
}

func TestResolveByAnchorDonorHeroImage(t *testing.T) {
	existing := stored("legacy", "place-carota", t0.Add(-30*24*time.Hour), t0.Add(-time.Hour))
	f := newFixture(existing)
	_ = f.graph.LinkContent(context.Background(), "legacy", mocks.Post("p1", "https://cdn.example/carota-post.jpg", t0.Add(-48*time.Hour)))

	got, err := f.engine.ResolveByAnchor(context.Background(), "place-carota", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HeroImageURL != "https://cdn.example/carota-post.jpg" {
		t.Errorf("expected donor media as hero, got %q", got.HeroImageURL)
	}
}

func TestResolveByAnchorConcurrentCallsCreateOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.engine.ResolveByAnchor(ctx, "place-dame", false)
			errs[i] = err
			if r != nil {
				ids[i] = r.ID
			}
		}()
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("call %d returned %s, want %s", i, ids[i], ids[0])
		}
	}
	if n := len(f.store.All()); n != 1 {
		t.Errorf("expected exactly one record, got %d", n)
	}
}

func TestResolveByAnchorEmptyID(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.ResolveByAnchor(context.Background(), "", false); !errors.Is(err, ErrMissingAnchorMatch) {
		t.Errorf("expected ErrMissingAnchorMatch, got %v", err)
	}
}

func TestAggregateAroundMissAccounting(t *testing.T) {
	f := newFixture()
	f.discovery.Stubs = []repository.BusinessStub{
		lupaStub(),
		{Name: "Via Carota", Address: "51 Grove St"},
		{Name: "Unknown Diner", Address: "1 Nowhere Rd"},
		{Name: "Ghost Kitchen", Address: "2 Nowhere Rd"},
	}

	out, report, err := f.engine.AggregateAround(context.Background(), Area{Center: models.Coordinates{Lat: 40.73, Lng: -74.0}, RadiusMeters: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", report.Misses)
	}
	if report.Failed != 1 {
		t.Errorf("expected 1 failed candidate, got %d", report.Failed)
	}
	if len(out) > report.Candidates-report.Misses {
		t.Errorf("returned %d records for %d candidates with %d misses", len(out), report.Candidates, report.Misses)
	}
	if len(out) != 2 || report.Created != 2 {
		t.Errorf("expected 2 created records, got %d (report %+v)", len(out), report)
	}
	if report.NewRatio != 1 {
		t.Errorf("expected new ratio 1, got %v", report.NewRatio)
	}
}

func TestAggregateAroundBatchesNewAndStale(t *testing.T) {
	fresh := stored("fresh-carota", "place-carota", t0.Add(-24*time.Hour), t0.Add(6*24*time.Hour))
	stale := stored("stale-lupa", "place-lupa", t0.Add(-30*24*time.Hour), t0.Add(-time.Hour))
	f := newFixture(fresh, stale)
	f.discovery.Stubs = []repository.BusinessStub{
		lupaStub(),
		{Name: "Via Carota"},
		{Name: "Dame"},
		{Name: "Dame", Address: "87 MacDougal St"},
	}

	out, report, err := f.engine.AggregateAround(context.Background(), Area{Center: models.Coordinates{Lat: 40.73, Lng: -74.0}, RadiusMeters: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.store.CreateCalls != 1 || f.store.UpdateCalls != 1 {
		t.Errorf("expected one create and one update batch, got %d and %d", f.store.CreateCalls, f.store.UpdateCalls)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	if report.Fresh != 1 || report.Stale != 1 || report.Created != 1 || report.Refreshed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	byAnchor := map[string]*models.Restaurant{}
	for _, r := range out {
		byAnchor[r.AnchorID] = r
	}
	if byAnchor["place-carota"].Name != "Stored fresh-carota" {
		t.Error("expected the fresh record to be reused untouched")
	}
	lupa := byAnchor["place-lupa"]
	if lupa.ID != "stale-lupa" || !lupa.CreationDate.Equal(stale.CreationDate) {
		t.Errorf("expected stale record identity to be preserved, got %s/%v", lupa.ID, lupa.CreationDate)
	}
	if lupa.Name != "Lupa Osteria Romana" || lupa.SecondaryID != "yelp-lupa" {
		t.Errorf("unexpected merge: %+v", lupa)
	}
	if lupa.HeroImageURL != "https://yelp.example/lupa.jpg" {
		t.Errorf("expected discovery hero image, got %q", lupa.HeroImageURL)
	}
	if got := f.anchor.DetailCalls.Load(); got != 3 {
		t.Errorf("expected details for stale and new candidates only, got %d calls", got)
	}
}

func TestAggregateAroundRejectsDuplicateSecondaryID(t *testing.T) {
	other := stored("other", "place-elsewhere", t0, t0.Add(models.DefaultStalenessTTL))
	other.SecondaryID = "yelp-lupa"
	f := newFixture(other)
	f.discovery.Stubs = []repository.BusinessStub{lupaStub()}

	out, report, err := f.engine.AggregateAround(context.Background(), Area{RadiusMeters: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 || report.Duplicates != 1 {
		t.Errorf("expected duplicate to be rejected, got %d records and report %+v", len(out), report)
	}
	if _, err := f.store.FindByAnchorID(context.Background(), "place-lupa"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected no record for the duplicate anchor, got %v", err)
	}
}

func TestAggregateAroundDegradesOnDiscoveryFailure(t *testing.T) {
	f := newFixture()
	f.discovery.Err = errors.New("503 from upstream")

	out, report, err := f.engine.AggregateAround(context.Background(), Area{RadiusMeters: 500})
	if err != nil || len(out) != 0 || report.Candidates != 0 {
		t.Errorf("expected empty result, got %d records, %+v, %v", len(out), report, err)
	}
}

func TestAggregateAroundReportsStoreFailure(t *testing.T) {
	f := newFixture()
	f.store.FailWrites = errors.New("connection reset")
	f.discovery.Stubs = []repository.BusinessStub{lupaStub()}

	out, _, err := f.engine.AggregateAround(context.Background(), Area{RadiusMeters: 500})
	if !errors.Is(err, ErrStoreFailure) {
		t.Errorf("expected ErrStoreFailure, got %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no records, got %d", len(out))
	}
}

func TestDeleteIsUnsupported(t *testing.T) {
	f := newFixture()
	if err := f.engine.Delete(context.Background(), "r1"); !errors.Is(err, database.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
