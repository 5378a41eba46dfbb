package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platewise/platewise-api/internal/config"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/mocks"
	"github.com/platewise/platewise-api/internal/usecase/search"
)

func exploreNearby(t *testing.T, cfg *config.Config, client *http.Client) []search.Result {
	t.Helper()
	lupa := &models.Restaurant{ID: "r1", AnchorID: "a1", Name: "Lupa", Coordinates: models.Coordinates{Lat: 40.7276, Lng: -74.0},
		Reservable: true, ReservationLink: "https://resy.example/lupa"}
	dame := &models.Restaurant{ID: "r2", AnchorID: "a2", Name: "Dame", Coordinates: models.Coordinates{Lat: 40.7301, Lng: -74.0003}}

	pipeline := search.NewPipeline(mocks.NewMemoryStore(lupa, dame), mocks.NewVectors(), &mocks.Embedder{},
		pipelineOptions(cfg, nil, client)...)
	results, err := pipeline.Explore(context.Background(), search.ExploreRequest{
		Origin: search.OriginNearby,
		Nearby: &search.NearbyRequest{Center: models.Coordinates{Lat: 40.728, Lng: -74.0}, RadiusMeters: 2000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	return results
}

func TestPipelineOptionsWithoutPersonalizationService(t *testing.T) {
	results := exploreNearby(t, &config.Config{}, nil)
	for _, r := range results {
		if r.Personalization.QualityScore != 0 {
			t.Errorf("expected no quality score for %s, got %v", r.Restaurant.ID, r.Personalization.QualityScore)
		}
		want := r.Restaurant.ID == "r1"
		if r.Personalization.HasAvailability != want {
			t.Errorf("availability for %s: expected %v", r.Restaurant.ID, want)
		}
	}
}

func TestPipelineOptionsWithPersonalizationService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/restaurants/r1/quality", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":3.1}`))
	})
	mux.HandleFunc("GET /v1/restaurants/r2/quality", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":4.8}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	results := exploreNearby(t, &config.Config{PersonalizationURL: ts.URL}, ts.Client())
	// No match scores, so quality decides the order.
	if results[0].Restaurant.ID != "r2" || results[0].Personalization.QualityScore != 4.8 {
		t.Errorf("expected r2 first by quality, got %s (%v)", results[0].Restaurant.ID, results[0].Personalization.QualityScore)
	}
}
