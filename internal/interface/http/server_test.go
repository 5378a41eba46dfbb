package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/mocks"
	"github.com/platewise/platewise-api/internal/usecase/aggregate"
	"github.com/platewise/platewise-api/internal/usecase/resolve"
	"github.com/platewise/platewise-api/internal/usecase/search"
)

type fakeEngine struct {
	restaurants []*models.Restaurant
	report      aggregate.Report
	aggErr      error
	resolved    *models.Restaurant
	resolveErr  error
	lastArea    aggregate.Area
	lastForce   bool
}

func (f *fakeEngine) AggregateAround(_ context.Context, area aggregate.Area) ([]*models.Restaurant, aggregate.Report, error) {
	f.lastArea = area
	return f.restaurants, f.report, f.aggErr
}

func (f *fakeEngine) ResolveByAnchor(_ context.Context, anchorID string, force bool) (*models.Restaurant, error) {
	f.lastForce = force
	if anchorID == "" {
		return nil, aggregate.ErrMissingAnchorMatch
	}
	return f.resolved, f.resolveErr
}

func (f *fakeEngine) Delete(context.Context, string) error {
	return fmt.Errorf("delete: %w", database.ErrUnsupported)
}

type fakeResolver struct {
	rec *models.Restaurant
	err error
}

func (f *fakeResolver) ResolveByNameAndLocation(context.Context, string, string) (*models.Restaurant, error) {
	return f.rec, f.err
}

var now = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func place(id, name string, lat, lng float64) *models.Restaurant {
	return &models.Restaurant{
		ID:           id,
		AnchorID:     "place-" + id,
		Name:         name,
		Coordinates:  models.Coordinates{Lat: lat, Lng: lng},
		CreationDate: now,
		LastUpdated:  now,
		StaleAfter:   now.Add(models.DefaultStalenessTTL),
	}
}

func createTestServer(engine *fakeEngine, resolver *fakeResolver) (*Server, *mocks.MemoryStore) {
	a := place("a", "Lupa Osteria Romana", 40.7276, -74.0000)
	a.Reservable = true
	a.PriceLevel = models.PriceModerate
	b := place("b", "Via Carota", 40.7331, -74.0040)
	b.PriceLevel = models.PriceExpensive
	store := mocks.NewMemoryStore(a, b)
	pipeline := search.NewPipeline(store, mocks.NewVectors(), &mocks.Embedder{},
		search.WithPersonalizer(&mocks.Personalizer{}))
	return NewServer(engine, resolver, pipeline, 40000), store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("Failed to encode body: %v", err)
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeResults(t *testing.T, resp *http.Response) []search.Result {
	t.Helper()
	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out.Results
}

func TestHandleNearby(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search/nearby", map[string]any{
		"lat": 40.7233, "lng": -74.0030, "radius_meters": 2000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	results := decodeResults(t, resp)
	if len(results) != 2 || results[0].Restaurant.ID != "a" {
		t.Fatalf("Expected [a b] by distance, got %+v", results)
	}
}

func TestHandleNearby_Filters(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search/nearby", map[string]any{
		"lat": 40.7233, "lng": -74.0030, "radius_meters": 2000,
		"filters": []map[string]any{{"field": "price_level", "op": "range", "min": 3}},
	})
	results := decodeResults(t, resp)
	if len(results) != 1 || results[0].Restaurant.ID != "b" {
		t.Fatalf("Expected only b, got %+v", results)
	}

	resp = postJSON(t, ts.URL+"/api/v1/search/nearby", map[string]any{
		"lat": 40.7233, "lng": -74.0030, "radius_meters": 2000,
		"filters": []map[string]any{{"field": "password", "op": "eq", "value": "x"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown filter field, got %d", resp.StatusCode)
	}
}

func TestHandleNearby_Validation(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "{invalid"},
		{"zero radius", map[string]any{"lat": 1, "lng": 1, "radius_meters": 0}},
		{"radius too large", map[string]any{"lat": 1, "lng": 1, "radius_meters": 60000}},
		{"latitude out of range", map[string]any{"lat": 91, "lng": 1, "radius_meters": 100}},
		{"bad filter op", map[string]any{"lat": 1, "lng": 1, "radius_meters": 100,
			"filters": []map[string]any{{"field": "name", "op": "like"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/v1/search/nearby", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestHandleText_DegradesToEmpty(t *testing.T) {
	s, store := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search/text", map[string]any{"query": "carota"})
	results := decodeResults(t, resp)
	if len(results) != 1 || results[0].Restaurant.ID != "b" {
		t.Fatalf("Expected b, got %+v", results)
	}

	store.SetFailReads(errors.New("connection reset by peer"))
	resp = postJSON(t, ts.URL+"/api/v1/search/text", map[string]any{"query": "carota"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on store failure, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"results":[]`)) {
		t.Errorf("Expected empty results, got %s", body)
	}
	if bytes.Contains(body, []byte("connection reset")) {
		t.Errorf("Store error leaked into response: %s", body)
	}
}

func TestHandleHybrid(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search/hybrid", map[string]any{"query": "carota", "limit": 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	results := decodeResults(t, resp)
	if len(results) == 0 || results[0].Restaurant.ID != "b" || results[0].FusedScore <= 0 {
		t.Fatalf("Expected b ranked first with a fused score, got %+v", results)
	}

	resp = postJSON(t, ts.URL+"/api/v1/search/hybrid", map[string]any{"limit": 5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without a query, got %d", resp.StatusCode)
	}
}

func TestHandleSimilar_InvalidRequest(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search/similar", map[string]any{"limit": 10, "num_candidates": 5, "query_text": "pasta"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 when num_candidates < limit, got %d", resp.StatusCode)
	}
}

func TestHandleExplore(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/search/explore", map[string]any{"origin": "nearby"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for nearby origin without query, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/search/explore", map[string]any{
		"origin":          "nearby",
		"nearby":          map[string]any{"lat": 40.7233, "lng": -74.0030, "radius_meters": 2000},
		"reservable_only": true,
	})
	results := decodeResults(t, resp)
	if len(results) != 1 || results[0].Restaurant.ID != "a" {
		t.Fatalf("Expected only the reservable record, got %+v", results)
	}
	if results[0].Personalization == nil {
		t.Error("Expected personalization block on explore results")
	}
}

func TestHandleAggregate(t *testing.T) {
	engine := &fakeEngine{
		restaurants: []*models.Restaurant{place("a", "Lupa", 1, 1)},
		report:      aggregate.Report{Candidates: 2, Misses: 1, Created: 1, NewRatio: 1},
	}
	s, _ := createTestServer(engine, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/restaurants/aggregate", map[string]any{"lat": 40.7, "lng": -74, "radius_meters": 1000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var out AggregateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(out.Restaurants) != 1 || out.Report.Misses != 1 {
		t.Errorf("Unexpected response %+v", out)
	}
	if engine.lastArea.RadiusMeters != 1000 || engine.lastArea.Center.Lat != 40.7 {
		t.Errorf("Unexpected area %+v", engine.lastArea)
	}

	resp = postJSON(t, ts.URL+"/api/v1/restaurants/aggregate", map[string]any{"lat": 40.7, "lng": -74, "radius_meters": 45000})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 above the configured radius, got %d", resp.StatusCode)
	}
}

func TestHandleAggregate_ServesPartialOnError(t *testing.T) {
	engine := &fakeEngine{aggErr: fmt.Errorf("batch insert: %w", aggregate.ErrStoreFailure)}
	s, _ := createTestServer(engine, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/restaurants/aggregate", map[string]any{"lat": 40.7, "lng": -74, "radius_meters": 1000})
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"restaurants":[]`)) {
		t.Errorf("Expected empty 200, got %d %s", resp.StatusCode, body)
	}
}

func TestHandleResolveByAnchor(t *testing.T) {
	tests := []struct {
		name       string
		engine     *fakeEngine
		body       any
		wantStatus int
	}{
		{"found", &fakeEngine{resolved: place("a", "Lupa", 1, 1)}, map[string]any{"anchor_id": "place-a", "force_refresh": true}, http.StatusOK},
		{"missing id", &fakeEngine{}, map[string]any{}, http.StatusBadRequest},
		{"incomplete provider data", &fakeEngine{resolveErr: fmt.Errorf("upstream 500: %w", aggregate.ErrIncompleteProviderData)}, map[string]any{"anchor_id": "x"}, http.StatusNotFound},
		{"store failure", &fakeEngine{resolveErr: aggregate.ErrStoreFailure}, map[string]any{"anchor_id": "x"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := createTestServer(tt.engine, &fakeResolver{})
			ts := httptest.NewServer(s.RegisterRoutes())
			defer ts.Close()

			resp := postJSON(t, ts.URL+"/api/v1/restaurants/resolve", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if bytes.Contains(body, []byte("upstream 500")) {
				t.Errorf("Provider error leaked into response: %s", body)
			}
		})
	}
}

func TestHandleResolveByName(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{rec: place("a", "Lupa", 1, 1)})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/restaurants/lookup?" + url.Values{"name": {"Lupa"}, "location": {"New York, NY"}}.Encode())
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	s, _ = createTestServer(&fakeEngine{}, &fakeResolver{err: resolve.ErrUnresolved})
	ts2 := httptest.NewServer(s.RegisterRoutes())
	defer ts2.Close()
	resp2, err := http.Get(ts2.URL + "/api/v1/restaurants/lookup?name=Nowhere")
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp2.StatusCode)
	}

	resp3, err := http.Get(ts2.URL + "/api/v1/restaurants/lookup")
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer func() { _ = resp3.Body.Close() }()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without name, got %d", resp3.StatusCode)
	}
}

func TestHandleDelete_NotImplemented(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/restaurants/a", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("Expected 501, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := createTestServer(&fakeEngine{}, &fakeResolver{})
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("Failed to send request: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
