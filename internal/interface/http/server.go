package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/usecase/aggregate"
	"github.com/platewise/platewise-api/internal/usecase/resolve"
	"github.com/platewise/platewise-api/internal/usecase/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Aggregator is the identity and merge engine as seen by the HTTP layer.
type Aggregator interface {
	AggregateAround(ctx context.Context, area aggregate.Area) ([]*models.Restaurant, aggregate.Report, error)
	ResolveByAnchor(ctx context.Context, anchorID string, forceRefresh bool) (*models.Restaurant, error)
	Delete(ctx context.Context, id string) error
}

// NameResolver maps free-form name + location text to a canonical record.
type NameResolver interface {
	ResolveByNameAndLocation(ctx context.Context, name, locationText string) (*models.Restaurant, error)
}

// Searcher runs the query primitives and the explore path.
type Searcher interface {
	Nearby(ctx context.Context, req search.NearbyRequest) ([]search.Result, error)
	Text(ctx context.Context, req search.TextRequest) ([]search.Result, error)
	Similar(ctx context.Context, req search.SimilarRequest) ([]search.Result, error)
	Explore(ctx context.Context, req search.ExploreRequest) ([]search.Result, error)
	Hybrid(ctx context.Context, req search.HybridRequest) ([]search.Result, error)
}

// Server holds the dependencies for the HTTP API server
type Server struct {
	engine    Aggregator
	resolver  NameResolver
	search    Searcher
	validate  *validator.Validate
	maxRadius float64
}

// NewServer initializes a new API server with the required dependencies.
// maxAggregateRadius bounds aggregation requests; 0 leaves them unbounded.
func NewServer(engine Aggregator, resolver NameResolver, searcher Searcher, maxAggregateRadius float64) *Server {
	return &Server{
		engine:    engine,
		resolver:  resolver,
		search:    searcher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		maxRadius: maxAggregateRadius,
	}
}

// RegisterRoutes registers all API endpoints with a new ServeMux
func (s *Server) RegisterRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/restaurants/aggregate", s.handleAggregate)
	mux.HandleFunc("POST /api/v1/restaurants/resolve", s.handleResolveByAnchor)
	mux.HandleFunc("GET /api/v1/restaurants/lookup", s.handleResolveByName)
	mux.HandleFunc("DELETE /api/v1/restaurants/{id}", s.handleDelete)

	mux.HandleFunc("POST /api/v1/search/nearby", s.handleNearby)
	mux.HandleFunc("POST /api/v1/search/text", s.handleText)
	mux.HandleFunc("POST /api/v1/search/similar", s.handleSimilar)
	mux.HandleFunc("POST /api/v1/search/explore", s.handleExplore)
	mux.HandleFunc("POST /api/v1/search/hybrid", s.handleHybrid)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// decode reads a JSON body into dst and runs struct validation. It writes a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			http.Error(w, "Invalid field: "+verrs[0].Field(), http.StatusBadRequest)
			return false
		}
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

type AreaRequest struct {
	Lat          float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng          float64 `json:"lng" validate:"gte=-180,lte=180"`
	RadiusMeters float64 `json:"radius_meters" validate:"gt=0"`
}

type AggregateResponse struct {
	Restaurants []*models.Restaurant `json:"restaurants"`
	Report      aggregate.Report     `json:"report"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req AreaRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.maxRadius > 0 && req.RadiusMeters > s.maxRadius {
		http.Error(w, "Invalid field: RadiusMeters", http.StatusBadRequest)
		return
	}

	area := aggregate.Area{Center: models.Coordinates{Lat: req.Lat, Lng: req.Lng}, RadiusMeters: req.RadiusMeters}
	restaurants, report, err := s.engine.AggregateAround(r.Context(), area)
	if err != nil {
		// Partial results are still served; the cause stays in the log.
		log.Printf("[Server] Aggregation around %.5f,%.5f finished with errors: %v", req.Lat, req.Lng, err)
	}
	if restaurants == nil {
		restaurants = []*models.Restaurant{}
	}
	writeJSON(w, http.StatusOK, AggregateResponse{Restaurants: restaurants, Report: report})
}

type ResolveRequest struct {
	AnchorID     string `json:"anchor_id" validate:"required"`
	ForceRefresh bool   `json:"force_refresh"`
}

func (s *Server) handleResolveByAnchor(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.engine.ResolveByAnchor(r.Context(), req.AnchorID, req.ForceRefresh)
	if err != nil {
		s.writeResolveError(w, req.AnchorID, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleResolveByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Query parameter 'name' is required", http.StatusBadRequest)
		return
	}

	rec, err := s.resolver.ResolveByNameAndLocation(r.Context(), name, r.URL.Query().Get("location"))
	if err != nil {
		s.writeResolveError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeResolveError maps engine failures to status codes. Provider messages are never echoed.
func (s *Server) writeResolveError(w http.ResponseWriter, key string, err error) {
	log.Printf("[Server] Resolve %q failed: %v", key, err)
	switch {
	case errors.Is(err, aggregate.ErrMissingAnchorMatch):
		http.Error(w, "Anchor id is required", http.StatusBadRequest)
	case errors.Is(err, resolve.ErrUnresolved), errors.Is(err, aggregate.ErrIncompleteProviderData),
		errors.Is(err, database.ErrNotFound):
		http.Error(w, "Restaurant not found", http.StatusNotFound)
	default:
		http.Error(w, "Failed to resolve restaurant", http.StatusInternalServerError)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Delete(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrUnsupported) {
			http.Error(w, "Deleting restaurants is not supported", http.StatusNotImplemented)
			return
		}
		log.Printf("[Server] Delete %s failed: %v", id, err)
		http.Error(w, "Failed to delete restaurant", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// writeResults serves search output. Invalid requests are 400; every other failure degrades to an empty list.
func writeResults(w http.ResponseWriter, mode string, results []search.Result, err error) {
	if err != nil {
		if errors.Is(err, search.ErrInvalidRequest) {
			http.Error(w, "Invalid search request", http.StatusBadRequest)
			return
		}
		log.Printf("[Server] Warning: %s search degraded to empty results: %v", mode, err)
		results = nil
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	var req NearbyBody
	if !s.decode(w, r, &req) {
		return
	}
	nr, err := req.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.search.Nearby(r.Context(), nr)
	writeResults(w, "nearby", results, err)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req TextBody
	if !s.decode(w, r, &req) {
		return
	}
	tr, err := req.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.search.Text(r.Context(), tr)
	writeResults(w, "text", results, err)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req SimilarBody
	if !s.decode(w, r, &req) {
		return
	}
	results, err := s.search.Similar(r.Context(), req.toRequest())
	writeResults(w, "similar", results, err)
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	var req ExploreBody
	if !s.decode(w, r, &req) {
		return
	}
	er, err := req.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.search.Explore(r.Context(), er)
	writeResults(w, "explore", results, err)
}

func (s *Server) handleHybrid(w http.ResponseWriter, r *http.Request) {
	var req HybridBody
	if !s.decode(w, r, &req) {
		return
	}
	f, err := buildFilter(req.Filters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := s.search.Hybrid(r.Context(), search.HybridRequest{
		Query:       req.Query,
		QueryVector: req.QueryVector,
		Filter:      f,
		Limit:       req.Limit,
	})
	writeResults(w, "hybrid", results, err)
}

// requester builds the optional requester identity of an explore call.
func requester(userID string, loc *LocationBody) repository.Requester {
	who := repository.Requester{UserID: userID}
	if loc != nil {
		who.Location = &models.Coordinates{Lat: loc.Lat, Lng: loc.Lng}
	}
	return who
}
