package personalization

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/match", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "40.727600", r.URL.Query().Get("lat"))
		if r.URL.Query().Get("restaurant_id") == "r1" {
			_, _ = w.Write([]byte(`{"score":87.5}`))
			return
		}
		_, _ = w.Write([]byte(`{"score":null}`))
	})
	mux.HandleFunc("GET /v1/restaurants/r1/quality", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":4.2}`))
	})
	mux.HandleFunc("GET /v1/restaurants/r1/rating", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"average":4.6}`))
	})
	mux.HandleFunc("GET /v1/users/u1/saved/r1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"saved":true}`))
	})
	mux.HandleFunc("GET /v1/restaurants/broken/quality", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientScoresAndLookups(t *testing.T) {
	server := newTestServer(t)
	client := NewClient(server.URL+"/", server.Client())
	ctx := context.Background()
	r1 := &models.Restaurant{ID: "r1"}
	who := repository.Requester{UserID: "u1", Location: &models.Coordinates{Lat: 40.7276, Lng: -74.0}}

	match, err := client.MatchScore(ctx, who, r1)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.InDelta(t, 87.5, *match, 1e-9)

	match, err = client.MatchScore(ctx, who, &models.Restaurant{ID: "r2"})
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = client.MatchScore(ctx, repository.Requester{UserID: "u1"}, r1)
	require.NoError(t, err)
	assert.Nil(t, match, "no location means no match score")

	quality, err := client.QualityScore(ctx, r1)
	require.NoError(t, err)
	assert.InDelta(t, 4.2, quality, 1e-9)

	rating, err := client.AverageRating(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rating)
	assert.InDelta(t, 4.6, *rating, 1e-9)

	saved, err := client.IsSaved(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestClientNotFoundAndErrors(t *testing.T) {
	server := newTestServer(t)
	client := NewClient(server.URL, server.Client())
	ctx := context.Background()

	rating, err := client.AverageRating(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, rating)

	saved, err := client.IsSaved(ctx, "u1", "unknown")
	require.NoError(t, err)
	assert.False(t, saved)

	quality, err := client.QualityScore(ctx, &models.Restaurant{ID: "unknown"})
	require.NoError(t, err)
	assert.Zero(t, quality)

	_, err = client.QualityScore(ctx, &models.Restaurant{ID: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestLinkAvailability(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		r    models.Restaurant
		want bool
	}{
		{"reservable with link", models.Restaurant{Reservable: true, ReservationLink: "https://resy.example/lupa"}, true},
		{"reservable without link", models.Restaurant{Reservable: true}, false},
		{"not reservable", models.Restaurant{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LinkAvailability{}.HasAvailability(ctx, &tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
