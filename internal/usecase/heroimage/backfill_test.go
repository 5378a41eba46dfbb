package heroimage

import (
	"context"
	"errors"
	"testing"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/mocks"
)

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemoryStore(
		&models.Restaurant{ID: "r1", AnchorID: "a1", Name: "Lupa"},
		&models.Restaurant{ID: "r2", AnchorID: "a2", Name: "Dame", HeroImageURL: "https://cdn.example/dame.jpg"},
	)

	report, err := Backfill(ctx, store, []Override{
		{RestaurantID: "r1", URL: "https://cdn.example/lupa.jpg"},
		{RestaurantID: "r2", URL: "https://cdn.example/dame.jpg"},
		{RestaurantID: "missing", URL: "https://cdn.example/x.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != (BackfillReport{Applied: 1, Unchanged: 1, Missing: 1}) {
		t.Errorf("unexpected report %+v", report)
	}

	r1, _ := store.FindByID(ctx, "r1")
	if r1.HeroImageURL != "https://cdn.example/lupa.jpg" || r1.AnchorID != "a1" {
		t.Errorf("expected hero image to be stored without touching identity, got %+v", r1)
	}
	if url, src := Resolve(ctx, r1, nil); src != SourceExplicit || url != r1.HeroImageURL {
		t.Errorf("expected backfilled image to resolve as explicit, got %q from %s", url, src)
	}
}

func TestBackfillCountsWriteFailures(t *testing.T) {
	store := mocks.NewMemoryStore(&models.Restaurant{ID: "r1", AnchorID: "a1", Name: "Lupa"})
	store.FailWrites = errors.New("disk full")

	report, err := Backfill(context.Background(), store, []Override{{RestaurantID: "r1", URL: "https://cdn.example/lupa.jpg"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 || report.Applied != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestBackfillStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Backfill(ctx, mocks.NewMemoryStore(), []Override{{RestaurantID: "r1", URL: "https://cdn.example/a.jpg"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
