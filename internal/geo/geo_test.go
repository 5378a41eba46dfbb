package geo

import (
	"math"
	"testing"

	"github.com/platewise/platewise-api/internal/database/models"
)

func TestDistanceMeters(t *testing.T) {
	paris := models.Coordinates{Lat: 48.8566, Lng: 2.3522}
	london := models.Coordinates{Lat: 51.5074, Lng: -0.1278}

	d := DistanceMeters(paris, london)
	if math.Abs(d-343_500) > 2_000 {
		t.Errorf("expected ~343.5km, got %.0fm", d)
	}
	if DistanceMeters(paris, paris) != 0 {
		t.Error("expected zero distance to self")
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	center := models.Coordinates{Lat: 40.7128, Lng: -74.0060}
	box := BoundingBox(center, 1000)

	// Points 999m due north/east must be inside the box.
	north := models.Coordinates{Lat: center.Lat + 999.0/earthRadiusMeters*180/math.Pi, Lng: center.Lng}
	if north.Lat > box.MaxLat {
		t.Errorf("north point %v outside box %+v", north, box)
	}
	if !box.ContainsLng(center.Lng + 0.01) {
		t.Errorf("expected lng within box %+v", box)
	}
	if box.ContainsLng(center.Lng + 1) {
		t.Errorf("expected lng 1 degree away to be outside box %+v", box)
	}
}

func TestBoundingBoxAntimeridian(t *testing.T) {
	box := BoundingBox(models.Coordinates{Lat: 0, Lng: 179.999}, 5000)
	if !box.WrapsAntimeridian() {
		t.Fatalf("expected wrapped box, got %+v", box)
	}
	if !box.ContainsLng(-179.99) {
		t.Error("expected point across the antimeridian to be inside")
	}
}
