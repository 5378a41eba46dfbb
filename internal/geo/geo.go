package geo

import (
	"math"

	"github.com/platewise/platewise-api/internal/database/models"
)

const earthRadiusMeters = 6371008.8

// DistanceMeters returns the haversine distance between two points.
func DistanceMeters(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a lat/lng bounding rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a rectangle that contains every point within radius of center.
// It is a coarse pre-filter; callers must still check DistanceMeters.
func BoundingBox(center models.Coordinates, radiusMeters float64) Box {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	b := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	cos := math.Cos(center.Lat * math.Pi / 180)
	if cos > 1e-9 && b.MinLat > -90 && b.MaxLat < 90 {
		dLng := dLat / cos
		if dLng < 180 {
			b.MinLng = center.Lng - dLng
			b.MaxLng = center.Lng + dLng
		}
	}
	return b
}

// WrapsAntimeridian reports whether the longitude span crosses ±180.
func (b Box) WrapsAntimeridian() bool {
	return b.MinLng < -180 || b.MaxLng > 180
}

// ContainsLng handles boxes that cross the antimeridian.
func (b Box) ContainsLng(lng float64) bool {
	if !b.WrapsAntimeridian() {
		return lng >= b.MinLng && lng <= b.MaxLng
	}
	return lng >= normalizeLng(b.MinLng) || lng <= normalizeLng(b.MaxLng)
}

func normalizeLng(l float64) float64 {
	for l > 180 {
		l -= 360
	}
	for l < -180 {
		l += 360
	}
	return l
}
