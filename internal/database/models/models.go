package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DefaultStalenessTTL is how long an aggregated record is served before it becomes a refresh candidate.
const DefaultStalenessTTL = 7 * 24 * time.Hour

// LifecycleState is the derived freshness state of a canonical record.
type LifecycleState string

const (
	StateUnknown LifecycleState = "unknown"
	StateFresh   LifecycleState = "fresh"
	StateStale   LifecycleState = "stale"
)

// PriceLevel is the provider-neutral price enum (0 means unknown).
type PriceLevel int

const (
	PriceUnknown PriceLevel = iota
	PriceInexpensive
	PriceModerate
	PriceExpensive
	PriceVeryExpensive
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `bun:"lat,notnull" json:"lat"`
	Lng float64 `bun:"lng,notnull" json:"lng"`
}

// IsZero reports whether the point was never set.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Address holds the normalized address components from the anchor provider.
type Address struct {
	Street      string `bun:"street" json:"street,omitempty"`
	City        string `bun:"city" json:"city,omitempty"`
	State       string `bun:"state" json:"state,omitempty"`
	CountryCode string `bun:"country_code" json:"country_code,omitempty"`
	PostalCode  string `bun:"postal_code" json:"postal_code,omitempty"`
	Formatted   string `bun:"formatted" json:"formatted,omitempty"`
}

// Restaurant is the reconciled canonical record.
// AnchorID is the deduplication key; SecondaryID is unique only when set.
type Restaurant struct {
	bun.BaseModel `bun:"table:restaurants,alias:r"`

	ID          string `bun:"id,pk" json:"id"`
	AnchorID    string `bun:"anchor_id,notnull,unique" json:"anchor_id"`
	SecondaryID string `bun:"secondary_id,nullzero,unique" json:"secondary_id,omitempty"`

	Name        string      `bun:"name,notnull" json:"name"`
	Coordinates Coordinates `bun:"embed:geo_" json:"coordinates"`
	Address     Address     `bun:"embed:address_" json:"address"`
	Categories  []string    `bun:"categories,type:json" json:"categories"`

	PriceLevel          PriceLevel        `bun:"price_level" json:"price_level"`
	HeroImageURL        string            `bun:"hero_image_url" json:"hero_image_url,omitempty"`
	ImageCollectionURLs []string          `bun:"image_collection_urls,type:json" json:"image_collection_urls,omitempty"`
	OperatingHours      map[string]string `bun:"operating_hours,type:json" json:"operating_hours,omitempty"`

	ServesAlcohol    bool   `bun:"serves_alcohol" json:"serves_alcohol"`
	Reservable       bool   `bun:"reservable" json:"reservable"`
	Website          string `bun:"website" json:"website,omitempty"`
	PhoneNumber      string `bun:"phone_number" json:"phone_number,omitempty"`
	UTCOffsetMinutes *int   `bun:"utc_offset_minutes" json:"utc_offset_minutes,omitempty"`

	Description     string   `bun:"description" json:"description,omitempty"`
	SocialHandles   []string `bun:"social_handles,type:json" json:"social_handles,omitempty"`
	ReservationLink string   `bun:"reservation_link" json:"reservation_link,omitempty"`

	EmbeddingVector []float32 `bun:"embedding_vector,type:json,nullzero" json:"-"`

	StaleAfter   time.Time `bun:"stale_after,notnull" json:"stale_after"`
	CreationDate time.Time `bun:"creation_date,notnull" json:"creation_date"`
	LastUpdated  time.Time `bun:"last_updated,notnull" json:"last_updated"`
}

// IsStale reports whether now is strictly past StaleAfter.
func (r *Restaurant) IsStale(now time.Time) bool {
	return now.After(r.StaleAfter)
}

// State derives the lifecycle state. A nil record is unknown.
func (r *Restaurant) State(now time.Time) LifecycleState {
	if r == nil {
		return StateUnknown
	}
	if r.IsStale(now) {
		return StateStale
	}
	return StateFresh
}

// HasEmbedding reports whether the record can take part in vector search.
func (r *Restaurant) HasEmbedding() bool {
	return len(r.EmbeddingVector) > 0
}

// EmbeddingText is the text the embedding vector is computed from.
func (r *Restaurant) EmbeddingText() string {
	parts := []string{r.Name}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if len(r.Categories) > 0 {
		parts = append(parts, joinNonEmpty(r.Categories, ", "))
	}
	if r.Address.Formatted != "" {
		parts = append(parts, r.Address.Formatted)
	} else {
		parts = append(parts, joinNonEmpty([]string{r.Address.Street, r.Address.City, r.Address.State, r.Address.CountryCode}, ", "))
	}
	return joinNonEmpty(parts, ". ")
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (r *Restaurant) Clone() *Restaurant {
	if r == nil {
		return nil
	}
	c := *r
	c.Categories = append([]string(nil), r.Categories...)
	c.ImageCollectionURLs = append([]string(nil), r.ImageCollectionURLs...)
	c.SocialHandles = append([]string(nil), r.SocialHandles...)
	c.EmbeddingVector = append([]float32(nil), r.EmbeddingVector...)
	if r.OperatingHours != nil {
		c.OperatingHours = make(map[string]string, len(r.OperatingHours))
		for k, v := range r.OperatingHours {
			c.OperatingHours[k] = v
		}
	}
	if r.UTCOffsetMinutes != nil {
		v := *r.UTCOffsetMinutes
		c.UTCOffsetMinutes = &v
	}
	if len(c.EmbeddingVector) == 0 {
		c.EmbeddingVector = nil
	}
	return &c
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}
