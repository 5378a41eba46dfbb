package repository

import (
	"context"
	"time"
)

// VectorMatch is a nearest-neighbor hit from the vector index.
type VectorMatch struct {
	ID    string
	Score float32
}

// VectorQuery is a KNN request. NumCandidates must be >= Limit.
type VectorQuery struct {
	Vector        []float32
	NumCandidates int
	Limit         int
	MinSimilarity float32
	ExcludeIDs    []string
}

// VectorRepository defines the interface for the restaurant embedding index.
type VectorRepository interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q VectorQuery) ([]VectorMatch, error)
	Close() error
}

// ContentKind is the type of content linked to a restaurant.
type ContentKind string

const (
	ContentPost    ContentKind = "post"
	ContentArticle ContentKind = "article"
	ContentAward   ContentKind = "award"
)

// ContentItem is a post, article or award associated with a restaurant.
type ContentItem struct {
	ID          string      `json:"id"`
	Kind        ContentKind `json:"kind"`
	Title       string      `json:"title,omitempty"`
	URL         string      `json:"url,omitempty"`
	MediaURL    string      `json:"media_url,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
}

// GraphRepository defines the interface for the restaurant content graph.
type GraphRepository interface {
	LinkContent(ctx context.Context, restaurantID string, item ContentItem) error
	// ListContent returns up to limit items of kind, newest first.
	ListContent(ctx context.Context, restaurantID string, kind ContentKind, limit int) ([]ContentItem, error)
	// DonorMedia returns the media URL of the newest associated post that has one, or "".
	DonorMedia(ctx context.Context, restaurantID string) (string, error)
	Close(ctx context.Context) error
}
