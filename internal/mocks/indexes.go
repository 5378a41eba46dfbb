package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platewise/platewise-api/internal/domain/repository"
)

// Embedder derives a deterministic vector from the text bytes.
type Embedder struct {
	Dimension int
	Err       error
	Calls     atomic.Int32
}

var _ repository.EmbeddingClient = (*Embedder)(nil)

func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dimension
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashVector(t, dim)
	}
	return out, nil
}

func (e *Embedder) Name() string { return "mock-embedder" }

// HashVector spreads the text hash over dim unit-normalized components.
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		v[i] = float32(h.Sum32()%1000) / 1000
		norm += float64(v[i]) * float64(v[i])
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

// Vectors is a brute-force cosine VectorRepository.
type Vectors struct {
	mu      sync.Mutex
	vectors map[string][]float32
	Err     error
}

var _ repository.VectorRepository = (*Vectors)(nil)

func NewVectors() *Vectors {
	return &Vectors{vectors: make(map[string][]float32)}
}

func (v *Vectors) Upsert(_ context.Context, id string, vector []float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Err != nil {
		return v.Err
	}
	v.vectors[id] = append([]float32(nil), vector...)
	return nil
}

func (v *Vectors) Delete(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.vectors, id)
	return nil
}

// Has reports whether id is indexed.
func (v *Vectors) Has(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.vectors[id]
	return ok
}

func (v *Vectors) Search(_ context.Context, q repository.VectorQuery) ([]repository.VectorMatch, error) {
	if q.Limit <= 0 || q.NumCandidates < q.Limit {
		return nil, errors.New("num candidates must be >= limit > 0")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Err != nil {
		return nil, v.Err
	}
	var out []repository.VectorMatch
	for id, vec := range v.vectors {
		if len(vec) != len(q.Vector) || slices.Contains(q.ExcludeIDs, id) {
			continue
		}
		score := cosine(q.Vector, vec)
		if score < q.MinSimilarity {
			continue
		}
		out = append(out, repository.VectorMatch{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (v *Vectors) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Graph keeps linked content per restaurant.
type Graph struct {
	mu    sync.Mutex
	items map[string][]repository.ContentItem
}

var _ repository.GraphRepository = (*Graph)(nil)

func NewGraph() *Graph {
	return &Graph{items: make(map[string][]repository.ContentItem)}
}

func (g *Graph) LinkContent(_ context.Context, restaurantID string, item repository.ContentItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.items[restaurantID] {
		if existing.ID == item.ID {
			return nil
		}
	}
	g.items[restaurantID] = append(g.items[restaurantID], item)
	return nil
}

func (g *Graph) ListContent(_ context.Context, restaurantID string, kind repository.ContentKind, limit int) ([]repository.ContentItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []repository.ContentItem
	for _, it := range g.items[restaurantID] {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *Graph) DonorMedia(ctx context.Context, restaurantID string) (string, error) {
	posts, err := g.ListContent(ctx, restaurantID, repository.ContentPost, 0)
	if err != nil {
		return "", err
	}
	for _, p := range posts {
		if p.MediaURL != "" {
			return p.MediaURL, nil
		}
	}
	return "", nil
}

func (g *Graph) Close(context.Context) error { return nil }

// Post builds a post content item with media.
func Post(id, media string, at time.Time) repository.ContentItem {
	return repository.ContentItem{ID: id, Kind: repository.ContentPost, MediaURL: media, PublishedAt: at}
}
