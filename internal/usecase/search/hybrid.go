package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/filter"
	"github.com/platewise/platewise-api/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// rrfK is the Reciprocal Rank Fusion damping constant.
const rrfK = 60.0

// HybridRequest runs the text and similarity engines for one free-text query and fuses them.
type HybridRequest struct {
	Query       string        `json:"query" validate:"required"`
	QueryVector []float32     `json:"query_vector,omitempty"`
	Filter      filter.Filter `json:"-"`
	Limit       int           `json:"limit,omitempty"`
}

// Hybrid queries both engines concurrently and merges them with RRF. An engine that fails
// is dropped from the fusion; only when both fail is an error returned.
func (p *Pipeline) Hybrid(ctx context.Context, req HybridRequest) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "search.Hybrid", trace.WithAttributes(attribute.String("query", req.Query)))
	defer span.End()
	defer func() { metrics.RecordSearch("hybrid", err) }()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: hybrid query is empty", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSimilarLimit
	}

	var textResults, similarResults []Result
	var textErr, similarErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		textResults, textErr = p.Text(gctx, TextRequest{
			Query:  req.Query,
			Filter: req.Filter,
			Page:   database.Page{Size: limit * candidateFactor},
		})
		if textErr != nil {
			log.Printf("[Search] Warning: text engine failed, degrading gracefully: %v", textErr)
		}
		return nil
	})
	g.Go(func() error {
		similarResults, similarErr = p.Similar(gctx, SimilarRequest{
			QueryText:   req.Query,
			QueryVector: req.QueryVector,
			Limit:       limit,
		})
		if similarErr != nil {
			log.Printf("[Search] Warning: similarity engine failed, degrading gracefully: %v", similarErr)
			return nil
		}
		if len(req.Filter) > 0 {
			kept := similarResults[:0]
			for _, r := range similarResults {
				if req.Filter.Match(r.Restaurant) {
					kept = append(kept, r)
				}
			}
			similarResults = kept
		}
		return nil
	})
	_ = g.Wait()

	if textErr != nil && similarErr != nil {
		return nil, errors.Join(textErr, similarErr)
	}

	results = fuse(limit, textResults, similarResults)
	log.Printf("[Search] Hybrid %q: %d text + %d similar fused into %d", req.Query, len(textResults), len(similarResults), len(results))
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// fuse merges ranked lists by restaurant id: score = sum(1 / (k + rank)).
func fuse(limit int, lists ...[]Result) []Result {
	scores := map[string]float64{}
	merged := map[string]*Result{}
	var order []string
	for _, list := range lists {
		for rank, r := range list {
			id := r.Restaurant.ID
			scores[id] += 1 / (rrfK + float64(rank+1))
			m, ok := merged[id]
			if !ok {
				cp := r
				merged[id] = &cp
				order = append(order, id)
				continue
			}
			// Keep every engine's own metric on the merged entry.
			if r.TextScore > 0 {
				m.TextScore = r.TextScore
			}
			if r.SimilarityScore != 0 {
				m.SimilarityScore = r.SimilarityScore
			}
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		r := *merged[id]
		r.FusedScore = scores[id]
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].Restaurant.ID < out[j].Restaurant.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
