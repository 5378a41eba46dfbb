package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Origin is the query primitive an explore request starts from.
type Origin string

const (
	OriginNearby  Origin = "nearby"
	OriginText    Origin = "text"
	OriginSimilar Origin = "similar"
)

// ExploreRequest runs one primitive and personalizes its candidates.
type ExploreRequest struct {
	Requester      repository.Requester
	Origin         Origin
	Nearby         *NearbyRequest
	Text           *TextRequest
	Similar        *SimilarRequest
	ReservableOnly bool
}

// Personalization is the per-requester view of a candidate.
type Personalization struct {
	IsSaved           bool                     `json:"is_saved"`
	AverageRating     *float64                 `json:"average_rating,omitempty"`
	PercentMatchScore *float64                 `json:"percent_match_score,omitempty"`
	QualityScore      float64                  `json:"quality_score"`
	HasAvailability   bool                     `json:"has_availability"`
	Posts             []repository.ContentItem `json:"posts,omitempty"`
	Articles          []repository.ContentItem `json:"articles,omitempty"`
	Awards            []repository.ContentItem `json:"awards,omitempty"`
}

// Explore runs the origin query, personalizes every candidate and, for the nearby origin,
// orders by match score (quality score when there is none). Text and similarity order is kept.
func (p *Pipeline) Explore(ctx context.Context, req ExploreRequest) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "search.Explore", trace.WithAttributes(
		attribute.String("origin", string(req.Origin)),
		attribute.Bool("reservable_only", req.ReservableOnly),
	))
	defer span.End()
	defer func() { metrics.RecordSearch("explore", err) }()

	switch req.Origin {
	case OriginNearby:
		if req.Nearby == nil {
			return nil, fmt.Errorf("%w: nearby origin without a nearby query", ErrInvalidRequest)
		}
		results, err = p.Nearby(ctx, *req.Nearby)
	case OriginText:
		if req.Text == nil {
			return nil, fmt.Errorf("%w: text origin without a text query", ErrInvalidRequest)
		}
		results, err = p.Text(ctx, *req.Text)
	case OriginSimilar:
		if req.Similar == nil {
			return nil, fmt.Errorf("%w: similar origin without a similarity query", ErrInvalidRequest)
		}
		results, err = p.Similar(ctx, *req.Similar)
	default:
		return nil, fmt.Errorf("%w: unknown origin %q", ErrInvalidRequest, req.Origin)
	}
	if err != nil {
		return nil, err
	}

	if req.ReservableOnly {
		kept := results[:0]
		for _, r := range results {
			if r.Restaurant.Reservable {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	p.personalize(ctx, req.Requester, results)

	if req.Origin == OriginNearby {
		SortByPersonalization(results)
	}
	return results, nil
}

// personalize fills Result.Personalization concurrently per candidate.
// Collaborator failures are logged and leave the corresponding value unset.
func (p *Pipeline) personalize(ctx context.Context, who repository.Requester, results []Result) {
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		pz := &Personalization{}
		results[i].Personalization = pz
		r := results[i].Restaurant
		g.Go(func() error {
			p.personalizeOne(gctx, who, r, pz)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) personalizeOne(ctx context.Context, who repository.Requester, r *models.Restaurant, pz *Personalization) {
	var wg sync.WaitGroup
	run := func(what string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Printf("[Search] Warning: %s for %s failed: %v", what, r.ID, err)
			}
		}()
	}

	if p.saved != nil && who.UserID != "" {
		run("saved lookup", func() (err error) {
			pz.IsSaved, err = p.saved.IsSaved(ctx, who.UserID, r.ID)
			return err
		})
	}
	if p.ratings != nil {
		run("rating lookup", func() (err error) {
			pz.AverageRating, err = p.ratings.AverageRating(ctx, r.ID)
			return err
		})
	}
	if p.personalizer != nil {
		if who.UserID != "" && who.Location != nil {
			run("match score", func() (err error) {
				pz.PercentMatchScore, err = p.personalizer.MatchScore(ctx, who, r)
				return err
			})
		}
		run("quality score", func() (err error) {
			pz.QualityScore, err = p.personalizer.QualityScore(ctx, r)
			return err
		})
	}
	if p.reservations != nil {
		run("availability", func() (err error) {
			pz.HasAvailability, err = p.reservations.HasAvailability(ctx, r)
			return err
		})
	}
	if p.graph != nil {
		for kind, dst := range map[repository.ContentKind]*[]repository.ContentItem{
			repository.ContentPost:    &pz.Posts,
			repository.ContentArticle: &pz.Articles,
			repository.ContentAward:   &pz.Awards,
		} {
			run(string(kind)+" edges", func() (err error) {
				*dst, err = p.graph.ListContent(ctx, r.ID, kind, p.edgeCap)
				return err
			})
		}
	}
	wg.Wait()
}

// SortByPersonalization orders results by descending match score. Candidates with a
// match score rank ahead of those without; the rest fall back to descending quality score.
func SortByPersonalization(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Personalization, results[j].Personalization
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		switch {
		case a.PercentMatchScore != nil && b.PercentMatchScore != nil:
			if *a.PercentMatchScore != *b.PercentMatchScore {
				return *a.PercentMatchScore > *b.PercentMatchScore
			}
		case a.PercentMatchScore != nil:
			return true
		case b.PercentMatchScore != nil:
			return false
		}
		return a.QualityScore > b.QualityScore
	})
}
