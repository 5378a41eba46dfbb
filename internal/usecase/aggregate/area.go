package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/platewise/platewise-api/internal/database"
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
	"github.com/platewise/platewise-api/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Area is a circular discovery region.
type Area struct {
	Center       models.Coordinates `json:"center"`
	RadiusMeters float64            `json:"radius_meters"`
}

// Report summarizes one AggregateAround run. It is diagnostic only.
type Report struct {
	Candidates int     `json:"candidates"`
	Misses     int     `json:"misses"`
	Fresh      int     `json:"fresh"`
	Stale      int     `json:"stale"`
	Created    int     `json:"created"`
	Refreshed  int     `json:"refreshed"`
	Failed     int     `json:"failed"`
	Duplicates int     `json:"duplicates"`
	NewRatio   float64 `json:"new_ratio"`
}

type outcome int

const (
	outcomeMiss outcome = iota
	outcomeFailed
	outcomeFresh
	outcomeStale
	outcomeNew
)

type candidateResult struct {
	outcome outcome
	// record is the fresh existing record or the freshly merged one.
	record *models.Restaurant
	// existing is the stored record a failed or pending refresh falls back to.
	existing *models.Restaurant
}

// AggregateAround discovers businesses in area and returns their canonical records,
// deduplicated by id. Provider failures count as misses or failures and never abort the run.
// New records are written with one batched create and stale ones with one batched update;
// when a batch fails its error is returned together with every record that could still be served.
func (e *Engine) AggregateAround(ctx context.Context, area Area) ([]*models.Restaurant, Report, error) {
	ctx, span := tracer.Start(ctx, "aggregate.AggregateAround", trace.WithAttributes(
		attribute.Float64("center.lat", area.Center.Lat),
		attribute.Float64("center.lng", area.Center.Lng),
		attribute.Float64("radius_meters", area.RadiusMeters),
	))
	defer span.End()

	var report Report
	stubs, err := e.discovery.SearchBusinessesNear(ctx, area.Center, area.RadiusMeters)
	if err != nil {
		log.Printf("[Aggregate] Warning: discovery search failed, returning no records: %v", err)
		span.RecordError(err)
		return nil, report, nil
	}
	if len(stubs) == 0 {
		return nil, report, nil
	}
	report.Candidates = len(stubs)
	now := e.clock()

	results := make([]candidateResult, len(stubs))
	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i := range stubs {
		g.Go(func() error {
			results[i] = e.processCandidate(gctx, &stubs[i], now)
			return nil
		})
	}
	_ = g.Wait()

	// Two candidates can resolve to the same anchor; the first one wins.
	seenAnchor := make(map[string]bool, len(results))
	var newBatch, staleBatch []*models.Restaurant
	for i := range results {
		res := &results[i]
		switch res.outcome {
		case outcomeMiss:
			report.Misses++
			continue
		case outcomeFailed:
			report.Failed++
			continue
		}
		if seenAnchor[res.record.AnchorID] {
			res.outcome = outcomeMiss
			res.record = nil
			res.existing = nil
			continue
		}
		seenAnchor[res.record.AnchorID] = true
		switch res.outcome {
		case outcomeFresh:
			report.Fresh++
		case outcomeNew:
			newBatch = append(newBatch, res.record)
		case outcomeStale:
			report.Stale++
			staleBatch = append(staleBatch, res.record)
		}
	}

	e.embedAll(ctx, append(append([]*models.Restaurant(nil), newBatch...), staleBatch...))

	var batchErrs []error
	createdIDs := make(map[string]bool, len(newBatch))
	if len(newBatch) > 0 {
		created, err := e.store.CreateRestaurants(ctx, newBatch)
		if err != nil {
			log.Printf("[Aggregate] Error: batched create of %d records failed: %v", len(newBatch), err)
			batchErrs = append(batchErrs, fmt.Errorf("%w: create batch: %w", ErrStoreFailure, err))
		}
		for _, r := range created {
			createdIDs[r.ID] = true
		}
		e.syncVectors(ctx, created...)
		report.Created = len(created)
		if err == nil {
			report.Duplicates = len(newBatch) - len(created)
		}
		for _, r := range newBatch {
			if err == nil && !createdIDs[r.ID] {
				log.Printf("[Aggregate] Warning: creation for anchor %s (secondary %q) rejected as duplicate identity", r.AnchorID, r.SecondaryID)
			}
		}
		metrics.DuplicateIdentityTotal.Add(float64(report.Duplicates))
	}

	staleSaved := len(staleBatch) > 0
	if staleSaved {
		if err := e.store.UpdateRestaurants(ctx, staleBatch); err != nil {
			log.Printf("[Aggregate] Error: batched update of %d records failed, serving stale copies: %v", len(staleBatch), err)
			batchErrs = append(batchErrs, fmt.Errorf("%w: update batch: %w", ErrStoreFailure, err))
			staleSaved = false
		} else {
			e.syncVectors(ctx, staleBatch...)
			report.Refreshed = len(staleBatch)
		}
	}

	seenID := make(map[string]bool, len(results))
	var out []*models.Restaurant
	add := func(r *models.Restaurant) {
		if r == nil || seenID[r.ID] {
			return
		}
		seenID[r.ID] = true
		out = append(out, r)
	}
	for _, res := range results {
		switch res.outcome {
		case outcomeFresh:
			add(res.record)
		case outcomeNew:
			if createdIDs[res.record.ID] {
				add(res.record.Clone())
			}
		case outcomeStale:
			if staleSaved {
				add(res.record.Clone())
			} else {
				add(res.existing)
			}
		case outcomeFailed:
			add(res.existing)
		}
	}

	if len(out) > 0 {
		report.NewRatio = float64(report.Created) / float64(len(out))
	}
	metrics.RecordAggregate(report.Misses, report.Fresh, report.Stale, report.Created, report.Failed, report.NewRatio)
	log.Printf("[Aggregate] Area (%.5f,%.5f r=%.0fm): %d candidates, %d misses, %d fresh, %d stale, %d new, %d failed, %d duplicates",
		area.Center.Lat, area.Center.Lng, area.RadiusMeters,
		report.Candidates, report.Misses, report.Fresh, report.Stale, report.Created, report.Failed, report.Duplicates)

	err = errors.Join(batchErrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, report, err
}

func (e *Engine) processCandidate(ctx context.Context, stub *repository.BusinessStub, now time.Time) candidateResult {
	anchorID, err := e.anchor.ResolvePlaceID(ctx, stub.Name, candidateLocation(stub))
	if err != nil {
		log.Printf("[Aggregate] Warning: anchor lookup for %q failed, counting as miss: %v", stub.Name, err)
		return candidateResult{outcome: outcomeMiss}
	}
	if anchorID == "" {
		return candidateResult{outcome: outcomeMiss}
	}

	existing, err := e.store.FindByAnchorID(ctx, anchorID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("[Aggregate] Warning: store lookup for anchor %s failed: %v", anchorID, err)
		return candidateResult{outcome: outcomeFailed}
	}
	state := existing.State(now)
	if state == models.StateFresh {
		return candidateResult{outcome: outcomeFresh, record: existing}
	}

	merged, err := e.prepare(ctx, anchorID, existing, stub, now)
	if err != nil {
		log.Printf("[Aggregate] Warning: discarding candidate %q: %v", stub.Name, err)
		return candidateResult{outcome: outcomeFailed, existing: existing}
	}
	if state == models.StateUnknown {
		return candidateResult{outcome: outcomeNew, record: merged}
	}
	return candidateResult{outcome: outcomeStale, record: merged, existing: existing}
}
