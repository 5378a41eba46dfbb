// Package sweep runs scheduled area aggregation and the offline association and
// reservation-connect batches.
package sweep

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/usecase/aggregate"
)

// Aggregator is the slice of the merge engine the sweeper drives.
type Aggregator interface {
	AggregateAround(ctx context.Context, area aggregate.Area) ([]*models.Restaurant, aggregate.Report, error)
}

// Summary totals one sweeper run.
type Summary struct {
	Swept   int
	Skipped int
	Failed  int
	Report  aggregate.Report
}

type Worker struct {
	cfg    *Config
	engine Aggregator
	state  *FileStateStore
	now    func() time.Time
}

func NewWorker(cfg *Config, engine Aggregator, state *FileStateStore) *Worker {
	return &Worker{cfg: cfg, engine: engine, state: state, now: time.Now}
}

// Run aggregates every configured area not swept within MinInterval.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	now := w.now()

	var due []AreaConfig
	for _, a := range w.cfg.Areas {
		last := w.state.LastSwept(a.Name)
		if !last.IsZero() && now.Sub(last) < w.cfg.MinInterval {
			log.Printf("[Sweep] Skipping %s (last swept %s)", a.Name, last.Format(time.RFC3339))
			summary.Skipped++
			continue
		}
		due = append(due, a)
	}
	if len(due) == 0 {
		log.Println("[Sweep] No areas due. Exiting.")
		return summary, nil
	}

	log.Printf("[Sweep] Sweeping %d areas with concurrency %d...", len(due), w.cfg.Concurrency)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, w.cfg.Concurrency)
	)
	for i, area := range due {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		// Stagger the starts so providers are not hit in a burst.
		if i > 0 && w.cfg.DelayMS > 0 {
			time.Sleep(time.Duration(w.cfg.DelayMS) * time.Millisecond)
		}

		go func(a AreaConfig) {
			defer wg.Done()
			defer func() { <-sem }()

			_, report, err := w.engine.AggregateAround(ctx, aggregate.Area{
				Center:       models.Coordinates{Lat: a.Lat, Lng: a.Lng},
				RadiusMeters: a.RadiusMeters,
			})

			mu.Lock()
			defer mu.Unlock()
			addReport(&summary.Report, report)
			if err != nil {
				log.Printf("[Sweep] ERROR sweeping %s: %v", a.Name, err)
				summary.Failed++
				return
			}
			summary.Swept++
			w.state.MarkSwept(a.Name, now)
			log.Printf("[Sweep] %s: %d candidates, %d created, %d refreshed, %d misses",
				a.Name, report.Candidates, report.Created, report.Refreshed, report.Misses)
		}(area)
	}
	wg.Wait()

	log.Printf("[Sweep] Batch Complete. Swept: %d, Skipped: %d, Failed: %d", summary.Swept, summary.Skipped, summary.Failed)

	if err := w.state.Save(); err != nil {
		return summary, fmt.Errorf("failed to save state file: %w", err)
	}
	return summary, ctx.Err()
}

func addReport(dst *aggregate.Report, r aggregate.Report) {
	dst.Candidates += r.Candidates
	dst.Misses += r.Misses
	dst.Fresh += r.Fresh
	dst.Stale += r.Stale
	dst.Created += r.Created
	dst.Refreshed += r.Refreshed
	dst.Failed += r.Failed
	dst.Duplicates += r.Duplicates
	if served := dst.Fresh + dst.Stale + dst.Created; served > 0 {
		dst.NewRatio = float64(dst.Created) / float64(served)
	}
}
