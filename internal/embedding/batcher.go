package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/platewise/platewise-api/internal/domain/repository"
)

// ErrDimensionMismatch is returned when a backend produces a vector of the wrong size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Batcher splits embedding requests into bounded batches and enforces a fixed dimension.
// It implements repository.EmbeddingClient so callers never see a mis-sized vector.
type Batcher struct {
	client    repository.EmbeddingClient
	batchSize int
	dimension int
	timeout   time.Duration
}

// NewBatcher creates a new embedding batcher. dimension 0 disables the size check.
func NewBatcher(client repository.EmbeddingClient, batchSize, dimension int, timeout time.Duration) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Batcher{
		client:    client,
		batchSize: batchSize,
		dimension: dimension,
		timeout:   timeout,
	}
}

func (b *Batcher) Name() string { return b.client.Name() }

// Dimension is the vector size every result is checked against.
func (b *Batcher) Dimension() int { return b.dimension }

// Embed splits large text arrays into smaller batches and executes them concurrently.
// Results come back in input order.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	totalItems := len(texts)
	numBatches := (totalItems + b.batchSize - 1) / b.batchSize
	if numBatches > 1 {
		log.Printf("[Embedding Batcher] Splitting %d texts into %d batches (max %d/batch)", totalItems, numBatches, b.batchSize)
	}

	results := make([][]float32, totalItems)
	var mu sync.Mutex

	var wg sync.WaitGroup
	errCh := make(chan error, numBatches)

	for i := 0; i < numBatches; i++ {
		start := i * b.batchSize
		end := start + b.batchSize
		if end > totalItems {
			end = totalItems
		}

		wg.Add(1)
		go func(pts []string, startIdx int, bIdx int) {
			defer wg.Done()

			vecs, err := b.client.Embed(ctx, pts)
			if err != nil {
				log.Printf("[Embedding Batcher] Batch %d failed: %v", bIdx, err)
				errCh <- fmt.Errorf("batch %d failed: %w", bIdx, err)
				return
			}
			if len(vecs) != len(pts) {
				errCh <- fmt.Errorf("batch %d failed: got %d vectors for %d texts", bIdx, len(vecs), len(pts))
				return
			}
			for j, v := range vecs {
				if b.dimension > 0 && len(v) != b.dimension {
					errCh <- fmt.Errorf("batch %d item %d: %w: got %d, want %d", bIdx, j, ErrDimensionMismatch, len(v), b.dimension)
					return
				}
			}

			mu.Lock()
			// Reassemble results based on original indexing
			for j, v := range vecs {
				results[startIdx+j] = v
			}
			mu.Unlock()
		}(texts[start:end], start, i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
