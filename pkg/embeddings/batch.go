package embeddings

import (
	"context"
	"sync"
)

const (
	// DefaultBatchSize is the number of texts sent per provider call.
	DefaultBatchSize = 64

	// DefaultMaxInFlight caps concurrent provider calls so batch embedding
	// respects provider rate limits. Exceeding the cap queues rather than
	// fails.
	DefaultMaxInFlight = 4
)

// EmbedAll embeds texts by splitting them into batches of batchSize and
// running at most maxInFlight provider calls concurrently. Output order
// matches input order: result[i] is the embedding of texts[i]. The first
// batch error cancels the remaining work and is returned.
func EmbedAll(ctx context.Context, embedder Embedder, texts []string, batchSize, maxInFlight int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	sem := make(chan struct{}, maxInFlight)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			mu.Lock()
			defer mu.Unlock()
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			defer func() { <-sem }()

			batch, err := embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
				return
			}

			copy(vectors[start:], batch)
		}(start, end)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && firstErr == nil {
		// Caller-initiated cancellation with no provider error.
		return nil, err
	}

	return vectors, nil
}
