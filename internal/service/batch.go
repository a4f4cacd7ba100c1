// Package service orchestrates sync and enrichment runs over the stores.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// chunkPause is the delay between concurrent chunks, keeping remote APIs
// from seeing a sustained burst.
var chunkPause = time.Second

// BatchOutcome aggregates the results of a chunked run.
type BatchOutcome struct {
	Succeeded int
	Failed    int
	Errors    []string
}

// RunChunked processes items in chunks of size concurrency. All items of a
// chunk run in parallel; chunks run strictly one after another with a short
// pause in between. A panicking item counts as failed without taking down
// the run. onChunk, if non-nil, is called once per completed chunk with
// cumulative progress.
//
// Cancellation is honored at chunk boundaries; in-flight items finish.
func RunChunked[T any](
	ctx context.Context,
	items []T,
	concurrency int,
	work func(context.Context, T) error,
	onChunk func(done, total int),
) BatchOutcome {
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		succeeded atomic.Int32
		failed    atomic.Int32
		errorsMu  sync.Mutex
		errs      []string
	)

	total := len(items)
	for start := 0; start < total; start += concurrency {
		if ctx.Err() != nil {
			errorsMu.Lock()
			errs = append(errs, fmt.Sprintf("canceled after %d items: %v", start, ctx.Err()))
			errorsMu.Unlock()
			break
		}

		end := min(start+concurrency, total)
		chunk := items[start:end]

		var wg sync.WaitGroup
		for _, item := range chunk {
			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						failed.Add(1)
						errorsMu.Lock()
						errs = append(errs, fmt.Sprintf("panic: %v", r))
						errorsMu.Unlock()
						slog.Error("batch item panicked", "panic", r)
					}
				}()

				if err := work(ctx, item); err != nil {
					failed.Add(1)
					errorsMu.Lock()
					errs = append(errs, err.Error())
					errorsMu.Unlock()
					return
				}
				succeeded.Add(1)
			}(item)
		}
		wg.Wait()

		if onChunk != nil {
			onChunk(end, total)
		}

		if end < total {
			select {
			case <-time.After(chunkPause):
			case <-ctx.Done():
			}
		}
	}

	return BatchOutcome{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Errors:    errs,
	}
}
