package poll

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mdragan85/venuepoll/internal/model"
	"github.com/mdragan85/venuepoll/internal/venue"
)

// fetchOutcome is what a worker reports back to the loop goroutine for one
// instrument's fetch attempt.
type fetchOutcome struct {
	inst      model.Instrument
	ok        bool
	raw       venue.RawOrderbook
	err       error
	status    int
	latencyMs int64
}

// fetchAll submits every eligible instrument's fetch to a bounded worker
// pool of size cfg.MaxWorkers and blocks until all have returned. Per spec
// §4.3 step 4, results are handed back to the caller (the loop goroutine)
// rather than mutated concurrently — each worker only calls the venue
// client and times it.
func (p *PollLoop) fetchAll(ctx context.Context, eligible []model.Instrument) []fetchOutcome {
	if len(eligible) == 0 {
		return nil
	}

	workers := p.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	results := make([]fetchOutcome, len(eligible))

	var wg sync.WaitGroup
	for i, inst := range eligible {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = fetchOutcome{inst: inst, err: err}
			continue
		}
		wg.Add(1)
		go func(i int, inst model.Instrument) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.fetchOne(ctx, inst)
		}(i, inst)
	}
	wg.Wait()
	return results
}

func (p *PollLoop) fetchOne(ctx context.Context, inst model.Instrument) fetchOutcome {
	fctx, cancel := context.WithTimeout(ctx, p.cfg.OrderbookTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.client.GetOrderbook(fctx, inst.PollKey)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		status, _ := venue.ExtractStatusCode(err)
		return fetchOutcome{inst: inst, err: err, status: status, latencyMs: latencyMs}
	}
	return fetchOutcome{inst: inst, ok: true, raw: raw, latencyMs: latencyMs}
}
