package sandbox

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ExecuteParallel runs independent requests concurrently, bounded by
// maxConcurrency (the layer's budget). Results are returned in request
// order. Unlike ExecuteSequence there is no early stop: the requests are
// independent and each gets its own retry loop, which stays strictly
// sequential per request.
func (s *Sandbox) ExecuteParallel(ctx context.Context, reqs []ToolRequest, maxConcurrency int) []*ToolResult {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*ToolResult, len(reqs))
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = &ToolResult{
				Success:  false,
				ExitCode: ExitInternalError,
				Output:   "dispatch cancelled: " + err.Error(),
			}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = s.Execute(gctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
