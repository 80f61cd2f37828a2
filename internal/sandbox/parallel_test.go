package sandbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestExecuteParallelKeepsRequestOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	executor := ExecutorFunc(func(ctx context.Context, req ToolRequest) (*ToolResult, error) {
		// Later requests finish first to prove ordering is by request, not
		// completion.
		if req.ToolName == "t0" {
			time.Sleep(30 * time.Millisecond)
		}
		return &ToolResult{Success: true, Output: req.ToolName}, nil
	})
	s := New(Config{MaxBackoffRetries: 1}, executor)

	reqs := make([]ToolRequest, 4)
	for i := range reqs {
		reqs[i] = ToolRequest{ToolName: fmt.Sprintf("t%d", i)}
	}

	results := s.ExecuteParallel(context.Background(), reqs, 4)

	if len(results) != len(reqs) {
		t.Fatalf("got %d results, want %d", len(results), len(reqs))
	}
	for i, result := range results {
		if result == nil || !result.Success {
			t.Fatalf("result %d: %+v", i, result)
		}
		if want := fmt.Sprintf("t%d", i); result.Output != want {
			t.Errorf("result %d = %q, want %q", i, result.Output, want)
		}
	}
}

func TestExecuteParallelHonorsConcurrencyBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inFlight, peak int32
	executor := ExecutorFunc(func(ctx context.Context, req ToolRequest) (*ToolResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &ToolResult{Success: true}, nil
	})
	s := New(Config{MaxBackoffRetries: 1}, executor)

	reqs := make([]ToolRequest, 8)
	for i := range reqs {
		reqs[i] = ToolRequest{ToolName: fmt.Sprintf("t%d", i)}
	}
	s.ExecuteParallel(context.Background(), reqs, 2)

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("peak concurrency %d exceeds budget 2", got)
	}
}

func TestExecuteParallelMixedOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t)

	executor := ExecutorFunc(func(ctx context.Context, req ToolRequest) (*ToolResult, error) {
		if req.ToolName == "bad" {
			return &ToolResult{Success: false, ExitCode: 1}, nil
		}
		return &ToolResult{Success: true}, nil
	})
	s := New(Config{MaxBackoffRetries: 1}, executor)

	results := s.ExecuteParallel(context.Background(), []ToolRequest{
		{ToolName: "good"}, {ToolName: "bad"}, {ToolName: "good"},
	}, 3)

	// No early stop: all three ran.
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("unexpected outcomes: %+v", results)
	}
}
