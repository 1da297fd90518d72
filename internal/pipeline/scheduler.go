package pipeline

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/FranksOps/reelrank/internal/metrics"
	"github.com/FranksOps/reelrank/internal/model"
	"golang.org/x/sync/errgroup"
)

// Report summarizes a scheduler run.
type Report struct {
	// Entries are ordered by follower count descending, then by input position.
	Entries   []model.ResultEntry
	Attempted int
	Succeeded int
	Degraded  int
	Failed    int
	// Skipped counts accounts never started because ctx was done.
	Skipped int
}

// Scheduler drives workers over a candidate list with at most Concurrency
// accounts in flight.
type Scheduler struct {
	worker      *Worker
	concurrency int
	logger      *slog.Logger
}

// NewScheduler creates a Scheduler. A concurrency below 1 is treated as 1.
func NewScheduler(worker *Worker, concurrency int, logger *slog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		worker:      worker,
		concurrency: concurrency,
		logger:      logger,
	}
}

type indexedOutcome struct {
	index int
	out   Outcome
}

// Run processes every candidate and returns the collected entries. A failing
// account never stops the others. The result does not depend on completion
// order or on the concurrency bound.
func (s *Scheduler) Run(ctx context.Context, candidates []model.AccountCandidate) Report {
	results := make(chan indexedOutcome, s.concurrency)

	// The collector is the only goroutine touching the collected results.
	var (
		collected                   []indexedOutcome
		succeeded, degraded, failed int
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			status := r.out.Status()
			switch status {
			case metrics.AccountOK:
				succeeded++
			case metrics.AccountDegraded:
				degraded++
			default:
				failed++
			}
			metrics.RecordAccount(status)
			if r.out.Entry != nil {
				collected = append(collected, r)
			}
		}
	}()

	// Not WithContext: one account's failure must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	skipped := 0
	for i, c := range candidates {
		if ctx.Err() != nil {
			skipped = len(candidates) - i
			s.logger.Warn("run cancelled, remaining accounts not started", "skipped", skipped)
			break
		}
		// Go blocks while the limit is reached.
		g.Go(func() error {
			results <- indexedOutcome{index: i, out: s.worker.Process(ctx, c)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	slices.SortFunc(collected, func(a, b indexedOutcome) int {
		if c := cmp.Compare(b.out.Entry.Account.FollowerCount, a.out.Entry.Account.FollowerCount); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})

	entries := make([]model.ResultEntry, 0, len(collected))
	for _, r := range collected {
		entries = append(entries, *r.out.Entry)
	}

	return Report{
		Entries:   entries,
		Attempted: len(candidates) - skipped,
		Succeeded: succeeded,
		Degraded:  degraded,
		Failed:    failed,
		Skipped:   skipped,
	}
}
