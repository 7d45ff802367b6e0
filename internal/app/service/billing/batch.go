package billing

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/pkg/metrics"
)

type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (o itemOutcome) String() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// RunSummary reports one job run. Failed counts per-subscription business
// failures; Skipped counts benign concurrency skips and items cut off by the
// batch deadline, which the next run picks up.
type RunSummary struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

func (s *RunSummary) add(o itemOutcome) {
	s.Processed++
	switch o {
	case outcomeSucceeded:
		s.Succeeded++
	case outcomeFailed:
		s.Failed++
	case outcomeSkipped:
		s.Skipped++
	}
}

func (s *RunSummary) merge(other *RunSummary) {
	s.Processed += other.Processed
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// runBatch fans subscriptions out across a bounded worker pool. Errors and
// panics from one item are captured and logged without touching the rest;
// once the batch deadline passes, remaining items are counted as skipped.
func (s *Service) runBatch(ctx context.Context, job string, subs []*models.Subscription, fn func(ctx context.Context, sub *models.Subscription) (itemOutcome, error)) *RunSummary {
	summary := &RunSummary{Job: job}
	if len(subs) == 0 {
		return summary
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Billing.BatchDeadline)
	defer cancel()

	concurrency := s.cfg.Billing.BatchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	record := func(o itemOutcome) {
		mu.Lock()
		summary.add(o)
		mu.Unlock()
		metrics.JobItems.WithLabelValues(job, o.String()).Inc()
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if ctx.Err() != nil {
				record(outcomeSkipped)
				return nil
			}
			outcome, err := s.runItem(ctx, job, sub, fn)
			if err != nil {
				s.log.Errorw("failed to process subscription",
					"job", job, "subscription_id", sub.ID, "err", err)
				outcome = outcomeFailed
			}
			record(outcome)
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// runItem isolates a single subscription: a panic inside fn becomes an error
// for this item only.
func (s *Service) runItem(ctx context.Context, job string, sub *models.Subscription, fn func(ctx context.Context, sub *models.Subscription) (itemOutcome, error)) (outcome itemOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeFailed
			err = fmt.Errorf("panic processing subscription %s in %s job: %v", sub.ID, job, r)
		}
	}()
	return fn(ctx, sub)
}
