package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Batch outcome statuses. Terminal ingest statuses pass through unchanged;
// these cover the failure modes a single run never reports.
const (
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// BatchOutcome is the per-URL result of a batch run.
type BatchOutcome struct {
	URL        string `json:"url"`
	Status     string `json:"status"`
	IncidentID string `json:"event_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchOptions bounds a batch run.
type BatchOptions struct {
	Concurrency int
	// WallClock caps the whole run. URLs still in flight when it expires
	// are reported as timeouts.
	WallClock time.Duration
}

// Batch ingests many URLs concurrently. One URL's failure never stops the
// others; every input gets exactly one outcome.
func (p *Pipeline) Batch(ctx context.Context, urls []string, opts BatchOptions) []BatchOutcome {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.WallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.WallClock)
		defer cancel()
	}

	outcomes := make([]BatchOutcome, len(urls))

	var eg errgroup.Group
	eg.SetLimit(opts.Concurrency)
	for i, u := range urls {
		eg.Go(func() error {
			outcomes[i] = p.ingestOne(ctx, u)
			return nil
		})
	}
	_ = eg.Wait()

	var created, exists, skipped, failed int
	for _, o := range outcomes {
		switch o.Status {
		case StatusCreated:
			created++
		case StatusExists:
			exists++
		case StatusSkipped:
			skipped++
		default:
			failed++
		}
	}
	zap.L().Info("batch complete",
		zap.Int("urls", len(urls)),
		zap.Int("created", created),
		zap.Int("exists", exists),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return outcomes
}

func (p *Pipeline) ingestOne(ctx context.Context, url string) BatchOutcome {
	res, err := p.Ingest(ctx, Job{URL: url})
	if err != nil {
		status := StatusError
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			status = StatusTimeout
		}
		zap.L().Warn("batch url failed",
			zap.String("url", url),
			zap.String("status", status),
			zap.Error(err),
		)
		return BatchOutcome{URL: url, Status: status, Error: err.Error()}
	}
	return BatchOutcome{URL: url, Status: res.Status, IncidentID: res.IncidentID}
}
