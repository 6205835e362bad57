package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 16 * time.Second
)

type ProbeOptions struct {
	PerCandidateTimeout time.Duration
	MaxRetries          int
	// Concurrency > 1 probes candidates in parallel. Results are buffered
	// per candidate and the winner is chosen by list position, never by
	// arrival order.
	Concurrency int
}

type Prober struct {
	logger ports.Logger
	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewProber(logger ports.Logger) *Prober {
	return &Prober{
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Probe tries candidates in priority order and returns the metadata of the
// first one whose detection and fetch both succeed. A failed local detect
// moves on without consuming retry budget; a detected candidate whose
// fetch exhausts its retries counts as that candidate failing. When every
// candidate fails the result carries CodeNoDatasourceFound.
func (p *Prober) Probe(ctx context.Context, candidates []ports.Datasource, opts ProbeOptions) (*domain.InstanceMetadata, ports.Datasource, error) {
	if len(candidates) == 0 {
		return nil, nil, errors.New(errors.CodeNoDatasourceFound, "no datasource candidates configured")
	}

	if opts.Concurrency > 1 {
		return p.probeParallel(ctx, candidates, opts)
	}

	for _, ds := range candidates {
		md, err := p.probeOne(ctx, ds, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, errors.Wrap(ctx.Err(), errors.CodeFetchError, "probing cancelled")
			}
			p.logger.Debugf(ctx, "datasource %s not usable: %v", ds.Type(), err)
			continue
		}
		p.logger.Infof(ctx, "datasource %s selected (instance-id %s)", ds.Type(), md.InstanceID)
		return md, ds, nil
	}

	return nil, nil, errors.New(errors.CodeNoDatasourceFound,
		fmt.Sprintf("none of the %d configured datasources matched this platform", len(candidates)))
}

func (p *Prober) probeParallel(ctx context.Context, candidates []ports.Datasource, opts ProbeOptions) (*domain.InstanceMetadata, ports.Datasource, error) {
	type outcome struct {
		md  *domain.InstanceMetadata
		err error
	}
	results := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, ds := range candidates {
		g.Go(func() error {
			md, err := p.probeOne(gctx, ds, opts)
			results[i] = outcome{md: md, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeFetchError, "parallel probe failed")
	}

	for i, res := range results {
		if res.err == nil {
			ds := candidates[i]
			p.logger.Infof(ctx, "datasource %s selected (instance-id %s)", ds.Type(), res.md.InstanceID)
			return res.md, ds, nil
		}
		p.logger.Debugf(ctx, "datasource %s not usable: %v", candidates[i].Type(), res.err)
	}

	return nil, nil, errors.New(errors.CodeNoDatasourceFound,
		fmt.Sprintf("none of the %d configured datasources matched this platform", len(candidates)))
}

func (p *Prober) probeOne(ctx context.Context, ds ports.Datasource, opts ProbeOptions) (*domain.InstanceMetadata, error) {
	detected, err := ds.Detect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDetectionFailure,
			fmt.Sprintf("detection for %s errored", ds.Type()))
	}
	if !detected {
		return nil, errors.New(errors.CodeDetectionFailure,
			fmt.Sprintf("platform does not match %s", ds.Type()))
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			// Cap the shift itself; past it the doubling would overflow
			// long before the delay comparison runs.
			shift := attempt - 1
			if shift > 4 {
				shift = 4
			}
			delay := backoffBase << shift
			if delay > backoffCap {
				delay = backoffCap
			}
			p.logger.Debugf(ctx, "retrying %s fetch in %s (attempt %d/%d)", ds.Type(), delay, attempt+1, opts.MaxRetries+1)
			if err := p.sleep(ctx, delay); err != nil {
				return nil, errors.Wrap(err, errors.CodeFetchError, "backoff interrupted")
			}
		}

		fetchCtx := ctx
		var cancel context.CancelFunc
		if opts.PerCandidateTimeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, opts.PerCandidateTimeout)
		}
		md, err := ds.Fetch(fetchCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			md.Platform = ds.Type()
			if md.FetchedAt.IsZero() {
				md.FetchedAt = time.Now().UTC()
			}
			return md, nil
		}

		code := errors.CodeFetchError
		if fetchCtx.Err() == context.DeadlineExceeded {
			code = errors.CodeFetchTimeout
		}
		lastErr = errors.Wrap(err, code, fmt.Sprintf("fetch from %s failed", ds.Type()))
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}
