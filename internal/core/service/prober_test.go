package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	apperrors "github.com/olivierlemasle/cloud-init/internal/errors"
	"github.com/olivierlemasle/cloud-init/mocks"
)

type fakeDatasource struct {
	mu          sync.Mutex
	typ         string
	detected    bool
	detectErr   error
	fingerprint string
	fetch       func(ctx context.Context) (*domain.InstanceMetadata, error)
	fetchCalls  int
	localID     string
	hasLocalID  bool
}

func (f *fakeDatasource) Type() string                 { return f.typ }
func (f *fakeDatasource) DetectionFingerprint() string { return f.fingerprint }

func (f *fakeDatasource) Detect(ctx context.Context) (bool, error) {
	return f.detected, f.detectErr
}

func (f *fakeDatasource) Fetch(ctx context.Context) (*domain.InstanceMetadata, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	return f.fetch(ctx)
}

func (f *fakeDatasource) LocalInstanceID(ctx context.Context) (string, bool) {
	return f.localID, f.hasLocalID
}

func (f *fakeDatasource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func staticFetch(md *domain.InstanceMetadata) func(ctx context.Context) (*domain.InstanceMetadata, error) {
	return func(ctx context.Context) (*domain.InstanceMetadata, error) {
		clone := *md
		return &clone, nil
	}
}

func candidates(ds ...ports.Datasource) []ports.Datasource { return ds }

func newTestProber() (*Prober, *[]time.Duration) {
	var slept []time.Duration
	p := NewProber(mocks.NopLogger{})
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestProbe_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProber()

	first := &fakeDatasource{typ: "first", detected: false}
	second := &fakeDatasource{
		typ:      "second",
		detected: true,
		fetch:    staticFetch(&domain.InstanceMetadata{InstanceID: "i-222"}),
	}
	third := &fakeDatasource{
		typ:      "third",
		detected: true,
		fetch:    staticFetch(&domain.InstanceMetadata{InstanceID: "i-333"}),
	}

	md, winner, err := p.Probe(ctx, candidates(first, second, third), ProbeOptions{MaxRetries: 0})
	require.NoError(t, err)
	assert.Equal(t, "second", winner.Type())
	assert.Equal(t, "i-222", md.InstanceID)
	assert.Equal(t, "second", md.Platform)
	assert.Equal(t, 0, third.fetchCount(), "lower priority candidate must not be fetched")
}

func TestProbe_RetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	p, slept := newTestProber()

	attempts := 0
	ds := &fakeDatasource{
		typ:      "flaky",
		detected: true,
		fetch: func(ctx context.Context) (*domain.InstanceMetadata, error) {
			attempts++
			if attempts < 3 {
				return nil, assert.AnError
			}
			return &domain.InstanceMetadata{InstanceID: "i-abc"}, nil
		},
	}

	quick := &fakeDatasource{
		typ:      "quick",
		detected: true,
		fetch:    staticFetch(&domain.InstanceMetadata{InstanceID: "i-quick"}),
	}

	md, winner, err := p.Probe(ctx, candidates(ds, quick), ProbeOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, "i-abc", md.InstanceID)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *slept)
	// Priority beats latency: the instantly-ready candidate behind the
	// flaky one is never consulted.
	assert.Same(t, ds, winner)
	assert.Equal(t, 0, quick.fetchCount())
}

func TestProbe_RetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	p, slept := newTestProber()

	ds := &fakeDatasource{
		typ:      "broken",
		detected: true,
		fetch: func(ctx context.Context) (*domain.InstanceMetadata, error) {
			return nil, assert.AnError
		},
	}

	_, _, err := p.Probe(ctx, candidates(ds), ProbeOptions{MaxRetries: 2})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoDatasourceFound, apperrors.GetCode(err))
	assert.Equal(t, 3, ds.fetchCount())
	assert.Len(t, *slept, 2)
}

func TestProbe_FetchTimeoutClassified(t *testing.T) {
	ctx := context.Background()
	p := NewProber(mocks.NopLogger{})

	ds := &fakeDatasource{
		typ:      "slow",
		detected: true,
		fetch: func(ctx context.Context) (*domain.InstanceMetadata, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	md, err := p.probeOne(ctx, ds, ProbeOptions{PerCandidateTimeout: 10 * time.Millisecond, MaxRetries: 0})
	require.Error(t, err)
	assert.Nil(t, md)
	assert.Equal(t, apperrors.CodeFetchTimeout, apperrors.GetCode(err))
}

func TestProbe_DetectionErrorMovesOn(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProber()

	first := &fakeDatasource{typ: "first", detectErr: assert.AnError}
	second := &fakeDatasource{
		typ:      "second",
		detected: true,
		fetch:    staticFetch(&domain.InstanceMetadata{InstanceID: "i-ok"}),
	}

	md, winner, err := p.Probe(ctx, candidates(first, second), ProbeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "second", winner.Type())
	assert.Equal(t, "i-ok", md.InstanceID)
}

func TestProbe_AllCandidatesFail(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProber()

	first := &fakeDatasource{typ: "first", detected: false}
	second := &fakeDatasource{typ: "second", detected: false}

	_, _, err := p.Probe(ctx, candidates(first, second), ProbeOptions{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoDatasourceFound, apperrors.GetCode(err))
}

func TestProbe_NoCandidates(t *testing.T) {
	p, _ := newTestProber()
	_, _, err := p.Probe(context.Background(), nil, ProbeOptions{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoDatasourceFound, apperrors.GetCode(err))
}

func TestProbe_ParallelPriorityStillWins(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProber()

	release := make(chan struct{})
	slowWinner := &fakeDatasource{
		typ:      "priority",
		detected: true,
		fetch: func(ctx context.Context) (*domain.InstanceMetadata, error) {
			<-release
			return &domain.InstanceMetadata{InstanceID: "i-priority"}, nil
		},
	}
	fastLoser := &fakeDatasource{
		typ:      "fallback",
		detected: true,
		fetch: func(ctx context.Context) (*domain.InstanceMetadata, error) {
			// Finishing first must not win against a higher priority
			// candidate that is still in flight.
			close(release)
			return &domain.InstanceMetadata{InstanceID: "i-fallback"}, nil
		},
	}

	md, winner, err := p.Probe(ctx, candidates(slowWinner, fastLoser), ProbeOptions{Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, "priority", winner.Type())
	assert.Equal(t, "i-priority", md.InstanceID)
}

func TestProbe_BackoffCappedUnderLargeRetryBudget(t *testing.T) {
	ctx := context.Background()
	p, slept := newTestProber()

	ds := &fakeDatasource{
		typ:      "down",
		detected: true,
		fetch: func(ctx context.Context) (*domain.InstanceMetadata, error) {
			return nil, assert.AnError
		},
	}

	_, _, err := p.Probe(ctx, candidates(ds), ProbeOptions{MaxRetries: 40})
	require.Error(t, err)
	require.Len(t, *slept, 40)
	for i, d := range *slept {
		assert.Positive(t, d, "delay %d must never go negative", i)
		assert.LessOrEqual(t, d, backoffCap, "delay %d exceeds the cap", i)
	}
	// Doubling saturates at the cap and stays there, even past the point
	// where the shift would overflow the duration.
	assert.Equal(t, backoffCap, (*slept)[4])
	assert.Equal(t, backoffCap, (*slept)[39])
}
