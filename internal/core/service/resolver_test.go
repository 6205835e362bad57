package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	apperrors "github.com/olivierlemasle/cloud-init/internal/errors"
	"github.com/olivierlemasle/cloud-init/mocks"
)

type memCache struct {
	rec     *domain.CacheRecord
	loadErr error
	saveErr error
}

func (c *memCache) Load() (*domain.CacheRecord, bool, error) {
	if c.loadErr != nil {
		return nil, false, c.loadErr
	}
	if c.rec == nil {
		return nil, false, nil
	}
	clone := *c.rec
	return &clone, true, nil
}

func (c *memCache) Save(rec domain.CacheRecord) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.rec = &rec
	return nil
}

func (c *memCache) Clear() error {
	c.rec = nil
	return nil
}

func newTestResolver(t *testing.T, cache *memCache, sources ...*fakeDatasource) *Resolver {
	t.Helper()
	registry := NewComponentRegistry()
	var list []string
	for _, ds := range sources {
		require.NoError(t, registry.RegisterDatasource(ds))
		list = append(list, ds.typ)
	}
	prober, _ := newTestProber()
	return NewResolver(prober, registry, cache, list, ProbeOptions{MaxRetries: 1}, mocks.NopLogger{})
}

func TestResolve_MemoizedWithinBoot(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:         "inmem",
		detected:    true,
		fingerprint: "fp-1",
		fetch:       staticFetch(&domain.InstanceMetadata{InstanceID: "i-1"}),
	}
	r := newTestResolver(t, &memCache{}, ds)

	first, err := r.Resolve(ctx)
	require.NoError(t, err)
	second, err := r.Resolve(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, ds.fetchCount(), "second resolve must not re-fetch")
}

func TestResolve_SavesCacheRecord(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:         "inmem",
		detected:    true,
		fingerprint: "fp-1",
		fetch:       staticFetch(&domain.InstanceMetadata{InstanceID: "i-1"}),
	}
	cache := &memCache{}
	r := newTestResolver(t, cache, ds)

	_, err := r.Resolve(ctx)
	require.NoError(t, err)

	require.NotNil(t, cache.rec)
	assert.Equal(t, "inmem", cache.rec.DatasourceType)
	assert.Equal(t, "i-1", cache.rec.Metadata.InstanceID)
	assert.Equal(t, domain.PlatformSignature("inmem", "fp-1"), cache.rec.PlatformSignature)
}

func TestResolve_CacheHitSkipsFetch(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:         "inmem",
		detected:    true,
		fingerprint: "fp-1",
		fetch:       staticFetch(&domain.InstanceMetadata{InstanceID: "i-1"}),
	}
	cache := &memCache{rec: &domain.CacheRecord{
		Metadata:          domain.InstanceMetadata{InstanceID: "i-1", Platform: "inmem"},
		PlatformSignature: domain.PlatformSignature("inmem", "fp-1"),
		DatasourceType:    "inmem",
		SavedAt:           time.Now().UTC(),
	}}
	r := newTestResolver(t, cache, ds)

	md, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-1", md.InstanceID)
	assert.Equal(t, 0, ds.fetchCount(), "valid cache must avoid the network fetch")
}

func TestResolve_SignatureChangeForcesProbe(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:         "inmem",
		detected:    true,
		fingerprint: "fp-new",
		fetch:       staticFetch(&domain.InstanceMetadata{InstanceID: "i-2"}),
	}
	cache := &memCache{rec: &domain.CacheRecord{
		Metadata:          domain.InstanceMetadata{InstanceID: "i-1"},
		PlatformSignature: domain.PlatformSignature("inmem", "fp-old"),
		DatasourceType:    "inmem",
	}}
	r := newTestResolver(t, cache, ds)

	md, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-2", md.InstanceID)
	assert.Equal(t, 1, ds.fetchCount())
	require.NotNil(t, cache.rec)
	assert.Equal(t, "i-2", cache.rec.Metadata.InstanceID, "fresh probe must replace the stale record")
}

func TestResolve_InstanceIDChangeForcesProbe(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:         "inmem",
		detected:    true,
		fingerprint: "fp-1",
		localID:     "i-new",
		hasLocalID:  true,
		fetch:       staticFetch(&domain.InstanceMetadata{InstanceID: "i-new"}),
	}
	cache := &memCache{rec: &domain.CacheRecord{
		Metadata:          domain.InstanceMetadata{InstanceID: "i-old"},
		PlatformSignature: domain.PlatformSignature("inmem", "fp-1"),
		DatasourceType:    "inmem",
	}}
	r := newTestResolver(t, cache, ds)

	md, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-new", md.InstanceID)
	assert.Equal(t, 1, ds.fetchCount())
}

func TestResolve_UnreadableCacheForcesProbe(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:      "inmem",
		detected: true,
		fetch:    staticFetch(&domain.InstanceMetadata{InstanceID: "i-1"}),
	}
	cache := &memCache{loadErr: assert.AnError}
	r := newTestResolver(t, cache, ds)

	md, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-1", md.InstanceID)
}

func TestResolve_AllFailLeavesNoCache(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{typ: "inmem", detected: false}
	cache := &memCache{}
	r := newTestResolver(t, cache, ds)

	_, err := r.Resolve(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoDatasourceFound, apperrors.GetCode(err))
	assert.Nil(t, cache.rec, "a failed resolution must not persist a cache record")

	// The failure is memoized too: no second probe within the same boot.
	_, err2 := r.Resolve(ctx)
	require.Error(t, err2)
	assert.Same(t, err, err2)
}

func TestResolve_SaveFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	ds := &fakeDatasource{
		typ:      "inmem",
		detected: true,
		fetch:    staticFetch(&domain.InstanceMetadata{InstanceID: "i-1"}),
	}
	cache := &memCache{saveErr: assert.AnError}
	r := newTestResolver(t, cache, ds)

	md, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "i-1", md.InstanceID)
}
