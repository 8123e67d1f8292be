package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfactory/assetstream/pkg/cache"
	cachemem "github.com/openfactory/assetstream/pkg/cache/adapters/memory"
	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/snapshot"
)

func seed(t *testing.T, store *cachemem.MemoryCache, assetUUID, dataItemID string, value any) {
	t.Helper()
	rec := snapshot.Record{AssetUUID: assetUUID, DataItemID: dataItemID, Value: value}
	require.NoError(t, store.Set(context.Background(), assetUUID+"|"+dataItemID, rec, time.Hour))
}

func TestSnapshot_CompositeKeyHit(t *testing.T) {
	store := cachemem.New()
	seed(t, store, "WTVB01-001", "temp", 42.5)

	a := snapshot.New(store)
	recs, err := a.Snapshot(context.Background(), "WTVB01-001", "temp")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "WTVB01-001", recs[0].AssetUUID)
	require.Equal(t, "temp", recs[0].DataItemID)
}

func TestSnapshot_CompositeKeyMiss_NotFound(t *testing.T) {
	store := cachemem.New()
	a := snapshot.New(store)

	_, err := a.Snapshot(context.Background(), "WTVB01-001", "missing")
	require.Error(t, err)
}

func TestSnapshot_PrefixReturnsAllItemsForAsset(t *testing.T) {
	store := cachemem.New()
	seed(t, store, "WTVB01-001", "temp", 42.5)
	seed(t, store, "WTVB01-001", "avail", "AVAILABLE")
	seed(t, store, "WTVB01-002", "temp", 99.0)

	a := snapshot.New(store)
	recs, err := a.Snapshot(context.Background(), "WTVB01-001", "")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	ids := map[string]bool{}
	for _, r := range recs {
		ids[r.DataItemID] = true
	}
	require.True(t, ids["temp"])
	require.True(t, ids["avail"])
}

func TestSnapshot_PrefixMiss_NotFound(t *testing.T) {
	store := cachemem.New()
	a := snapshot.New(store)

	_, err := a.Snapshot(context.Background(), "WTVB01-999", "")
	require.Error(t, err)
}

func TestProject_CompositeRoutingKeyPopulatesProjection(t *testing.T) {
	store := cachemem.New()
	a := snapshot.New(store)

	require.NoError(t, a.Project(context.Background(), "WTVB01-001|temp", []byte("42.5")))

	recs, err := a.Snapshot(context.Background(), "WTVB01-001", "temp")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 42.5, recs[0].Value)
}

func TestProject_NonCompositeRoutingKeyIsSkipped(t *testing.T) {
	store := cachemem.New()
	a := snapshot.New(store)

	require.NoError(t, a.Project(context.Background(), "WTVB01-001", []byte("42.5")))

	_, err := a.Snapshot(context.Background(), "WTVB01-001", "")
	require.Error(t, err)
}

// TestSnapshot_BloomCacheMissYieldsNotFound covers the negative fast path
// through a BloomCache-wrapped store: a genuinely unknown asset must
// surface as errors.CodeNotFound (HTTP 404), not CodeUnavailable, even
// though the Bloom filter rejects the lookup before touching the inner
// cache at all.
func TestSnapshot_BloomCacheMissYieldsNotFound(t *testing.T) {
	inner := cachemem.New()
	store := cache.NewBloomCache(inner, cache.BloomCacheConfig{ExpectedElements: 1000, FalsePositiveRate: 0.01})
	a := snapshot.New(store)

	_, err := a.Snapshot(context.Background(), "WTVB01-999", "temp")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}
