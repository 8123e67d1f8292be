package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfactory/assetstream/pkg/cache"
	cachemem "github.com/openfactory/assetstream/pkg/cache/adapters/memory"
	"github.com/openfactory/assetstream/pkg/errors"
)

func TestBloomCache_RejectsUnsetKeyWithoutTouchingInnerCache(t *testing.T) {
	inner := cachemem.New()
	bc := cache.NewBloomCache(inner, cache.BloomCacheConfig{ExpectedElements: 1000, FalsePositiveRate: 0.01})

	var dest string
	err := bc.Get(context.Background(), "WTVB01-999|temp", &dest)
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestBloomCache_HitAfterSet(t *testing.T) {
	inner := cachemem.New()
	bc := cache.NewBloomCache(inner, cache.BloomCacheConfig{ExpectedElements: 1000, FalsePositiveRate: 0.01})

	require.NoError(t, bc.Set(context.Background(), "WTVB01-001|temp", 42.5, time.Hour))

	var dest float64
	require.NoError(t, bc.Get(context.Background(), "WTVB01-001|temp", &dest))
	require.Equal(t, 42.5, dest)
}

func TestBloomCache_ScanDelegatesToInnerCache(t *testing.T) {
	inner := cachemem.New()
	bc := cache.NewBloomCache(inner, cache.BloomCacheConfig{ExpectedElements: 1000, FalsePositiveRate: 0.01})

	require.NoError(t, bc.Set(context.Background(), "WTVB01-001|temp", 42.5, time.Hour))

	keys, err := bc.Scan(context.Background(), "WTVB01-001|")
	require.NoError(t, err)
	require.Contains(t, keys, "WTVB01-001|temp")
}
