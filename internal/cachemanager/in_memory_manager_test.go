package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type exampleStruct struct {
	ID   int
	Name string
}

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	})
}

func TestInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, exampleStruct]("docs", DefaultExpiration, DefaultCleanupInterval)
	example := exampleStruct{Name: "waterfall"}
	cache.Set(context.Background(), "ex:1", example, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "ex:1")
	require.True(t, ok)
	require.Equal(t, example, got)
}

func TestInMemoryCacheManager_GetWithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("docs", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "missing")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithExistingInvalidValueType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("docs", DefaultExpiration, DefaultCleanupInterval)

	cache.cache.Set("doc", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "doc")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("docs", DefaultExpiration, DefaultCleanupInterval)

	_, ok := cache.GetWithRefresh(context.Background(), "doc", time.Hour)
	require.False(t, ok)

	cache.Set(context.Background(), "doc", "epcc", time.Millisecond*50)
	got, ok := cache.GetWithRefresh(context.Background(), "doc", time.Hour)
	require.True(t, ok)
	require.Equal(t, "epcc", got)

	time.Sleep(100 * time.Millisecond)
	got, ok = cache.Get(context.Background(), "doc")
	require.True(t, ok, "refresh should have extended the ttl")
	require.Equal(t, "epcc", got)
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("docs", DefaultExpiration, DefaultCleanupInterval)
	require.NoError(t, cache.Delete(context.Background()))

	cache.Set(context.Background(), "doc", "epcc", DefaultExpiration)
	require.NoError(t, cache.Delete(context.Background(), "doc"))

	_, ok := cache.Get(context.Background(), "doc")
	require.False(t, ok)
}

func TestInMemoryCacheManager_FlushAndItemCount(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("docs", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "a", "1", DefaultExpiration)
	cache.Set(context.Background(), "b", "2", DefaultExpiration)
	require.Equal(t, 2, cache.ItemCount())

	require.NoError(t, cache.Flush(context.Background()))
	require.Equal(t, 0, cache.ItemCount())
}
