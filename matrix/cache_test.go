package matrix

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/geo"
)

func newTestKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := NewRedisKVFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return kv, mr
}

func TestRedisKVGetMiss(t *testing.T) {
	kv, _ := newTestKV(t)
	_, err := kv.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisKVRoundTrip(t *testing.T) {
	kv, mr := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.SetEx(ctx, "k", time.Minute, []byte("v")))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestComputeSecondCallHitsCache(t *testing.T) {
	kv, _ := newTestKV(t)
	src := &fakeSource{}
	p := NewProvider(src, ProviderOptions{Cache: kv})
	coords := testCoords(12) // above the caching threshold
	ctx := context.Background()

	first, err := p.Compute(ctx, coords, "driving")
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, first.Diagnostics.Source)
	callsAfterFirst := src.calls.Load()

	second, err := p.Compute(ctx, coords, "driving")
	require.NoError(t, err)
	assert.True(t, second.Diagnostics.CacheHit)
	assert.Equal(t, SourceCache, second.Diagnostics.Source)
	assert.Equal(t, callsAfterFirst, src.calls.Load(), "cache hit must not touch the source")
	assert.Equal(t, first.Durations, second.Durations)
	assert.Equal(t, first.Distances, second.Distances)
}

func TestComputeSkipsCacheForSmallSets(t *testing.T) {
	kv, mr := newTestKV(t)
	p := NewProvider(&fakeSource{}, ProviderOptions{Cache: kv})

	_, err := p.Compute(context.Background(), testCoords(5), "driving")
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestComputeNeverCachesDegradedResults(t *testing.T) {
	kv, mr := newTestKV(t)
	src := &fakeSource{
		failWhen: func(sources, _ []int) bool { return sources[0] == 0 },
	}
	p := NewProvider(src, ProviderOptions{Cache: kv, BatchSize: 10})

	res, err := p.Compute(context.Background(), testCoords(20), "driving")
	require.NoError(t, err)
	assert.Positive(t, res.Diagnostics.FailedBatches)
	assert.Empty(t, mr.Keys(), "a zero-filled matrix must not be cached")
}

func TestComputeProfileSeparatesCacheEntries(t *testing.T) {
	kv, _ := newTestKV(t)
	p := NewProvider(&fakeSource{}, ProviderOptions{Cache: kv})
	coords := testCoords(12)
	ctx := context.Background()

	_, err := p.Compute(ctx, coords, "driving")
	require.NoError(t, err)
	res, err := p.Compute(ctx, coords, "cycling")
	require.NoError(t, err)
	assert.False(t, res.Diagnostics.CacheHit)
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := []geo.Coordinate{{Lat: 52.52, Lng: 13.405}, {Lat: 48.137, Lng: 11.575}, {Lat: 50.938, Lng: 6.96}}
	b := []geo.Coordinate{a[2], a[0], a[1]}
	assert.Equal(t, Fingerprint("driving", a), Fingerprint("driving", b))
}

func TestFingerprintToleratesFloatNoise(t *testing.T) {
	a := []geo.Coordinate{{Lat: 52.520000, Lng: 13.405000}}
	b := []geo.Coordinate{{Lat: 52.520000000001, Lng: 13.404999999999}}
	assert.Equal(t, Fingerprint("driving", a), Fingerprint("driving", b))
}

func TestFingerprintDistinguishes(t *testing.T) {
	a := []geo.Coordinate{{Lat: 52.52, Lng: 13.405}}
	b := []geo.Coordinate{{Lat: 52.53, Lng: 13.405}}
	assert.NotEqual(t, Fingerprint("driving", a), Fingerprint("driving", b))
	assert.NotEqual(t, Fingerprint("driving", a), Fingerprint("cycling", a))
}
