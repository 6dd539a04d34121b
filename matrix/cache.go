package matrix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fleetroute/geo"
)

// ErrCacheMiss is returned by KV.Get when a key is absent.
var ErrCacheMiss = errors.New("matrix: cache miss")

// KV is the TTL key/value store used for the matrix cache. Implementations
// must be safe for concurrent use. The provider degrades to always-miss
// when the store errors; a KV is never a hard dependency.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
}

// RedisKV implements KV on a Redis-shaped store.
type RedisKV struct {
	rdb *redis.Client
}

// NewRedisKV connects using a redis URL (redis://host:port/db).
func NewRedisKV(url string) (*RedisKV, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisKV{rdb: redis.NewClient(opt)}, nil
}

// NewRedisKVFromClient wraps an existing client (tests, shared pools).
func NewRedisKVFromClient(rdb *redis.Client) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *RedisKV) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	return r.rdb.SetEx(ctx, key, value, ttl).Err()
}

// coordPrecision rounds coordinates to ~1m so fingerprints tolerate float
// noise without conflating distinct points.
const coordPrecision = 1e-5

// Fingerprint derives a content-addressed cache key from the profile and
// the coordinate set. Coordinates are rounded and sorted, so the key is
// independent of input order.
func Fingerprint(profile string, coords []geo.Coordinate) string {
	rounded := make([][2]int64, len(coords))
	for i, c := range coords {
		rounded[i] = [2]int64{
			int64(math.Round(c.Lat / coordPrecision)),
			int64(math.Round(c.Lng / coordPrecision)),
		}
	}
	sort.Slice(rounded, func(i, j int) bool {
		if rounded[i][0] != rounded[j][0] {
			return rounded[i][0] < rounded[j][0]
		}
		return rounded[i][1] < rounded[j][1]
	})
	var sb strings.Builder
	sb.WriteString(profile)
	for _, r := range rounded {
		sb.WriteString("|")
		sb.WriteString(strconv.FormatInt(r[0], 10))
		sb.WriteString(",")
		sb.WriteString(strconv.FormatInt(r[1], 10))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return "mtx:" + hex.EncodeToString(sum[:])
}
