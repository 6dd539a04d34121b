package matrix

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleetroute/geo"
	"fleetroute/metrics"
)

const (
	// DefaultBatchSize is the practical request cap of the table service.
	DefaultBatchSize = 100
	// DefaultMaxInFlight bounds simultaneous sub-requests. Backpressure
	// against the distance source, not a correctness requirement.
	DefaultMaxInFlight = 4
	// DefaultCacheTTL reflects how slowly road networks change.
	DefaultCacheTTL = 7 * 24 * time.Hour
	// cacheMinPoints: smaller sets are cheap enough that caching overhead
	// isn't worth it.
	cacheMinPoints = 10
)

// Sources recorded in diagnostics.
const (
	SourceNetwork   = "network"
	SourceHaversine = "haversine"
	SourceCache     = "cache"
)

// Diagnostics lets callers detect degraded results that did not error.
type Diagnostics struct {
	Source        string `json:"source"`
	CacheHit      bool   `json:"cacheHit"`
	Batches       int    `json:"batches"`
	FailedBatches int    `json:"failedBatches"` // zero-filled slices
}

// Result holds the assembled matrices. Durations in seconds, distances in
// meters, both N×N over the input coordinate order.
type Result struct {
	Durations   [][]float64 `json:"durations"`
	Distances   [][]float64 `json:"distances"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// ProviderOptions tune a Provider. Zero values get defaults.
type ProviderOptions struct {
	Cache            KV // optional
	Logger           *zap.Logger
	BatchSize        int
	MaxInFlight      int
	CacheTTL         time.Duration
	FallbackSpeedKph float64
	NoSymmetrize     bool // keep directed distances instead of averaging (i,j)/(j,i)
}

// Provider computes duration/distance matrices. Safe for concurrent use;
// the optional cache is its only shared state and entries are immutable
// once written.
type Provider struct {
	source TableSource // nil means fallback-only
	cache  KV
	log    *zap.Logger

	batchSize        int
	maxInFlight      int
	cacheTTL         time.Duration
	fallbackSpeedKph float64
	symmetrize       bool
}

// NewProvider builds a Provider over source. A nil source is allowed and
// makes every computation use the haversine fallback.
func NewProvider(source TableSource, opts ProviderOptions) *Provider {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.FallbackSpeedKph <= 0 {
		opts.FallbackSpeedKph = 50
	}
	return &Provider{
		source:           source,
		cache:            opts.Cache,
		log:              opts.Logger,
		batchSize:        opts.BatchSize,
		maxInFlight:      opts.MaxInFlight,
		cacheTTL:         opts.CacheTTL,
		fallbackSpeedKph: opts.FallbackSpeedKph,
		symmetrize:       !opts.NoSymmetrize,
	}
}

// Compute returns duration and distance matrices for coords. It does not
// fail while the haversine fallback is reachable; degraded paths are
// reported through Diagnostics instead.
func (p *Provider) Compute(ctx context.Context, coords []geo.Coordinate, profile string) (*Result, error) {
	n := len(coords)
	if n == 0 {
		return &Result{Durations: [][]float64{}, Distances: [][]float64{}}, nil
	}

	var key string
	if p.cache != nil {
		key = Fingerprint(profile, coords)
		if b, err := p.cache.Get(ctx, key); err == nil {
			var res Result
			if err := json.Unmarshal(b, &res); err == nil && len(res.Durations) == n {
				res.Diagnostics.CacheHit = true
				res.Diagnostics.Source = SourceCache
				metrics.MatrixCacheHits.Inc()
				return &res, nil
			}
		}
		metrics.MatrixCacheMisses.Inc()
	}

	res := p.compute(ctx, coords, profile)
	if p.symmetrize {
		symmetrizeInPlace(res.Distances)
	}

	// Cache only clean network results; a zero-filled or fallback matrix
	// must not shadow a good one for a week.
	if p.cache != nil && n > cacheMinPoints &&
		res.Diagnostics.Source == SourceNetwork && res.Diagnostics.FailedBatches == 0 {
		if b, err := json.Marshal(res); err == nil {
			if err := p.cache.SetEx(ctx, key, p.cacheTTL, b); err != nil {
				p.log.Warn("matrix cache write failed", zap.Error(err))
			}
		}
	}
	return res, nil
}

func (p *Provider) compute(ctx context.Context, coords []geo.Coordinate, profile string) *Result {
	if p.source == nil {
		return p.fallback(coords)
	}
	if len(coords) <= p.batchSize {
		tbl, err := p.source.Table(ctx, coords, nil, nil, profile)
		if err != nil {
			p.log.Warn("distance source unreachable, using haversine fallback", zap.Error(err))
			return p.fallback(coords)
		}
		return &Result{
			Durations:   tbl.Durations,
			Distances:   tbl.Distances,
			Diagnostics: Diagnostics{Source: SourceNetwork, Batches: 1},
		}
	}
	return p.computeBatched(ctx, coords, profile)
}

// computeBatched partitions indices into contiguous blocks and issues the
// full block×block cross-product of sub-requests with bounded concurrency.
// Sub-requests write to disjoint slices of the pre-zeroed outputs, so their
// completion order does not matter. A failed sub-request leaves its slice
// at zero; only total failure falls back to haversine.
func (p *Provider) computeBatched(ctx context.Context, coords []geo.Coordinate, profile string) *Result {
	n := len(coords)
	durations := zeroMatrix(n)
	distances := zeroMatrix(n)

	blocks := blockRanges(n, p.batchSize)
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxInFlight)
	for _, src := range blocks {
		for _, dst := range blocks {
			src, dst := src, dst
			g.Go(func() error {
				tbl, err := p.source.Table(gctx, coords, indexRange(src), indexRange(dst), profile)
				if err != nil {
					// Deliberate best-effort degradation: the slice stays
					// zero and the caller sees it in diagnostics.
					failed.Add(1)
					metrics.MatrixBatchFailures.Inc()
					p.log.Warn("matrix sub-request failed, zero-filling slice",
						zap.Int("srcStart", src[0]), zap.Int("dstStart", dst[0]), zap.Error(err))
					return nil
				}
				for r := 0; r < src[1]-src[0]; r++ {
					copy(durations[src[0]+r][dst[0]:dst[1]], tbl.Durations[r])
					copy(distances[src[0]+r][dst[0]:dst[1]], tbl.Distances[r])
				}
				return nil
			})
		}
	}
	_ = g.Wait() // sub-request errors are absorbed, never propagated

	total := len(blocks) * len(blocks)
	if int(failed.Load()) == total {
		p.log.Warn("every matrix sub-request failed, using haversine fallback")
		return p.fallback(coords)
	}
	return &Result{
		Durations: durations,
		Distances: distances,
		Diagnostics: Diagnostics{
			Source:        SourceNetwork,
			Batches:       total,
			FailedBatches: int(failed.Load()),
		},
	}
}

func (p *Provider) fallback(coords []geo.Coordinate) *Result {
	durations, distances := geo.Matrix(coords, p.fallbackSpeedKph)
	return &Result{
		Durations:   durations,
		Distances:   distances,
		Diagnostics: Diagnostics{Source: SourceHaversine},
	}
}

// blockRanges splits [0,n) into contiguous [start,end) blocks of size.
func blockRanges(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func indexRange(b [2]int) []int {
	out := make([]int, 0, b[1]-b[0])
	for i := b[0]; i < b[1]; i++ {
		out = append(out, i)
	}
	return out
}

func zeroMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

func symmetrizeInPlace(m [][]float64) {
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			avg := (m[i][j] + m[j][i]) / 2
			m[i][j] = avg
			m[j][i] = avg
		}
	}
}
