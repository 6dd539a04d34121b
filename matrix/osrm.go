package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fleetroute/geo"
)

// unreachablePair substitutes for null entries the table service returns
// for disconnected pairs. Very large, never zero, so solvers avoid them.
const unreachablePair = 1e9

// OSRMSource calls an OSRM-compatible /table endpoint.
type OSRMSource struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger

	maxAttempts int
	baseDelay   time.Duration
}

// OSRMOptions tune the client. Zero values get defaults.
type OSRMOptions struct {
	Timeout        time.Duration // per-request, default 10s
	RequestsPerSec float64       // outbound rate limit, default 10
	Logger         *zap.Logger
}

// NewOSRMSource builds a client for baseURL (e.g. "http://osrm:5000").
func NewOSRMSource(baseURL string, opts OSRMOptions) *OSRMSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &OSRMSource{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSec), int(opts.RequestsPerSec)+1),
		log:         opts.Logger,
		maxAttempts: 4,
		baseDelay:   200 * time.Millisecond,
	}
}

type osrmStatusError struct {
	Code int
	Body string
}

func (e *osrmStatusError) Error() string {
	return fmt.Sprintf("osrm: status %d: %s", e.Code, e.Body)
}

// tableResponse mirrors the OSRM table response. Entries are pointers
// because the service reports unreachable pairs as null.
type tableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message,omitempty"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

// Table implements TableSource.
func (o *OSRMSource) Table(ctx context.Context, coords []geo.Coordinate, sources, destinations []int, profile string) (*Table, error) {
	if len(coords) == 0 {
		return &Table{}, nil
	}
	if profile == "" {
		profile = "driving"
	}
	url := o.tableURL(coords, sources, destinations, profile)

	resp, err := o.doWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("osrm: decode table response: %w", err)
	}
	if tr.Code != "Ok" {
		return nil, fmt.Errorf("osrm: table request rejected: %s %s", tr.Code, tr.Message)
	}

	wantRows := len(sources)
	if wantRows == 0 {
		wantRows = len(coords)
	}
	wantCols := len(destinations)
	if wantCols == 0 {
		wantCols = len(coords)
	}
	durations, err := densify(tr.Durations, wantRows, wantCols)
	if err != nil {
		return nil, fmt.Errorf("osrm: durations: %w", err)
	}
	distances, err := densify(tr.Distances, wantRows, wantCols)
	if err != nil {
		return nil, fmt.Errorf("osrm: distances: %w", err)
	}
	return &Table{Durations: durations, Distances: distances}, nil
}

func (o *OSRMSource) tableURL(coords []geo.Coordinate, sources, destinations []int, profile string) string {
	var sb strings.Builder
	sb.WriteString(o.baseURL)
	sb.WriteString("/table/v1/")
	sb.WriteString(profile)
	sb.WriteString("/")
	for i, c := range coords {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(strconv.FormatFloat(c.Lng, 'f', 6, 64))
		sb.WriteString(",")
		sb.WriteString(strconv.FormatFloat(c.Lat, 'f', 6, 64))
	}
	sb.WriteString("?annotations=duration,distance")
	if len(sources) > 0 {
		sb.WriteString("&sources=")
		sb.WriteString(joinIndices(sources))
	}
	if len(destinations) > 0 {
		sb.WriteString("&destinations=")
		sb.WriteString(joinIndices(destinations))
	}
	return sb.String()
}

func joinIndices(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}

// doWithRetry retries transient failures (429/5xx, network errors) with
// exponential backoff while respecting context cancellation.
func (o *OSRMSource) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	delay := o.baseDelay
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("osrm: create request: %w", err)
		}
		resp, err := o.http.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		if err == nil {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			err = &osrmStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		lastErr = err

		if !retryable(err) || attempt == o.maxAttempts {
			return nil, lastErr
		}
		o.log.Warn("osrm table request failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var se *osrmStatusError
	if errors.As(err, &se) {
		switch se.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// densify replaces null entries with the unreachable sentinel and verifies
// the response shape.
func densify(m [][]*float64, rows, cols int) ([][]float64, error) {
	if len(m) != rows {
		return nil, fmt.Errorf("got %d rows, want %d", len(m), rows)
	}
	out := make([][]float64, rows)
	for i, row := range m {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		out[i] = make([]float64, cols)
		for j, v := range row {
			if v == nil {
				out[i][j] = unreachablePair
				continue
			}
			out[i][j] = *v
		}
	}
	return out, nil
}
