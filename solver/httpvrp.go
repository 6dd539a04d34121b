package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetroute/geo"
	"fleetroute/model"
)

const (
	httpVRPAttempts     = 3
	httpVRPBackoffBase  = 2 * time.Second
	httpVRPHealthPath   = "/health"
	httpVRPSolvePath    = "/solve"
	httpVRPTSPPath      = "/tsp"
	httpVRPClientExpiry = 60 * time.Second
)

// HTTPVRPOptions configure the external-service adapter.
type HTTPVRPOptions struct {
	BaseURL string
	APIKey  string // sent as a bearer token when set
	Client  *http.Client
	Profile string
	Logger  *zap.Logger
}

// HTTPVRP delegates solving to an external VRP service over HTTP. Transport
// failures and 5xx responses are retried with doubling backoff; a 4xx with
// a structured body becomes a *ServiceError and is not retried.
type HTTPVRP struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	provider MatrixProvider
	profile  string
	log      *zap.Logger
	backoff  time.Duration
}

// NewHTTPVRP builds the adapter. provider may be nil; it is only used to
// schedule the returned ordering into routes.
func NewHTTPVRP(provider MatrixProvider, opts HTTPVRPOptions) *HTTPVRP {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: httpVRPClientExpiry}
	}
	if opts.Profile == "" {
		opts.Profile = "driving"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &HTTPVRP{
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		client:   opts.Client,
		provider: provider,
		profile:  opts.Profile,
		log:      opts.Logger,
		backoff:  httpVRPBackoffBase,
	}
}

func (h *HTTPVRP) Kind() Kind { return KindHTTPVRP }

// HealthCheck hits GET /health with a short deadline.
func (h *HTTPVRP) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+httpVRPHealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// vrpSolveResponse is the service's answer: per-vehicle orderings by job
// index into the request's jobs array.
type vrpSolveResponse struct {
	Routes []struct {
		VehicleID string `json:"vehicleId"`
		JobOrder  []int  `json:"jobOrder"`
	} `json:"routes"`
	Unassigned []string `json:"unassigned"`
}

type vrpErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPVRP) Solve(ctx context.Context, p *model.RoutingProblem) (*model.SolutionResult, error) {
	dur, dist, summary, err := problemMatrices(ctx, p, h.provider, h.profile)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode problem: %w", err)
	}
	var out vrpSolveResponse
	if err := h.post(ctx, httpVRPSolvePath, body, &out); err != nil {
		return nil, err
	}

	res := &model.SolutionResult{
		ID:             uuid.New().String(),
		SolverUsed:     string(KindHTTPVRP),
		UnassignedJobs: append([]string{}, out.Unassigned...),
		Summary:        summary,
	}
	builder := newRouteBuilder(p, dur, dist)
	byID := make(map[string]model.VehicleConfig, len(p.Vehicles))
	for _, v := range p.Vehicles {
		byID[v.ID] = v
	}
	for _, r := range out.Routes {
		v, ok := byID[r.VehicleID]
		if !ok || len(r.JobOrder) == 0 {
			continue
		}
		order := make([]int, 0, len(r.JobOrder))
		for _, ji := range r.JobOrder {
			if ji >= 0 && ji < len(p.Jobs) {
				order = append(order, ji)
			}
		}
		route := builder.build(v, order)
		res.Routes = append(res.Routes, route)
		res.TotalDistanceM += route.TotalDistanceM
		res.TotalDurationSec += route.TotalDurationSec
	}
	res.QualityScore = EstimateQuality(res)
	if z := countZeroDistanceLegs(res.Routes); z > 0 {
		res.Summary["zeroDistanceLegs"] = z
	}
	return res, nil
}

// SolveTSP posts the location list and returns the service's ordering.
func (h *HTTPVRP) SolveTSP(ctx context.Context, locs []model.Location, startIdx int, returnToStart bool) ([]int, error) {
	if len(locs) == 0 {
		return []int{}, nil
	}
	type tspRequest struct {
		Locations     []geo.Coordinate `json:"locations"`
		StartIndex    int              `json:"startIndex"`
		ReturnToStart bool             `json:"returnToStart"`
	}
	coords := make([]geo.Coordinate, len(locs))
	for i, l := range locs {
		coords[i] = l.Coordinate()
	}
	body, err := json.Marshal(tspRequest{Locations: coords, StartIndex: startIdx, ReturnToStart: returnToStart})
	if err != nil {
		return nil, err
	}
	var out struct {
		Order []int `json:"order"`
	}
	if err := h.post(ctx, httpVRPTSPPath, body, &out); err != nil {
		return nil, err
	}
	if len(out.Order) != len(locs) {
		return nil, fmt.Errorf("service returned %d indices for %d locations", len(out.Order), len(locs))
	}
	return out.Order, nil
}

// post sends the request with retries. 5xx and transport errors back off
// and retry; 4xx is decoded into a ServiceError and returned immediately.
func (h *HTTPVRP) post(ctx context.Context, path string, body []byte, out any) error {
	var lastErr error
	backoff := h.backoff
	for attempt := 0; attempt < httpVRPAttempts; attempt++ {
		if attempt > 0 {
			h.log.Debug("retrying vrp service request",
				zap.String("path", path), zap.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		retry, err := h.postOnce(ctx, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (h *HTTPVRP) postOnce(ctx context.Context, path string, body []byte, out any) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode vrp response: %w", err)
		}
		return false, nil
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("vrp service returned %d", resp.StatusCode)
	default:
		var eb vrpErrorBody
		if decErr := json.NewDecoder(resp.Body).Decode(&eb); decErr != nil || eb.Code == "" {
			return false, fmt.Errorf("vrp service returned %d", resp.StatusCode)
		}
		return false, &ServiceError{Code: eb.Code, Message: eb.Message}
	}
}
