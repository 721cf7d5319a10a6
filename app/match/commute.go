package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/flathound/flathound/app/cache"
)

// Estimator produces a door-to-door commute estimate in minutes.
type Estimator interface {
	EstimateMinutes(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (int, error)
}

// RoutingClient queries an OSRM-compatible routing service.
type RoutingClient struct {
	client  *http.Client
	baseURL string
}

func NewRoutingClient(client *http.Client, baseURL string) *RoutingClient {
	return &RoutingClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (r *RoutingClient) EstimateMinutes(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (int, error) {
	// OSRM takes lon,lat pairs
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		r.baseURL, fromLon, fromLat, toLon, toLat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create routing request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("routing service returned status %d", resp.StatusCode)
	}

	var route routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return 0, fmt.Errorf("failed to decode routing response: %w", err)
	}

	if route.Code != "Ok" || len(route.Routes) == 0 {
		return 0, fmt.Errorf("no route found (code %s)", route.Code)
	}

	return int(math.Round(route.Routes[0].Duration / 60)), nil
}

// CachedEstimator memoizes estimates in Redis so repeated matches against
// the same alert skip the routing service.
type CachedEstimator struct {
	inner Estimator
	cache *cache.Cache
	ttl   time.Duration
}

func NewCachedEstimator(inner Estimator, c *cache.Cache, ttl time.Duration) *CachedEstimator {
	return &CachedEstimator{inner: inner, cache: c, ttl: ttl}
}

func (e *CachedEstimator) EstimateMinutes(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (int, error) {
	key := cache.CommuteKey(fromLat, fromLon, toLat, toLon)

	minutes, hit, err := e.cache.GetMinutes(ctx, key)
	if err != nil {
		slog.Warn("Commute cache read failed", "error", err)
	} else if hit {
		return minutes, nil
	}

	minutes, err = e.inner.EstimateMinutes(ctx, fromLat, fromLon, toLat, toLon)
	if err != nil {
		return 0, err
	}

	if err := e.cache.SetMinutes(ctx, key, minutes, e.ttl); err != nil {
		slog.Warn("Commute cache write failed", "error", err)
	}
	return minutes, nil
}
