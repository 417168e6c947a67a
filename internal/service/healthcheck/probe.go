package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Target is an endpoint to probe.
type Target struct {
	URL   string
	Token string
}

// Result is the outcome of one probe.
type Result struct {
	Reachable  bool
	Latency    time.Duration
	StatusCode int
	Err        error
}

// Prober checks a single endpoint. Implementations must honour ctx cancellation.
type Prober interface {
	Probe(ctx context.Context, target Target) Result
}

// HTTPProber probes endpoints with a GET request. Any response below 500 counts as reachable.
type HTTPProber struct {
	client *resty.Client
}

// NewHTTPProber constructs an HTTPProber with the given per-request timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "statuspage-healthcheck").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &HTTPProber{client: client}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, target Target) Result {
	req := p.client.R().SetContext(ctx)
	if target.Token != "" {
		req.SetAuthToken(target.Token)
	}
	start := time.Now()
	resp, err := req.Get(target.URL)
	latency := time.Since(start)
	if err != nil {
		return Result{Latency: latency, Err: err}
	}
	if resp.Time() > 0 {
		latency = resp.Time()
	}
	result := Result{Latency: latency, StatusCode: resp.StatusCode()}
	if resp.StatusCode() >= http.StatusInternalServerError {
		result.Err = fmt.Errorf("unhealthy response: %s", resp.Status())
		return result
	}
	result.Reachable = true
	return result
}
