// Package host ensures the local BrowserOS host is running and responsive.
package host

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// Health is the outcome of a single probe. Failing to connect and reporting
// unhealthy are the same thing to callers, so there is no error variant.
type Health int

const (
	Unhealthy Health = iota
	Healthy
)

func (h Health) String() string {
	if h == Healthy {
		return "healthy"
	}
	return "unhealthy"
}

// Prober performs one bounded-time health check.
type Prober interface {
	Probe(ctx context.Context) Health
}

// maxHealthBody caps how much of the /health response we read.
const maxHealthBody = 64 << 10

// HTTPProber checks GET /health on a loopback address.
type HTTPProber struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProber builds a prober for addr (host:port) bounded by timeout.
func NewHTTPProber(addr string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:     "http://" + addr + "/health",
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
			},
		},
	}
}

// Probe reports Healthy iff the endpoint answers with {"status":"ok"} within the timeout.
func (p *HTTPProber) Probe(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Unhealthy
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Unhealthy
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return Unhealthy
	}
	return parseHealth(raw)
}

func parseHealth(raw []byte) Health {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Unhealthy
	}
	if body.Status == "ok" {
		return Healthy
	}
	return Unhealthy
}
