package cutover

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/artpar/cutover/internal/core/monitoring"
)

// DefaultProbeTimeout bounds one health probe.
const DefaultProbeTimeout = 5 * time.Second

// Prober issues one-shot HTTP health probes.
type Prober interface {
	// Probe returns the response status, or monitoring.ProbeUnreachable when
	// no response arrived.
	Probe(ctx context.Context, url string) int
}

// HTTPProber probes over a private cleanhttp client.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober whose requests give up after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := cleanhttp.DefaultClient()
	client.Timeout = timeout
	// Redirects are reported as-is; only 200 counts as healthy.
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPProber{client: client}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return monitoring.ProbeUnreachable
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return monitoring.ProbeUnreachable
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return resp.StatusCode
}
