package cutover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/artpar/cutover/internal/core/monitoring"
)

func TestHTTPProber_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			http.Redirect(w, r, "/health", http.StatusFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	p := NewHTTPProber(time.Second)
	ctx := context.Background()

	assert.Equal(t, http.StatusOK, p.Probe(ctx, srv.URL+"/health"))
	assert.Equal(t, http.StatusServiceUnavailable, p.Probe(ctx, srv.URL+"/warming"))
	assert.Equal(t, http.StatusFound, p.Probe(ctx, srv.URL+"/moved"))
}

func TestHTTPProber_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewHTTPProber(time.Second)
	assert.Equal(t, monitoring.ProbeUnreachable, p.Probe(context.Background(), url+"/health"))
}
