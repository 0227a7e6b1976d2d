package host

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProber(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		healthy Health
	}{
		{name: "status ok", status: http.StatusOK, body: `{"status":"ok"}`, healthy: Healthy},
		{name: "ok with extra fields", status: http.StatusOK, body: `{"status":"ok","cdpConnected":true}`, healthy: Healthy},
		{name: "status starting", status: http.StatusOK, body: `{"status":"starting"}`, healthy: Unhealthy},
		{name: "malformed body", status: http.StatusOK, body: `not json`, healthy: Unhealthy},
		{name: "empty body", status: http.StatusOK, body: ``, healthy: Unhealthy},
		{name: "server error without marker", status: http.StatusServiceUnavailable, body: `{"status":"down"}`, healthy: Unhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewHTTPProber(strings.TrimPrefix(srv.URL, "http://"), time.Second)
			if got := p.Probe(context.Background()); got != tt.healthy {
				t.Errorf("expected %v, got %v", tt.healthy, got)
			}
		})
	}
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	p := NewHTTPProber(addr, time.Second)
	if got := p.Probe(context.Background()); got != Unhealthy {
		t.Errorf("expected unhealthy for closed port, got %v", got)
	}
}

func TestHTTPProberTimeoutIsUnhealthy(t *testing.T) {
	// Accepts connections but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()

	p := NewHTTPProber(ln.Addr().String(), 100*time.Millisecond)
	start := time.Now()
	got := p.Probe(context.Background())
	elapsed := time.Since(start)

	if got != Unhealthy {
		t.Errorf("expected unhealthy on timeout, got %v", got)
	}
	if elapsed > 2*time.Second {
		t.Errorf("probe should be bounded by its timeout, took %v", elapsed)
	}

	_ = ln.Close()
	<-done
	for _, c := range conns {
		_ = c.Close()
	}
}

func TestParseHealth(t *testing.T) {
	if parseHealth([]byte(`{"status":"ok"}`)) != Healthy {
		t.Error("expected healthy")
	}
	if parseHealth([]byte(`{"status":"OK"}`)) != Unhealthy {
		t.Error("status match is exact")
	}
	if parseHealth(nil) != Unhealthy {
		t.Error("expected unhealthy for nil body")
	}
}

func TestHealthString(t *testing.T) {
	if Healthy.String() != "healthy" || Unhealthy.String() != "unhealthy" {
		t.Errorf("unexpected strings %q %q", Healthy, Unhealthy)
	}
}
