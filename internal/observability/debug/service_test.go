package debug

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leaderbot/internal/metrics"
	logx "leaderbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.TickStarted()
	s := New(Config{}, m.Registry, func() (string, error) { return "sessions=2\n", nil }, logx.Nop())
	h := s.Handler(Config{Prefix: "dbg"})

	code, body := get(t, h, "/healthz", nil)
	if code != http.StatusOK || !strings.Contains(body, "sessions=2") {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	code, body = get(t, h, "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(body, "leaderbot_refresh_ticks_total 1") {
		t.Fatalf("/metrics = %d, body missing tick counter", code)
	}
	code, _ = get(t, h, "/dbg/", nil)
	if code != http.StatusOK {
		t.Fatalf("/dbg/ = %d, want 200", code)
	}
	code, _ = get(t, h, "/dbg", nil)
	if code != http.StatusPermanentRedirect {
		t.Fatalf("/dbg = %d, want %d", code, http.StatusPermanentRedirect)
	}
}

func TestHandlerUnhealthy(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, func() (string, error) { return "", errors.New("poller down") }, logx.Nop())
	h := s.Handler(Config{})
	code, body := get(t, h, "/healthz", nil)
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "poller down") {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, _ := get(t, h, "/metrics", nil); code != http.StatusNotFound {
		t.Fatalf("/metrics without gatherer = %d, want 404", code)
	}
}

func TestHandlerToken(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, nil, logx.Nop())
	h := s.Handler(Config{Token: "s3cret"})

	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"bearer", "/healthz", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"wrong bearer", "/healthz", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"wrong query", "/healthz?token=x", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := get(t, h, tt.target, tt.header); code != tt.want {
				t.Fatalf("code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:80":   true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":        "/debug/pprof/",
		"dbg":     "/dbg/",
		"/x/y":    "/x/y/",
		" /pp/ ": "/pp/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func waitAddr(ctx context.Context, s *Service) (string, error) {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if a := s.Addr(); a != "" {
			return a, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-tick.C:
		}
	}
}

func TestReconfigureEnableDisable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := New(Config{}, nil, nil, logx.Nop())
	t.Cleanup(func() { s.Stop(context.Background()) })

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr, err := waitAddr(ctx, s)
	if err != nil {
		t.Fatalf("server never bound: %v", err)
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if a := s.Addr(); a != "" {
		t.Fatalf("Addr() after disable = %q, want empty", a)
	}
}
