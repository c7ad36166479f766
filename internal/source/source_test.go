package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"leaderbot/internal/leaderboard"
	logx "leaderbot/pkg/logx"
)

func newTestFetcher(t *testing.T, h http.HandlerFunc) *HTTPFetcher {
	t.Helper()
	return newTestFetcherFields(t, leaderboard.FieldMap{}, h)
}

func newTestFetcherFields(t *testing.T, fields leaderboard.FieldMap, h http.HandlerFunc) *HTTPFetcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f, err := NewHTTPFetcher(Options{
		BaseURL:       srv.URL + "/",
		APIKey:        "secret",
		AffiliateCode: "CODE",
		Timeout:       2 * time.Second,
		Fields:        fields,
	}, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("NewHTTPFetcher() error = %v", err)
	}
	return f
}

func testWindow() Window {
	end := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	return Window{Start: end.Add(-7 * 24 * time.Hour), End: end}
}

func TestHTTPFetcherRequestAndDecode(t *testing.T) {
	t.Parallel()

	w := testWindow()
	f := newTestFetcher(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/affiliate/external" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("code") != "CODE" || q.Get("by") != "createdAt" || q.Get("sort") != "desc" || q.Get("take") != "1000" {
			t.Errorf("query = %v", q)
		}
		if q.Get("gt") != "1714694400000" || q.Get("lt") != "1715299200000" {
			t.Errorf("window = %s..%s", q.Get("gt"), q.Get("lt"))
		}
		_, _ = rw.Write([]byte(`{"data":[{"username":"alice","wager":100.5,"deposit":"20"},42,{"username":"","wager":1}]}`))
	})

	got, err := f.Fetch(context.Background(), w)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Subject != "alice" || !got[0].Wager.Equal(decimal.RequireFromString("100.5")) || !got[0].Deposit.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("entry[0] = %+v", got[0])
	}
}

func TestHTTPFetcherBareArray(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte(`[{"username":"bob","wager":5,"deposit":0}]`))
	})
	got, err := f.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].Subject != "bob" {
		t.Fatalf("Fetch() = %+v", got)
	}
}

func TestHTTPFetcherFieldNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fields  leaderboard.FieldMap
		payload string
	}{
		{
			name:    "defaults read wager and deposit",
			payload: `[{"username":"alice","wager":100,"deposit":5}]`,
		},
		{
			name:    "configured wagered and deposited",
			fields:  leaderboard.FieldMap{Subject: "username", Wager: "wagered", Deposit: "deposited"},
			payload: `{"data":[{"username":"alice","wagered":100,"deposited":5}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTestFetcherFields(t, tt.fields, func(rw http.ResponseWriter, r *http.Request) {
				_, _ = rw.Write([]byte(tt.payload))
			})
			got, err := f.Fetch(context.Background(), testWindow())
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(got) != 1 || got[0].Subject != "alice" ||
				!got[0].Wager.Equal(decimal.NewFromInt(100)) || !got[0].Deposit.Equal(decimal.NewFromInt(5)) {
				t.Fatalf("Fetch() = %+v, want alice 100/5", got)
			}
		})
	}
}

func TestHTTPFetcherStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		header    map[string]string
		want      error
		retryable bool
		after     time.Duration
	}{
		{name: "unauthorized", status: 401, want: ErrAuth},
		{name: "forbidden", status: 403, want: ErrAuth},
		{name: "rate limited", status: 429, header: map[string]string{"Retry-After": "7"}, want: ErrRateLimited, retryable: true, after: 7 * time.Second},
		{name: "server error", status: 502, want: ErrTransient, retryable: true},
		{name: "bad request", status: 400, want: ErrRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTestFetcher(t, func(rw http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					rw.Header().Set(k, v)
				}
				rw.WriteHeader(tt.status)
			})
			_, err := f.Fetch(context.Background(), testWindow())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if got := Retryable(err); got != tt.retryable {
				t.Fatalf("Retryable() = %v, want %v", got, tt.retryable)
			}
			if tt.after > 0 {
				if d, ok := RetryAfter(err); !ok || d != tt.after {
					t.Fatalf("RetryAfter() = %v,%v want %v", d, ok, tt.after)
				}
			}
		})
	}
}

func TestHTTPFetcherCircuitOpens(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	f := newTestFetcher(t, func(rw http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		rw.WriteHeader(http.StatusServiceUnavailable)
	})
	for i := 0; i < 5; i++ {
		if _, err := f.Fetch(context.Background(), testWindow()); !errors.Is(err, ErrTransient) {
			t.Fatalf("attempt %d: err = %v, want ErrTransient", i, err)
		}
	}
	_, err := f.Fetch(context.Background(), testWindow())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if !Retryable(err) {
		t.Fatalf("circuit open should be retryable")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}

type scriptedFetcher struct {
	mu    sync.Mutex
	errs  []error
	calls []Window
}

func (s *scriptedFetcher) Fetch(ctx context.Context, w Window) ([]leaderboard.RawEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, w)
	if len(s.errs) == 0 {
		return []leaderboard.RawEntry{{Subject: "ok"}}, nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	if err != nil {
		return nil, err
	}
	return []leaderboard.RawEntry{{Subject: "ok"}}, nil
}

func TestNarrowing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		window    Window
		wantCalls int
		wantErr   error
	}{
		{name: "first succeeds", errs: nil, window: testWindow(), wantCalls: 1},
		{name: "transient then narrowed ok", errs: []error{ErrTransient}, window: testWindow(), wantCalls: 2},
		{name: "both fail", errs: []error{ErrTransient, ErrTransient}, window: testWindow(), wantCalls: 2, wantErr: ErrTransient},
		{name: "auth never narrows", errs: []error{ErrAuth}, window: testWindow(), wantCalls: 1, wantErr: ErrAuth},
		{
			name:      "short window not narrowed",
			errs:      []error{ErrTransient},
			window:    Window{Start: testWindow().End.Add(-time.Hour), End: testWindow().End},
			wantCalls: 1,
			wantErr:   ErrTransient,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sf := &scriptedFetcher{errs: tt.errs}
			n := NewNarrowing(sf, logx.Nop())
			_, err := n.Fetch(context.Background(), tt.window)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(sf.calls) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(sf.calls), tt.wantCalls)
			}
			if tt.wantCalls == 2 {
				narrow := sf.calls[1]
				if !narrow.End.Equal(tt.window.End) || narrow.Duration() != DefaultNarrowStep {
					t.Fatalf("narrowed window = %v..%v", narrow.Start, narrow.End)
				}
			}
		})
	}
}
