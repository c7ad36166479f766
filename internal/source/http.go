package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"leaderbot/internal/leaderboard"
	"leaderbot/internal/metrics"
	logx "leaderbot/pkg/logx"
)

const (
	defaultTimeout = 15 * time.Second
	defaultTake    = 1000
	maxBodyBytes   = 16 << 20
	breakerName    = "stats-api"
)

type Options struct {
	BaseURL       string
	APIKey        string
	AffiliateCode string
	Timeout       time.Duration
	Take          int
	RatePerSec    float64
	Fields        leaderboard.FieldMap
}

// HTTPFetcher queries GET {base}/affiliate/external for one window.
type HTTPFetcher struct {
	opt     Options
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]any]
	log     logx.Logger
	metrics *metrics.Metrics
}

func NewHTTPFetcher(opt Options, log logx.Logger, m *metrics.Metrics) (*HTTPFetcher, error) {
	base := strings.TrimRight(strings.TrimSpace(opt.BaseURL), "/")
	if base == "" {
		return nil, errors.New("source: base url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("source: invalid base url: %w", err)
	}
	opt.BaseURL = base
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}
	if opt.Take <= 0 {
		opt.Take = defaultTake
	}
	if opt.Fields == (leaderboard.FieldMap{}) {
		opt.Fields = leaderboard.DefaultFieldMap()
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	f := &HTTPFetcher{
		opt:     opt,
		client:  &http.Client{Timeout: opt.Timeout},
		log:     log,
		metrics: m,
	}
	if opt.RatePerSec > 0 {
		burst := int(opt.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opt.RatePerSec), burst)
	}

	m.BreakerState(breakerName, 0)
	f.cb = gobreaker.NewCircuitBreaker[[]any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Only availability problems count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", logx.String("name", name), logx.String("from", from.String()), logx.String("to", to.String()))
			m.BreakerState(name, breakerValue(to))
		},
	})
	return f, nil
}

func breakerValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, w Window) ([]leaderboard.RawEntry, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: empty window", ErrRequest)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	records, err := f.cb.Execute(func() ([]any, error) {
		return f.fetchRecords(ctx, w)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	f.metrics.FetchResult(Result(err))
	if err != nil {
		return nil, err
	}

	entries, skipped := leaderboard.ParseRecords(records, f.opt.Fields)
	if skipped > 0 {
		f.metrics.RecordsSkipped(skipped)
		f.log.Warn("skipped malformed records", logx.Int("skipped", skipped), logx.Int("total", len(records)))
	}
	return entries, nil
}

func (f *HTTPFetcher) requestURL(w Window) string {
	q := url.Values{}
	q.Set("code", f.opt.AffiliateCode)
	q.Set("gt", strconv.FormatInt(w.Start.UnixMilli(), 10))
	q.Set("lt", strconv.FormatInt(w.End.UnixMilli(), 10))
	q.Set("by", "createdAt")
	q.Set("sort", "desc")
	q.Set("take", strconv.Itoa(f.opt.Take))
	return f.opt.BaseURL + "/affiliate/external?" + q.Encode()
}

func (f *HTTPFetcher) fetchRecords(ctx context.Context, w Window) ([]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(w), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.opt.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.opt.APIKey)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	f.log.Debug("fetch response",
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
		logx.Time("start", w.Start),
		logx.Time("end", w.End),
	)

	if err := statusError(resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	return decodeRecords(io.LimitReader(resp.Body, maxBodyBytes))
}

func statusError(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w (http %d)", ErrAuth, code)
	case code == http.StatusTooManyRequests:
		return RateLimited(parseRetryAfter(resp.Header.Get("Retry-After")))
	case code >= 500 || code == http.StatusRequestTimeout:
		return fmt.Errorf("%w (http %d)", ErrTransient, code)
	default:
		return fmt.Errorf("%w (http %d)", ErrRequest, code)
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// decodeRecords accepts a bare JSON array or an object wrapping it in "data".
func decodeRecords(r io.Reader) ([]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRequest, err)
	}
	switch v := payload.(type) {
	case []any:
		return v, nil
	case map[string]any:
		data, ok := v["data"]
		if !ok || data == nil {
			return nil, nil
		}
		arr, ok := data.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: data is %T, want array", ErrRequest, data)
		}
		return arr, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: payload is %T", ErrRequest, payload)
	}
}
