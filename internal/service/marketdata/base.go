package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"DexSignal/internal/domain/repository"
	"DexSignal/internal/service/ratelimit"
	xhttp "DexSignal/pkg/http"
	"DexSignal/pkg/logger"
	"DexSignal/pkg/util"
)

// Source keys used for rate limiting, metrics and logs.
const (
	SourceAlchemy     = "alchemy"
	SourceDexscreener = "dexscreener"
	SourceSubgraph    = "subgraph"
)

// Option configures a source client.
type Option func(*settings)

type settings struct {
	timeout   time.Duration
	retries   int
	retryWait time.Duration
	limiter   *ratelimit.Limiter
	metrics   repository.Metrics
	log       *logger.Logger
	hc        *http.Client
}

func defaultSettings() settings {
	return settings{
		timeout:   10 * time.Second,
		retries:   2,
		retryWait: 500 * time.Millisecond,
		log:       logger.NewNop(),
	}
}

// WithTimeout bounds every request of the client.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets how often transient failures (transport, 429, 5xx) are retried.
func WithRetry(retries int, wait time.Duration) Option {
	return func(s *settings) {
		s.retries = retries
		s.retryWait = wait
	}
}

// WithLimiter shares a per-source token bucket.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *settings) { s.limiter = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.hc = hc }
}

// httpBase centralizes client construction, throttling and JSON requests for
// the source clients.
type httpBase struct {
	source string
	client *xhttp.Client
	s      settings
}

func newHTTPBase(source string, s settings) httpBase {
	opts := []xhttp.ClientOption{
		xhttp.WithTimeout(s.timeout),
		xhttp.WithRetry(s.retries, s.retryWait),
	}
	if s.hc != nil {
		opts = append(opts, xhttp.WithHTTPClient(s.hc))
	}
	return httpBase{source: source, client: xhttp.NewClient(opts...), s: s}
}

// do throttles, applies the per-call timeout and decodes the JSON response.
func (b httpBase) do(ctx context.Context, timeout time.Duration, req *xhttp.RequestOptions, dest interface{}) error {
	if b.s.limiter != nil {
		if err := b.s.limiter.Wait(ctx, b.source); err != nil {
			return err
		}
	}
	if timeout <= 0 {
		timeout = b.s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := b.client.SendAndParse(ctx, req, dest)
	if b.s.metrics != nil {
		b.s.metrics.RecordLatency(b.source, time.Since(start).Seconds())
	}
	if err != nil {
		b.fail()
		return fmt.Errorf("%s: %w", b.source, err)
	}
	return nil
}

func (b httpBase) fail() {
	if b.s.metrics != nil {
		b.s.metrics.RecordSourceError(b.source)
	}
}

// optFloat decodes a JSON number, a numeric string or null. Bad or missing
// values leave ok false.
type optFloat struct {
	v  float64
	ok bool
}

func (f *optFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = optFloat{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, ok := util.ParseFloat(s)
		*f = optFloat{v: v, ok: ok}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = optFloat{}
		return nil
	}
	*f = optFloat{v: v, ok: true}
	return nil
}

func (f optFloat) ptr() *float64 {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}
