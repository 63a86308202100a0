package tariff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"deliverycost/internal/cache"
)

// Default cache lifetimes and per-source timeout.
const (
	DefaultPriceTTL      = 5 * time.Minute
	DefaultListingTTL    = 2 * time.Minute
	DefaultSourceTimeout = 2 * time.Second
)

// Outcome classifies a single source call for metrics.
type Outcome string

const (
	OutcomeMatch   Outcome = "match"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
	OutcomeOpen    Outcome = "circuit_open"
)

// Recorder receives chain events. internal/metrics provides a Prometheus
// implementation.
type Recorder interface {
	CacheLookup(cache string, hit bool)
	SourceCall(source string, outcome Outcome, elapsed time.Duration)
	Exhausted(service string)
	BreakerOpen(source string, open bool)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, bool)                  {}
func (nopRecorder) SourceCall(string, Outcome, time.Duration) {}
func (nopRecorder) Exhausted(string)                          {}
func (nopRecorder) BreakerOpen(string, bool)                  {}

// BreakerConfig configures the circuit breaker placed in front of each
// source. A zero ConsecutiveFailures disables breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again
// after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// Config configures a Chain. Zero durations take the package defaults.
type Config struct {
	PriceTTL      time.Duration
	ListingTTL    time.Duration
	SourceTimeout time.Duration
	Breaker       BreakerConfig
	Clock         clockz.Clock
	Logger        *zap.Logger
	Recorder      Recorder
}

type guardedSource struct {
	Source
	breaker *gobreaker.CircuitBreaker
}

type listingKey struct {
	Service    string
	WilayaCode int
}

// Chain queries tariff sources in priority order. The first source with a
// match wins and its answer is cached; failing sources are logged and
// skipped. A Chain is safe for concurrent use.
type Chain struct {
	sources  []guardedSource
	prices   *cache.TTL[Key, Record]
	listings *cache.TTL[listingKey, []Record]
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
}

// NewChain builds a chain over sources, highest priority first.
func NewChain(cfg Config, sources ...Source) (*Chain, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = DefaultPriceTTL
	}
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = DefaultListingTTL
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	c := &Chain{
		prices:   cache.New[Key, Record](cfg.PriceTTL, cfg.Clock),
		listings: cache.New[listingKey, []Record](cfg.ListingTTL, cfg.Clock),
		timeout:  cfg.SourceTimeout,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
	for _, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("tariff chain: nil source")
		}
		c.sources = append(c.sources, guardedSource{Source: s, breaker: c.newBreaker(s.Name(), cfg.Breaker)})
	}
	return c, nil
}

func (c *Chain) newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.ConsecutiveFailures == 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// A caller giving up says nothing about the source's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.recorder.BreakerOpen(name, to != gobreaker.StateClosed)
			c.logger.Warn("tariff source breaker state changed",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Sources returns the source names in priority order.
func (c *Chain) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// GetTariff returns the tariff for a destination. A cached answer is
// returned without querying any source. When no source has a match the
// error wraps ErrAllSourcesExhausted; nothing is cached in that case.
func (c *Chain) GetTariff(ctx context.Context, service string, wilayaCode int, commune string) (Record, error) {
	key := NewKey(service, wilayaCode, commune)
	if r, ok := c.prices.Get(key); ok {
		c.recorder.CacheLookup("price", true)
		return r, nil
	}
	c.recorder.CacheLookup("price", false)

	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		r, err := call(ctx, c, s, func(ctx context.Context) (*Record, error) {
			return s.FetchTariff(ctx, service, wilayaCode, commune)
		})
		if err != nil {
			c.logger.Warn("tariff source failed",
				zap.String("source", s.Name()),
				zap.String("service", key.Service),
				zap.Int("wilaya", key.WilayaCode),
				zap.String("commune", key.Commune),
				zap.Error(err),
			)
			continue
		}
		if r == nil {
			c.logger.Debug("tariff source has no match",
				zap.String("source", s.Name()),
				zap.String("key", key.String()),
			)
			continue
		}
		rec := *r
		if rec.Source == "" {
			rec.Source = s.Name()
		}
		c.prices.Set(key, rec)
		return rec, nil
	}

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	c.recorder.Exhausted(key.Service)
	c.logger.Info("no tariff source matched",
		zap.String("service", key.Service),
		zap.Int("wilaya", key.WilayaCode),
		zap.String("commune", key.Commune),
	)
	return Record{}, fmt.Errorf("%w: %s", ErrAllSourcesExhausted, key)
}

// ListTariffs returns every tariff of a service in a wilaya from the first
// listing-capable source that has any. Listings are cached for the shorter
// listing TTL.
func (c *Chain) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]Record, error) {
	lk := listingKey{Service: strings.ToLower(strings.TrimSpace(service)), WilayaCode: wilayaCode}
	if rs, ok := c.listings.Get(lk); ok {
		c.recorder.CacheLookup("listing", true)
		return append([]Record(nil), rs...), nil
	}
	c.recorder.CacheLookup("listing", false)

	for _, s := range c.sources {
		lister, ok := s.Source.(Lister)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rs, err := call(ctx, c, s, func(ctx context.Context) ([]Record, error) {
			return lister.ListTariffs(ctx, service, wilayaCode)
		})
		if err != nil {
			c.logger.Warn("tariff listing failed",
				zap.String("source", s.Name()),
				zap.String("service", lk.Service),
				zap.Int("wilaya", wilayaCode),
				zap.Error(err),
			)
			continue
		}
		if len(rs) == 0 {
			continue
		}
		for i := range rs {
			if rs[i].Source == "" {
				rs[i].Source = s.Name()
			}
		}
		c.listings.Set(lk, rs)
		return append([]Record(nil), rs...), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.recorder.Exhausted(lk.Service)
	return nil, fmt.Errorf("%w: %s/%02d", ErrAllSourcesExhausted, lk.Service, wilayaCode)
}

// Invalidate drops the cached tariff of one destination and the listing of
// its wilaya.
func (c *Chain) Invalidate(service string, wilayaCode int, commune string) {
	key := NewKey(service, wilayaCode, commune)
	c.prices.Delete(key)
	c.listings.Delete(listingKey{Service: key.Service, WilayaCode: wilayaCode})
}

// InvalidateService drops every cached entry of a service.
func (c *Chain) InvalidateService(service string) int {
	service = strings.ToLower(strings.TrimSpace(service))
	n := c.prices.DeleteFunc(func(k Key) bool { return k.Service == service })
	return n + c.listings.DeleteFunc(func(k listingKey) bool { return k.Service == service })
}

// ClearCache drops every cached tariff and listing.
func (c *Chain) ClearCache() {
	c.prices.Clear()
	c.listings.Clear()
}

// Refresh clears the caches and asks every Refresher source to reload.
// Reload failures are logged and returned together; sources that did
// reload keep their new data.
func (c *Chain) Refresh(ctx context.Context) error {
	c.ClearCache()
	var errs []error
	for _, s := range c.sources {
		r, ok := s.Source.(Refresher)
		if !ok {
			continue
		}
		if err := r.Refresh(ctx); err != nil {
			c.logger.Warn("tariff source refresh failed", zap.String("source", s.Name()), zap.Error(err))
			errs = append(errs, &SourceError{Source: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Sweep purges expired cache entries every interval until ctx is done.
func (c *Chain) Sweep(ctx context.Context, interval time.Duration) {
	go c.listings.Sweep(ctx, interval)
	c.prices.Sweep(ctx, interval)
}

// call runs fn against one source under the per-source timeout and the
// source's breaker. The source runs in its own goroutine so that one which
// ignores its context cannot hold the chain past the timeout.
func call[T any](ctx context.Context, c *Chain, s guardedSource, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	run := func() (T, error) {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		type result struct {
			v   T
			err error
		}
		done := make(chan result, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					var zero T
					done <- result{v: zero, err: fmt.Errorf("panic: %v", p)}
				}
			}()
			v, err := fn(cctx)
			done <- result{v: v, err: err}
		}()

		select {
		case r := <-done:
			return r.v, r.err
		case <-cctx.Done():
			var zero T
			return zero, cctx.Err()
		}
	}

	var (
		v   T
		err error
	)
	if s.breaker == nil {
		v, err = run()
	} else {
		var out interface{}
		out, err = s.breaker.Execute(func() (interface{}, error) { return run() })
		if err == nil {
			v, _ = out.(T)
		}
	}

	elapsed := time.Since(start)
	switch {
	case err == nil && isEmpty(v):
		c.recorder.SourceCall(s.Name(), OutcomeNoMatch, elapsed)
	case err == nil:
		c.recorder.SourceCall(s.Name(), OutcomeMatch, elapsed)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.recorder.SourceCall(s.Name(), OutcomeOpen, elapsed)
	case errors.Is(err, context.DeadlineExceeded):
		c.recorder.SourceCall(s.Name(), OutcomeTimeout, elapsed)
	default:
		c.recorder.SourceCall(s.Name(), OutcomeError, elapsed)
	}
	if err != nil {
		var zero T
		return zero, &SourceError{Source: s.Name(), Err: err}
	}
	return v, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case *Record:
		return t == nil
	case []Record:
		return len(t) == 0
	default:
		return v == nil
	}
}
