// Package engine is the entry point of the pricing core. It ties destination
// resolution, the tariff chain and the calculator together and caches priced
// quotes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"deliverycost/internal/cache"
	"deliverycost/internal/destination"
	"deliverycost/internal/geo"
	"deliverycost/internal/numeric"
	"deliverycost/internal/rate"
	"deliverycost/internal/tariff"
)

// Quote is a pricing request.
type Quote struct {
	Service       string          `json:"service"`
	Destination   string          `json:"destination"`
	Weight        float64         `json:"weight"`
	Dimensions    rate.Dimensions `json:"dimensions"`
	DeclaredValue float64         `json:"declared_value"`
	DeliveryType  string          `json:"delivery_type"`
}

// Priced is a computed quote together with the destination it was priced
// for.
type Priced struct {
	Destination destination.Resolution `json:"destination"`
	Tariff      tariff.Record          `json:"tariff"`
	rate.Result
}

// CacheRecorder observes quote cache lookups.
type CacheRecorder interface {
	CacheLookup(cache string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, bool) {}

// Config tunes an Engine. A zero QuoteTTL uses tariff.DefaultPriceTTL.
type Config struct {
	QuoteTTL time.Duration
	Clock    clockz.Clock
	Logger   *zap.Logger
	Recorder CacheRecorder
}

// quoteKey holds every input that can change a price, in canonical form.
type quoteKey struct {
	tariff        tariff.Key
	deliveryType  tariff.DeliveryType
	weight        float64
	length        float64
	width         float64
	height        float64
	declaredValue float64
}

type quoteEntry struct {
	tariff tariff.Record
	result rate.Result
}

// Engine is safe for concurrent use.
type Engine struct {
	matcher  *destination.Matcher
	chain    *tariff.Chain
	calc     *rate.Calculator
	quotes   *cache.TTL[quoteKey, quoteEntry]
	logger   *zap.Logger
	recorder CacheRecorder
}

func New(matcher *destination.Matcher, chain *tariff.Chain, calc *rate.Calculator, cfg Config) *Engine {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = tariff.DefaultPriceTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if calc == nil {
		calc = rate.NewCalculator()
	}
	return &Engine{
		matcher:  matcher,
		chain:    chain,
		calc:     calc,
		quotes:   cache.New[quoteKey, quoteEntry](cfg.QuoteTTL, cfg.Clock),
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
}

// ResolveDestination maps free text to a commune. The error wraps
// destination.ErrNotFound when nothing matches.
func (e *Engine) ResolveDestination(raw string) (destination.Resolution, error) {
	res, err := e.matcher.ResolveText(raw)
	if err != nil {
		return destination.Resolution{}, fmt.Errorf("%w: %q", err, strings.TrimSpace(raw))
	}
	return res, nil
}

// GetTariff returns the tariff of a service for a destination.
func (e *Engine) GetTariff(ctx context.Context, service string, wilayaCode int, commune string) (tariff.Record, error) {
	return e.chain.GetTariff(ctx, service, wilayaCode, commune)
}

// ListTariffs returns every tariff of a service in a wilaya.
func (e *Engine) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]tariff.Record, error) {
	return e.chain.ListTariffs(ctx, service, wilayaCode)
}

// ComputePrice resolves the destination of q, fetches its tariff and prices
// the parcel.
func (e *Engine) ComputePrice(ctx context.Context, q Quote) (rate.Result, error) {
	p, err := e.Price(ctx, q)
	if err != nil {
		return rate.Result{}, err
	}
	return p.Result, nil
}

// Price is ComputePrice with the resolved destination and the tariff used.
func (e *Engine) Price(ctx context.Context, q Quote) (Priced, error) {
	dest, err := e.ResolveDestination(q.Destination)
	if err != nil {
		return Priced{}, err
	}
	return e.PriceAt(ctx, q, dest)
}

// PriceAt prices q for an already resolved destination; q.Destination is
// ignored.
func (e *Engine) PriceAt(ctx context.Context, q Quote, dest destination.Resolution) (Priced, error) {
	dt := tariff.ParseDeliveryType(q.DeliveryType)
	pkg := rate.Package{
		Weight:        numeric.CleanWeight(q.Weight),
		DeclaredValue: numeric.NonNegative(q.DeclaredValue),
		Dimensions: rate.Dimensions{
			Length: numeric.NonNegative(q.Dimensions.Length),
			Width:  numeric.NonNegative(q.Dimensions.Width),
			Height: numeric.NonNegative(q.Dimensions.Height),
		},
	}
	key := quoteKey{
		tariff:        tariff.NewKey(q.Service, dest.WilayaCode, dest.Commune),
		deliveryType:  dt,
		weight:        pkg.Weight,
		length:        pkg.Dimensions.Length,
		width:         pkg.Dimensions.Width,
		height:        pkg.Dimensions.Height,
		declaredValue: pkg.DeclaredValue,
	}
	if ent, ok := e.quotes.Get(key); ok {
		e.recorder.CacheLookup("quote", true)
		return Priced{Destination: dest, Tariff: ent.tariff, Result: ent.result}, nil
	}
	e.recorder.CacheLookup("quote", false)

	rec, err := e.chain.GetTariff(ctx, q.Service, dest.WilayaCode, dest.Commune)
	if err != nil {
		return Priced{}, err
	}
	zone := dest.ZoneTier
	if zone == "" {
		zone = geo.ZoneStandard
	}
	res, err := e.calc.Compute(rec, pkg, dt, zone)
	if err != nil {
		e.logger.Info("quote rejected",
			zap.String("key", key.tariff.String()),
			zap.String("delivery_type", string(dt)),
			zap.Float64("weight", pkg.Weight),
			zap.Error(err),
		)
		return Priced{}, err
	}
	e.quotes.Set(key, quoteEntry{tariff: rec, result: res})
	return Priced{Destination: dest, Tariff: rec, Result: res}, nil
}

// Invalidate drops every cached tariff and quote of one destination.
func (e *Engine) Invalidate(service string, wilayaCode int, commune string) {
	e.chain.Invalidate(service, wilayaCode, commune)
	k := tariff.NewKey(service, wilayaCode, commune)
	e.quotes.DeleteFunc(func(q quoteKey) bool { return q.tariff == k })
}

// InvalidateService drops every cached tariff and quote of a service.
func (e *Engine) InvalidateService(service string) {
	e.chain.InvalidateService(service)
	service = strings.ToLower(strings.TrimSpace(service))
	e.quotes.DeleteFunc(func(q quoteKey) bool { return q.tariff.Service == service })
}

// ClearCache drops every cached tariff, listing and quote.
func (e *Engine) ClearCache() {
	e.chain.ClearCache()
	e.quotes.Clear()
}

// ForceRefresh clears every cache and reloads the sources that keep a local
// copy. Sources that fail to reload are reported in the error; the caches
// are cleared regardless.
func (e *Engine) ForceRefresh(ctx context.Context) error {
	e.quotes.Clear()
	if err := e.chain.Refresh(ctx); err != nil {
		e.logger.Warn("forced refresh incomplete", zap.Error(err))
		return fmt.Errorf("refresh tariff sources: %w", err)
	}
	e.logger.Info("tariff caches refreshed", zap.Strings("sources", e.chain.Sources()))
	return nil
}

// Sweep purges expired cache entries every interval until ctx is done.
func (e *Engine) Sweep(ctx context.Context, interval time.Duration) {
	go e.chain.Sweep(ctx, interval)
	e.quotes.Sweep(ctx, interval)
}

// Sources lists the tariff sources in priority order.
func (e *Engine) Sources() []string { return e.chain.Sources() }

// IsNotFound reports whether err is a terminal "nothing to price" outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, destination.ErrNotFound) || errors.Is(err, tariff.ErrTariffUnavailable)
}
