// Package tariff models delivery tariffs and resolves them from an ordered
// chain of backing sources.
package tariff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deliverycost/internal/geo"
)

var (
	// ErrTariffUnavailable means no tariff exists for the requested service
	// and destination.
	ErrTariffUnavailable = errors.New("tariff unavailable")
	// ErrAllSourcesExhausted is returned when every source failed or had no
	// match. It is a TariffUnavailable outcome.
	ErrAllSourcesExhausted = fmt.Errorf("all tariff sources exhausted: %w", ErrTariffUnavailable)
	// ErrSourceUnavailable marks a single source that could not answer.
	// The chain absorbs it and moves on.
	ErrSourceUnavailable = errors.New("tariff source unavailable")
	// ErrNoSources is returned when a chain is built without sources.
	ErrNoSources = errors.New("tariff chain needs at least one source")
)

// SourceError records which source failed. It matches both
// ErrSourceUnavailable and the underlying cause.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("tariff source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// DeliveryType selects which tariff price applies.
type DeliveryType string

const (
	DeliveryHome   DeliveryType = "home"
	DeliveryOffice DeliveryType = "office"
)

// ParseDeliveryType maps free-form input to a delivery type. Anything that
// is not recognisably office delivery is home delivery.
func ParseDeliveryType(s string) DeliveryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "office", "stopdesk", "stop_desk", "stop-desk", "desk", "bureau":
		return DeliveryOffice
	default:
		return DeliveryHome
	}
}

// Supplements is the surcharge policy attached to a tariff. Zero fields take
// the defaults from DefaultSupplements.
type Supplements struct {
	// CODRate is the cash-on-delivery fee as a fraction of declared value.
	CODRate                   float64 `json:"cod_rate,omitempty" bson:"cod_rate,omitempty"`
	OverweightThresholdKg     float64 `json:"overweight_threshold_kg,omitempty" bson:"overweight_threshold_kg,omitempty"`
	OverweightRatePerKg       int64   `json:"overweight_rate_per_kg,omitempty" bson:"overweight_rate_per_kg,omitempty"`
	RemoteOverweightRatePerKg int64   `json:"remote_overweight_rate_per_kg,omitempty" bson:"remote_overweight_rate_per_kg,omitempty"`
}

// DefaultSupplements is the policy used when a tariff does not set one:
// 1% COD, 5 kg included, 50 per extra kg (100 in remote zones).
func DefaultSupplements() Supplements {
	return Supplements{
		CODRate:                   0.01,
		OverweightThresholdKg:     5,
		OverweightRatePerKg:       50,
		RemoteOverweightRatePerKg: 100,
	}
}

// WithDefaults fills unset fields from DefaultSupplements.
func (s Supplements) WithDefaults() Supplements {
	d := DefaultSupplements()
	if s.CODRate <= 0 {
		s.CODRate = d.CODRate
	}
	if s.OverweightThresholdKg <= 0 {
		s.OverweightThresholdKg = d.OverweightThresholdKg
	}
	if s.OverweightRatePerKg <= 0 {
		s.OverweightRatePerKg = d.OverweightRatePerKg
	}
	if s.RemoteOverweightRatePerKg <= 0 {
		s.RemoteOverweightRatePerKg = d.RemoteOverweightRatePerKg
	}
	return s
}

// OverweightRate returns the per-kg rate for a zone tier.
func (s Supplements) OverweightRate(zone geo.ZoneTier) int64 {
	if zone == geo.ZoneRemote {
		return s.RemoteOverweightRatePerKg
	}
	return s.OverweightRatePerKg
}

// Key is the composite identity of a tariff. Build it with NewKey so that
// equal destinations compare equal.
type Key struct {
	Service    string
	WilayaCode int
	Commune    string
}

// NewKey returns the canonical key: lower-case service, folded commune.
func NewKey(service string, wilayaCode int, commune string) Key {
	return Key{
		Service:    strings.ToLower(strings.TrimSpace(service)),
		WilayaCode: wilayaCode,
		Commune:    geo.Key(commune),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%02d/%s", k.Service, k.WilayaCode, k.Commune)
}

// Record is a tariff for one service and destination. Prices are in minor
// currency units; an OfficePrice of zero means office delivery is not
// offered.
type Record struct {
	Service     string      `json:"service"`
	WilayaCode  int         `json:"wilaya_code"`
	WilayaName  string      `json:"wilaya_name,omitempty"`
	Commune     string      `json:"commune"`
	HomePrice   int64       `json:"home_price"`
	OfficePrice int64       `json:"office_price"`
	Supplements Supplements `json:"supplements"`
	// Source names the backing store the record came from.
	Source string `json:"source,omitempty"`
}

// Key returns the record's canonical key.
func (r Record) Key() Key {
	return NewKey(r.Service, r.WilayaCode, r.Commune)
}

// Price returns the price for a delivery type and whether it is offered.
func (r Record) Price(dt DeliveryType) (int64, bool) {
	if dt == DeliveryOffice {
		return r.OfficePrice, r.OfficePrice > 0
	}
	return r.HomePrice, r.HomePrice > 0
}

// Source is a backing store of tariffs. FetchTariff returns (nil, nil) when
// the store has no tariff for the destination and an error when it could
// not answer.
type Source interface {
	Name() string
	FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*Record, error)
}

// Lister is implemented by sources that can list every tariff of a wilaya.
type Lister interface {
	ListTariffs(ctx context.Context, service string, wilayaCode int) ([]Record, error)
}

// Refresher is implemented by sources that keep a local copy of their data
// and can reload it.
type Refresher interface {
	Refresh(ctx context.Context) error
}
