// Package simulated is a deterministic last-resort tariff source. It prices
// any known destination from its zone tier so that quoting keeps working
// when every real store is down.
package simulated

import (
	"context"
	"strings"

	"deliverycost/internal/geo"
	"deliverycost/internal/tariff"
)

// Pricing is the heuristic price grid. Prices are in minor units.
type Pricing struct {
	StandardHome   int64
	StandardOffice int64
	RemoteHome     int64
	RemoteOffice   int64
	// CapitalDiscount is taken off both prices for the capital wilaya.
	CapitalDiscount int64
	// Surcharges adds a fixed amount per service.
	Surcharges map[string]int64
}

// DefaultPricing mirrors the public grid of the common carriers.
func DefaultPricing() Pricing {
	return Pricing{
		StandardHome:    400,
		StandardOffice:  350,
		RemoteHome:      900,
		RemoteOffice:    700,
		CapitalDiscount: 100,
		Surcharges: map[string]int64{
			"yalidine": 0,
			"zr":       50,
			"ecotrack": 100,
		},
	}
}

const capitalCode = 16

type Source struct {
	dir     *geo.Directory
	pricing Pricing
}

func New(dir *geo.Directory, pricing Pricing) *Source {
	return &Source{dir: dir, pricing: pricing}
}

func (s *Source) Name() string { return "simulated" }

// FetchTariff answers for every commune in the reference data and for the
// wilaya seat when commune is empty. Unknown destinations get no match.
func (s *Source) FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*tariff.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, ok := s.dir.Wilaya(wilayaCode)
	if !ok {
		return nil, nil
	}
	name := w.Name
	if strings.TrimSpace(commune) != "" {
		c, ok := s.dir.Commune(wilayaCode, commune)
		if !ok {
			return nil, nil
		}
		name = c.Name
	}
	r := s.price(service, w, name)
	return &r, nil
}

// ListTariffs prices every known commune of the wilaya.
func (s *Source) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]tariff.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, ok := s.dir.Wilaya(wilayaCode)
	if !ok {
		return nil, nil
	}
	out := make([]tariff.Record, 0, len(w.Communes))
	for _, c := range w.Communes {
		out = append(out, s.price(service, w, c.Name))
	}
	return out, nil
}

func (s *Source) price(service string, w geo.Wilaya, commune string) tariff.Record {
	service = strings.ToLower(strings.TrimSpace(service))
	home, office := s.pricing.StandardHome, s.pricing.StandardOffice
	if s.dir.Zone(w.Code, commune) == geo.ZoneRemote {
		home, office = s.pricing.RemoteHome, s.pricing.RemoteOffice
	}
	if w.Code == capitalCode {
		home -= s.pricing.CapitalDiscount
		office -= s.pricing.CapitalDiscount
	}
	extra := s.pricing.Surcharges[service]
	return tariff.Record{
		Service:     service,
		WilayaCode:  w.Code,
		WilayaName:  w.Name,
		Commune:     commune,
		HomePrice:   max(home+extra, 0),
		OfficePrice: max(office+extra, 0),
		Source:      "simulated",
	}
}
