package simulated

import (
	"context"
	"testing"

	"deliverycost/internal/geo"
)

func newSource() *Source {
	return New(geo.MustDefault(), DefaultPricing())
}

func TestFetchTariff_Standard(t *testing.T) {
	r, err := newSource().FetchTariff(context.Background(), "Yalidine", 31, "oran")
	if err != nil || r == nil {
		t.Fatalf("expected a record, got %+v err=%v", r, err)
	}
	if r.HomePrice != 400 || r.OfficePrice != 350 {
		t.Fatalf("unexpected prices: home=%d office=%d", r.HomePrice, r.OfficePrice)
	}
	if r.Commune != "Oran" || r.WilayaName != "Oran" || r.Service != "yalidine" {
		t.Fatalf("unexpected identity: %+v", r)
	}
}

func TestFetchTariff_RemoteAndSurcharge(t *testing.T) {
	r, err := newSource().FetchTariff(context.Background(), "zr", 39, "Guemar")
	if err != nil || r == nil {
		t.Fatalf("expected a record, got %+v err=%v", r, err)
	}
	// remote 900/700 + 50 zr surcharge
	if r.HomePrice != 950 || r.OfficePrice != 750 {
		t.Fatalf("unexpected prices: home=%d office=%d", r.HomePrice, r.OfficePrice)
	}
}

func TestFetchTariff_CommuneOverride(t *testing.T) {
	r, err := newSource().FetchTariff(context.Background(), "yalidine", 3, "Hassi R'Mel")
	if err != nil || r == nil {
		t.Fatalf("expected a record, got %+v err=%v", r, err)
	}
	if r.HomePrice != 900 {
		t.Fatalf("remote commune should use remote grid, got %d", r.HomePrice)
	}
}

func TestFetchTariff_Capital(t *testing.T) {
	r, err := newSource().FetchTariff(context.Background(), "yalidine", 16, "Kouba")
	if err != nil || r == nil {
		t.Fatalf("expected a record, got %+v err=%v", r, err)
	}
	if r.HomePrice != 300 || r.OfficePrice != 250 {
		t.Fatalf("unexpected prices: home=%d office=%d", r.HomePrice, r.OfficePrice)
	}
}

func TestFetchTariff_UnknownDestination(t *testing.T) {
	s := newSource()
	if r, err := s.FetchTariff(context.Background(), "yalidine", 99, "Nowhere"); r != nil || err != nil {
		t.Fatalf("unknown wilaya must be no match, got %+v err=%v", r, err)
	}
	if r, err := s.FetchTariff(context.Background(), "yalidine", 31, "Nowhere"); r != nil || err != nil {
		t.Fatalf("unknown commune must be no match, got %+v err=%v", r, err)
	}
}

func TestListTariffs(t *testing.T) {
	rs, err := newSource().ListTariffs(context.Background(), "yalidine", 31)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	oran, _ := geo.MustDefault().Wilaya(31)
	if len(rs) != len(oran.Communes) {
		t.Fatalf("expected one record per commune, got %d", len(rs))
	}
}
