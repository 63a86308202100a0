package postgres

import (
	"context"
	"os"
	"testing"

	"deliverycost/internal/db"
	"deliverycost/internal/tariff"
)

func TestSourceIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
		return
	}

	pool, err := db.NewPool(t.Context(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()

	s := New(pool)
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	service := "itest-postgres"
	defer func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM tariffs WHERE service = $1`, service)
	}()

	n, err := s.Upsert(t.Context(), []tariff.Record{
		{Service: service, WilayaCode: 6, WilayaName: "Béjaïa", Commune: "Béjaïa", HomePrice: 450, OfficePrice: 400},
		{Service: service, WilayaCode: 6, WilayaName: "Béjaïa", Commune: "Akbou", HomePrice: 500,
			Supplements: tariff.Supplements{CODRate: 0.02}},
	})
	if err != nil || n != 2 {
		t.Fatalf("upsert: n=%d err=%v", n, err)
	}

	r, err := s.FetchTariff(t.Context(), service, 6, "bejaia")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r == nil || r.HomePrice != 450 || r.OfficePrice != 400 {
		t.Fatalf("unexpected record: %+v", r)
	}

	r, err = s.FetchTariff(t.Context(), service, 6, "Kherrata")
	if err != nil || r != nil {
		t.Fatalf("expected no match, got %+v err=%v", r, err)
	}

	rs, err := s.ListTariffs(t.Context(), service, 6)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 2 || rs[0].Commune != "Akbou" || rs[0].Supplements.CODRate != 0.02 {
		t.Fatalf("unexpected listing: %+v", rs)
	}
}
