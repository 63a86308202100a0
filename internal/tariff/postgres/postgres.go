// Package postgres serves tariffs from the primary PostgreSQL store.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"deliverycost/internal/tariff"
)

//go:embed schema.sql
var schema string

const selectColumns = `service, wilaya_code, wilaya_name, commune, home_price, office_price, supplements`

// Source reads the tariffs table. Commune lookups go through the folded
// commune_key column so that "Béjaïa" and "bejaia" hit the same row.
type Source struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

func (s *Source) Name() string { return "postgres" }

// Migrate creates the tariffs table when it does not exist.
func (s *Source) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Source) FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*tariff.Record, error) {
	key := tariff.NewKey(service, wilayaCode, commune)
	row := s.pool.QueryRow(ctx, `
        SELECT `+selectColumns+`
        FROM tariffs
        WHERE service = $1 AND wilaya_code = $2 AND commune_key = $3`,
		key.Service, key.WilayaCode, key.Commune)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *Source) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]tariff.Record, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+selectColumns+`
        FROM tariffs
        WHERE service = $1 AND wilaya_code = $2
        ORDER BY commune_key`,
		strings.ToLower(strings.TrimSpace(service)), wilayaCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tariff.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert writes records in one transaction, replacing rows with the same
// key. It returns the number of rows written.
func (s *Source) Upsert(ctx context.Context, records []tariff.Record) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, r := range records {
		key := r.Key()
		supp, err := json.Marshal(r.Supplements)
		if err != nil {
			return n, err
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO tariffs (service, wilaya_code, wilaya_name, commune, commune_key, home_price, office_price, supplements)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
            ON CONFLICT (service, wilaya_code, commune_key) DO UPDATE SET
                wilaya_name = EXCLUDED.wilaya_name,
                commune = EXCLUDED.commune,
                home_price = EXCLUDED.home_price,
                office_price = EXCLUDED.office_price,
                supplements = EXCLUDED.supplements,
                updated_at = now()`,
			key.Service, key.WilayaCode, r.WilayaName, r.Commune, key.Commune, r.HomePrice, r.OfficePrice, string(supp))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23514" { // check_violation
				return n, fmt.Errorf("tariff %s rejected by %s: %w", key, pgErr.ConstraintName, err)
			}
			return n, err
		}
		n++
	}
	return n, tx.Commit(ctx)
}

func scanRecord(row pgx.Row) (tariff.Record, error) {
	var (
		r    tariff.Record
		name *string
		supp []byte
	)
	if err := row.Scan(&r.Service, &r.WilayaCode, &name, &r.Commune, &r.HomePrice, &r.OfficePrice, &supp); err != nil {
		return tariff.Record{}, err
	}
	if name != nil {
		r.WilayaName = *name
	}
	if len(supp) > 0 {
		if err := json.Unmarshal(supp, &r.Supplements); err != nil {
			return tariff.Record{}, fmt.Errorf("decode supplements of %s: %w", r.Key(), err)
		}
	}
	r.Source = "postgres"
	return r, nil
}
