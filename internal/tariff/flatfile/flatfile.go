// Package flatfile loads tariffs from the carriers' CSV exports.
//
// Each row is
//
//	wilayaCode, wilayaName, commune, officePrice, homePrice
//
// The header row is optional. Wilaya codes may be zero padded ("01").
// Home prices are positive integers; an empty or zero office price means
// office delivery is not offered.
package flatfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"deliverycost/internal/geo"
	"deliverycost/internal/tariff"
)

const columns = 5

// ErrMalformed is wrapped by every parse error.
var ErrMalformed = errors.New("malformed tariff file")

// RowError reports the offending line.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// Parse reads every row of r as a tariff of the given service.
func Parse(r io.Reader, service string) ([]tariff.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []tariff.Record
	for first := true; ; first = false {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &RowError{Line: pe.Line, Err: pe.Err}
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if first && isHeader(row) {
			continue
		}
		rec, err := parseRow(row, service)
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, err := strconv.Atoi(cell(row, 0))
	return err != nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(row[i], "\ufeff"))
}

func parseRow(row []string, service string) (tariff.Record, error) {
	if len(row) != columns {
		return tariff.Record{}, fmt.Errorf("want %d columns, got %d", columns, len(row))
	}
	code, err := strconv.Atoi(cell(row, 0))
	if err != nil || code < geo.MinWilayaCode || code > geo.MaxWilayaCode {
		return tariff.Record{}, fmt.Errorf("invalid wilaya code %q", cell(row, 0))
	}
	commune := cell(row, 2)
	if commune == "" {
		return tariff.Record{}, errors.New("missing commune")
	}
	office, err := parsePrice(cell(row, 3), true)
	if err != nil {
		return tariff.Record{}, fmt.Errorf("office price: %w", err)
	}
	home, err := parsePrice(cell(row, 4), false)
	if err != nil {
		return tariff.Record{}, fmt.Errorf("home price: %w", err)
	}
	return tariff.Record{
		Service:     strings.ToLower(strings.TrimSpace(service)),
		WilayaCode:  code,
		WilayaName:  cell(row, 1),
		Commune:     commune,
		HomePrice:   home,
		OfficePrice: office,
	}, nil
}

func parsePrice(s string, optional bool) (int64, error) {
	if s == "" && optional {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < 0 || (n == 0 && !optional) {
		return 0, fmt.Errorf("must be positive: %d", n)
	}
	return n, nil
}

// Source serves tariffs loaded from one CSV file and reloads it on Refresh.
type Source struct {
	path    string
	service string
	store   *tariff.Store

	mu sync.Mutex
}

// Open loads the file at path.
func Open(path, service string) (*Source, error) {
	s := &Source{path: path, service: service, store: tariff.NewStore("flatfile")}
	if err := s.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) Name() string { return s.store.Name() }

// Len returns the number of loaded tariffs.
func (s *Source) Len() int { return s.store.Len() }

func (s *Source) FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*tariff.Record, error) {
	return s.store.FetchTariff(ctx, service, wilayaCode, commune)
}

func (s *Source) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]tariff.Record, error) {
	return s.store.ListTariffs(ctx, service, wilayaCode)
}

// Refresh re-reads the file. On error the previously loaded tariffs stay.
func (s *Source) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := Parse(f, s.service)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.store.Replace(records)
	return nil
}
