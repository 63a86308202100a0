package tariff

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store is an in-memory tariff store keyed by (service, wilaya, commune).
// It is a Source and a Lister and is safe for concurrent use.
type Store struct {
	name    string
	mu      sync.RWMutex
	records map[Key]Record
}

// NewStore creates an empty store reported under name.
func NewStore(name string) *Store {
	return &Store{name: name, records: make(map[Key]Record)}
}

func (s *Store) Name() string { return s.name }

// Put inserts or replaces a record.
func (s *Store) Put(r Record) {
	s.mu.Lock()
	s.records[r.Key()] = r
	s.mu.Unlock()
}

// Replace swaps the whole content of the store.
func (s *Store) Replace(records []Record) {
	next := make(map[Key]Record, len(records))
	for _, r := range records {
		next[r.Key()] = r
	}
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

// Get returns the record stored under the canonical form of the key.
func (s *Store) Get(service string, wilayaCode int, commune string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[NewKey(service, wilayaCode, commune)]
	return r, ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := s.Get(service, wilayaCode, commune)
	if !ok {
		return nil, nil
	}
	if r.Source == "" {
		r.Source = s.name
	}
	return &r, nil
}

// ListTariffs returns the records of a service in a wilaya ordered by
// commune.
func (s *Store) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	service = strings.ToLower(strings.TrimSpace(service))
	s.mu.RLock()
	var out []Record
	for k, r := range s.records {
		if k.Service == service && k.WilayaCode == wilayaCode {
			if r.Source == "" {
				r.Source = s.name
			}
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Commune < out[j].Key().Commune })
	return out, nil
}
