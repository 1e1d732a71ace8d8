package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// SeedLookup inserts or replaces a reference row with a fixed id.
func (s *Store) SeedLookup(t ledger.LookupTable, id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.st.lookups[t]
	if !ok {
		m = make(map[int64]string)
		s.st.lookups[t] = m
	}
	m[id] = name
	if id > s.st.nextID[t] {
		s.st.nextID[t] = id
	}
}

// ListLookup returns every row of t ordered by id.
func (s *Store) ListLookup(_ context.Context, t ledger.LookupTable) ([]ledger.LookupRecord, error) {
	if _, err := t.Descriptor(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.st.lookups[t]
	out := make([]ledger.LookupRecord, 0, len(m))
	for id, name := range m {
		out = append(out, ledger.LookupRecord{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateLookup assigns the next id of t.
func (s *Store) CreateLookup(_ context.Context, t ledger.LookupTable, name string) (ledger.LookupRecord, error) {
	if _, err := t.Descriptor(); err != nil {
		return ledger.LookupRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.st.lookups[t]
	if !ok {
		m = make(map[int64]string)
		s.st.lookups[t] = m
	}
	s.st.nextID[t]++
	rec := ledger.LookupRecord{ID: s.st.nextID[t], Name: name}
	m[rec.ID] = rec.Name
	return rec, nil
}

// UpdateLookup renames an existing row.
func (s *Store) UpdateLookup(_ context.Context, t ledger.LookupTable, rec ledger.LookupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.st.lookups[t]
	if _, ok := m[rec.ID]; !ok {
		return fmt.Errorf("%s %d: %w", t, rec.ID, errs.ErrNotFound)
	}
	m[rec.ID] = rec.Name
	return nil
}

// DeleteLookup removes a row that no session or movement row references.
func (s *Store) DeleteLookup(_ context.Context, t ledger.LookupTable, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.st.lookups[t]
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%s %d: %w", t, id, errs.ErrNotFound)
	}
	if s.st.referenced(t, id) {
		return fmt.Errorf("%w: %s %d is referenced by ledger rows", errs.ErrConflict, t, id)
	}
	delete(m, id)
	return nil
}

func (st *state) referenced(t ledger.LookupTable, id int64) bool {
	for _, sess := range st.sessions {
		switch t {
		case ledger.LookupMill:
			if sess.MillID == id {
				return true
			}
		case ledger.LookupMiller:
			if sess.MillerID == id {
				return true
			}
		case ledger.LookupShift:
			if sess.ShiftID == id {
				return true
			}
		}
	}
	for tl := range st.rows {
		d, _ := tl.Category.Table()
		if d.Lookup == t && tl.MeterID == id && len(st.rows[tl]) > 0 {
			return true
		}
	}
	return false
}

func (st *state) name(t ledger.LookupTable, id int64) string {
	return st.lookups[t][id]
}
