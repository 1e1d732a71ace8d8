package memory

import (
	"context"
	"sort"

	"github.com/govalues/decimal"

	"github.com/tinoosan/millmeter/internal/ledger"
)

// Summary returns the rows of q.Category dated within [q.From, q.To] joined with names.
func (s *Store) Summary(_ context.Context, q ledger.SummaryQuery) ([]ledger.SummaryRow, error) {
	d, err := q.Category.Table()
	if err != nil {
		return nil, err
	}
	mills := idSet(q.MillIDs)
	meters := idSet(q.MeterIDs)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.SummaryRow, 0)
	for tl, rows := range s.st.rows {
		if tl.Category != q.Category || !mills.has(tl.MillID) || !meters.has(tl.MeterID) {
			continue
		}
		for _, r := range rows {
			if r.Date.Before(q.From) || r.Date.After(q.To) {
				continue
			}
			out = append(out, ledger.SummaryRow{
				Row:        r,
				MillName:   s.st.name(ledger.LookupMill, r.MillID),
				MeterName:  s.st.name(d.Lookup, r.MeterID),
				ShiftName:  s.st.name(ledger.LookupShift, r.ShiftID),
				MillerName: s.st.name(ledger.LookupMiller, r.MillerID),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].LogID != out[j].LogID {
			return out[i].LogID < out[j].LogID
		}
		if out[i].MillID != out[j].MillID {
			return out[i].MillID < out[j].MillID
		}
		return out[i].MeterID < out[j].MeterID
	})
	return out, nil
}

// MovementTotals sums movement per (mill, meter) over all time.
func (s *Store) MovementTotals(_ context.Context, c ledger.Category, millIDs []int64) ([]ledger.MeterTotal, error) {
	d, err := c.Table()
	if err != nil {
		return nil, err
	}
	mills := idSet(millIDs)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.MeterTotal, 0)
	for tl, rows := range s.st.rows {
		if tl.Category != c || !mills.has(tl.MillID) || len(rows) == 0 {
			continue
		}
		total := decimal.Zero
		for _, r := range rows {
			sum, err := total.Add(r.Movement)
			if err != nil {
				return nil, err
			}
			total = sum
		}
		out = append(out, ledger.MeterTotal{
			MillID:    tl.MillID,
			MillName:  s.st.name(ledger.LookupMill, tl.MillID),
			MeterID:   tl.MeterID,
			MeterName: s.st.name(d.Lookup, tl.MeterID),
			Total:     total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MillID != out[j].MillID {
			return out[i].MillID < out[j].MillID
		}
		return out[i].MeterID < out[j].MeterID
	})
	return out, nil
}

// ids is a filter set; an empty set matches everything.
type ids map[int64]struct{}

func idSet(in []int64) ids {
	if len(in) == 0 {
		return nil
	}
	m := make(ids, len(in))
	for _, id := range in {
		m[id] = struct{}{}
	}
	return m
}

func (m ids) has(id int64) bool {
	if m == nil {
		return true
	}
	_, ok := m[id]
	return ok
}
