package postgres

import (
	"context"
	"fmt"

	"github.com/tinoosan/millmeter/internal/dictionary"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// SeedDev fills every empty reference table with the development data.
// Tables that already hold rows are left alone, so repeated runs are harmless.
func (s *Store) SeedDev(ctx context.Context) (map[ledger.LookupTable][]ledger.LookupRecord, error) {
	out := make(map[ledger.LookupTable][]ledger.LookupRecord)
	for t, names := range dictionary.DevLookups() {
		existing, err := s.ListLookup(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", t, err)
		}
		if len(existing) == 0 {
			for _, name := range names {
				rec, err := s.CreateLookup(ctx, t, name)
				if err != nil {
					return nil, fmt.Errorf("seed %s: %w", t, err)
				}
				existing = append(existing, rec)
			}
		}
		out[t] = existing
	}
	return out, nil
}
