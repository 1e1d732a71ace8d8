package memory

import (
	"github.com/tinoosan/millmeter/internal/dictionary"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// SeedDev loads the development reference data with ids starting at 1 per table.
func (s *Store) SeedDev() map[ledger.LookupTable][]ledger.LookupRecord {
	out := make(map[ledger.LookupTable][]ledger.LookupRecord)
	for t, names := range dictionary.DevLookups() {
		for i, name := range names {
			id := int64(i + 1)
			s.SeedLookup(t, id, name)
			out[t] = append(out[t], ledger.LookupRecord{ID: id, Name: name})
		}
	}
	return out
}
