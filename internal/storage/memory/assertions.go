package memory

import (
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/service/lookup"
	"github.com/tinoosan/millmeter/internal/service/report"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*tx)(nil)
	// Service layer repos
	_ lookup.Repo = (*Store)(nil)
	_ report.Repo = (*Store)(nil)
)
