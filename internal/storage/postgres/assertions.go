package postgres

import (
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/service/lookup"
	"github.com/tinoosan/millmeter/internal/service/report"
)

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*pgTx)(nil)
	_ lookup.Repo  = (*Store)(nil)
	_ report.Repo  = (*Store)(nil)
)
