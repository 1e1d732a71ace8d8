package v1

import (
	"context"

	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/service/lookup"
	"github.com/tinoosan/millmeter/internal/service/report"
)

// ReadyChecker is implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Backend composes everything the API needs from a storage adapter.
// Both the in-memory and the Postgres stores satisfy it.
type Backend interface {
	ledger.Store
	lookup.Repo
	report.Repo
	ReadyChecker
}
