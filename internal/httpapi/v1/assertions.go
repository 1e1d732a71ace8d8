package v1

import (
	"github.com/tinoosan/millmeter/internal/storage/memory"
	"github.com/tinoosan/millmeter/internal/storage/postgres"
)

// Compile-time interface assertions for the stores against the HTTP API backend.
var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)
