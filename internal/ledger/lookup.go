package ledger

import (
	"fmt"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/slug"
)

// LookupTable enumerates the reference tables managed by administrators.
type LookupTable string

const (
	LookupMill              LookupTable = "mill"
	LookupMiller            LookupTable = "miller"
	LookupProduct           LookupTable = "product"
	LookupTransferType      LookupTable = "transfer_type"
	LookupWaterStage        LookupTable = "water_stage"
	LookupWaterConditioning LookupTable = "water_conditioning"
	LookupShift             LookupTable = "shift"
)

// LookupDescriptor is the configured (id column, name column) pair of a table.
type LookupDescriptor struct {
	Table      string
	IDColumn   string
	NameColumn string
	// Writable is false for tables that only feed dropdowns.
	Writable bool
}

var lookups = map[LookupTable]LookupDescriptor{
	LookupMill:              {Table: "mill", IDColumn: "mill_id", NameColumn: "mill_name", Writable: true},
	LookupMiller:            {Table: "miller", IDColumn: "miller_id", NameColumn: "miller_name", Writable: true},
	LookupProduct:           {Table: "product", IDColumn: "product_id", NameColumn: "product_name", Writable: true},
	LookupTransferType:      {Table: "transfer_type", IDColumn: "transfer_id", NameColumn: "transfer_type", Writable: true},
	LookupWaterStage:        {Table: "water_stage", IDColumn: "stage_id", NameColumn: "water_stage", Writable: true},
	LookupWaterConditioning: {Table: "water_conditioning", IDColumn: "conditioning_id", NameColumn: "conditioning_type", Writable: true},
	LookupShift:             {Table: "shift_type", IDColumn: "shift_id", NameColumn: "shift_type", Writable: false},
}

// LookupTables returns every lookup table.
func LookupTables() []LookupTable {
	return []LookupTable{LookupMill, LookupMiller, LookupProduct, LookupTransferType, LookupWaterStage, LookupWaterConditioning, LookupShift}
}

// Descriptor returns the table configuration for t.
func (t LookupTable) Descriptor() (LookupDescriptor, error) {
	d, ok := lookups[t]
	if !ok {
		return LookupDescriptor{}, fmt.Errorf("%w: unknown table %q", errs.ErrInvalid, string(t))
	}
	return d, nil
}

// ParseLookupTable normalizes names such as "Transfer_Type" or "water stage".
func ParseLookupTable(s string) (LookupTable, error) {
	t := LookupTable(slug.Slugify(s))
	if !slug.IsSlug(string(t)) {
		return "", fmt.Errorf("%w: unknown table %q", errs.ErrInvalid, s)
	}
	if _, err := t.Descriptor(); err != nil {
		return "", err
	}
	return t, nil
}
