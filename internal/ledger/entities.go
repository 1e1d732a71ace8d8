package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
)

// Row is one reading in a category's movement log.
// Movement is never authoritative; it is always Closing - Opening.
type Row struct {
	LogID    int64
	MillID   int64
	MeterID  int64
	Opening  decimal.Decimal
	Closing  decimal.Decimal
	Movement decimal.Decimal
	ShiftID  int64
	MillerID int64
	Date     time.Time
}

// Timeline returns the ledger this row belongs to within category c.
func (r Row) Timeline(c Category) Timeline {
	return Timeline{Category: c, MillID: r.MillID, MeterID: r.MeterID}
}

// Session is the mill_log header allocating one log id per submission.
// The log id is shared by every row inserted for that submission across categories.
type Session struct {
	LogID    int64
	MillID   int64
	ShiftID  int64
	MillerID int64
	Date     time.Time
}

// Submission is one operator form post: the header selectors plus one
// meterID -> closing value mapping per category. A nil value means no
// reading was taken this period; it is skipped, never treated as zero.
type Submission struct {
	MillID         int64
	ShiftID        int64
	MillerID       int64
	Date           time.Time
	IdempotencyKey string
	Readings       map[Category]map[int64]*decimal.Decimal
}

// Correction replaces the closing value of a historical row.
type Correction struct {
	Category Category
	LogID    int64
	MillID   int64
	MeterID  int64
	Closing  decimal.Decimal
}

// Timeline identifies the correction target's ledger.
func (c Correction) Timeline() Timeline {
	return Timeline{Category: c.Category, MillID: c.MillID, MeterID: c.MeterID}
}

// CorrectionAudit records an applied correction.
type CorrectionAudit struct {
	ID          uuid.UUID
	Category    Category
	LogID       int64
	MillID      int64
	MeterID     int64
	OldClosing  decimal.Decimal
	NewClosing  decimal.Decimal
	RowsUpdated int
	CorrectedAt time.Time
}

// LookupRecord is an (id, name) pair from a reference table.
type LookupRecord struct {
	ID   int64
	Name string
}

// SummaryQuery filters the reporting read path. Empty id slices mean "all".
type SummaryQuery struct {
	Category Category
	From     time.Time
	To       time.Time
	MillIDs  []int64
	MeterIDs []int64
}

// SummaryRow is a ledger row joined with its reference names.
type SummaryRow struct {
	Row
	MillName   string
	MeterName  string
	ShiftName  string
	MillerName string
}

// MeterTotal is the summed movement of one meter within one mill.
type MeterTotal struct {
	MillID    int64
	MillName  string
	MeterID   int64
	MeterName string
	Total     decimal.Decimal
}
