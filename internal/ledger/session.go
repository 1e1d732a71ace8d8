package ledger

import (
	"context"
	"fmt"

	"github.com/govalues/decimal"
)

// Store opens transactional sessions over the movement logs.
// Implementations must roll back every write made through tx when fn returns an error.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the capability set the recorder and the recalculation engine need.
// Row lookups are always scoped to one timeline.
type Tx interface {
	// InsertSession allocates a new log id.
	InsertSession(ctx context.Context, s Session) (int64, error)
	InsertRow(ctx context.Context, c Category, r Row) error
	// LatestRow returns the row with the highest log id on the timeline.
	LatestRow(ctx context.Context, t Timeline) (Row, bool, error)
	// Row returns the row with the exact log id or errs.ErrNotFound.
	Row(ctx context.Context, t Timeline, logID int64) (Row, error)
	// NextRow returns the row with the smallest log id greater than logID.
	NextRow(ctx context.Context, t Timeline, logID int64) (Row, bool, error)
	// PrevRow returns the row with the largest log id less than logID.
	PrevRow(ctx context.Context, t Timeline, logID int64) (Row, bool, error)
	// RowsFrom returns every row with log id >= logID, ascending.
	RowsFrom(ctx context.Context, t Timeline, logID int64) ([]Row, error)
	// UpdateRow persists opening, closing and movement of an existing row.
	UpdateRow(ctx context.Context, c Category, r Row) error
	SaveCorrection(ctx context.Context, a CorrectionAudit) error
	SessionByIdempotencyKey(ctx context.Context, key string) (int64, bool, error)
	SaveIdempotencyKey(ctx context.Context, key string, logID int64) error
}

// Movement returns closing - opening.
func Movement(opening, closing decimal.Decimal) (decimal.Decimal, error) {
	return closing.Sub(opening)
}

// CheckChain verifies that rows (one timeline, ascending log id) satisfy
// opening[i] == closing[i-1] (zero for the first row) and
// movement[i] == closing[i] - opening[i].
func CheckChain(rows []Row) error {
	prev := decimal.Zero
	for i, r := range rows {
		if i > 0 && r.LogID <= rows[i-1].LogID {
			return fmt.Errorf("row %d: log id %d not ascending", i, r.LogID)
		}
		if !r.Opening.Equal(prev) {
			return fmt.Errorf("row %d (log %d): opening %s != previous closing %s", i, r.LogID, r.Opening, prev)
		}
		mv, err := Movement(r.Opening, r.Closing)
		if err != nil {
			return fmt.Errorf("row %d (log %d): %w", i, r.LogID, err)
		}
		if !r.Movement.Equal(mv) {
			return fmt.Errorf("row %d (log %d): movement %s != %s", i, r.LogID, r.Movement, mv)
		}
		prev = r.Closing
	}
	return nil
}
