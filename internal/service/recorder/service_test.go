package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/storage/memory"
)

var day = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func val(s string) *decimal.Decimal {
	d := decimal.MustParse(s)
	return &d
}

func submission(readings map[ledger.Category]map[int64]*decimal.Decimal) ledger.Submission {
	return ledger.Submission{MillID: 1, ShiftID: 1, MillerID: 2, Date: day, Readings: readings}
}

func timeline(t *testing.T, s *memory.Store, tl ledger.Timeline) []ledger.Row {
	t.Helper()
	var rows []ledger.Row
	require.NoError(t, s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		var err error
		rows, err = tx.RowsFrom(context.Background(), tl, 0)
		return err
	}))
	return rows
}

func TestRecord_OpeningAndMovement(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()
	tl := ledger.Timeline{Category: ledger.CategoryProduct, MillID: 1, MeterID: 5}

	first, err := svc.Record(ctx, submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct: {5: val("100")},
	}))
	require.NoError(t, err)
	second, err := svc.Record(ctx, submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct: {5: val("250")},
	}))
	require.NoError(t, err)
	assert.Greater(t, second.LogID, first.LogID)

	rows := timeline(t, store, tl)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Opening.IsZero())
	assert.Equal(t, "100", rows[0].Movement.String())
	assert.Equal(t, "100", rows[1].Opening.String())
	assert.Equal(t, "150", rows[1].Movement.String())
	require.NoError(t, ledger.CheckChain(rows))
}

func TestRecord_SharedLogIDAcrossCategories(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	rec, err := svc.Record(context.Background(), submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct:  {1: val("10"), 2: val("20")},
		ledger.CategoryTransfer: {1: val("5")},
		ledger.CategoryStage:    {3: val("7.5")},
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Count())
	for c, rows := range rec.Rows {
		for _, r := range rows {
			assert.Equal(t, rec.LogID, r.LogID, "category %s", c)
		}
	}
	stage := timeline(t, store, ledger.Timeline{Category: ledger.CategoryStage, MillID: 1, MeterID: 3})
	require.Len(t, stage, 1)
	assert.Equal(t, "7.5", stage[0].Closing.String())
}

func TestRecord_SkipsAbsentReadings(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()
	_, err := svc.Record(ctx, submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct: {5: val("100")},
	}))
	require.NoError(t, err)

	// nil is "no reading this period": neither a zero row nor a validation failure
	rec, err := svc.Record(ctx, submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct: {5: nil, 6: val("3")},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count())
	rows := timeline(t, store, ledger.Timeline{Category: ledger.CategoryProduct, MillID: 1, MeterID: 5})
	assert.Len(t, rows, 1)
}

func TestRecord_RejectsDecreaseWithoutWriting(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()
	_, err := svc.Record(ctx, submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct:  {5: val("100")},
		ledger.CategoryTransfer: {1: val("40")},
	}))
	require.NoError(t, err)

	// the transfer reading is fine but the product reading goes backwards
	_, err = svc.Record(ctx, submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct:  {5: val("99")},
		ledger.CategoryTransfer: {1: val("60")},
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Contains(t, err.Error(), "smaller than the opening value 100")

	assert.Len(t, timeline(t, store, ledger.Timeline{Category: ledger.CategoryProduct, MillID: 1, MeterID: 5}), 1)
	assert.Len(t, timeline(t, store, ledger.Timeline{Category: ledger.CategoryTransfer, MillID: 1, MeterID: 1}), 1)
}

func TestRecord_EqualValueIsAllowed(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()
	in := submission(map[ledger.Category]map[int64]*decimal.Decimal{ledger.CategoryStage: {2: val("10")}})
	_, err := svc.Record(ctx, in)
	require.NoError(t, err)
	rec, err := svc.Record(ctx, in)
	require.NoError(t, err)
	assert.True(t, rec.Rows[ledger.CategoryStage][0].Movement.IsZero())
}

func TestRecord_NegativeFirstReadingRejected(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	_, err := svc.Record(context.Background(), submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct: {5: val("-1")},
	}))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRecord_MissingFields(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	cases := map[string]ledger.Submission{
		"mill":   {ShiftID: 1, MillerID: 1, Date: day},
		"shift":  {MillID: 1, MillerID: 1, Date: day},
		"miller": {MillID: 1, ShiftID: 1, Date: day},
		"date":   {MillID: 1, ShiftID: 1, MillerID: 1},
	}
	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), sub)
			assert.ErrorIs(t, err, errs.ErrMissingField)
		})
	}
}

func TestRecord_IdempotentReplay(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()
	in := submission(map[ledger.Category]map[int64]*decimal.Decimal{ledger.CategoryProduct: {5: val("100")}})
	in.IdempotencyKey = "form-123"

	first, err := svc.Record(ctx, in)
	require.NoError(t, err)
	again, err := svc.Record(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.LogID, again.LogID)
	assert.Equal(t, 1, again.Count())
	assert.Len(t, timeline(t, store, ledger.Timeline{Category: ledger.CategoryProduct, MillID: 1, MeterID: 5}), 1)
}

func TestRecord_StorageFailureRollsBack(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	boom := errors.New("connection reset")
	store.InjectFault(func(_ string, c ledger.Category, _ ledger.Row) error {
		if c == ledger.CategoryStage {
			return boom
		}
		return nil
	})
	_, err := svc.Record(context.Background(), submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.CategoryProduct: {5: val("100")},
		ledger.CategoryStage:   {1: val("3")},
	}))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, timeline(t, store, ledger.Timeline{Category: ledger.CategoryProduct, MillID: 1, MeterID: 5}))
}

func TestRecord_UnknownCategory(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	_, err := svc.Record(context.Background(), submission(map[ledger.Category]map[int64]*decimal.Decimal{
		ledger.Category("bins"): {1: val("1")},
	}))
	assert.ErrorIs(t, err, errs.ErrInvalid)
}
