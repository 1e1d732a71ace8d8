package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/govalues/decimal"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *Store, c ledger.Category, mill, meter int64, opening, closing string, date time.Time) int64 {
	t.Helper()
	var logID int64
	err := s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		id, err := tx.InsertSession(context.Background(), ledger.Session{MillID: mill, ShiftID: 1, MillerID: 1, Date: date})
		if err != nil {
			return err
		}
		logID = id
		o, cl := decimal.MustParse(opening), decimal.MustParse(closing)
		mv, _ := ledger.Movement(o, cl)
		return tx.InsertRow(context.Background(), c, ledger.Row{LogID: id, MillID: mill, MeterID: meter, Opening: o, Closing: cl, Movement: mv, ShiftID: 1, MillerID: 1, Date: date})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return logID
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	s := New()
	tl := ledger.Timeline{Category: ledger.CategoryProduct, MillID: 1, MeterID: 5}
	insert(t, s, tl.Category, 1, 5, "0", "100", day)

	boom := errors.New("boom")
	err := s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		id, _ := tx.InsertSession(context.Background(), ledger.Session{MillID: 1, Date: day})
		_ = tx.InsertRow(context.Background(), tl.Category, ledger.Row{LogID: id, MillID: 1, MeterID: 5, Closing: decimal.MustParse("200")})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		rows, _ := tx.RowsFrom(context.Background(), tl, 0)
		if len(rows) != 1 {
			t.Fatalf("rolled back tx leaked rows: %d", len(rows))
		}
		return nil
	})
	// log ids allocated by a rolled back tx are reused
	if id := insert(t, s, tl.Category, 1, 5, "100", "150", day); id != 2 {
		t.Fatalf("expected log id 2 after rollback, got %d", id)
	}
}

func TestTx_Navigation(t *testing.T) {
	s := New()
	tl := ledger.Timeline{Category: ledger.CategoryTransfer, MillID: 2, MeterID: 3}
	a := insert(t, s, tl.Category, 2, 3, "0", "10", day)
	insert(t, s, ledger.CategoryTransfer, 2, 4, "0", "99", day) // other meter
	b := insert(t, s, tl.Category, 2, 3, "10", "20", day)
	c := insert(t, s, tl.Category, 2, 3, "20", "35", day)

	_ = s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		ctx := context.Background()
		if r, ok, _ := tx.NextRow(ctx, tl, a); !ok || r.LogID != b {
			t.Fatalf("next of %d: got %d ok=%v", a, r.LogID, ok)
		}
		if r, ok, _ := tx.PrevRow(ctx, tl, c); !ok || r.LogID != b {
			t.Fatalf("prev of %d: got %d ok=%v", c, r.LogID, ok)
		}
		if _, ok, _ := tx.PrevRow(ctx, tl, a); ok {
			t.Fatalf("first row has no predecessor")
		}
		if _, ok, _ := tx.NextRow(ctx, tl, c); ok {
			t.Fatalf("last row has no successor")
		}
		if r, ok, _ := tx.LatestRow(ctx, tl); !ok || r.LogID != c {
			t.Fatalf("latest: %d", r.LogID)
		}
		rows, _ := tx.RowsFrom(ctx, tl, b)
		if len(rows) != 2 || rows[0].LogID != b || rows[1].LogID != c {
			t.Fatalf("rows from %d: %+v", b, rows)
		}
		if _, err := tx.Row(ctx, tl, 999); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		all, _ := tx.RowsFrom(ctx, tl, 0)
		if err := ledger.CheckChain(all); err != nil {
			t.Fatalf("chain: %v", err)
		}
		return nil
	})
}

func TestTx_FaultAbortsTransaction(t *testing.T) {
	s := New()
	tl := ledger.Timeline{Category: ledger.CategoryStage, MillID: 1, MeterID: 1}
	id := insert(t, s, tl.Category, 1, 1, "0", "10", day)
	injected := errors.New("disk full")
	s.InjectFault(func(op string, _ ledger.Category, _ ledger.Row) error {
		if op == "update" {
			return injected
		}
		return nil
	})
	err := s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		r, _ := tx.Row(context.Background(), tl, id)
		r.Closing = decimal.MustParse("50")
		return tx.UpdateRow(context.Background(), tl.Category, r)
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected fault, got %v", err)
	}
	s.InjectFault(nil)
	_ = s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		r, _ := tx.Row(context.Background(), tl, id)
		if !r.Closing.Equal(decimal.MustParse("10")) {
			t.Fatalf("closing changed despite fault: %s", r.Closing)
		}
		return nil
	})
}

func TestTx_IdempotencyKey(t *testing.T) {
	s := New()
	err := s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		if err := tx.SaveIdempotencyKey(context.Background(), "k1", 7); err != nil {
			return err
		}
		if err := tx.SaveIdempotencyKey(context.Background(), "k1", 8); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.WithinTx(context.Background(), func(tx ledger.Tx) error {
		id, ok, _ := tx.SessionByIdempotencyKey(context.Background(), "k1")
		if !ok || id != 7 {
			t.Fatalf("got %d ok=%v", id, ok)
		}
		return nil
	})
}

func TestLookups(t *testing.T) {
	s := New()
	s.SeedDev()
	ctx := context.Background()
	mills, err := s.ListLookup(ctx, ledger.LookupMill)
	if err != nil || len(mills) != 3 || mills[0].ID != 1 {
		t.Fatalf("mills: %v %+v", err, mills)
	}
	rec, err := s.CreateLookup(ctx, ledger.LookupMill, "Mill D")
	if err != nil || rec.ID != 4 {
		t.Fatalf("create: %v %+v", err, rec)
	}
	if err := s.UpdateLookup(ctx, ledger.LookupMill, ledger.LookupRecord{ID: 99, Name: "x"}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
	insert(t, s, ledger.CategoryProduct, 1, 2, "0", "5", day)
	if err := s.DeleteLookup(ctx, ledger.LookupMill, 1); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("referenced mill delete: %v", err)
	}
	if err := s.DeleteLookup(ctx, ledger.LookupProduct, 2); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("referenced product delete: %v", err)
	}
	if err := s.DeleteLookup(ctx, ledger.LookupMill, 4); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestSummaryAndTotals(t *testing.T) {
	s := New()
	s.SeedDev()
	ctx := context.Background()
	insert(t, s, ledger.CategoryProduct, 1, 1, "0", "1000", day)
	insert(t, s, ledger.CategoryProduct, 1, 1, "1000", "2500", day.AddDate(0, 0, 1))
	insert(t, s, ledger.CategoryProduct, 2, 1, "0", "300", day.AddDate(0, 0, 1))
	insert(t, s, ledger.CategoryProduct, 1, 2, "0", "50", day.AddDate(0, 0, 30))

	rows, err := s.Summary(ctx, ledger.SummaryQuery{Category: ledger.CategoryProduct, From: day, To: day.AddDate(0, 0, 2), MillIDs: []int64{1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].MillName != "Mill A" || rows[0].MeterName != "Cake Flour" || rows[0].ShiftName != "Day" {
		t.Fatalf("names not joined: %+v", rows[0])
	}

	totals, err := s.MovementTotals(ctx, ledger.CategoryProduct, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 3 {
		t.Fatalf("expected 3 totals, got %d", len(totals))
	}
	if !totals[0].Total.Equal(decimal.MustParse("2500")) {
		t.Fatalf("mill 1 meter 1 total: %s", totals[0].Total)
	}
}
