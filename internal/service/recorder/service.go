// Package recorder turns an operator submission into one ledger row per supplied reading.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/govalues/decimal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/lock"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "millmeter",
			Name:      "submissions_total",
			Help:      "Submissions by outcome",
		},
		[]string{"outcome"},
	)
	rowsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "millmeter",
			Name:      "rows_recorded_total",
			Help:      "Ledger rows inserted by submissions",
		},
		[]string{"category"},
	)
)

// Receipt describes a recorded (or replayed) submission.
type Receipt struct {
	LogID    int64
	Rows     map[ledger.Category][]ledger.Row
	Replayed bool
}

// Count returns the number of rows in the receipt.
func (r Receipt) Count() int {
	n := 0
	for _, rows := range r.Rows {
		n += len(rows)
	}
	return n
}

// Service records one shift submission across every category.
type Service interface {
	Record(ctx context.Context, sub ledger.Submission) (Receipt, error)
}

type service struct {
	store  ledger.Store
	locker lock.Locker
	log    *slog.Logger
}

// New returns a Service over store. A nil locker means an in-process one.
func New(store ledger.Store, locker lock.Locker, logger *slog.Logger) Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, locker: locker, log: logger}
}

type reading struct {
	tl    ledger.Timeline
	value decimal.Decimal
}

// Record validates every supplied reading against the latest closing value of its
// timeline and, only if all pass, inserts them under one new log id.
func (s *service) Record(ctx context.Context, sub ledger.Submission) (Receipt, error) {
	if err := checkHeader(sub); err != nil {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return Receipt{}, err
	}
	readings, err := collect(sub)
	if err != nil {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return Receipt{}, err
	}

	keys := make([]string, 0, len(readings))
	for _, rd := range readings {
		keys = append(keys, rd.tl.Key())
	}
	unlock, err := lock.LockAll(ctx, s.locker, keys)
	if err != nil {
		submissionsTotal.WithLabelValues(outcome(err)).Inc()
		return Receipt{}, err
	}
	defer unlock()

	var rec Receipt
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if sub.IdempotencyKey != "" {
			logID, ok, err := tx.SessionByIdempotencyKey(ctx, sub.IdempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				rec, err = replay(ctx, tx, logID, readings)
				return err
			}
		}

		openings := make([]decimal.Decimal, len(readings))
		for i, rd := range readings {
			prev := decimal.Zero
			latest, ok, err := tx.LatestRow(ctx, rd.tl)
			if err != nil {
				return err
			}
			if ok {
				prev = latest.Closing
			}
			if rd.value.Less(prev) {
				return fmt.Errorf("%w: %s meter %d: closing value %s is smaller than the opening value %s",
					errs.ErrValidation, rd.tl.Category, rd.tl.MeterID, rd.value, prev)
			}
			openings[i] = prev
		}

		logID, err := tx.InsertSession(ctx, ledger.Session{MillID: sub.MillID, ShiftID: sub.ShiftID, MillerID: sub.MillerID, Date: sub.Date})
		if err != nil {
			return err
		}
		rec = Receipt{LogID: logID, Rows: make(map[ledger.Category][]ledger.Row)}
		for i, rd := range readings {
			mv, err := ledger.Movement(openings[i], rd.value)
			if err != nil {
				return err
			}
			row := ledger.Row{
				LogID:    logID,
				MillID:   sub.MillID,
				MeterID:  rd.tl.MeterID,
				Opening:  openings[i],
				Closing:  rd.value,
				Movement: mv,
				ShiftID:  sub.ShiftID,
				MillerID: sub.MillerID,
				Date:     sub.Date,
			}
			if err := tx.InsertRow(ctx, rd.tl.Category, row); err != nil {
				return err
			}
			rec.Rows[rd.tl.Category] = append(rec.Rows[rd.tl.Category], row)
		}
		if sub.IdempotencyKey != "" {
			return tx.SaveIdempotencyKey(ctx, sub.IdempotencyKey, logID)
		}
		return nil
	})
	if err != nil {
		submissionsTotal.WithLabelValues(outcome(err)).Inc()
		s.log.Warn("submission failed", "mill_id", sub.MillID, "err", err)
		return Receipt{}, err
	}
	if rec.Replayed {
		submissionsTotal.WithLabelValues("replayed").Inc()
		s.log.Info("submission replayed", "log_id", rec.LogID, "idempotency_key", sub.IdempotencyKey)
		return rec, nil
	}
	submissionsTotal.WithLabelValues("recorded").Inc()
	for c, rows := range rec.Rows {
		rowsRecorded.WithLabelValues(string(c)).Add(float64(len(rows)))
	}
	s.log.Info("submission recorded", "log_id", rec.LogID, "mill_id", sub.MillID, "rows", rec.Count())
	return rec, nil
}

func checkHeader(sub ledger.Submission) error {
	switch {
	case sub.MillID <= 0:
		return fmt.Errorf("%w: mill_id", errs.ErrMissingField)
	case sub.ShiftID <= 0:
		return fmt.Errorf("%w: shift_id", errs.ErrMissingField)
	case sub.MillerID <= 0:
		return fmt.Errorf("%w: miller_id", errs.ErrMissingField)
	case sub.Date.IsZero():
		return fmt.Errorf("%w: date", errs.ErrMissingField)
	}
	return nil
}

// collect drops nil readings and orders the rest by category then meter id.
func collect(sub ledger.Submission) ([]reading, error) {
	for c := range sub.Readings {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(c))
		}
	}
	out := make([]reading, 0)
	for _, c := range ledger.Categories() {
		vals := sub.Readings[c]
		ids := make([]int64, 0, len(vals))
		for id, v := range vals {
			if v == nil {
				continue
			}
			if id <= 0 {
				return nil, fmt.Errorf("%w: %s meter id %d", errs.ErrInvalid, c, id)
			}
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			out = append(out, reading{
				tl:    ledger.Timeline{Category: c, MillID: sub.MillID, MeterID: id},
				value: *vals[id],
			})
		}
	}
	return out, nil
}

func replay(ctx context.Context, tx ledger.Tx, logID int64, readings []reading) (Receipt, error) {
	rec := Receipt{LogID: logID, Rows: make(map[ledger.Category][]ledger.Row), Replayed: true}
	for _, rd := range readings {
		row, err := tx.Row(ctx, rd.tl, logID)
		if errors.Is(err, errs.ErrNotFound) {
			// the replayed request carried a different reading set
			continue
		}
		if err != nil {
			return Receipt{}, err
		}
		rec.Rows[rd.tl.Category] = append(rec.Rows[rd.tl.Category], row)
	}
	return rec, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return "rejected"
	case errors.Is(err, errs.ErrLockUnavailable):
		return "busy"
	default:
		return "error"
	}
}
