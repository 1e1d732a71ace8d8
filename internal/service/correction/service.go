// Package correction rewrites a historical closing value and recomputes every
// later row of the same timeline so the opening/closing chain stays intact.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/lock"
)

var (
	correctionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "millmeter",
			Name:      "corrections_total",
			Help:      "Corrections by category and outcome",
		},
		[]string{"category", "outcome"},
	)
	cascadeRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "millmeter",
			Name:      "correction_cascade_rows",
			Help:      "Rows rewritten by one correction, the target included",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// Result is the rewritten tail of the timeline and the audit record.
type Result struct {
	Rows  []ledger.Row
	Audit ledger.CorrectionAudit
}

// Service rewrites closing values and recalculates the rows that follow them.
type Service interface {
	Correct(ctx context.Context, c ledger.Correction) (Result, error)
	// Timeline returns every row of t in log id order.
	Timeline(ctx context.Context, t ledger.Timeline) ([]ledger.Row, error)
}

type service struct {
	store  ledger.Store
	locker lock.Locker
	log    *slog.Logger
	now    func() time.Time
}

// New returns a Service over store. A nil locker means an in-process one.
func New(store ledger.Store, locker lock.Locker, logger *slog.Logger) Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, locker: locker, log: logger, now: time.Now}
}

// Correct applies c and cascades the new closing value forward.
//
// Only lower bounds are checked: the new value may not fall below the next row's
// opening nor below the previous row's closing. A value larger than the next
// row's opening is accepted and simply flows into the cascade.
func (s *service) Correct(ctx context.Context, c ledger.Correction) (Result, error) {
	if err := check(c); err != nil {
		correctionsTotal.WithLabelValues(string(c.Category), "rejected").Inc()
		return Result{}, err
	}
	tl := c.Timeline()
	unlock, err := s.locker.Lock(ctx, tl.Key())
	if err != nil {
		correctionsTotal.WithLabelValues(string(c.Category), "busy").Inc()
		return Result{}, err
	}
	defer unlock()

	var res Result
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		target, err := tx.Row(ctx, tl, c.LogID)
		if err != nil {
			return err
		}

		next, hasNext, err := tx.NextRow(ctx, tl, c.LogID)
		if err != nil {
			return err
		}
		if hasNext && next.Opening.Cmp(c.Closing) > 0 {
			return fmt.Errorf("%w: new closing value %s is smaller than the next opening value %s (log %d)",
				errs.ErrValidation, c.Closing, next.Opening, next.LogID)
		}
		prev, hasPrev, err := tx.PrevRow(ctx, tl, c.LogID)
		if err != nil {
			return err
		}
		if hasPrev && prev.Closing.Cmp(c.Closing) > 0 {
			return fmt.Errorf("%w: new closing value %s is smaller than the previous closing value %s (log %d)",
				errs.ErrValidation, c.Closing, prev.Closing, prev.LogID)
		}

		rows, err := tx.RowsFrom(ctx, tl, c.LogID)
		if err != nil {
			return err
		}
		if len(rows) == 0 || rows[0].LogID != c.LogID {
			return fmt.Errorf("cascade for %s log %d: target row missing from range", tl.Key(), c.LogID)
		}
		rows[0].Closing = c.Closing
		running := decimal.Zero
		if hasPrev {
			running = prev.Closing
		}
		for i := range rows {
			rows[i].Opening = running
			mv, err := ledger.Movement(rows[i].Opening, rows[i].Closing)
			if err != nil {
				return err
			}
			rows[i].Movement = mv
			if err := tx.UpdateRow(ctx, c.Category, rows[i]); err != nil {
				return fmt.Errorf("update log %d: %w", rows[i].LogID, err)
			}
			running = rows[i].Closing
		}

		audit := ledger.CorrectionAudit{
			ID:          uuid.New(),
			Category:    c.Category,
			LogID:       c.LogID,
			MillID:      c.MillID,
			MeterID:     c.MeterID,
			OldClosing:  target.Closing,
			NewClosing:  c.Closing,
			RowsUpdated: len(rows),
			CorrectedAt: s.now().UTC(),
		}
		if err := tx.SaveCorrection(ctx, audit); err != nil {
			return err
		}
		res = Result{Rows: rows, Audit: audit}
		return nil
	})
	if err != nil {
		correctionsTotal.WithLabelValues(string(c.Category), outcome(err)).Inc()
		s.log.Warn("correction failed", "timeline", tl.Key(), "log_id", c.LogID, "err", err)
		return Result{}, err
	}
	correctionsTotal.WithLabelValues(string(c.Category), "applied").Inc()
	cascadeRows.Observe(float64(len(res.Rows)))
	s.log.Info("correction applied",
		"timeline", tl.Key(),
		"log_id", c.LogID,
		"old_closing", res.Audit.OldClosing.String(),
		"new_closing", res.Audit.NewClosing.String(),
		"rows_updated", res.Audit.RowsUpdated,
		"audit_id", res.Audit.ID.String(),
	)
	return res, nil
}

func (s *service) Timeline(ctx context.Context, t ledger.Timeline) ([]ledger.Row, error) {
	if !t.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(t.Category))
	}
	if t.MillID <= 0 || t.MeterID <= 0 {
		return nil, fmt.Errorf("%w: mill_id and meter_id", errs.ErrMissingField)
	}
	var rows []ledger.Row
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		rows, err = tx.RowsFrom(ctx, t, 0)
		return err
	})
	return rows, err
}

func check(c ledger.Correction) error {
	if !c.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(c.Category))
	}
	switch {
	case c.LogID <= 0:
		return fmt.Errorf("%w: log_id", errs.ErrMissingField)
	case c.MillID <= 0:
		return fmt.Errorf("%w: mill_id", errs.ErrMissingField)
	case c.MeterID <= 0:
		return fmt.Errorf("%w: meter_id", errs.ErrMissingField)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return "rejected"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
