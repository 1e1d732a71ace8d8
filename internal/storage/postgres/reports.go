package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/govalues/decimal"

	"github.com/tinoosan/millmeter/internal/ledger"
)

type summaryRecord struct {
	rowRecord
	MillName   string `db:"mill_name"`
	MeterName  string `db:"meter_name"`
	ShiftName  string `db:"shift_name"`
	MillerName string `db:"miller_name"`
}

// Summary returns the rows of q.Category dated within [q.From, q.To] joined with names.
func (s *Store) Summary(ctx context.Context, q ledger.SummaryQuery) ([]ledger.SummaryRow, error) {
	d, err := q.Category.Table()
	if err != nil {
		return nil, err
	}
	ld, err := d.Lookup.Descriptor()
	if err != nil {
		return nil, err
	}
	cols := append(rowColumns(d, "l"),
		"m.mill_name",
		"p."+ld.NameColumn+" AS meter_name",
		"COALESCE(st.shift_type, '') AS shift_name",
		"COALESCE(mi.miller_name, '') AS miller_name",
	)
	sel := s.sb.Select(cols...).
		From(d.LogTable+" l").
		Join("mill m ON m.mill_id = l.mill_id").
		Join(fmt.Sprintf("%s p ON p.%s = l.%s", ld.Table, ld.IDColumn, d.MeterColumn)).
		LeftJoin("shift_type st ON st.shift_id = l.shift_id").
		LeftJoin("miller mi ON mi.miller_id = l.miller_id").
		Where(squirrel.GtOrEq{"l.date": q.From}).
		Where(squirrel.LtOrEq{"l.date": q.To}).
		OrderBy("l.date", "l.log_id", "l.mill_id", "meter_id")
	if len(q.MillIDs) > 0 {
		sel = sel.Where(squirrel.Eq{"l.mill_id": q.MillIDs})
	}
	if len(q.MeterIDs) > 0 {
		sel = sel.Where(squirrel.Eq{"l." + d.MeterColumn: q.MeterIDs})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	var recs []summaryRecord
	if err := pgxscan.Select(ctx, s.pool, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("%s summary: %w", q.Category, err)
	}
	out := make([]ledger.SummaryRow, 0, len(recs))
	for _, r := range recs {
		row, err := r.toRow()
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.SummaryRow{Row: row, MillName: r.MillName, MeterName: r.MeterName, ShiftName: r.ShiftName, MillerName: r.MillerName})
	}
	return out, nil
}

type totalRecord struct {
	MillID    int64  `db:"mill_id"`
	MillName  string `db:"mill_name"`
	MeterID   int64  `db:"meter_id"`
	MeterName string `db:"meter_name"`
	Total     string `db:"total"`
}

// MovementTotals sums movement per (mill, meter) over all time.
func (s *Store) MovementTotals(ctx context.Context, c ledger.Category, millIDs []int64) ([]ledger.MeterTotal, error) {
	d, err := c.Table()
	if err != nil {
		return nil, err
	}
	ld, err := d.Lookup.Descriptor()
	if err != nil {
		return nil, err
	}
	meter := "l." + d.MeterColumn
	name := "p." + ld.NameColumn
	sel := s.sb.Select(
		"l.mill_id",
		"m.mill_name",
		meter+" AS meter_id",
		name+" AS meter_name",
		"SUM(l.movement)::text AS total",
	).
		From(d.LogTable+" l").
		Join("mill m ON m.mill_id = l.mill_id").
		Join(fmt.Sprintf("%s p ON p.%s = %s", ld.Table, ld.IDColumn, meter)).
		GroupBy("l.mill_id", "m.mill_name", meter, name).
		OrderBy("l.mill_id", meter)
	if len(millIDs) > 0 {
		sel = sel.Where(squirrel.Eq{"l.mill_id": millIDs})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	var recs []totalRecord
	if err := pgxscan.Select(ctx, s.pool, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("%s totals: %w", c, err)
	}
	out := make([]ledger.MeterTotal, 0, len(recs))
	for _, r := range recs {
		total, err := decimal.Parse(r.Total)
		if err != nil {
			return nil, fmt.Errorf("%s totals: %w", c, err)
		}
		out = append(out, ledger.MeterTotal{MillID: r.MillID, MillName: r.MillName, MeterID: r.MeterID, MeterName: r.MeterName, Total: total})
	}
	return out, nil
}
