// Package postgres provides a pgx-backed Store. SQL is assembled with squirrel
// from the table descriptors in the ledger package; no caller-supplied string
// ever becomes an identifier. Numeric columns travel as text and are parsed
// into decimals so no precision is lost.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/govalues/decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithinTx implements ledger.Store. Any error from fn rolls the transaction back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(&pgTx{tx: tx, sb: s.sb}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
	sb squirrel.StatementBuilderType
}

// rowRecord is the scan target for movement rows; numerics arrive as text.
type rowRecord struct {
	LogID    int64     `db:"log_id"`
	MillID   int64     `db:"mill_id"`
	MeterID  int64     `db:"meter_id"`
	Opening  string    `db:"opening_value"`
	Closing  string    `db:"closing_value"`
	Movement string    `db:"movement"`
	ShiftID  int64     `db:"shift_id"`
	MillerID int64     `db:"miller_id"`
	Date     time.Time `db:"date"`
}

func (r rowRecord) toRow() (ledger.Row, error) {
	out := ledger.Row{LogID: r.LogID, MillID: r.MillID, MeterID: r.MeterID, ShiftID: r.ShiftID, MillerID: r.MillerID, Date: r.Date}
	var err error
	if out.Opening, err = decimal.Parse(r.Opening); err != nil {
		return ledger.Row{}, fmt.Errorf("log %d opening: %w", r.LogID, err)
	}
	if out.Closing, err = decimal.Parse(r.Closing); err != nil {
		return ledger.Row{}, fmt.Errorf("log %d closing: %w", r.LogID, err)
	}
	if out.Movement, err = decimal.Parse(r.Movement); err != nil {
		return ledger.Row{}, fmt.Errorf("log %d movement: %w", r.LogID, err)
	}
	return out, nil
}

func rowColumns(d ledger.TableDescriptor, alias string) []string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return []string{
		p + "log_id",
		p + "mill_id",
		p + d.MeterColumn + " AS meter_id",
		p + "opening_value::text AS opening_value",
		p + "closing_value::text AS closing_value",
		p + "movement::text AS movement",
		p + "shift_id",
		p + "miller_id",
		p + "date",
	}
}

// timeline starts a select over one timeline of t's category.
func (t *pgTx) timeline(tl ledger.Timeline) (squirrel.SelectBuilder, error) {
	d, err := tl.Category.Table()
	if err != nil {
		return squirrel.SelectBuilder{}, err
	}
	return t.sb.Select(rowColumns(d, "")...).
		From(d.LogTable).
		Where(squirrel.Eq{"mill_id": tl.MillID, d.MeterColumn: tl.MeterID}), nil
}

func (t *pgTx) selectRows(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.Row, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var recs []rowRecord
	if err := pgxscan.Select(ctx, t.tx, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]ledger.Row, 0, len(recs))
	for _, r := range recs {
		row, err := r.toRow()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (t *pgTx) selectOne(ctx context.Context, q squirrel.SelectBuilder) (ledger.Row, bool, error) {
	rows, err := t.selectRows(ctx, q.Limit(1))
	if err != nil || len(rows) == 0 {
		return ledger.Row{}, false, err
	}
	return rows[0], true, nil
}

func (t *pgTx) exec(ctx context.Context, b squirrel.Sqlizer) (pgconn.CommandTag, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return t.tx.Exec(ctx, query, args...)
}

func (t *pgTx) InsertSession(ctx context.Context, sess ledger.Session) (int64, error) {
	query, args, err := t.sb.Insert("mill_log").
		Columns("mill_id", "shift_id", "miller_id", "date").
		Values(sess.MillID, sess.ShiftID, sess.MillerID, sess.Date).
		Suffix("RETURNING log_id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

func (t *pgTx) InsertRow(ctx context.Context, c ledger.Category, r ledger.Row) error {
	d, err := c.Table()
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, t.sb.Insert(d.LogTable).
		Columns("log_id", "mill_id", d.MeterColumn, "opening_value", "closing_value", "movement", "shift_id", "miller_id", "date").
		Values(r.LogID, r.MillID, r.MeterID, r.Opening.String(), r.Closing.String(), r.Movement.String(), r.ShiftID, r.MillerID, r.Date))
	return mapErr(err)
}

func (t *pgTx) LatestRow(ctx context.Context, tl ledger.Timeline) (ledger.Row, bool, error) {
	q, err := t.timeline(tl)
	if err != nil {
		return ledger.Row{}, false, err
	}
	return t.selectOne(ctx, q.OrderBy("log_id DESC"))
}

func (t *pgTx) Row(ctx context.Context, tl ledger.Timeline, logID int64) (ledger.Row, error) {
	q, err := t.timeline(tl)
	if err != nil {
		return ledger.Row{}, err
	}
	r, ok, err := t.selectOne(ctx, q.Where(squirrel.Eq{"log_id": logID}))
	if err != nil {
		return ledger.Row{}, err
	}
	if !ok {
		return ledger.Row{}, fmt.Errorf("%s log %d: %w", tl.Key(), logID, errs.ErrNotFound)
	}
	return r, nil
}

func (t *pgTx) NextRow(ctx context.Context, tl ledger.Timeline, logID int64) (ledger.Row, bool, error) {
	q, err := t.timeline(tl)
	if err != nil {
		return ledger.Row{}, false, err
	}
	return t.selectOne(ctx, q.Where(squirrel.Gt{"log_id": logID}).OrderBy("log_id ASC"))
}

func (t *pgTx) PrevRow(ctx context.Context, tl ledger.Timeline, logID int64) (ledger.Row, bool, error) {
	q, err := t.timeline(tl)
	if err != nil {
		return ledger.Row{}, false, err
	}
	return t.selectOne(ctx, q.Where(squirrel.Lt{"log_id": logID}).OrderBy("log_id DESC"))
}

// RowsFrom locks the returned rows until the transaction ends.
func (t *pgTx) RowsFrom(ctx context.Context, tl ledger.Timeline, logID int64) ([]ledger.Row, error) {
	q, err := t.timeline(tl)
	if err != nil {
		return nil, err
	}
	return t.selectRows(ctx, q.Where(squirrel.GtOrEq{"log_id": logID}).OrderBy("log_id ASC").Suffix("FOR UPDATE"))
}

func (t *pgTx) UpdateRow(ctx context.Context, c ledger.Category, r ledger.Row) error {
	d, err := c.Table()
	if err != nil {
		return err
	}
	tag, err := t.exec(ctx, t.sb.Update(d.LogTable).
		Set("opening_value", r.Opening.String()).
		Set("closing_value", r.Closing.String()).
		Set("movement", r.Movement.String()).
		Where(squirrel.Eq{"log_id": r.LogID, "mill_id": r.MillID, d.MeterColumn: r.MeterID}))
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s log %d: %w", c, r.LogID, errs.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SaveCorrection(ctx context.Context, a ledger.CorrectionAudit) error {
	_, err := t.exec(ctx, t.sb.Insert("correction_audit").
		Columns("id", "category", "log_id", "mill_id", "meter_id", "old_closing", "new_closing", "rows_updated", "corrected_at").
		Values(a.ID, string(a.Category), a.LogID, a.MillID, a.MeterID, a.OldClosing.String(), a.NewClosing.String(), a.RowsUpdated, a.CorrectedAt))
	return mapErr(err)
}

func (t *pgTx) SessionByIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	query, args, err := t.sb.Select("log_id").From("submission_idempotency").Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return 0, false, err
	}
	var id int64
	if err := pgxscan.Get(ctx, t.tx, &id, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) SaveIdempotencyKey(ctx context.Context, key string, logID int64) error {
	_, err := t.exec(ctx, t.sb.Insert("submission_idempotency").Columns("key", "log_id").Values(key, logID))
	return mapErr(err)
}

// mapErr turns constraint violations into domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", errs.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: unknown reference (%s)", errs.ErrInvalid, pgErr.ConstraintName)
		}
	}
	return err
}
