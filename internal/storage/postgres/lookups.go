package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
)

type lookupRecord struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// ListLookup returns every row of t ordered by id.
func (s *Store) ListLookup(ctx context.Context, t ledger.LookupTable) ([]ledger.LookupRecord, error) {
	d, err := t.Descriptor()
	if err != nil {
		return nil, err
	}
	query, args, err := s.sb.Select(d.IDColumn+" AS id", d.NameColumn+" AS name").
		From(d.Table).
		OrderBy(d.IDColumn).
		ToSql()
	if err != nil {
		return nil, err
	}
	var recs []lookupRecord
	if err := pgxscan.Select(ctx, s.pool, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]ledger.LookupRecord, len(recs))
	for i, r := range recs {
		out[i] = ledger.LookupRecord{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// CreateLookup inserts name and returns the assigned id.
func (s *Store) CreateLookup(ctx context.Context, t ledger.LookupTable, name string) (ledger.LookupRecord, error) {
	d, err := t.Descriptor()
	if err != nil {
		return ledger.LookupRecord{}, err
	}
	query, args, err := s.sb.Insert(d.Table).
		Columns(d.NameColumn).
		Values(name).
		Suffix("RETURNING " + d.IDColumn).
		ToSql()
	if err != nil {
		return ledger.LookupRecord{}, err
	}
	rec := ledger.LookupRecord{Name: name}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&rec.ID); err != nil {
		return ledger.LookupRecord{}, mapErr(err)
	}
	return rec, nil
}

// UpdateLookup renames an existing row.
func (s *Store) UpdateLookup(ctx context.Context, t ledger.LookupTable, rec ledger.LookupRecord) error {
	d, err := t.Descriptor()
	if err != nil {
		return err
	}
	query, args, err := s.sb.Update(d.Table).
		Set(d.NameColumn, rec.Name).
		Where(squirrel.Eq{d.IDColumn: rec.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", t, rec.ID, errs.ErrNotFound)
	}
	return nil
}

// DeleteLookup removes a row; rows still referenced by the ledger are a conflict.
func (s *Store) DeleteLookup(ctx context.Context, t ledger.LookupTable, id int64) error {
	d, err := t.Descriptor()
	if err != nil {
		return err
	}
	query, args, err := s.sb.Delete(d.Table).Where(squirrel.Eq{d.IDColumn: id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: %s %d is referenced by ledger rows", errs.ErrConflict, t, id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", t, id, errs.ErrNotFound)
	}
	return nil
}
