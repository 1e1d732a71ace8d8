// Package lookup implements the reference table rules: trimmed required names,
// per-table unique names, and read-only tables that only feed dropdowns.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
)

const maxNameLen = 100

// ErrNameExists indicates another row of the same table already carries the name.
var ErrNameExists = fmt.Errorf("%w: name already exists", errs.ErrConflict)

// Repo is the storage the lookup rules run against.
type Repo interface {
	ListLookup(ctx context.Context, t ledger.LookupTable) ([]ledger.LookupRecord, error)
	CreateLookup(ctx context.Context, t ledger.LookupTable, name string) (ledger.LookupRecord, error)
	UpdateLookup(ctx context.Context, t ledger.LookupTable, rec ledger.LookupRecord) error
	DeleteLookup(ctx context.Context, t ledger.LookupTable, id int64) error
}

// Service lists and edits the reference tables.
type Service interface {
	List(ctx context.Context, t ledger.LookupTable) ([]ledger.LookupRecord, error)
	Create(ctx context.Context, t ledger.LookupTable, name string) (ledger.LookupRecord, error)
	Update(ctx context.Context, t ledger.LookupTable, rec ledger.LookupRecord) (ledger.LookupRecord, error)
	Delete(ctx context.Context, t ledger.LookupTable, id int64) error
}

type service struct {
	repo Repo
}

// New returns a Service backed by repo.
func New(repo Repo) Service { return &service{repo: repo} }

func (s *service) List(ctx context.Context, t ledger.LookupTable) ([]ledger.LookupRecord, error) {
	if _, err := t.Descriptor(); err != nil {
		return nil, err
	}
	return s.repo.ListLookup(ctx, t)
}

func (s *service) Create(ctx context.Context, t ledger.LookupTable, name string) (ledger.LookupRecord, error) {
	if err := writable(t); err != nil {
		return ledger.LookupRecord{}, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return ledger.LookupRecord{}, err
	}
	if err := s.ensureUnique(ctx, t, 0, name); err != nil {
		return ledger.LookupRecord{}, err
	}
	return s.repo.CreateLookup(ctx, t, name)
}

func (s *service) Update(ctx context.Context, t ledger.LookupTable, rec ledger.LookupRecord) (ledger.LookupRecord, error) {
	if err := writable(t); err != nil {
		return ledger.LookupRecord{}, err
	}
	if rec.ID <= 0 {
		return ledger.LookupRecord{}, fmt.Errorf("%w: id", errs.ErrMissingField)
	}
	name, err := normalizeName(rec.Name)
	if err != nil {
		return ledger.LookupRecord{}, err
	}
	rec.Name = name
	if err := s.ensureUnique(ctx, t, rec.ID, name); err != nil {
		return ledger.LookupRecord{}, err
	}
	if err := s.repo.UpdateLookup(ctx, t, rec); err != nil {
		return ledger.LookupRecord{}, err
	}
	return rec, nil
}

func (s *service) Delete(ctx context.Context, t ledger.LookupTable, id int64) error {
	if err := writable(t); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: id", errs.ErrMissingField)
	}
	return s.repo.DeleteLookup(ctx, t, id)
}

func writable(t ledger.LookupTable) error {
	d, err := t.Descriptor()
	if err != nil {
		return err
	}
	if !d.Writable {
		return fmt.Errorf("%w: %s is read-only", errs.ErrForbidden, t)
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", fmt.Errorf("%w: name", errs.ErrMissingField)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", errs.ErrInvalid, maxNameLen)
	}
	return name, nil
}

// ensureUnique compares folded forms so "Mill A" and "mill-a" collide.
func (s *service) ensureUnique(ctx context.Context, t ledger.LookupTable, selfID int64, name string) error {
	existing, err := s.repo.ListLookup(ctx, t)
	if err != nil {
		return err
	}
	want := nameKey(name)
	for _, r := range existing {
		if r.ID == selfID {
			continue
		}
		if nameKey(r.Name) == want {
			return ErrNameExists
		}
	}
	return nil
}

// nameKey lowercases name and joins its runs of letters and digits with a
// single space, in any script. Names without letters or digits compare as
// their lowercased text.
func nameKey(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return strings.ToLower(name)
	}
	return strings.Join(words, " ")
}

// IsNameConflict reports whether err came from a duplicate name.
func IsNameConflict(err error) bool { return errors.Is(err, ErrNameExists) }
