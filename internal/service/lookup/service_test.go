package lookup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/service/lookup"
	"github.com/tinoosan/millmeter/internal/storage/memory"
)

func newService() (lookup.Service, *memory.Store) {
	store := memory.New()
	store.SeedDev()
	return lookup.New(store), store
}

func TestCreateAndList(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	rec, err := svc.Create(ctx, ledger.LookupProduct, "  Whole   Wheat  ")
	require.NoError(t, err)
	assert.Equal(t, "Whole Wheat", rec.Name)

	all, err := svc.List(ctx, ledger.LookupProduct)
	require.NoError(t, err)
	assert.Equal(t, rec, all[len(all)-1])
}

func TestCreate_Rules(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, ledger.LookupMill, "   ")
	assert.ErrorIs(t, err, errs.ErrMissingField)

	_, err = svc.Create(ctx, ledger.LookupMill, "mill-a")
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.True(t, lookup.IsNameConflict(err))

	_, err = svc.Create(ctx, ledger.LookupShift, "Graveyard")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = svc.Create(ctx, ledger.LookupTable("bins"), "x")
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestCreate_NonLatinNames(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, ledger.LookupMiller, "Иван")
	require.NoError(t, err)
	_, err = svc.Create(ctx, ledger.LookupMiller, "Пётр")
	require.NoError(t, err, "distinct Cyrillic names must not collide")
	_, err = svc.Create(ctx, ledger.LookupMiller, "王伟")
	require.NoError(t, err)

	_, err = svc.Create(ctx, ledger.LookupMiller, "иван")
	assert.True(t, lookup.IsNameConflict(err), "case folding applies outside ASCII")

	_, err = svc.Create(ctx, ledger.LookupMill, "#1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, ledger.LookupMill, "***")
	require.NoError(t, err)
	_, err = svc.Create(ctx, ledger.LookupMill, "???")
	require.NoError(t, err, "punctuation-only names compare as written")
	_, err = svc.Create(ctx, ledger.LookupMill, "***")
	assert.True(t, lookup.IsNameConflict(err))
}

func TestShiftListIsAllowed(t *testing.T) {
	svc, _ := newService()
	shifts, err := svc.List(context.Background(), ledger.LookupShift)
	require.NoError(t, err)
	assert.Len(t, shifts, 2)
}

func TestUpdate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	rec, err := svc.Update(ctx, ledger.LookupMill, ledger.LookupRecord{ID: 1, Name: "Mill A"})
	require.NoError(t, err, "renaming to its own name is not a conflict")
	assert.Equal(t, "Mill A", rec.Name)

	_, err = svc.Update(ctx, ledger.LookupMill, ledger.LookupRecord{ID: 1, Name: "Mill B"})
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = svc.Update(ctx, ledger.LookupMill, ledger.LookupRecord{ID: 42, Name: "Mill Z"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Update(ctx, ledger.LookupMill, ledger.LookupRecord{Name: "Mill Z"})
	assert.ErrorIs(t, err, errs.ErrMissingField)
}

func TestDelete(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, ledger.LookupWaterConditioning, 2))
	left, err := svc.List(ctx, ledger.LookupWaterConditioning)
	require.NoError(t, err)
	assert.Len(t, left, 1)

	assert.ErrorIs(t, svc.Delete(ctx, ledger.LookupWaterConditioning, 2), errs.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, ledger.LookupShift, 1), errs.ErrForbidden)
}
