package ledger

import (
	"fmt"
	"strconv"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/slug"
)

// Category selects one of the three movement logs.
type Category string

const (
	// CategoryProduct tracks finished product scales.
	CategoryProduct Category = "product"
	// CategoryTransfer tracks transfer meters between bins and mills.
	CategoryTransfer Category = "transfer"
	// CategoryStage tracks water treatment stage meters.
	CategoryStage Category = "stage"
)

// Categories returns every category in submission order.
func Categories() []Category {
	return []Category{CategoryProduct, CategoryTransfer, CategoryStage}
}

// TableDescriptor names the storage objects backing a category.
// Storage adapters build SQL only from these constants.
type TableDescriptor struct {
	LogTable    string
	MeterColumn string
	Lookup      LookupTable
}

var tables = map[Category]TableDescriptor{
	CategoryProduct:  {LogTable: "product_movement_log", MeterColumn: "product_id", Lookup: LookupProduct},
	CategoryTransfer: {LogTable: "transfer_movement_log", MeterColumn: "transfer_id", Lookup: LookupTransferType},
	CategoryStage:    {LogTable: "stage_movement_log", MeterColumn: "stage_id", Lookup: LookupWaterStage},
}

// Table returns the descriptor for c.
func (c Category) Table() (TableDescriptor, error) {
	d, ok := tables[c]
	if !ok {
		return TableDescriptor{}, fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(c))
	}
	return d, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool { _, ok := tables[c]; return ok }

// ParseCategory accepts case and separator variants such as "Product".
func ParseCategory(s string) (Category, error) {
	c := Category(slug.Slugify(s))
	if !slug.IsSlug(string(c)) || !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, s)
	}
	return c, nil
}

// Timeline identifies one sequential ledger: a meter within a mill within a category.
type Timeline struct {
	Category Category
	MillID   int64
	MeterID  int64
}

// Key is the lock key for the timeline.
func (t Timeline) Key() string {
	return "timeline:" + string(t.Category) + ":" + strconv.FormatInt(t.MillID, 10) + ":" + strconv.FormatInt(t.MeterID, 10)
}
