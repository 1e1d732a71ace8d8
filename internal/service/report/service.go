// Package report serves the read-only views over the movement logs: filtered
// summaries, their spreadsheet export, and dashboard gauges.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/govalues/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/millmeter/internal/dictionary"
	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/slug"
)

const (
	// DefaultWindow is used when the caller does not give both ends of the range.
	DefaultWindow = 14 * 24 * time.Hour
	// MaxWindow caps the range; longer ranges keep their end and move the start.
	MaxWindow = 90 * 24 * time.Hour
)

// Repo is the read side the reports are built from.
type Repo interface {
	Summary(ctx context.Context, q ledger.SummaryQuery) ([]ledger.SummaryRow, error)
	MovementTotals(ctx context.Context, c ledger.Category, millIDs []int64) ([]ledger.MeterTotal, error)
}

// Filter is the caller's view selection. Nil dates select the default window.
type Filter struct {
	Category ledger.Category
	From     *time.Time
	To       *time.Time
	MillIDs  []int64
	MeterIDs []int64
}

// Range is a normalized inclusive day range.
type Range struct {
	From    time.Time
	To      time.Time
	Clamped bool
}

// Summary is a filtered view and the range it actually covers.
type Summary struct {
	Category ledger.Category
	Range    Range
	Rows     []ledger.SummaryRow
}

// Gauge is one meter's summed movement in display units.
type Gauge struct {
	MillID    int64
	MillName  string
	MeterID   int64
	MeterName string
	Total     decimal.Decimal
	Value     decimal.Decimal
}

// Panel groups the gauges of one category.
type Panel struct {
	Category    ledger.Category
	Label       string
	DisplayUnit string
	Max         int64
	Bands       []dictionary.GaugeBand
	Gauges      []Gauge
}

// Service builds summaries, spreadsheet exports and dashboard gauges.
type Service interface {
	Summary(ctx context.Context, f Filter) (Summary, error)
	Export(ctx context.Context, f Filter) (*excelize.File, string, error)
	Dashboard(ctx context.Context, categories []ledger.Category, millIDs []int64) ([]Panel, error)
}

type service struct {
	repo Repo
	now  func() time.Time
}

// New returns a Service reading from repo.
func New(repo Repo) Service { return &service{repo: repo, now: time.Now} }

// NormalizeRange applies the default window when either end is missing and
// clamps ranges longer than MaxWindow by moving the start forward.
func NormalizeRange(from, to *time.Time, now time.Time) (Range, error) {
	var r Range
	if from == nil || to == nil {
		r.To = truncateDay(now)
		r.From = r.To.Add(-DefaultWindow)
		return r, nil
	}
	r.From, r.To = truncateDay(*from), truncateDay(*to)
	if r.From.After(r.To) {
		return Range{}, fmt.Errorf("%w: start_date %s is after end_date %s", errs.ErrInvalid, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	}
	if r.To.Sub(r.From) > MaxWindow {
		r.From = r.To.Add(-MaxWindow)
		r.Clamped = true
	}
	return r, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *service) Summary(ctx context.Context, f Filter) (Summary, error) {
	if !f.Category.Valid() {
		return Summary{}, fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(f.Category))
	}
	rng, err := NormalizeRange(f.From, f.To, s.now())
	if err != nil {
		return Summary{}, err
	}
	rows, err := s.repo.Summary(ctx, ledger.SummaryQuery{
		Category: f.Category,
		From:     rng.From,
		To:       rng.To,
		MillIDs:  f.MillIDs,
		MeterIDs: f.MeterIDs,
	})
	if err != nil {
		return Summary{}, err
	}
	return Summary{Category: f.Category, Range: rng, Rows: rows}, nil
}

var exportHeaders = []string{"Log ID", "Date", "Mill", "Meter", "Shift", "Miller", "Opening", "Closing", "Movement"}

// Export renders the same view as Summary into a one-sheet workbook.
// The caller owns the returned file and must Close it.
func (s *service) Export(ctx context.Context, f Filter) (*excelize.File, string, error) {
	sum, err := s.Summary(ctx, f)
	if err != nil {
		return nil, "", err
	}
	def, _ := dictionary.For(f.Category)

	x := excelize.NewFile()
	sheet := def.Label
	if sheet == "" {
		sheet = string(f.Category)
	}
	if err := x.SetSheetName("Sheet1", sheet); err != nil {
		_ = x.Close()
		return nil, "", err
	}
	bold, _ := x.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DEB887"}},
	})
	header := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := x.SetSheetRow(sheet, "A1", &header); err != nil {
		_ = x.Close()
		return nil, "", err
	}
	last, _ := excelize.ColumnNumberToName(len(exportHeaders))
	_ = x.SetCellStyle(sheet, "A1", last+"1", bold)

	for i, r := range sum.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			r.LogID,
			r.Date.Format(time.DateOnly),
			r.MillName,
			r.MeterName,
			r.ShiftName,
			r.MillerName,
			number(r.Opening),
			number(r.Closing),
			number(r.Movement),
		}
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			_ = x.Close()
			return nil, "", err
		}
	}
	widths := []float64{8, 12, 16, 22, 10, 18, 14, 14, 14}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = x.SetColWidth(sheet, col, col, w)
	}

	name := slug.Filename(".xlsx", string(f.Category), sum.Range.From.Format(time.DateOnly), sum.Range.To.Format(time.DateOnly))
	return x, name, nil
}

func number(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

// Dashboard sums movement per mill and meter for each category concurrently.
func (s *service) Dashboard(ctx context.Context, categories []ledger.Category, millIDs []int64) ([]Panel, error) {
	if len(categories) == 0 {
		categories = dictionary.GaugeCategories()
	}
	defs := make([]dictionary.CategoryDef, len(categories))
	for i, c := range categories {
		def, ok := dictionary.For(c)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(c))
		}
		defs[i] = def
	}
	panels := make([]Panel, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range categories {
		def := defs[i]
		g.Go(func() error {
			totals, err := s.repo.MovementTotals(gctx, c, millIDs)
			if err != nil {
				return fmt.Errorf("%s totals: %w", c, err)
			}
			p := Panel{
				Category:    c,
				Label:       def.Label,
				DisplayUnit: def.DisplayUnit,
				Max:         dictionary.GaugeMax,
				Bands:       dictionary.GaugeBands,
				Gauges:      make([]Gauge, 0, len(totals)),
			}
			for _, t := range totals {
				v, err := scale(t.Total, def.Scale)
				if err != nil {
					return err
				}
				p.Gauges = append(p.Gauges, Gauge{
					MillID:    t.MillID,
					MillName:  t.MillName,
					MeterID:   t.MeterID,
					MeterName: t.MeterName,
					Total:     t.Total,
					Value:     v,
				})
			}
			panels[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return panels, nil
}

// scale converts entry units to display units, kept to three places.
func scale(total decimal.Decimal, by int64) (decimal.Decimal, error) {
	if by <= 1 {
		return total, nil
	}
	div, err := decimal.New(by, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	q, err := total.Quo(div)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.Round(3).Trim(0), nil
}
