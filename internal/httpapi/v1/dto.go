package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/govalues/decimal"

	"github.com/tinoosan/millmeter/internal/dictionary"
	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/service/report"
)

// reading is a meter value as operators submit it: a JSON number, a numeric
// string, an empty string or null. The last two mean "no reading".
type reading struct {
	v *decimal.Decimal
}

func (r *reading) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		r.v = nil
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			r.v = nil
			return nil
		}
	}
	d, err := decimal.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid reading %q", raw)
	}
	r.v = &d
	return nil
}

type submissionRequest struct {
	MillID    int64             `json:"mill_id" validate:"required,gt=0"`
	ShiftID   int64             `json:"shift_id" validate:"required,gt=0"`
	MillerID  int64             `json:"miller_id" validate:"required,gt=0"`
	Date      string            `json:"date" validate:"required,datetime=2006-01-02"`
	Products  map[int64]reading `json:"products"`
	Transfers map[int64]reading `json:"transfers"`
	Stages    map[int64]reading `json:"stages"`
}

func (req submissionRequest) toDomain(key string) ledger.Submission {
	date, _ := time.Parse(time.DateOnly, req.Date)
	sub := ledger.Submission{
		MillID:         req.MillID,
		ShiftID:        req.ShiftID,
		MillerID:       req.MillerID,
		Date:           date,
		IdempotencyKey: key,
		Readings:       make(map[ledger.Category]map[int64]*decimal.Decimal, 3),
	}
	for c, in := range map[ledger.Category]map[int64]reading{
		ledger.CategoryProduct:  req.Products,
		ledger.CategoryTransfer: req.Transfers,
		ledger.CategoryStage:    req.Stages,
	} {
		if len(in) == 0 {
			continue
		}
		m := make(map[int64]*decimal.Decimal, len(in))
		for id, r := range in {
			m[id] = r.v
		}
		sub.Readings[c] = m
	}
	return sub
}

type correctionRequest struct {
	Category string  `json:"category" validate:"required"`
	LogID    int64   `json:"log_id" validate:"required,gt=0"`
	MillID   int64   `json:"mill_id" validate:"required,gt=0"`
	MeterID  int64   `json:"meter_id" validate:"required,gt=0"`
	Closing  reading `json:"closing_value"`
}

type lookupRequest struct {
	Name string `json:"name" validate:"required"`
}

type rowResponse struct {
	LogID    int64  `json:"log_id"`
	MillID   int64  `json:"mill_id"`
	MeterID  int64  `json:"meter_id"`
	Opening  string `json:"opening_value"`
	Closing  string `json:"closing_value"`
	Movement string `json:"movement"`
	ShiftID  int64  `json:"shift_id"`
	MillerID int64  `json:"miller_id"`
	Date     string `json:"date"`
}

func toRowResponse(r ledger.Row) rowResponse {
	return rowResponse{
		LogID:    r.LogID,
		MillID:   r.MillID,
		MeterID:  r.MeterID,
		Opening:  r.Opening.String(),
		Closing:  r.Closing.String(),
		Movement: r.Movement.String(),
		ShiftID:  r.ShiftID,
		MillerID: r.MillerID,
		Date:     r.Date.Format(time.DateOnly),
	}
}

func toRowResponses(rows []ledger.Row) []rowResponse {
	out := make([]rowResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRowResponse(r))
	}
	return out
}

type submissionResponse struct {
	LogID    int64                    `json:"log_id"`
	Replayed bool                     `json:"replayed"`
	Count    int                      `json:"count"`
	Rows     map[string][]rowResponse `json:"rows"`
}

type correctionResponse struct {
	AuditID     string        `json:"audit_id"`
	Category    string        `json:"category"`
	OldClosing  string        `json:"old_closing_value"`
	NewClosing  string        `json:"new_closing_value"`
	RowsUpdated int           `json:"rows_updated"`
	Rows        []rowResponse `json:"rows"`
}

type timelineResponse struct {
	Category   string        `json:"category"`
	MillID     int64         `json:"mill_id"`
	MeterID    int64         `json:"meter_id"`
	ChainOK    bool          `json:"chain_ok"`
	ChainError string        `json:"chain_error,omitempty"`
	Rows       []rowResponse `json:"rows"`
}

type lookupResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type summaryRowResponse struct {
	rowResponse
	MillName   string `json:"mill_name"`
	MeterName  string `json:"meter_name"`
	ShiftName  string `json:"shift_name"`
	MillerName string `json:"miller_name"`
}

type summaryResponse struct {
	Category  string               `json:"category"`
	StartDate string               `json:"start_date"`
	EndDate   string               `json:"end_date"`
	Clamped   bool                 `json:"clamped"`
	Rows      []summaryRowResponse `json:"rows"`
}

func toSummaryResponse(s report.Summary) summaryResponse {
	out := summaryResponse{
		Category:  string(s.Category),
		StartDate: s.Range.From.Format(time.DateOnly),
		EndDate:   s.Range.To.Format(time.DateOnly),
		Clamped:   s.Range.Clamped,
		Rows:      make([]summaryRowResponse, 0, len(s.Rows)),
	}
	for _, r := range s.Rows {
		out.Rows = append(out.Rows, summaryRowResponse{
			rowResponse: toRowResponse(r.Row),
			MillName:    r.MillName,
			MeterName:   r.MeterName,
			ShiftName:   r.ShiftName,
			MillerName:  r.MillerName,
		})
	}
	return out
}

type gaugeResponse struct {
	MillID    int64  `json:"mill_id"`
	MillName  string `json:"mill_name"`
	MeterID   int64  `json:"meter_id"`
	MeterName string `json:"meter_name"`
	Total     string `json:"total"`
	Value     string `json:"value"`
}

type panelResponse struct {
	Category    string                 `json:"category"`
	Label       string                 `json:"label"`
	DisplayUnit string                 `json:"display_unit"`
	Max         int64                  `json:"max"`
	Bands       []dictionary.GaugeBand `json:"bands"`
	Gauges      []gaugeResponse        `json:"gauges"`
}

func toPanelResponse(p report.Panel) panelResponse {
	out := panelResponse{
		Category:    string(p.Category),
		Label:       p.Label,
		DisplayUnit: p.DisplayUnit,
		Max:         p.Max,
		Bands:       p.Bands,
		Gauges:      make([]gaugeResponse, 0, len(p.Gauges)),
	}
	for _, g := range p.Gauges {
		out.Gauges = append(out.Gauges, gaugeResponse{
			MillID:    g.MillID,
			MillName:  g.MillName,
			MeterID:   g.MeterID,
			MeterName: g.MeterName,
			Total:     g.Total.String(),
			Value:     g.Value.String(),
		})
	}
	return out
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs tag validation. Absent required fields become
// errs.ErrMissingField; every other failure is errs.ErrInvalid.
func (s *Server) checkStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", errs.ErrInvalid, err)
	}
	var missing, invalid []string
	for _, fe := range ve {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errs.ErrMissingField, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: %s", errs.ErrInvalid, strings.Join(invalid, ", "))
}
