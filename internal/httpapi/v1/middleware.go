package v1

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	base "github.com/tinoosan/millmeter/internal/httpapi"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/service/report"
)

type ctxKey string

const (
	ctxKeyTimeline  ctxKey = "validatedTimeline"
	ctxKeyReport    ctxKey = "validatedReport"
	ctxKeyDashboard ctxKey = "validatedDashboard"
)

type dashboardQuery struct {
	Categories []ledger.Category
	MillIDs    []int64
}

// validateTimelineQuery parses GET /ledger/{category}?mill_id=&meter_id=.
func (s *Server) validateTimelineQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := ledger.ParseCategory(chi.URLParam(r, "category"))
			if err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			q := r.URL.Query()
			mill, err := requiredID(q, "mill_id")
			if err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			meter, err := requiredID(q, "meter_id")
			if err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			tl := ledger.Timeline{Category: c, MillID: mill, MeterID: meter}
			ctx := context.WithValue(r.Context(), ctxKeyTimeline, tl)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateReportQuery parses start_date, end_date, mill_id and meter_id for the
// report and export endpoints. Missing dates are left to the report service.
func (s *Server) validateReportQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := ledger.ParseCategory(chi.URLParam(r, "category"))
			if err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			q := r.URL.Query()
			f := report.Filter{Category: c}
			if f.From, err = optionalDate(q, "start_date"); err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			if f.To, err = optionalDate(q, "end_date"); err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			if f.MillIDs, err = ids(q, "mill_id"); err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			if f.MeterIDs, err = ids(q, "meter_id"); err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyReport, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateDashboardQuery parses repeated category and mill_id parameters.
func (s *Server) validateDashboardQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var dq dashboardQuery
			for _, raw := range splitValues(q, "category") {
				c, err := ledger.ParseCategory(raw)
				if err != nil {
					base.BadRequest(w, err.Error())
					return
				}
				dq.Categories = append(dq.Categories, c)
			}
			var err error
			if dq.MillIDs, err = ids(q, "mill_id"); err != nil {
				base.BadRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyDashboard, dq)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// splitValues accepts both repeated parameters and comma separated lists.
func splitValues(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func ids(q url.Values, key string) ([]int64, error) {
	var out []int64
	for _, raw := range splitValues(q, key) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid %s %q", key, raw)
		}
		out = append(out, id)
	}
	return out, nil
}

func requiredID(q url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func optionalDate(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, want YYYY-MM-DD", key)
	}
	return &t, nil
}
