package v1

import (
	"fmt"
	"net/http"

	base "github.com/tinoosan/millmeter/internal/httpapi"
	"github.com/tinoosan/millmeter/internal/service/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// getReport handles GET /v1/reports/{category}.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	f, _ := r.Context().Value(ctxKeyReport).(report.Filter)
	sum, err := s.reports.Summary(r.Context(), f)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	base.ToJSON(w, http.StatusOK, toSummaryResponse(sum))
}

// exportReport handles GET /v1/reports/{category}/export as an XLSX download.
func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	f, _ := r.Context().Value(ctxKeyReport).(report.Filter)
	x, name, err := s.reports.Export(r.Context(), f)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	defer func() { _ = x.Close() }()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := x.Write(w); err != nil {
		s.log.Error("write export", "file", name, "err", err)
	}
}

// getDashboard handles GET /v1/dashboard.
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	q, _ := r.Context().Value(ctxKeyDashboard).(dashboardQuery)
	panels, err := s.reports.Dashboard(r.Context(), q.Categories, q.MillIDs)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	out := struct {
		Panels []panelResponse `json:"panels"`
	}{Panels: make([]panelResponse, 0, len(panels))}
	for _, p := range panels {
		out.Panels = append(out.Panels, toPanelResponse(p))
	}
	base.ToJSON(w, http.StatusOK, out)
}
