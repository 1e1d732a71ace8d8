package v1

import (
	"net/http"

	base "github.com/tinoosan/millmeter/internal/httpapi"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// getTimeline handles GET /v1/ledger/{category} and reports whether the chain holds.
func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	tl, _ := r.Context().Value(ctxKeyTimeline).(ledger.Timeline)
	rows, err := s.corrector.Timeline(r.Context(), tl)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	out := timelineResponse{
		Category: string(tl.Category),
		MillID:   tl.MillID,
		MeterID:  tl.MeterID,
		ChainOK:  true,
		Rows:     toRowResponses(rows),
	}
	if err := ledger.CheckChain(rows); err != nil {
		s.log.Warn("chain check failed", "timeline", tl.Key(), "err", err)
		out.ChainOK = false
		out.ChainError = err.Error()
	}
	base.ToJSON(w, http.StatusOK, out)
}
