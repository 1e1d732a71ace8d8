package v1

import (
	"fmt"
	"net/http"

	"github.com/tinoosan/millmeter/internal/errs"
	base "github.com/tinoosan/millmeter/internal/httpapi"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// postCorrection handles POST /v1/corrections.
func (s *Server) postCorrection(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req correctionRequest
	if err := base.DecodeJSON(w, r, &req); err != nil {
		base.WriteDecodeErr(w, err)
		return
	}
	if err := s.checkStruct(req); err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	if req.Closing.v == nil {
		base.WriteDomainErr(w, r, s.log, fmt.Errorf("%w: closing_value", errs.ErrMissingField))
		return
	}
	c, err := ledger.ParseCategory(req.Category)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	res, err := s.corrector.Correct(r.Context(), ledger.Correction{
		Category: c,
		LogID:    req.LogID,
		MillID:   req.MillID,
		MeterID:  req.MeterID,
		Closing:  *req.Closing.v,
	})
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	if sub := subject(r.Context()); sub != "" {
		s.log.Info("correction applied", "audit_id", res.Audit.ID, "by", sub)
	}
	base.ToJSON(w, http.StatusOK, correctionResponse{
		AuditID:     res.Audit.ID.String(),
		Category:    string(c),
		OldClosing:  res.Audit.OldClosing.String(),
		NewClosing:  res.Audit.NewClosing.String(),
		RowsUpdated: res.Audit.RowsUpdated,
		Rows:        toRowResponses(res.Rows),
	})
}
