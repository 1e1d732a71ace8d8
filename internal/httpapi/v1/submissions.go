package v1

import (
	"net/http"
	"strings"

	base "github.com/tinoosan/millmeter/internal/httpapi"
)

const maxIdempotencyKeyLen = 200

// postSubmission handles POST /v1/submissions. A repeated Idempotency-Key
// returns the first receipt with 200 instead of recording again.
func (s *Server) postSubmission(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		base.BadRequest(w, "Idempotency-Key too long")
		return
	}
	var req submissionRequest
	if err := base.DecodeJSON(w, r, &req); err != nil {
		base.WriteDecodeErr(w, err)
		return
	}
	if err := s.checkStruct(req); err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	receipt, err := s.recorder.Record(r.Context(), req.toDomain(key))
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	out := submissionResponse{
		LogID:    receipt.LogID,
		Replayed: receipt.Replayed,
		Count:    receipt.Count(),
		Rows:     make(map[string][]rowResponse, len(receipt.Rows)),
	}
	for c, rows := range receipt.Rows {
		out.Rows[string(c)] = toRowResponses(rows)
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	base.ToJSON(w, status, out)
}
