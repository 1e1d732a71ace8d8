package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	base "github.com/tinoosan/millmeter/internal/httpapi"
	"github.com/tinoosan/millmeter/internal/ledger"
)

func lookupTable(w http.ResponseWriter, r *http.Request) (ledger.LookupTable, bool) {
	t, err := ledger.ParseLookupTable(chi.URLParam(r, "table"))
	if err != nil {
		base.WriteErr(w, http.StatusNotFound, err.Error(), "not_found")
		return "", false
	}
	return t, true
}

// listLookups handles GET /v1/lookups/{table}; it feeds the form dropdowns.
func (s *Server) listLookups(w http.ResponseWriter, r *http.Request) {
	t, ok := lookupTable(w, r)
	if !ok {
		return
	}
	recs, err := s.lookups.List(r.Context(), t)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	out := struct {
		Items []lookupResponse `json:"items"`
	}{Items: make([]lookupResponse, 0, len(recs))}
	for _, rec := range recs {
		out.Items = append(out.Items, lookupResponse{ID: rec.ID, Name: rec.Name})
	}
	base.ToJSON(w, http.StatusOK, out)
}

func (s *Server) createLookup(w http.ResponseWriter, r *http.Request) {
	t, ok := lookupTable(w, r)
	if !ok || !requireJSON(w, r) {
		return
	}
	var req lookupRequest
	if err := base.DecodeJSON(w, r, &req); err != nil {
		base.WriteDecodeErr(w, err)
		return
	}
	if err := s.checkStruct(req); err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	rec, err := s.lookups.Create(r.Context(), t, req.Name)
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	base.ToJSON(w, http.StatusCreated, lookupResponse{ID: rec.ID, Name: rec.Name})
}

func (s *Server) updateLookup(w http.ResponseWriter, r *http.Request) {
	t, ok := lookupTable(w, r)
	if !ok || !requireJSON(w, r) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		base.BadRequest(w, err.Error())
		return
	}
	var req lookupRequest
	if err := base.DecodeJSON(w, r, &req); err != nil {
		base.WriteDecodeErr(w, err)
		return
	}
	if err := s.checkStruct(req); err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	rec, err := s.lookups.Update(r.Context(), t, ledger.LookupRecord{ID: id, Name: req.Name})
	if err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	base.ToJSON(w, http.StatusOK, lookupResponse{ID: rec.ID, Name: rec.Name})
}

func (s *Server) deleteLookup(w http.ResponseWriter, r *http.Request) {
	t, ok := lookupTable(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		base.BadRequest(w, err.Error())
		return
	}
	if err := s.lookups.Delete(r.Context(), t, id); err != nil {
		base.WriteDomainErr(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
