package v1

import (
	"net/http"

	"github.com/tinoosan/millmeter/internal/dictionary"
	base "github.com/tinoosan/millmeter/internal/httpapi"
)

// GET /v1/dictionary/categories
func (s *Server) getCategoriesDictionary(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Items []dictionary.CategoryDef `json:"items"`
	}{Items: dictionary.All()}
	base.ToJSON(w, http.StatusOK, out)
}
