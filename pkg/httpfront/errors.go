package httpfront

import (
	"encoding/json"
	"net/http"

	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind types.ErrorKind, detail string) {
	writeJSON(w, status, types.ErrorBody{ErrorKind: kind, Detail: detail})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, types.ErrorKindRouting, "no route matches "+r.URL.Path)
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, types.ErrorKindRouting, r.Method+" not allowed on "+r.URL.Path)
}
