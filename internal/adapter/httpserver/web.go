package httpserver

import (
	_ "embed"
	"net/http"
)

//go:embed static/index.html
var indexPage []byte

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(indexPage) //nolint:errcheck // best-effort write to client
}
