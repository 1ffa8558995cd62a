package server

import (
	"net/http"

	"connpool/conntable"
)

// AdminHandler exposes a table's diagnostic dump over plain HTTP. This is
// the administrative surface spec.md §1 calls out as out of the core's
// scope ("Administrative surfaces... beyond their data contract") — it's a
// thin wrapper, nothing more, consuming only the public Dump contract.
type AdminHandler struct {
	Table *conntable.Table
}

// ServeHTTP writes the table's TSV dump as the response body.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.Table.Dump(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
