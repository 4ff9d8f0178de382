package apicommon

import (
	"encoding/json"
	"net/http"

	"go.vocdoni.io/dvote/log"
)

// HTTPWriteJSON helper function allows to write a JSON response.
func HTTPWriteJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnw("failed to encode response", "error", err)
	}
}

// HTTPWriteOK helper function allows to write an OK response with a short
// plain text body.
func HTTPWriteOK(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(msg + "\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}
