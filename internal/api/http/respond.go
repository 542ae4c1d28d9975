package http

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError writes the {success:false, error} shape the browser expects.
// extra fields are merged into the body.
func respondError(w http.ResponseWriter, status int, msg string, extra ...map[string]any) {
	body := map[string]any{"success": false, "error": msg}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	respondJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
