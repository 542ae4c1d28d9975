package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/backend"
)

// GET /api/entities and /api/locations/{kind}. Failures still answer with an empty list.
func LookupHandler(d *Deps, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k := kind
		if k == "" {
			k = chi.URLParam(r, "kind")
		}
		items, err := d.Backend.Lookup(r.Context(), k, r.URL.Query())
		if err != nil {
			status := backend.StatusCode(err)
			switch {
			case errors.Is(err, backend.ErrUnknownLookup):
				status = http.StatusNotFound
			case status == 0:
				status = http.StatusInternalServerError
			}
			glog.V(2).Infof("%s lookup: %v", k, err)
			respondJSON(w, status, map[string]any{"items": []json.RawMessage{}})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// POST /api/certificate streams a certificate from the backend.
func CertificateHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CertificateDownloadURL string `json:"certificate_download_url"`
		}
		if err := decodeJSON(w, r, &req); err != nil || req.CertificateDownloadURL == "" {
			respondError(w, http.StatusBadRequest, "Missing certificate URL")
			return
		}
		res, err := d.Backend.Certificate(r.Context(), req.CertificateDownloadURL)
		if err != nil {
			switch status := backend.StatusCode(err); {
			case errors.Is(err, backend.ErrBadReference):
				respondError(w, http.StatusBadRequest, "Invalid certificate URL")
			case status != 0:
				respondError(w, status, "Backend error: "+strconv.Itoa(status))
			default:
				glog.Warningf("certificate: %v", err)
				respondError(w, http.StatusInternalServerError, "Certificate download failed")
			}
			return
		}
		defer res.Body.Close()
		ct := res.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/pdf"
		}
		cd := res.Header.Get("Content-Disposition")
		if cd == "" {
			cd = `attachment; filename="certificate.pdf"`
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", cd)
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, res.Body); err != nil {
			glog.V(2).Infof("certificate stream: %v", err)
		}
	}
}
