package http

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
	"github.com/mind-engage/sashakt-gateway/internal/storage"
	syncx "github.com/mind-engage/sashakt-gateway/internal/sync"
)

// BasicAuth guards the operator routes with one user and a bcrypt password hash.
func BasicAuth(user, passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="sashakt-admin"`)
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type sessionSummary struct {
	Key        string    `json:"key"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
	Candidate  any       `json:"candidate,omitempty"`
	Selections int       `json:"selections"`
	Page       int       `json:"current_page"`
	Corrupt    bool      `json:"corrupt,omitempty"`
}

// GET /admin/sessions lists the stored attempt records.
func ListSessionsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := d.Sessions.Records().List(r.Context())
		if err != nil {
			glog.Errorf("list sessions: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
		out := make([]sessionSummary, 0, len(recs))
		for _, rec := range recs {
			s := sessionSummary{Key: rec.Key, Version: rec.Version, UpdatedAt: rec.UpdatedAt}
			ts, err := exam.DecodeSession(rec.Data)
			if err != nil {
				s.Corrupt = true
			} else {
				if ts.Candidate.Valid() {
					s.Candidate = ts.Candidate
				}
				s.Selections = len(ts.Selections)
				s.Page = ts.CurrentPage
			}
			out = append(out, s)
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// DELETE /admin/sessions/{key}
func DeleteSessionHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := d.Sessions.Records().Delete(r.Context(), key); err != nil {
			if errors.Is(err, storage.ErrBadKey) {
				respondError(w, http.StatusBadRequest, "bad session key")
				return
			}
			glog.Errorf("delete session %s: %v", key, err)
			respondError(w, http.StatusInternalServerError, "Failed to delete session")
			return
		}
		d.forget(key)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /admin/sessions/{key}/events?after=&limit=
func SessionEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		after, _ := strconv.ParseInt(q.Get("after"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))
		items, err := events.Since(r.Context(), chi.URLParam(r, "key"), after, limit)
		if err != nil {
			glog.Errorf("session events: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to load events")
			return
		}
		if items == nil {
			items = []syncx.Event{}
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}
