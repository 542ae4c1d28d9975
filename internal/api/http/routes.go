package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/candidate"
	syncx "github.com/mind-engage/sashakt-gateway/internal/sync"
)

func slugOf(r *http.Request) string { return chi.URLParam(r, "slug") }

// Mount registers the candidate-facing API on r.
func Mount(r chi.Router, d *Deps) {
	r.Route("/api/tests/{slug}", func(tr chi.Router) {
		tr.Use(candidate.Attach(d.Cookies))

		tr.Get("/", TestDetailsHandler(d))
		tr.Get("/time-left", PreTestTimeLeftHandler(d))
		tr.Post("/start", StartTestHandler(d))

		tr.Get("/session", SessionHandler(d))
		tr.Get("/timer", TimerHandler(d))
		tr.Post("/answer", AnswerHandler(d))
		tr.Post("/bookmark", BookmarkHandler(d))
		tr.Post("/review", ReviewHandler(d))
		tr.Post("/visit", VisitHandler(d))
		tr.Post("/page", PageHandler(d))
		tr.Get("/palette", PaletteHandler(d))
		tr.Get("/omr", OMRHandler(d))
		tr.Post("/submit", SubmitTestHandler(d))
		tr.Post("/reattempt", ReattemptHandler(d))
	})

	r.Get("/api/entities", LookupHandler(d, backend.LookupEntity))
	r.Get("/api/locations/{kind}", LookupHandler(d, ""))
	r.Post("/api/certificate", CertificateHandler(d))
}

// MountAdmin registers the operator routes behind basic auth. events may be nil.
func MountAdmin(r chi.Router, d *Deps, user, passHash string, events *syncx.EventRepo) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(BasicAuth(user, passHash))
		ar.Get("/sessions", ListSessionsHandler(d))
		ar.Delete("/sessions/{key}", DeleteSessionHandler(d))
		if events != nil {
			ar.Get("/sessions/{key}/events", SessionEventsHandler(events))
		}
	})
}
