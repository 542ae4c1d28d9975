package http

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

// POST /api/tests/{slug}/page  {"direction": "next" | "previous"}
func PageHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := requireCandidate(w, r)
		if !ok {
			return
		}
		var req struct {
			Direction string `json:"direction"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "bad json")
			return
		}
		tq, err := d.testQuestions(r.Context(), c)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load questions")
			return
		}
		store := d.Sessions.For(c)
		ts := store.Session(r.Context())
		nav := exam.NewNavigator(tq.QuestionRevisions, tq.PageSize(), ts.CurrentPage)

		switch req.Direction {
		case "next":
			if err := nav.Next(ts.Selections); err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, exam.ErrMandatoryUnanswered) {
					status = http.StatusConflict
				}
				respondError(w, status, err.Error(), map[string]any{"current_page": nav.Page})
				return
			}
		case "previous":
			nav.Previous()
		default:
			respondError(w, http.StatusBadRequest, "direction must be next or previous")
			return
		}
		if err := store.SetPage(r.Context(), nav.Page); err != nil {
			glog.Warningf("session %s: page not saved: %v", store.Key(), err)
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"current_page": nav.Page,
			"page_count":   nav.LastPage(),
			"last_page":    nav.OnLastPage(),
			"page":         exam.PageWindow(nav.Page, tq.PageSize(), tq.QuestionRevisions),
		})
	}
}

// GET /api/tests/{slug}/palette
func PaletteHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := requireCandidate(w, r)
		if !ok {
			return
		}
		tq, err := d.testQuestions(r.Context(), c)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load questions")
			return
		}
		selections := d.Sessions.For(c).Get(r.Context())
		respondJSON(w, http.StatusOK, map[string]any{
			"counts":  exam.CountStatuses(tq.QuestionRevisions, selections),
			"entries": exam.Palette(tq.QuestionRevisions, selections, tq.PageSize()),
		})
	}
}

// GET /api/tests/{slug}/omr is the bulk answer sheet, available unless the test disables it.
func OMRHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := requireCandidate(w, r)
		if !ok {
			return
		}
		details, err := d.Backend.TestDetails(r.Context(), slugOf(r))
		if err != nil {
			respondError(w, http.StatusNotFound, "Test is not available")
			return
		}
		mode := details.OMR
		if mode == "" {
			mode = exam.OMRNever
		}
		if mode == exam.OMRNever {
			respondError(w, http.StatusNotFound, "OMR sheet is not enabled for this test")
			return
		}
		tq, err := d.testQuestions(r.Context(), c)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load questions")
			return
		}
		selections := d.Sessions.For(c).Get(r.Context())
		// the sheet shows every question on one page
		respondJSON(w, http.StatusOK, map[string]any{
			"mode":    mode,
			"entries": exam.Palette(tq.QuestionRevisions, selections, 0),
			"counts":  exam.CountStatuses(tq.QuestionRevisions, selections),
		})
	}
}
