package http

import (
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/candidate"
	"github.com/mind-engage/sashakt-gateway/internal/exam"
	"github.com/mind-engage/sashakt-gateway/internal/grading"
)

const msgSubmitFailed = "Failed to submit test"

// fromSheet reports whether a submit skips the last-page rule. A test shown only as
// an OMR sheet has no pages; an optional sheet is exempt when submitted from it.
func fromSheet(mode exam.OMRMode, requested bool) bool {
	switch mode {
	case exam.OMRAlways:
		return true
	case exam.OMROptional:
		return requested
	default:
		return false
	}
}

// POST /api/tests/{slug}/submit  {"omr": bool} finishes the attempt and returns its result.
func SubmitTestHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := slugOf(r)
		c, ok := requireCandidate(w, r)
		if !ok {
			return
		}
		var req struct {
			OMR bool `json:"omr"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				respondError(w, http.StatusBadRequest, "bad json")
				return
			}
		}
		ctx := r.Context()
		details, err := d.Backend.TestDetails(ctx, slug)
		if err != nil {
			respondError(w, http.StatusNotFound, "Test is not available")
			return
		}
		tq, err := d.testQuestions(ctx, c)
		if err != nil {
			respondError(w, http.StatusInternalServerError, msgSubmitFailed)
			return
		}
		store := d.Sessions.For(c)
		ts := store.Session(ctx)
		selections := ts.Selections
		nav := exam.NewNavigator(tq.QuestionRevisions, tq.PageSize(), ts.CurrentPage)
		gate := nav.CanSubmit(selections)
		if fromSheet(details.OMR, req.OMR) {
			gate = nil
			if !exam.AllMandatoryAnswered(selections, tq.QuestionRevisions) {
				gate = exam.ErrMandatoryUnanswered
			}
		}
		if gate != nil {
			respondError(w, http.StatusConflict, gate.Error(), map[string]any{
				"submit_test":  false,
				"current_page": nav.Page,
				"counts":       exam.CountStatuses(tq.QuestionRevisions, selections),
			})
			return
		}

		if err := d.Backend.SubmitTest(ctx, c); err != nil {
			switch status := backend.StatusCode(err); {
			case status == http.StatusBadRequest:
				msg := backend.Detail(err)
				if msg == "" {
					msg = msgSubmitFailed
				}
				respondError(w, http.StatusBadRequest, msg, map[string]any{"submit_test": false})
			case status == 0:
				glog.Warningf("submit %d: %v", c.CandidateTestID, err)
				respondError(w, http.StatusInternalServerError, msgSubmitFailed, map[string]any{"submit_test": false})
			default:
				glog.Warningf("submit %d: %v", c.CandidateTestID, err)
				respondJSON(w, http.StatusOK, map[string]any{"success": false, "submit_test": false})
			}
			return
		}

		d.emit(ctx, exam.Event{Type: exam.EventTestSubmitted, SessionKey: store.Key(),
			Data: exam.CountStatuses(tq.QuestionRevisions, selections)})
		if err := d.finish(ctx, c); err != nil {
			glog.Warningf("submit %d: clearing session: %v", c.CandidateTestID, err)
		}
		d.Cookies.ClearCookie(w, slug)

		var (
			result   exam.ResultData
			feedback []exam.FeedbackEntry
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			result, err = d.Backend.Result(gctx, c)
			return err
		})
		if details.ShowFeedbackOnCompletion {
			g.Go(func() error {
				fb, err := d.Backend.ReviewFeedback(gctx, c)
				if err != nil {
					// feedback is optional; the result still stands
					glog.Warningf("feedback %d: %v", c.CandidateTestID, err)
					return nil
				}
				feedback = fb
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			glog.Warningf("result %d: %v", c.CandidateTestID, err)
			respondError(w, http.StatusBadRequest, "Failed to load result", map[string]any{
				"submit_test": true,
				"result":      false,
			})
			return
		}

		body := map[string]any{
			"success":        true,
			"submit_test":    true,
			"result":         result,
			"feedback":       nil,
			"test_questions": nil,
		}
		if feedback != nil {
			reviews := d.Reviewer.Review(tq.QuestionRevisions, feedback)
			body["feedback"] = feedback
			body["test_questions"] = tq
			body["review"] = map[string]any{"questions": reviews, "summary": grading.Summarize(reviews)}
		}
		respondJSON(w, http.StatusOK, body)
	}
}

// POST /api/tests/{slug}/reattempt drops the local attempt so the candidate can start over.
func ReattemptHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := slugOf(r)
		if c, ok := candidate.FromContext(r.Context()); ok {
			if err := d.finish(r.Context(), c); err != nil {
				glog.Warningf("reattempt %d: %v", c.CandidateTestID, err)
			}
		}
		d.Cookies.ClearCookie(w, slug)
		respondJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
