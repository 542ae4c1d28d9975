package http

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/candidate"
	"github.com/mind-engage/sashakt-gateway/internal/exam"
	"github.com/mind-engage/sashakt-gateway/internal/form"
)

const (
	msgSessionExpired = "Session expired or test already submitted"
	msgStartFailed    = "Failed to start test"
	msgStartOffline   = "Cannot start test. Please check your internet connection."
)

// GET /api/tests/{slug}
func TestDetailsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := slugOf(r)
		details, err := d.Backend.TestDetails(r.Context(), slug)
		if err != nil {
			glog.V(2).Infof("test %s unavailable: %v", slug, err)
			respondError(w, http.StatusNotFound, "Test is not available")
			return
		}
		c, started := candidate.FromContext(r.Context())
		body := map[string]any{"test": details, "started": started}
		if started {
			body["candidate"] = c
		}
		respondJSON(w, http.StatusOK, body)
	}
}

// GET /api/tests/{slug}/time-left is the countdown before a scheduled test opens.
// With a candidate cookie the candidate-specific pre-test timer is used instead.
func PreTestTimeLeftHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			tl  exam.TimeLeft
			err error
		)
		if c, ok := candidate.FromContext(r.Context()); ok {
			tl, err = d.Backend.PretestTimeLeft(r.Context(), c)
		} else {
			tl, err = d.Backend.PublicTimeLeft(r.Context(), slugOf(r))
		}
		if err != nil {
			respondError(w, http.StatusBadGateway, "Failed to fetch pre-test time")
			return
		}
		respondJSON(w, http.StatusOK, timerBody(tl, time.Now()))
	}
}

func timerBody(tl exam.TimeLeft, now time.Time) map[string]any {
	cd := exam.NewCountdown(tl, now)
	body := map[string]any{"time_left": tl.TimeLeft, "unlimited": cd.Unlimited}
	if !cd.Unlimited {
		body["display"] = exam.FormatHMS(cd.Remaining(now))
		body["urgent"] = cd.Urgent(now)
		body["expired"] = cd.Expired(now)
	}
	return body
}

type startRequest struct {
	DeviceInfo    string         `json:"device_info"`
	EntityID      *int64         `json:"entity_id,omitempty"`
	FormResponses map[string]any `json:"form_responses,omitempty"`
}

// POST /api/tests/{slug}/start
func StartTestHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := slugOf(r)
		if c, ok := candidate.FromContext(r.Context()); ok {
			respondJSON(w, http.StatusOK, map[string]any{"success": true, "candidate": c, "resumed": true})
			return
		}
		var req startRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				respondError(w, http.StatusBadRequest, "bad json")
				return
			}
		}
		details, err := d.Backend.TestDetails(r.Context(), slug)
		if err != nil {
			respondStartError(w, err)
			return
		}
		if details.CandidateProfile != nil && *details.CandidateProfile && details.Form != nil {
			if errs := form.ValidateForm(details.Form.Fields, req.FormResponses); len(errs) > 0 {
				respondError(w, http.StatusUnprocessableEntity, "Please correct the highlighted fields",
					map[string]any{"fields": errs})
				return
			}
		}

		c, err := d.Backend.StartTest(r.Context(), backend.StartRequest{
			TestID:        details.ID,
			DeviceInfo:    req.DeviceInfo,
			EntityID:      req.EntityID,
			FormResponses: req.FormResponses,
		})
		if err != nil {
			respondStartError(w, err)
			return
		}
		if err := d.Cookies.SetCookie(w, c, slug); err != nil {
			glog.Errorf("start %s: %v", slug, err)
			respondError(w, http.StatusInternalServerError, msgStartFailed)
			return
		}
		glog.V(2).Infof("candidate %d started test %s", c.CandidateTestID, slug)
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "candidate": c})
	}
}

func respondStartError(w http.ResponseWriter, err error) {
	if backend.StatusCode(err) == 0 {
		glog.Warningf("start test: %v", err)
		respondError(w, http.StatusInternalServerError, msgStartOffline)
		return
	}
	respondError(w, http.StatusBadRequest, msgStartFailed)
}

// requireCandidate returns the cookie candidate or answers 401.
func requireCandidate(w http.ResponseWriter, r *http.Request) (exam.Candidate, bool) {
	c, ok := candidate.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, msgSessionExpired)
	}
	return c, ok
}

// GET /api/tests/{slug}/session loads everything the question screen needs.
func SessionHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := slugOf(r)
		c, ok := requireCandidate(w, r)
		if !ok {
			return
		}
		ctx := r.Context()

		var (
			details exam.TestDetails
			tl      exam.TimeLeft
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			details, err = d.Backend.TestDetails(gctx, slug)
			return err
		})
		g.Go(func() error {
			var err error
			tl, err = d.Backend.TimeLeft(gctx, c)
			return err
		})
		if err := g.Wait(); err != nil {
			glog.V(2).Infof("session %d: %v", c.CandidateTestID, err)
			d.Cookies.ClearCookie(w, slug)
			respondError(w, http.StatusUnauthorized, msgSessionExpired)
			return
		}

		tq := exam.TestQuestions{QuestionRevisions: []exam.Question{}}
		if !tl.Exhausted() {
			var err error
			if tq, err = d.testQuestions(ctx, c); err != nil {
				glog.V(2).Infof("session %d: questions: %v", c.CandidateTestID, err)
				d.Cookies.ClearCookie(w, slug)
				respondError(w, http.StatusUnauthorized, msgSessionExpired)
				return
			}
		}

		store := d.Sessions.For(c)
		ts := store.Session(ctx)
		pageSize := tq.PageSize()
		nav := exam.NewNavigator(tq.QuestionRevisions, pageSize, ts.CurrentPage)

		respondJSON(w, http.StatusOK, map[string]any{
			"candidate":    c,
			"test":         details,
			"timer":        timerBody(tl, time.Now()),
			"questions":    tq.QuestionRevisions,
			"page_size":    pageSize,
			"current_page": nav.Page,
			"page_count":   nav.LastPage(),
			"page":         exam.PageWindow(nav.Page, pageSize, tq.QuestionRevisions),
			"selections":   ts.Selections,
			"counts":       exam.CountStatuses(tq.QuestionRevisions, ts.Selections),
			"can_submit":   exam.AllMandatoryAnswered(ts.Selections, tq.QuestionRevisions),
		})
	}
}

// GET /api/tests/{slug}/timer is the in-test countdown.
func TimerHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := requireCandidate(w, r)
		if !ok {
			return
		}
		tl, err := d.Backend.TimeLeft(r.Context(), c)
		if err != nil {
			respondError(w, http.StatusBadGateway, "Failed to fetch timer")
			return
		}
		respondJSON(w, http.StatusOK, timerBody(tl, time.Now()))
	}
}
