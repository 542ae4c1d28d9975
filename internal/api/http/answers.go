package http

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

const (
	msgSessionMismatch = "Session mismatch"
	msgMissingFields   = "Missing required fields"
)

type answerRequest struct {
	QuestionRevisionID int64           `json:"question_revision_id"`
	OptionID           *int64          `json:"option_id,omitempty"`
	Text               *string         `json:"text,omitempty"`
	Bookmarked         *bool           `json:"bookmarked,omitempty"`
	TimeSpent          int             `json:"time_spent,omitempty"`
	Candidate          *exam.Candidate `json:"candidate,omitempty"`
}

// answerTarget runs the checks shared by every per-question call: a live cookie,
// a body candidate equal to it, and a question of this attempt.
func answerTarget(d *Deps, w http.ResponseWriter, r *http.Request) (exam.Candidate, exam.Question, answerRequest, bool) {
	var req answerRequest
	c, ok := requireCandidate(w, r)
	if !ok {
		return c, exam.Question{}, req, false
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad json")
		return c, exam.Question{}, req, false
	}
	if req.Candidate == nil || *req.Candidate != c {
		respondError(w, http.StatusUnauthorized, msgSessionMismatch)
		return c, exam.Question{}, req, false
	}
	if req.QuestionRevisionID == 0 {
		respondError(w, http.StatusBadRequest, msgMissingFields)
		return c, exam.Question{}, req, false
	}
	tq, err := d.testQuestions(r.Context(), c)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load questions")
		return c, exam.Question{}, req, false
	}
	q, found := findQuestion(tq, req.QuestionRevisionID)
	if !found {
		respondError(w, http.StatusBadRequest, "Unknown question")
		return c, exam.Question{}, req, false
	}
	return c, q, req, true
}

func submitChange(d *Deps, w http.ResponseWriter, r *http.Request, c exam.Candidate, ch exam.Change) {
	store := d.Sessions.For(c)
	sel, err := d.Submitter.Submit(r.Context(), store, ch)
	if err != nil {
		var se *exam.SubmitError
		switch {
		case errors.As(err, &se):
			glog.V(2).Infof("session %s: question %d: %v", store.Key(), se.QuestionID, se.Cause)
			respondError(w, http.StatusInternalServerError, se.Message, map[string]any{
				"reverted":  se.Reverted,
				"selection": se.Selection,
			})
		case errors.Is(err, exam.ErrInvalidCandidate):
			respondError(w, http.StatusUnauthorized, msgSessionExpired)
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	tq, _ := d.testQuestions(r.Context(), c)
	selections := store.Get(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"selection":  sel,
		"counts":     exam.CountStatuses(tq.QuestionRevisions, selections),
		"can_submit": exam.AllMandatoryAnswered(selections, tq.QuestionRevisions),
	})
}

// POST /api/tests/{slug}/answer records an option click or subjective text.
func AnswerHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, q, req, ok := answerTarget(d, w, r)
		if !ok {
			return
		}
		var ch exam.Change
		switch {
		case req.Text != nil:
			if q.QuestionType != exam.Subjective {
				respondError(w, http.StatusBadRequest, "Question does not take a text answer")
				return
			}
			ch = exam.TextSave(q, *req.Text)
		case req.OptionID != nil:
			if !q.HasOption(*req.OptionID) {
				respondError(w, http.StatusBadRequest, "Unknown option")
				return
			}
			ch = exam.OptionClick(q, *req.OptionID)
		default:
			respondError(w, http.StatusBadRequest, msgMissingFields)
			return
		}
		submitChange(d, w, r, c, ch)
	}
}

// POST /api/tests/{slug}/bookmark
func BookmarkHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, q, req, ok := answerTarget(d, w, r)
		if !ok {
			return
		}
		if req.Bookmarked == nil {
			respondError(w, http.StatusBadRequest, msgMissingFields)
			return
		}
		submitChange(d, w, r, c, exam.BookmarkToggle(q, *req.Bookmarked))
	}
}

// POST /api/tests/{slug}/review asks for the correct answer of one question.
func ReviewHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, q, _, ok := answerTarget(d, w, r)
		if !ok {
			return
		}
		submitChange(d, w, r, c, exam.ReviewRequest(q))
	}
}

// POST /api/tests/{slug}/visit records that a question was shown. Local only.
func VisitHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, q, req, ok := answerTarget(d, w, r)
		if !ok {
			return
		}
		store := d.Sessions.For(c)
		list := store.Update(r.Context(), func(list []exam.Selection) []exam.Selection {
			return exam.Visit(list, q.ID, req.TimeSpent)
		})
		d.emit(r.Context(), exam.Event{
			Type:       exam.EventVisited,
			SessionKey: store.Key(),
			QuestionID: q.ID,
			Data:       map[string]int{"time_spent": req.TimeSpent},
		})
		body := map[string]any{"success": true}
		if i := exam.FindSelection(list, q.ID); i >= 0 {
			body["selection"] = list[i]
		}
		respondJSON(w, http.StatusOK, body)
	}
}
