package exam

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidCandidate is returned when the adapter is called without a usable identity.
// Nothing is mutated in that case.
var ErrInvalidCandidate = errors.New("candidate uuid and test id are required")

var errSessionUnavailable = errors.New("session record unavailable")

// AnswerPayload is the body of one submit-answer call.
type AnswerPayload struct {
	QuestionRevisionID int64    `json:"question_revision_id"`
	Response           Response `json:"response"`
	Visited            bool     `json:"visited"`
	Bookmarked         bool     `json:"bookmarked"`
	IsReviewed         bool     `json:"is_reviewed"`
}

// AnswerAck is what the backend returns; CorrectAnswer is only set for reviewed questions.
type AnswerAck struct {
	CorrectAnswer []int64 `json:"correct_answer,omitempty"`
}

type AnswerClient interface {
	SubmitAnswer(ctx context.Context, c Candidate, p AnswerPayload) (AnswerAck, error)
}

func PayloadFor(s Selection) AnswerPayload {
	return AnswerPayload{
		QuestionRevisionID: s.QuestionRevisionID,
		Response:           s.Response,
		Visited:            true,
		Bookmarked:         s.Bookmarked,
		IsReviewed:         s.IsReviewed,
	}
}

type ChangeKind int

const (
	ChangeOption ChangeKind = iota
	ChangeText
	ChangeBookmark
	ChangeReviewed
)

// Change is one user action on one question.
type Change struct {
	Kind       ChangeKind
	Question   Question
	OptionID   int64
	Text       string
	Bookmarked bool
}

func OptionClick(q Question, optionID int64) Change {
	return Change{Kind: ChangeOption, Question: q, OptionID: optionID}
}

func TextSave(q Question, text string) Change {
	return Change{Kind: ChangeText, Question: q, Text: text}
}

func BookmarkToggle(q Question, on bool) Change {
	return Change{Kind: ChangeBookmark, Question: q, Bookmarked: on}
}

func ReviewRequest(q Question) Change {
	return Change{Kind: ChangeReviewed, Question: q}
}

func (c Change) apply(list []Selection) []Selection {
	switch c.Kind {
	case ChangeOption:
		return ApplyOption(list, c.Question, c.OptionID)
	case ChangeText:
		return ApplyText(list, c.Question, c.Text)
	case ChangeBookmark:
		return SetBookmark(list, c.Question.ID, c.Bookmarked)
	default:
		return MarkReviewed(list, c.Question.ID)
	}
}

// redundant is true for actions that would not change anything, e.g. clicking the
// already selected single-choice option again.
func (c Change) redundant(cur Selection, exists bool) bool {
	if !exists {
		return false
	}
	switch c.Kind {
	case ChangeOption:
		return !c.Question.QuestionType.Toggles() && cur.Response.Equal(ChoiceResponse(c.OptionID))
	case ChangeBookmark:
		return cur.Bookmarked == c.Bookmarked
	default:
		return false
	}
}

// owns reports whether stored still carries the value this change wrote.
func (c Change) owns(stored, wrote Selection) bool {
	switch c.Kind {
	case ChangeBookmark:
		return stored.Bookmarked == wrote.Bookmarked
	case ChangeReviewed:
		return stored.IsReviewed == wrote.IsReviewed
	default:
		return stored.Response.Equal(wrote.Response)
	}
}

// restore puts back the field this change touched.
func (c Change) restore(stored *Selection, prev Selection) {
	switch c.Kind {
	case ChangeBookmark:
		stored.Bookmarked = prev.Bookmarked
	case ChangeReviewed:
		stored.IsReviewed = prev.IsReviewed
	default:
		stored.Response = prev.Response.Clone()
	}
}

func (c Change) failureMessage() string {
	switch c.Kind {
	case ChangeBookmark:
		return "Failed to update bookmark. Please try again."
	case ChangeReviewed:
		return "Failed to load feedback for this question. Please try again."
	default:
		return "Failed to save answer. Please try again."
	}
}

// SubmitError is the single failure shape of the adapter, whatever went wrong on the wire.
type SubmitError struct {
	QuestionID int64
	Message    string
	Reverted   bool
	Selection  Selection
	Cause      error
}

func (e *SubmitError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *SubmitError) Unwrap() error { return e.Cause }

// Event is an analytics record emitted by the adapter.
type Event struct {
	Type       string
	SessionKey string
	QuestionID int64
	Data       any
}

const (
	EventAnswerSaved    = "AnswerSaved"
	EventAnswerReverted = "AnswerReverted"
	EventVisited        = "QuestionVisited"
	EventTestSubmitted  = "TestSubmitted"
)

type EventSink interface {
	Record(ctx context.Context, e Event)
}

type field int

const (
	fieldResponse field = iota
	fieldBookmark
	fieldReviewed
)

func (c Change) field() field {
	switch c.Kind {
	case ChangeBookmark:
		return fieldBookmark
	case ChangeReviewed:
		return fieldReviewed
	default:
		return fieldResponse
	}
}

type intentKey struct {
	session  string
	question int64
	field    field
}

// intent is one in-flight write of one field. prev is the value to fall back to
// if the write is rejected.
type intent struct {
	prev  Selection
	wrote Selection
}

// Submitter persists answer changes with an optimistic local update. One Submitter
// serves every attempt. In-flight writes of the same field are kept oldest first so
// a rejection always falls back to the last value not known to be rejected.
type Submitter struct {
	client AnswerClient
	events EventSink

	mu      sync.Mutex
	pending map[intentKey][]*intent
}

type SubmitOption func(*Submitter)

func WithEvents(e EventSink) SubmitOption { return func(s *Submitter) { s.events = e } }

func NewSubmitter(client AnswerClient, opts ...SubmitOption) *Submitter {
	s := &Submitter{client: client, pending: map[intentKey][]*intent{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Submitter) push(k intentKey, in *intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[k] = append(s.pending[k], in)
}

// settle removes in from the pending writes of k. For a rejected write it returns
// the value to restore when in was the newest pending write. A rejected older
// write instead hands its prev to the write above it, which was built on the
// rejected value.
func (s *Submitter) settle(k intentKey, in *intent, rejected bool) (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.pending[k]
	i := 0
	for i < len(stack) && stack[i] != in {
		i++
	}
	if i == len(stack) {
		return Selection{}, false
	}
	stack = append(stack[:i], stack[i+1:]...)
	if len(stack) == 0 {
		delete(s.pending, k)
	} else {
		s.pending[k] = stack
	}
	if !rejected {
		return Selection{}, false
	}
	if i < len(stack) {
		stack[i].prev = in.prev
		return Selection{}, false
	}
	return in.prev, true
}

// Forget drops the pending state of a finished attempt.
func (s *Submitter) Forget(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.pending {
		if k.session == sessionKey {
			delete(s.pending, k)
		}
	}
}

func (s *Submitter) emit(ctx context.Context, e Event) {
	if s.events != nil {
		s.events.Record(ctx, e)
	}
}

// Submit applies ch to the store, then sends the full selection for that question.
// On failure the touched field falls back to its last value not known to be
// rejected, unless the store no longer holds what this call wrote, and a
// *SubmitError is returned.
func (s *Submitter) Submit(ctx context.Context, store *SessionStore, ch Change) (Selection, error) {
	cand := store.Candidate()
	if !cand.Valid() {
		return Selection{}, ErrInvalidCandidate
	}
	qid := ch.Question.ID
	key := intentKey{session: store.Key(), question: qid, field: ch.field()}

	var (
		in     *intent
		wrote  Selection
		skip   bool
		pushed bool
	)
	store.Update(ctx, func(list []Selection) []Selection {
		var (
			prev    Selection
			existed bool
		)
		skip = false
		if i := FindSelection(list, qid); i >= 0 {
			prev, existed = list[i].Clone(), true
		} else {
			prev = Selection{QuestionRevisionID: qid, Visited: true}
		}
		if ch.redundant(prev, existed) {
			wrote, skip = prev, true
			return list
		}
		list = ch.apply(list)
		wrote = list[FindSelection(list, qid)].Clone()
		// registered under the store lock so pending writes follow the order of local writes
		if !pushed {
			in = &intent{}
			s.push(key, in)
			pushed = true
		}
		s.mu.Lock()
		in.prev, in.wrote = prev, wrote
		s.mu.Unlock()
		return list
	})
	if skip {
		if pushed {
			s.settle(key, in, false)
		}
		return wrote, nil
	}
	if !pushed {
		return Selection{}, &SubmitError{QuestionID: qid, Message: ch.failureMessage(), Cause: errSessionUnavailable}
	}

	ack, err := s.client.SubmitAnswer(ctx, cand, PayloadFor(wrote))
	if err != nil {
		var (
			reverted bool
			settled  bool
			restore  Selection
			doRevert bool
		)
		current := wrote
		store.Update(ctx, func(list []Selection) []Selection {
			if !settled {
				restore, doRevert = s.settle(key, in, true)
				settled = true
			}
			reverted = false
			i := FindSelection(list, qid)
			if i < 0 {
				return list
			}
			if doRevert && ch.owns(list[i], wrote) {
				ch.restore(&list[i], restore)
				reverted = true
			}
			current = list[i].Clone()
			return list
		})
		if !settled {
			s.settle(key, in, true)
		}
		if reverted {
			s.emit(ctx, Event{Type: EventAnswerReverted, SessionKey: store.Key(), QuestionID: qid, Data: PayloadFor(current)})
		}
		return current, &SubmitError{
			QuestionID: qid,
			Message:    ch.failureMessage(),
			Reverted:   reverted,
			Selection:  current,
			Cause:      err,
		}
	}
	s.settle(key, in, false)

	result := wrote
	if len(ack.CorrectAnswer) > 0 {
		store.Update(ctx, func(list []Selection) []Selection {
			if i := FindSelection(list, qid); i >= 0 {
				list[i].CorrectAnswer = append([]int64(nil), ack.CorrectAnswer...)
				result = list[i].Clone()
			}
			return list
		})
	}
	s.emit(ctx, Event{Type: EventAnswerSaved, SessionKey: store.Key(), QuestionID: qid, Data: PayloadFor(result)})
	return result, nil
}
