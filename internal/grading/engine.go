// Package grading classifies a finished attempt's feedback for the review screen.
// The backend owns scoring; this only explains the outcome of each question using
// the question's marking scheme.
package grading

import (
	"math"

	"github.com/mind-engage/sashakt-gateway/internal/exam"
)

type Outcome string

const (
	Correct    Outcome = "correct"
	Incorrect  Outcome = "incorrect"
	Partial    Outcome = "partial"
	Skipped    Outcome = "skipped"
	Subjective Outcome = "subjective" // awaits manual evaluation
)

// Review is the outcome of one question.
type Review struct {
	QuestionID    int64         `json:"question_revision_id"`
	Outcome       Outcome       `json:"outcome"`
	Marks         float64       `json:"marks"`
	MaxMarks      float64       `json:"max_marks"`
	Submitted     exam.Response `json:"submitted_answer"`
	CorrectAnswer []int64       `json:"correct_answer"`
}

// Strategy classifies one question.
type Strategy interface {
	Review(q exam.Question, fb exam.FeedbackEntry) Review
}

type Option func(*config)

type config struct {
	PartialCredit bool // use the partial-marks table for multi-choice
}

func WithPartialCredit(b bool) Option { return func(c *config) { c.PartialCredit = b } }

// Reviewer routes by question type to the matching Strategy.
type Reviewer struct {
	strategies map[exam.QuestionType]Strategy
	fallback   Strategy
}

func NewReviewer(opts ...Option) *Reviewer {
	cfg := &config{PartialCredit: true}
	for _, o := range opts {
		o(cfg)
	}
	multi := multiChoiceStrategy{allowPartial: cfg.PartialCredit}
	return &Reviewer{
		strategies: map[exam.QuestionType]Strategy{
			exam.SingleChoice:   singleChoiceStrategy{},
			exam.MultiChoice:    multi,
			exam.MultipleSelect: multi,
			exam.Subjective:     subjectiveStrategy{},
		},
		fallback: multi,
	}
}

// Review classifies every question in order. A question without a feedback entry is skipped.
func (r *Reviewer) Review(questions []exam.Question, feedback []exam.FeedbackEntry) []Review {
	byID := make(map[int64]exam.FeedbackEntry, len(feedback))
	for _, fb := range exam.NormalizeFeedback(feedback) {
		byID[fb.QuestionRevisionID] = fb
	}
	out := make([]Review, 0, len(questions))
	for _, q := range questions {
		fb, ok := byID[q.ID]
		if !ok {
			fb = exam.FeedbackEntry{QuestionRevisionID: q.ID, SubmittedAnswer: exam.ChoiceResponse(), CorrectAnswer: []int64{}}
		}
		s, ok := r.strategies[q.QuestionType]
		if !ok {
			s = r.fallback
		}
		out = append(out, s.Review(q, fb))
	}
	return out
}

type Summary struct {
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Partial    int     `json:"partial"`
	Skipped    int     `json:"skipped"`
	Subjective int     `json:"subjective"`
	Marks      float64 `json:"marks"`
	MaxMarks   float64 `json:"max_marks"`
}

func Summarize(reviews []Review) Summary {
	var s Summary
	for _, r := range reviews {
		switch r.Outcome {
		case Correct:
			s.Correct++
		case Incorrect:
			s.Incorrect++
		case Partial:
			s.Partial++
		case Skipped:
			s.Skipped++
		case Subjective:
			s.Subjective++
		}
		s.Marks += r.Marks
		s.MaxMarks += r.MaxMarks
	}
	return s
}

// --- Strategies ---

func base(q exam.Question, fb exam.FeedbackEntry) Review {
	return Review{
		QuestionID:    q.ID,
		MaxMarks:      q.MarkingScheme.Correct,
		Submitted:     fb.SubmittedAnswer,
		CorrectAnswer: fb.CorrectAnswer,
	}
}

// penalty turns the scheme's wrong marks into a deduction whatever sign the backend uses.
func penalty(m exam.Marks) float64 { return -math.Abs(m.Wrong) }

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Review(q exam.Question, fb exam.FeedbackEntry) Review {
	r := base(q, fb)
	if fb.SubmittedAnswer.Empty() {
		r.Outcome, r.Marks = Skipped, q.MarkingScheme.Skipped
		return r
	}
	if setEqual(toSet(fb.SubmittedAnswer.OptionIDs), toSet(fb.CorrectAnswer)) {
		r.Outcome, r.Marks = Correct, q.MarkingScheme.Correct
		return r
	}
	r.Outcome, r.Marks = Incorrect, penalty(q.MarkingScheme)
	return r
}

type multiChoiceStrategy struct{ allowPartial bool }

func (s multiChoiceStrategy) Review(q exam.Question, fb exam.FeedbackEntry) Review {
	r := base(q, fb)
	if fb.SubmittedAnswer.Empty() {
		r.Outcome, r.Marks = Skipped, q.MarkingScheme.Skipped
		return r
	}
	correct := toSet(fb.CorrectAnswer)
	resp := toSet(fb.SubmittedAnswer.OptionIDs)
	if setEqual(correct, resp) {
		r.Outcome, r.Marks = Correct, q.MarkingScheme.Correct
		return r
	}
	hasFalsePositive := false
	for id := range resp {
		if _, ok := correct[id]; !ok {
			hasFalsePositive = true
			break
		}
	}
	if s.allowPartial && !hasFalsePositive && q.MarkingScheme.Partial != nil {
		for _, pm := range q.MarkingScheme.Partial.CorrectAnswers {
			if pm.NumCorrectSelected == len(resp) {
				r.Outcome, r.Marks = Partial, pm.Marks
				return r
			}
		}
	}
	r.Outcome, r.Marks = Incorrect, penalty(q.MarkingScheme)
	return r
}

type subjectiveStrategy struct{}

func (subjectiveStrategy) Review(q exam.Question, fb exam.FeedbackEntry) Review {
	r := base(q, fb)
	if fb.SubmittedAnswer.Empty() {
		r.Outcome, r.Marks = Skipped, q.MarkingScheme.Skipped
		return r
	}
	r.Outcome = Subjective
	return r
}

// helpers

func toSet(arr []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(arr))
	for _, id := range arr {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
