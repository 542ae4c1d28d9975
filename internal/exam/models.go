package exam

import (
	"strings"

	"github.com/mind-engage/sashakt-gateway/internal/form"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single-choice"
	MultiChoice    QuestionType = "multi-choice"
	MultipleSelect QuestionType = "multiple-select" // older backends
	Subjective     QuestionType = "subjective"
)

// Toggles reports whether clicking an option adds/removes it instead of replacing the answer.
func (t QuestionType) Toggles() bool {
	return t != SingleChoice && t != Subjective
}

type Option struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type PartialMark struct {
	NumCorrectSelected int     `json:"num_correct_selected"`
	Marks              float64 `json:"marks"`
}

type PartialMarks struct {
	CorrectAnswers []PartialMark `json:"correct_answers"`
}

type Marks struct {
	Correct float64       `json:"correct"`
	Wrong   float64       `json:"wrong"`
	Skipped float64       `json:"skipped"`
	Partial *PartialMarks `json:"partial,omitempty"`
}

type Question struct {
	ID                    int64          `json:"id"`
	QuestionText          string         `json:"question_text"`
	Instructions          string         `json:"instructions"`
	QuestionType          QuestionType   `json:"question_type"`
	Options               []Option       `json:"options"`
	SubjectiveAnswerLimit int            `json:"subjective_answer_limit"`
	IsMandatory           bool           `json:"is_mandatory"`
	MarkingScheme         Marks          `json:"marking_scheme"`
	Media                 map[string]any `json:"media"`
}

// HasOption reports whether id belongs to q's option list.
func (q Question) HasOption(id int64) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Selection is the candidate's answer record for one question.
type Selection struct {
	QuestionRevisionID int64    `json:"question_revision_id"`
	Response           Response `json:"response"`
	Visited            bool     `json:"visited"`
	TimeSpent          int      `json:"time_spent"`
	Bookmarked         bool     `json:"bookmarked"`
	IsReviewed         bool     `json:"is_reviewed"`
	CorrectAnswer      []int64  `json:"correct_answer,omitempty"`
}

// Clone returns a deep copy so callers can hold a snapshot across mutations.
func (s Selection) Clone() Selection {
	out := s
	out.Response = s.Response.Clone()
	if s.CorrectAnswer != nil {
		out.CorrectAnswer = append([]int64(nil), s.CorrectAnswer...)
	}
	return out
}

type Candidate struct {
	CandidateUUID   string `json:"candidate_uuid"`
	CandidateTestID int64  `json:"candidate_test_id"`
}

func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.CandidateUUID) != "" && c.CandidateTestID > 0
}

// TestSession is the persisted record for one attempt.
type TestSession struct {
	Candidate   Candidate   `json:"candidate"`
	Selections  []Selection `json:"selections"`
	CurrentPage int         `json:"currentPage"`
}

type OMRMode string

const (
	OMRNever    OMRMode = "NEVER"
	OMROptional OMRMode = "OPTIONAL"
	OMRAlways   OMRMode = "ALWAYS"
)

// TestDetails is the public description of a test, looked up by its link slug.
type TestDetails struct {
	ID                       int64          `json:"id"`
	Name                     string         `json:"name"`
	Link                     string         `json:"link"`
	TotalQuestions           int            `json:"total_questions"`
	TimeLimit                *int           `json:"time_limit"`
	QuestionPagination       *int           `json:"question_pagination"`
	StartTime                string         `json:"start_time,omitempty"`
	StartInstructions        string         `json:"start_instructions,omitempty"`
	CompletionMessage        string         `json:"completion_message,omitempty"`
	Locale                   string         `json:"locale,omitempty"`
	ShowQuestionPalette      bool           `json:"show_question_palette"`
	OMR                      OMRMode        `json:"omr"`
	ShowFeedbackOnCompletion bool           `json:"show_feedback_on_completion"`
	CandidateProfile         *bool          `json:"candidate_profile"`
	ProfileList              []ProfileEntry `json:"profile_list,omitempty"`
	Form                     *form.Form     `json:"form"`
}

type ProfileEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type TestQuestions struct {
	QuestionRevisions  []Question `json:"question_revisions"`
	QuestionPagination *int       `json:"question_pagination"`
}

// PageSize returns the configured page size; 0 means every question on one page.
func (tq TestQuestions) PageSize() int {
	if tq.QuestionPagination == nil || *tq.QuestionPagination < 0 {
		return 0
	}
	return *tq.QuestionPagination
}

type ResultData struct {
	CorrectAnswer          int      `json:"correct_answer"`
	IncorrectAnswer        int      `json:"incorrect_answer"`
	MandatoryNotAttempted  int      `json:"mandatory_not_attempted"`
	OptionalNotAttempted   int      `json:"optional_not_attempted"`
	MarksObtained          *float64 `json:"marks_obtained"`
	MarksMaximum           *float64 `json:"marks_maximum"`
	TotalQuestions         int      `json:"total_questions"`
	CertificateDownloadURL string   `json:"certificate_download_url,omitempty"`
}

type FeedbackEntry struct {
	QuestionRevisionID int64    `json:"question_revision_id"`
	SubmittedAnswer    Response `json:"submitted_answer"`
	CorrectAnswer      []int64  `json:"correct_answer"`
}
