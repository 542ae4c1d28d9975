package exam

import "errors"

// ErrMandatoryUnanswered blocks a page turn or submit. It is a gate, not a failure.
var ErrMandatoryUnanswered = errors.New("please answer all mandatory questions before continuing")

var ErrNotLastPage = errors.New("submit is only available on the last page")

// answeredIDs indexes selections with a non-empty response by question id.
func answeredIDs(selections []Selection) map[int64]bool {
	out := make(map[int64]bool, len(selections))
	for _, s := range selections {
		if !s.Response.Empty() {
			out[s.QuestionRevisionID] = true
		}
	}
	return out
}

// AllMandatoryAnswered is true when every mandatory question has a non-empty response.
// With no mandatory questions it is always true.
func AllMandatoryAnswered(selections []Selection, questions []Question) bool {
	var answered map[int64]bool
	for _, q := range questions {
		if !q.IsMandatory {
			continue
		}
		if answered == nil {
			answered = answeredIDs(selections)
		}
		if !answered[q.ID] {
			return false
		}
	}
	return true
}

// PageWindow returns the questions on page (1-based). pageSize <= 0 puts every question on page 1.
func PageWindow(page, pageSize int, questions []Question) []Question {
	if pageSize <= 0 {
		if page == 1 {
			return questions
		}
		return nil
	}
	if page < 1 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(questions) {
		return nil
	}
	end := start + pageSize
	if end > len(questions) {
		end = len(questions)
	}
	return questions[start:end]
}

// CurrentPageMandatoryAnswered applies AllMandatoryAnswered to one page window.
// Selections are matched to the window by question id, never by position.
func CurrentPageMandatoryAnswered(page, pageSize int, selections []Selection, questions []Question) bool {
	window := PageWindow(page, pageSize, questions)
	inWindow := make(map[int64]bool, len(window))
	for _, q := range window {
		inWindow[q.ID] = true
	}
	filtered := make([]Selection, 0, len(window))
	for _, s := range selections {
		if inWindow[s.QuestionRevisionID] {
			filtered = append(filtered, s)
		}
	}
	return AllMandatoryAnswered(filtered, window)
}

func PageCount(total, pageSize int) int {
	if total == 0 {
		return 1
	}
	if pageSize <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// Navigator walks the pages of one attempt, gating forward moves on mandatory questions.
type Navigator struct {
	Questions []Question
	PageSize  int
	Page      int
}

func NewNavigator(questions []Question, pageSize, page int) *Navigator {
	n := &Navigator{Questions: questions, PageSize: pageSize, Page: page}
	if n.Page < 1 {
		n.Page = 1
	}
	if last := n.LastPage(); n.Page > last {
		n.Page = last
	}
	return n
}

func (n *Navigator) LastPage() int { return PageCount(len(n.Questions), n.PageSize) }

func (n *Navigator) OnLastPage() bool { return n.Page >= n.LastPage() }

func (n *Navigator) Next(selections []Selection) error {
	if n.OnLastPage() {
		return errors.New("already on the last page")
	}
	if !CurrentPageMandatoryAnswered(n.Page, n.PageSize, selections, n.Questions) {
		return ErrMandatoryUnanswered
	}
	n.Page++
	return nil
}

// Previous is always permitted; on page 1 it stays put.
func (n *Navigator) Previous() {
	if n.Page > 1 {
		n.Page--
	}
}

// CanSubmit gates final submission, reachable only from the last page.
func (n *Navigator) CanSubmit(selections []Selection) error {
	if !n.OnLastPage() {
		return ErrNotLastPage
	}
	if !AllMandatoryAnswered(selections, n.Questions) {
		return ErrMandatoryUnanswered
	}
	return nil
}
