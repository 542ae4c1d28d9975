package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type ResponseKind string

const (
	KindChoice ResponseKind = "choice"
	KindText   ResponseKind = "text"
)

// Response is either a list of selected option ids or free text.
// The zero value is "no response" and encodes as JSON null. A choice response
// always carries a non-nil id list, so it survives a JSON round trip unchanged.
type Response struct {
	Kind      ResponseKind
	OptionIDs []int64
	Text      string
}

func ChoiceResponse(ids ...int64) Response {
	return Response{Kind: KindChoice, OptionIDs: append([]int64{}, ids...)}
}

func TextResponse(s string) Response {
	return Response{Kind: KindText, Text: s}
}

// Empty is true for a missing response, an empty id list or empty text.
func (r Response) Empty() bool {
	switch r.Kind {
	case KindChoice:
		return len(r.OptionIDs) == 0
	case KindText:
		return r.Text == ""
	default:
		return true
	}
}

func (r Response) Contains(id int64) bool {
	if r.Kind != KindChoice {
		return false
	}
	for _, v := range r.OptionIDs {
		if v == id {
			return true
		}
	}
	return false
}

func (r Response) Clone() Response {
	out := r
	if r.OptionIDs != nil || r.Kind == KindChoice {
		out.OptionIDs = append([]int64{}, r.OptionIDs...)
	}
	return out
}

// Equal compares kind and content; option order is significant.
func (r Response) Equal(o Response) bool {
	if r.Empty() && o.Empty() {
		return true
	}
	if r.Kind != o.Kind {
		return false
	}
	if r.Kind == KindText {
		return r.Text == o.Text
	}
	if len(r.OptionIDs) != len(o.OptionIDs) {
		return false
	}
	for i := range r.OptionIDs {
		if r.OptionIDs[i] != o.OptionIDs[i] {
			return false
		}
	}
	return true
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindChoice:
		return json.Marshal(r.Clone().OptionIDs)
	case KindText:
		return json.Marshal(r.Text)
	default:
		return []byte("null"), nil
	}
}

func (r *Response) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = Response{}
	case b[0] == '[':
		var ids []int64
		if err := json.Unmarshal(b, &ids); err != nil {
			return fmt.Errorf("response: option ids: %w", err)
		}
		*r = ChoiceResponse(ids...)
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("response: text: %w", err)
		}
		*r = TextResponse(s)
	default:
		return fmt.Errorf("response: unsupported json %s", string(b))
	}
	return nil
}

// NormalizeSubmitted turns the loosely typed submitted_answer of a feedback entry
// into a definite value: null becomes an empty id list and a JSON-encoded id list
// sent as a string ("[102]") is decoded. Any other string is subjective text.
func NormalizeSubmitted(r Response) Response {
	switch r.Kind {
	case KindChoice:
		return r
	case KindText:
		s := strings.TrimSpace(r.Text)
		if strings.HasPrefix(s, "[") {
			var ids []int64
			if err := json.Unmarshal([]byte(s), &ids); err == nil {
				return ChoiceResponse(ids...)
			}
		}
		return r
	default:
		return ChoiceResponse()
	}
}

// NormalizeFeedback applies NormalizeSubmitted to every entry and never returns nil.
func NormalizeFeedback(entries []FeedbackEntry) []FeedbackEntry {
	out := make([]FeedbackEntry, 0, len(entries))
	for _, e := range entries {
		e.SubmittedAnswer = NormalizeSubmitted(e.SubmittedAnswer)
		if e.CorrectAnswer == nil {
			e.CorrectAnswer = []int64{}
		}
		out = append(out, e)
	}
	return out
}
