package exam

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

const selectionSchema = `{
  "type": "object",
  "required": ["question_revision_id"],
  "properties": {
    "question_revision_id": {"type": "integer"},
    "response": {"type": ["array", "string", "null"], "items": {"type": "integer"}},
    "visited": {"type": "boolean"},
    "time_spent": {"type": "integer"},
    "bookmarked": {"type": "boolean"},
    "is_reviewed": {"type": "boolean"},
    "correct_answer": {"type": ["array", "null"], "items": {"type": "integer"}}
  }
}`

var (
	sessionRecordSchema = mustSchema(`{
  "type": "object",
  "properties": {
    "candidate": {"type": ["object", "null"]},
    "selections": {"type": ["array", "null"], "items": ` + selectionSchema + `},
    "currentPage": {"type": "integer"}
  }
}`)
	selectionListSchema = mustSchema(`{"type": "array", "items": ` + selectionSchema + `}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(err)
	}
	return s
}

// DecodeSession parses a stored record. Both the wrapped TestSession layout and a bare
// selection array are accepted. Duplicate selections collapse to the last one.
func DecodeSession(data []byte) (TestSession, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return TestSession{}, errors.New("empty session record")
	}
	bare := data[0] == '['
	schema := sessionRecordSchema
	if bare {
		schema = selectionListSchema
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return TestSession{}, errors.Wrap(err, "parse session record")
	}
	if !res.Valid() {
		return TestSession{}, errors.Errorf("session record does not match schema: %v", res.Errors())
	}

	var ts TestSession
	if bare {
		err = json.Unmarshal(data, &ts.Selections)
	} else {
		err = json.Unmarshal(data, &ts)
	}
	if err != nil {
		return TestSession{}, errors.Wrap(err, "decode session record")
	}
	ts.Selections = dedupe(ts.Selections)
	if ts.CurrentPage < 1 {
		ts.CurrentPage = 1
	}
	return ts, nil
}

func EncodeSession(ts TestSession) ([]byte, error) {
	if ts.Selections == nil {
		ts.Selections = []Selection{}
	}
	b, err := json.Marshal(ts)
	return b, errors.Wrap(err, "encode session record")
}

func dedupe(list []Selection) []Selection {
	out := make([]Selection, 0, len(list))
	for _, s := range list {
		if i := FindSelection(out, s.QuestionRevisionID); i >= 0 {
			out[i] = s
			continue
		}
		out = append(out, s)
	}
	return out
}
