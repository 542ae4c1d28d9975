// Package form validates the candidate profile form a test may ask for before it starts.
package form

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

type FieldType string

const (
	FullName    FieldType = "full_name"
	Email       FieldType = "email"
	Phone       FieldType = "phone"
	Text        FieldType = "text"
	Textarea    FieldType = "textarea"
	Number      FieldType = "number"
	Date        FieldType = "date"
	Select      FieldType = "select"
	Radio       FieldType = "radio"
	Checkbox    FieldType = "checkbox"
	MultiSelect FieldType = "multi_select"
	Entity      FieldType = "entity"
	State       FieldType = "state"
	District    FieldType = "district"
	Block       FieldType = "block"
)

type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type Validation struct {
	MinLength          *int     `json:"min_length,omitempty"`
	MaxLength          *int     `json:"max_length,omitempty"`
	MinValue           *float64 `json:"min_value,omitempty"`
	MaxValue           *float64 `json:"max_value,omitempty"`
	Pattern            string   `json:"pattern,omitempty"`
	CustomErrorMessage string   `json:"custom_error_message,omitempty"`
}

type Field struct {
	ID           int64       `json:"id"`
	FieldType    FieldType   `json:"field_type"`
	Label        string      `json:"label"`
	Name         string      `json:"name"`
	Placeholder  string      `json:"placeholder,omitempty"`
	HelpText     string      `json:"help_text,omitempty"`
	IsRequired   bool        `json:"is_required"`
	Order        int         `json:"order"`
	Options      []Option    `json:"options,omitempty"`
	Validation   *Validation `json:"validation,omitempty"`
	DefaultValue string      `json:"default_value,omitempty"`
	EntityTypeID *int64      `json:"entity_type_id,omitempty"`
}

type Form struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
}

// Sorted returns the fields in display order.
func (f Form) Sorted() []Field {
	out := append([]Field(nil), f.Fields...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Errors maps field name to its first validation message.
type Errors map[string]string

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[0-9+\-\s()]{7,20}$`)
)

func (f Field) message(fallback string) string {
	if f.Validation != nil && f.Validation.CustomErrorMessage != "" {
		return f.Validation.CustomErrorMessage
	}
	return fallback
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

// ValidateField returns the first problem with value, or "" when it is acceptable.
// value is a decoded JSON value (string, float64, bool, []any, ...).
func ValidateField(f Field, value any) string {
	if f.IsRequired {
		if isEmpty(value) {
			return f.message(f.Label + " is required")
		}
		if list, ok := value.([]any); ok && len(list) == 0 {
			return f.message(f.Label + " is required")
		}
	}
	if isEmpty(value) {
		return ""
	}
	s := stringValue(value)

	switch f.FieldType {
	case Email:
		if !emailRe.MatchString(s) || !gojsonschema.FormatCheckers.IsFormat("email", s) {
			return f.message("Please enter a valid email address")
		}
	case Phone:
		if !phoneRe.MatchString(s) {
			return f.message("Please enter a valid phone number")
		}
	}

	v := f.Validation
	if v == nil {
		return ""
	}
	n := utf8.RuneCountInString(s)
	if v.MinLength != nil && n < *v.MinLength {
		return f.message(fmt.Sprintf("%s must be at least %d characters", f.Label, *v.MinLength))
	}
	if v.MaxLength != nil && n > *v.MaxLength {
		return f.message(fmt.Sprintf("%s must be at most %d characters", f.Label, *v.MaxLength))
	}

	if f.FieldType == Number {
		num := numberValue(value)
		if math.IsNaN(num) {
			return f.message(f.Label + " must be a valid number")
		}
		if v.MinValue != nil && num < *v.MinValue {
			return f.message(fmt.Sprintf("%s must be at least %s", f.Label, formatNumber(*v.MinValue)))
		}
		if v.MaxValue != nil && num > *v.MaxValue {
			return f.message(fmt.Sprintf("%s must be at most %s", f.Label, formatNumber(*v.MaxValue)))
		}
	}

	if v.Pattern != "" {
		// patterns Go cannot compile are skipped
		if re, err := regexp.Compile(v.Pattern); err == nil && !re.MatchString(s) {
			return f.message(f.Label + " has an invalid format")
		}
	}
	return ""
}

// ValidateForm checks every field of fields against responses; an empty result means valid.
func ValidateForm(fields []Field, responses map[string]any) Errors {
	errs := Errors{}
	for _, f := range fields {
		if msg := ValidateField(f, responses[f.Name]); msg != "" {
			errs[f.Name] = msg
		}
	}
	return errs
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringValue(e)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func numberValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
