// Package validate checks the shape of task payloads before anything reaches
// the store: the field allowlist on updates and the typed schema of task fields.
package validate

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"task-api/internal/errorx"
	"task-api/internal/models"
)

const (
	FieldDescription = "description"
	FieldCompleted   = "completed"

	MaxDescriptionLength = 1000
)

// AllowedFields are the only externally mutable task fields.
var AllowedFields = []string{FieldCompleted, FieldDescription}

// Fields maps the field names present in a JSON object to their raw values.
type Fields map[string]gjson.Result

// Names returns the field names in a stable order.
func (f Fields) Names() []string {
	names := lo.Keys(map[string]gjson.Result(f))
	sort.Strings(names)
	return names
}

// ParseObject reads a JSON object. Anything else is a malformed payload.
func ParseObject(raw []byte) (Fields, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errorx.MalformedErrorf("payload is not valid JSON")
	}
	return objectFields(gjson.ParseBytes(raw))
}

func objectFields(res gjson.Result) (Fields, error) {
	if !res.IsObject() {
		return nil, errorx.MalformedErrorf("expected a JSON object")
	}
	f := Fields{}
	res.ForEach(func(key, value gjson.Result) bool {
		f[key.String()] = value
		return true
	})
	return f, nil
}

// ParseArray reads a JSON array and returns its elements.
func ParseArray(raw []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errorx.MalformedErrorf("payload is not valid JSON")
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return nil, errorx.MalformedErrorf("expected a JSON array")
	}
	return res.Array(), nil
}

// ParseIDs reads a JSON array of identifier strings. An empty body is an empty list.
func ParseIDs(raw []byte) ([]string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []string{}, nil
	}
	elems, err := ParseArray(raw)
	if err != nil {
		return nil, err
	}
	return idStrings(elems)
}

func idStrings(elems []gjson.Result) ([]string, error) {
	ids := make([]string, 0, len(elems))
	for i, e := range elems {
		if e.Type != gjson.String {
			return nil, errorx.MalformedErrorf("id at position %d is not a string", i)
		}
		ids = append(ids, e.String())
	}
	return ids, nil
}

// IsValidUpdate reports whether every field present is in AllowedFields.
// An empty field set is a valid no-op update.
func IsValidUpdate(f Fields) bool {
	for name := range f {
		if !lo.Contains(AllowedFields, name) {
			return false
		}
	}
	return true
}

// CheckAllowed is IsValidUpdate returning the error callers surface on reject.
func CheckAllowed(f Fields) error {
	for _, name := range f.Names() {
		if !lo.Contains(AllowedFields, name) {
			return errorx.InvalidUpdatef(name, errorx.InvalidUpdateMessage)
		}
	}
	return nil
}

// NewTask validates a create payload. Unknown fields are ignored, the same
// way a strict document schema drops them.
func NewTask(f Fields) (models.NewTask, error) {
	var t models.NewTask

	desc, ok := f[FieldDescription]
	if !ok || desc.Type == gjson.Null {
		return t, errorx.MissingFieldErrorf(FieldDescription, "description is required")
	}
	d, err := description(desc)
	if err != nil {
		return t, err
	}
	t.Description = d

	if v, ok := f[FieldCompleted]; ok {
		c, err := completed(v)
		if err != nil {
			return t, err
		}
		t.Completed = c
	}

	return t, nil
}

// Patch converts an allowlisted field set into a typed patch.
func Patch(f Fields) (models.TaskPatch, error) {
	var p models.TaskPatch

	if v, ok := f[FieldDescription]; ok {
		if v.Type == gjson.Null {
			return p, errorx.MissingFieldErrorf(FieldDescription, "description is required")
		}
		d, err := description(v)
		if err != nil {
			return p, err
		}
		p.Description = &d
	}

	if v, ok := f[FieldCompleted]; ok {
		c, err := completed(v)
		if err != nil {
			return p, err
		}
		p.Completed = &c
	}

	return p, nil
}

func description(v gjson.Result) (string, error) {
	if v.Type != gjson.String {
		return "", errorx.WrongTypeErrorf(FieldDescription, "description must be a string")
	}
	d := strings.TrimSpace(v.String())
	if d == "" {
		return "", errorx.MissingFieldErrorf(FieldDescription, "description is required")
	}
	if utf8.RuneCountInString(d) > MaxDescriptionLength {
		return "", errorx.TooLongErrorf(FieldDescription, "description cannot exceed %d characters", MaxDescriptionLength)
	}
	return d, nil
}

func completed(v gjson.Result) (bool, error) {
	if v.Type != gjson.True && v.Type != gjson.False {
		return false, errorx.WrongTypeErrorf(FieldCompleted, "completed must be a boolean")
	}
	return v.Bool(), nil
}
