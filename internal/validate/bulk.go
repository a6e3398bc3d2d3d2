package validate

import (
	"github.com/tidwall/gjson"

	"task-api/internal/errorx"
	"task-api/internal/models"
)

// Keys accepted as the identifier of a bulk update item.
var idKeys = []string{"id", "_id"}

// OnlyCompletedMessage is returned when a bulk completed update names any field but completed.
const OnlyCompletedMessage = "invalid update. Only update completed field when updating many"

// SplitID separates the identifier of a bulk update item from the fields it updates.
func SplitID(item gjson.Result) (string, Fields, error) {
	f, err := objectFields(item)
	if err != nil {
		return "", nil, err
	}

	var id string
	found := false
	for _, k := range idKeys {
		v, ok := f[k]
		if !ok {
			continue
		}
		delete(f, k)
		if found {
			continue
		}
		if v.Type != gjson.String || v.String() == "" {
			return "", nil, errorx.MalformedErrorf("%s must be a non-empty string", k)
		}
		id = v.String()
		found = true
	}
	if !found {
		return "", nil, errorx.MalformedErrorf("item has no id")
	}

	return id, f, nil
}

// CompletedTuple reads the two-element body of a bulk completed update:
// an id array (or a filter object holding one under "_id" or "id") followed
// by the update object.
func CompletedTuple(raw []byte) ([]string, Fields, error) {
	elems, err := ParseArray(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(elems) != 2 {
		return nil, nil, errorx.MalformedErrorf("expected [ids, {completed}], got %d elements", len(elems))
	}

	target := elems[0]
	if target.IsObject() {
		var list gjson.Result
		for _, k := range idKeys {
			if v := target.Get(k); v.Exists() {
				list = v
				break
			}
		}
		target = list
	}
	if !target.IsArray() {
		return nil, nil, errorx.MalformedErrorf("first element must be an array of ids")
	}
	ids, err := idStrings(target.Array())
	if err != nil {
		return nil, nil, err
	}

	f, err := objectFields(elems[1])
	if err != nil {
		return nil, nil, err
	}

	return ids, f, nil
}

// OnlyCompleted accepts a field set that is exactly {completed: bool}.
func OnlyCompleted(f Fields) (bool, error) {
	v, ok := f[FieldCompleted]
	if len(f) != 1 || !ok {
		field := ""
		for _, name := range f.Names() {
			if name != FieldCompleted {
				field = name
				break
			}
		}
		return false, errorx.InvalidUpdatef(field, OnlyCompletedMessage)
	}
	return completed(v)
}

// NewTasks validates every element of a bulk create payload. The first
// invalid item fails the whole batch.
func NewTasks(raw []byte) ([]models.NewTask, error) {
	elems, err := ParseArray(raw)
	if err != nil {
		return nil, err
	}

	tasks := make([]models.NewTask, 0, len(elems))
	for i, e := range elems {
		f, err := objectFields(e)
		if err != nil {
			return nil, errorx.WithIndex(err, i)
		}
		t, err := NewTask(f)
		if err != nil {
			return nil, errorx.WithIndex(err, i)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
