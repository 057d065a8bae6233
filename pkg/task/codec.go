package task

import (
	"encoding/json"
	"math"

	"github.com/automerge/automerge-go"
)

// Encode converts the task into the field map stored as one element of the task list.
func Encode(t Task) map[string]any {
	tags := make([]any, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, tag)
	}
	return map[string]any{
		FieldUuid:            t.Uuid,
		FieldContent:         t.Content,
		FieldIsPinned:        t.IsPinned,
		FieldCreatedAt:       t.CreatedAt,
		FieldUpdatedAt:       t.UpdatedAt,
		FieldTags:            tags,
		FieldCustomSortOrder: t.CustomSortOrder,
	}
}

// Decode reads a task from a stored value. It returns false only when the value is not a map; missing or
// mistyped fields fall back to their zero value.
func Decode(v *automerge.Value) (Task, bool) {
	if v == nil || v.Kind() != automerge.KindMap {
		return Task{}, false
	}
	m := v.Map()
	return Task{
		Uuid:            valueString(m.Get(FieldUuid)),
		Content:         valueString(m.Get(FieldContent)),
		IsPinned:        valueBool(m.Get(FieldIsPinned)),
		CreatedAt:       valueInt(m.Get(FieldCreatedAt)),
		UpdatedAt:       valueInt(m.Get(FieldUpdatedAt)),
		Tags:            valueStrings(m.Get(FieldTags)),
		CustomSortOrder: valueInt(m.Get(FieldCustomSortOrder)),
	}, true
}

// DecodeUuid reads only the uuid of a stored value. Non-map values and values without a string uuid
// yield false.
func DecodeUuid(v *automerge.Value) (string, bool) {
	if v == nil || v.Kind() != automerge.KindMap {
		return "", false
	}
	fv, err := v.Map().Get(FieldUuid)
	if err != nil || fv.Kind() != automerge.KindStr {
		return "", false
	}
	return fv.Str(), true
}

func valueString(v *automerge.Value, err error) string {
	if err != nil || v.Kind() != automerge.KindStr {
		return ""
	}
	return v.Str()
}

func valueBool(v *automerge.Value, err error) bool {
	if err != nil || v.Kind() != automerge.KindBool {
		return false
	}
	return v.Bool()
}

func valueInt(v *automerge.Value, err error) int64 {
	if err != nil {
		return 0
	}
	switch v.Kind() {
	case automerge.KindInt64:
		return v.Int64()
	case automerge.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u)
		}
	case automerge.KindFloat64:
		return floatInt(v.Float64())
	}
	return 0
}

func valueStrings(v *automerge.Value, err error) []string {
	out := []string{}
	if err != nil || v.Kind() != automerge.KindList {
		return out
	}
	items, err := v.List().Values()
	if err != nil {
		return out
	}
	for _, item := range items {
		if item.Kind() == automerge.KindStr {
			out = append(out, item.Str())
		}
	}
	return out
}

// FromFields reads a task from a generic decoded JSON object with the same defaulting rules as Decode.
func FromFields(fields map[string]any) Task {
	return Task{
		Uuid:            fieldString(fields[FieldUuid]),
		Content:         fieldString(fields[FieldContent]),
		IsPinned:        fieldBool(fields[FieldIsPinned]),
		CreatedAt:       fieldInt(fields[FieldCreatedAt]),
		UpdatedAt:       fieldInt(fields[FieldUpdatedAt]),
		Tags:            fieldStrings(fields[FieldTags]),
		CustomSortOrder: fieldInt(fields[FieldCustomSortOrder]),
	}
}

func fieldString(v any) string {
	s, _ := v.(string)
	return s
}

func fieldBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func fieldInt(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return floatInt(f)
		}
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return floatInt(n)
	}
	return 0
}

func fieldStrings(v any) []string {
	out := []string{}
	switch items := v.(type) {
	case []any:
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, items...)
	}
	return out
}

// floatInt accepts only integral values in range; anything else is the default.
func floatInt(f float64) int64 {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}
