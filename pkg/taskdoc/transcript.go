package taskdoc

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/tasklog"
)

// transcriptAPI keeps numbers as json.Number so integer timestamps survive decoding exactly.
var transcriptAPI = sonic.Config{UseNumber: true}.Froze()

var (
	ErrNotArray  = errors.New("transcript is not an array")
	ErrNotObject = errors.New("record is not an object")
)

// MarshalTranscript encodes tasks as a JSON array of task objects.
func MarshalTranscript(tasks []task.Task) ([]byte, error) {
	normalized := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		normalized = append(normalized, t.Normalized())
	}
	raw, err := transcriptAPI.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return raw, nil
}

// ParseTranscript decodes a JSON array of task objects. Elements that are not objects are skipped and
// fields that are missing or mistyped take their default.
func ParseTranscript(raw []byte) ([]task.Task, error) {
	var v any
	if err := transcriptAPI.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, ErrNotArray
	}
	out := make([]task.Task, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			tasklog.Warnf(logTag, "skipping transcript entry %d: not an object", i)
			continue
		}
		out = append(out, task.FromFields(fields))
	}
	return out, nil
}

// ParseRecord decodes one JSON task object.
func ParseRecord(raw []byte) (task.Task, error) {
	var v any
	if err := transcriptAPI.Unmarshal(raw, &v); err != nil {
		return task.Task{}, fmt.Errorf("failed to decode record: %w", err)
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return task.Task{}, ErrNotObject
	}
	return task.FromFields(fields), nil
}

// ListJSON returns the transcript of List. It never fails; an encoding error yields "[]".
func (d *Document) ListJSON() string {
	raw, err := MarshalTranscript(d.List())
	if err != nil {
		tasklog.Errorf(logTag, "list json failed: %v", err)
		return "[]"
	}
	return string(raw)
}

// RestoreJSON runs RestoreAll over a transcript. Unparseable input restores an empty list, which still
// clears the document.
func (d *Document) RestoreJSON(transcript string) {
	tasks, err := ParseTranscript([]byte(transcript))
	if err != nil {
		tasklog.Errorf(logTag, "restore treating transcript as empty: %v", err)
		tasks = nil
	}
	d.RestoreAll(tasks)
}

// AddJSON runs Add over one JSON task object. Input that is not an object is logged and skipped.
func (d *Document) AddJSON(record string) {
	t, err := ParseRecord([]byte(record))
	if err != nil {
		tasklog.Errorf(logTag, "add failed to parse record: %v", err)
		return
	}
	d.Add(t)
}

// UpdateJSON runs Update over one JSON task object. Input that is not an object is logged and skipped.
func (d *Document) UpdateJSON(id, record string) {
	t, err := ParseRecord([]byte(record))
	if err != nil {
		tasklog.Errorf(logTag, "update failed to parse record for %s: %v", id, err)
		return
	}
	d.Update(id, t)
}
