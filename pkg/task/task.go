// Package task holds the task record and the codec between it and the structured values stored in the
// replicated document.
package task

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"
)

// ErrInvalidText is returned by Validate for text that is not valid UTF-8.
var ErrInvalidText = errors.New("text is not valid utf-8")

// Task is the unit of replication. Uuid identifies the record; every other field is caller owned and is
// replaced as a whole on update.
type Task struct {
	Uuid            string   `json:"uuid"`
	Content         string   `json:"content"`
	IsPinned        bool     `json:"is_pinned"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
	Tags            []string `json:"tags"`
	CustomSortOrder int64    `json:"custom_sort_order"`
}

// Field names used in the stored field map and the JSON transcript.
const (
	FieldUuid            = "uuid"
	FieldContent         = "content"
	FieldIsPinned        = "is_pinned"
	FieldCreatedAt       = "created_at"
	FieldUpdatedAt       = "updated_at"
	FieldTags            = "tags"
	FieldCustomSortOrder = "custom_sort_order"
)

// Equal reports whether both tasks carry the same field values. A nil and an empty tag list are equal.
func (t Task) Equal(o Task) bool {
	return t.Uuid == o.Uuid &&
		t.Content == o.Content &&
		t.IsPinned == o.IsPinned &&
		t.CreatedAt == o.CreatedAt &&
		t.UpdatedAt == o.UpdatedAt &&
		t.CustomSortOrder == o.CustomSortOrder &&
		slices.Equal(t.Tags, o.Tags)
}

// Normalized returns a copy of t with a non-nil tag list so it always renders as an array.
func (t Task) Normalized() Task {
	if t.Tags == nil {
		t.Tags = []string{}
	} else {
		t.Tags = slices.Clone(t.Tags)
	}
	return t
}

// Validate checks that every text field of t can be stored unchanged.
func (t Task) Validate() error {
	if !utf8.ValidString(t.Uuid) {
		return fmt.Errorf("%s: %w", FieldUuid, ErrInvalidText)
	}
	if !utf8.ValidString(t.Content) {
		return fmt.Errorf("%s: %w", FieldContent, ErrInvalidText)
	}
	for i, tag := range t.Tags {
		if !utf8.ValidString(tag) {
			return fmt.Errorf("%s[%d]: %w", FieldTags, i, ErrInvalidText)
		}
	}
	return nil
}
