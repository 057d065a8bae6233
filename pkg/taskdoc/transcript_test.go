package taskdoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/astromechza/tasksync/pkg/task"
)

func TestListJSONShape(t *testing.T) {
	doc := New()
	doc.Add(task.Task{Uuid: "u1", Content: "hi", CreatedAt: 1700000000123, UpdatedAt: 1700000000456})
	got := doc.ListJSON()
	want := `[{"uuid":"u1","content":"hi","is_pinned":false,"created_at":1700000000123,"updated_at":1700000000456,"tags":[],"custom_sort_order":0}]`
	if got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
}

func TestRestoreJSONRoundTrip(t *testing.T) {
	a := New()
	a.Add(sample("a", "A"))
	a.Add(task.Task{Uuid: "b", IsPinned: true, Tags: []string{"z", "y"}, CustomSortOrder: -2})
	b := New()
	b.RestoreJSON(a.ListJSON())
	assertTasks(t, b.List(), a.List()...)
	if b.ListJSON() != a.ListJSON() {
		t.Fatal("expected identical transcripts")
	}
}

func TestRestoreJSONGarbageClears(t *testing.T) {
	for _, input := range []string{"not json", `{"uuid":"x"}`, ""} {
		doc := New()
		doc.Add(sample("x", "X"))
		doc.RestoreJSON(input)
		assertTasks(t, doc.List())
	}
}

func TestRestoreJSONSkipsNonObjects(t *testing.T) {
	doc := New()
	doc.RestoreJSON(`[1, "two", {"uuid":"three","content":"3"}, null, {"uuid":"four","tags":"nope"}]`)
	assertTasks(t, doc.List(), task.Task{Uuid: "three", Content: "3"}, task.Task{Uuid: "four"})
}

func TestAddJSON(t *testing.T) {
	doc := New()
	doc.AddJSON(`{"uuid":"j1","content":"c","is_pinned":"yes","created_at":5,"tags":["t"]}`)
	assertTasks(t, doc.List(), task.Task{Uuid: "j1", Content: "c", CreatedAt: 5, Tags: []string{"t"}})

	logs.reset()
	doc.AddJSON(`["not", "an", "object"]`)
	doc.AddJSON(`{broken`)
	if len(doc.List()) != 1 {
		t.Fatalf("expected malformed adds to be skipped, got %+v", doc.List())
	}
	if !logs.contains("add failed to parse record") {
		t.Fatal("expected parse failure to be logged")
	}
}

func TestUpdateJSON(t *testing.T) {
	doc := New()
	doc.AddJSON(`{"uuid":"j1","content":"c","tags":["t"]}`)
	doc.UpdateJSON("j1", `{"uuid":"j1","content":"c2"}`)
	assertTasks(t, doc.List(), task.Task{Uuid: "j1", Content: "c2"})
	doc.UpdateJSON("j1", `42`)
	assertTasks(t, doc.List(), task.Task{Uuid: "j1", Content: "c2"})
}

func TestParseTranscriptErrors(t *testing.T) {
	if _, err := ParseTranscript([]byte(`{}`)); !errors.Is(err, ErrNotArray) {
		t.Fatalf("expected ErrNotArray, got %v", err)
	}
	if _, err := ParseTranscript([]byte(`[`)); err == nil || !strings.Contains(err.Error(), "failed to decode transcript") {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := ParseRecord([]byte(`[]`)); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestParseTranscriptKeepsLargeIntegers(t *testing.T) {
	tasks, err := ParseTranscript([]byte(`[{"uuid":"big","created_at":9007199254740993}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].CreatedAt != 9007199254740993 {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}
