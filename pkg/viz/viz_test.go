package viz

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/taskdoc"
)

func historyDoc(t *testing.T) *taskdoc.Document {
	t.Helper()
	doc := taskdoc.New(taskdoc.WithActorID("aa"))
	doc.Add(task.Task{Uuid: "a"})
	doc.Add(task.Task{Uuid: "b"})
	return doc
}

func TestWriteDot(t *testing.T) {
	doc := historyDoc(t)
	revisions, err := doc.History()
	if err != nil {
		t.Fatal(err)
	}
	var buff bytes.Buffer
	if err := WriteDot(&buff, revisions); err != nil {
		t.Fatal(err)
	}
	out := buff.String()
	if !strings.HasPrefix(out, `digraph "log" {`) || !strings.HasSuffix(out, "}\n") {
		t.Fatalf("unexpected dot %q", out)
	}
	if strings.Count(out, "->") != 2 {
		t.Errorf("expected two edges, got %q", out)
	}
	if !strings.Contains(out, "aa@2 tasks=2") {
		t.Errorf("expected label for last change, got %q", out)
	}
}

func TestRenderToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.svg")
	if err := RenderToFile(historyDoc(t), path); err != nil {
		t.Fatalf("RenderToFile failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "<svg") {
		t.Fatalf("expected svg output, got %q", raw)
	}
}
