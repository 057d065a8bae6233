package taskdoc

import (
	"encoding/hex"
	"testing"

	"github.com/astromechza/tasksync/pkg/task"
)

func syncBoth(a, b *Document) {
	a.ApplyUpdate(b.CaptureState())
	b.ApplyUpdate(a.CaptureState())
}

func TestSyncConvergence(t *testing.T) {
	a, b := New(), New()
	want := task.Task{Uuid: "sync_1", Content: "Sync Me", IsPinned: true, CreatedAt: 123, UpdatedAt: 123, Tags: []string{}}
	a.Add(want)
	b.ApplyUpdate(a.CaptureState())
	assertTasks(t, b.List(), want)
}

func TestApplyIsIdempotent(t *testing.T) {
	a, b := New(), New()
	a.Add(sample("x", "X"))
	a.Add(sample("y", "Y"))
	state := a.CaptureState()
	b.ApplyUpdate(state)
	once := b.List()
	b.ApplyUpdate(state)
	assertTasks(t, b.List(), once...)
	assertTasks(t, b.List(), a.List()...)
}

func TestCaptureStateIsReadOnly(t *testing.T) {
	a := New()
	a.Add(sample("x", "X"))
	heads := a.Heads()
	_ = a.CaptureState()
	_ = a.CaptureState()
	if len(a.Heads()) != len(heads) || a.Heads()[0] != heads[0] {
		t.Fatal("expected capture to leave heads unchanged")
	}
}

func TestApplyMalformedUpdateIsIgnored(t *testing.T) {
	a := New()
	a.Add(sample("x", "X"))
	logs.reset()
	a.ApplyUpdate([]byte("definitely not an automerge document"))
	assertTasks(t, a.List(), sample("x", "X"))
	if !logs.contains("ERROR TaskDocument discarding update") {
		t.Fatal("expected malformed update to be logged at error")
	}
}

func TestConcurrentDeleteAndUpdateUpdateWins(t *testing.T) {
	a, b := New(), New()
	a.Add(sample("y", "Y"))
	a.Add(sample("x", "X"))
	b.ApplyUpdate(a.CaptureState())
	assertTasks(t, b.List(), a.List()...)

	a.Delete("x")
	x2 := sample("x", "X edited on b")
	b.Update("x", x2)

	syncBoth(a, b)
	assertTasks(t, a.List(), b.List()...)
	assertTasks(t, a.List(), x2, sample("y", "Y"))
}

func TestConcurrentUpdatesKeepBothRevisions(t *testing.T) {
	a, b := New(), New()
	a.Add(sample("x", "X"))
	b.ApplyUpdate(a.CaptureState())

	a.Update("x", sample("x", "from a"))
	b.Update("x", sample("x", "from b"))
	syncBoth(a, b)

	got := a.List()
	assertTasks(t, got, b.List()...)
	if len(got) != 2 || got[0].Uuid != "x" || got[1].Uuid != "x" {
		t.Fatalf("expected both revisions to survive, got %+v", got)
	}
}

func TestConcurrentAddsBothSurvive(t *testing.T) {
	a, b := New(), New()
	a.Add(sample("from-a", "A"))
	b.Add(sample("from-b", "B"))
	syncBoth(a, b)
	got := a.List()
	assertTasks(t, got, b.List()...)
	if len(got) != 2 {
		t.Fatalf("expected two tasks, got %+v", got)
	}
}

func TestIndependentDocumentsShareOneList(t *testing.T) {
	a, b := New(), New()
	b.Add(sample("b", "B"))
	a.Add(sample("a", "A"))
	b.ApplyUpdate(a.CaptureState())
	if len(b.List()) != 2 {
		t.Fatalf("expected merged list, got %+v", b.List())
	}
}

func TestSaveLoad(t *testing.T) {
	a := New(WithAddPolicy(Upsert))
	a.Add(sample("x", "X"))
	loaded, err := Load(a.Save(), WithAddPolicy(Upsert))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertTasks(t, loaded.List(), sample("x", "X"))
	if loaded.ActorID() == a.ActorID() {
		t.Fatal("expected loaded document to write as a new actor")
	}
	loaded.Add(sample("x", "X2"))
	assertTasks(t, loaded.List(), sample("x", "X2"))

	if _, err := Load([]byte("garbage")); err == nil {
		t.Fatal("expected error loading garbage")
	}
}

func TestHistory(t *testing.T) {
	a := New()
	a.Add(sample("x", "X"))
	a.Add(sample("y", "Y"))
	a.Delete("x")
	revisions, err := a.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(revisions) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(revisions))
	}
	counts := []int{0, 1, 2, 1}
	for i, r := range revisions {
		if r.Tasks != counts[i] {
			t.Errorf("revision %d: expected %d tasks, got %d", i, counts[i], r.Tasks)
		}
	}
	if revisions[0].Actor != hex.EncodeToString([]byte("tasksync/genesis")) || len(revisions[0].Dependencies) != 0 {
		t.Errorf("unexpected genesis revision %+v", revisions[0])
	}
	if revisions[1].Actor != a.ActorID() || revisions[1].Dependencies[0] != revisions[0].Hash {
		t.Errorf("unexpected revision %+v", revisions[1])
	}
	if heads := a.Heads(); len(heads) != 1 || heads[0] != revisions[3].Hash {
		t.Errorf("unexpected heads %v", heads)
	}
}

func TestPeerExchangeConverges(t *testing.T) {
	a, b := New(), New()
	a.Add(sample("a", "A"))
	b.Add(sample("b", "B"))
	if err := Exchange(a.NewPeer(), b.NewPeer()); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	assertTasks(t, a.List(), b.List()...)
	if len(a.List()) != 2 {
		t.Fatalf("expected two tasks, got %+v", a.List())
	}
}

func TestPeerResumesFromCookie(t *testing.T) {
	a, b := New(), New()
	pa, pb := a.NewPeer(), b.NewPeer()
	a.Add(sample("a", "A"))
	if err := Exchange(pa, pb); err != nil {
		t.Fatal(err)
	}

	resumed, err := a.LoadPeer(pa.Save())
	if err != nil {
		t.Fatalf("LoadPeer failed: %v", err)
	}
	a.Add(sample("a2", "A2"))
	if err := Exchange(resumed, pb); err != nil {
		t.Fatal(err)
	}
	assertTasks(t, b.List(), a.List()...)

	if _, err := a.LoadPeer([]byte("garbage")); err == nil {
		t.Fatal("expected bad cookie to fail")
	}
	if err := pb.Receive([]byte("garbage")); err == nil {
		t.Fatal("expected bad message to fail")
	}
}
