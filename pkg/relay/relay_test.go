package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/tasksync/pkg/snapshot"
	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/taskdoc"
	"github.com/astromechza/tasksync/pkg/wsync"
)

func setupRelay(t *testing.T) (*Server, *snapshot.Store, *Client) {
	t.Helper()
	store, err := snapshot.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open snapshots: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	s, err := NewServer(context.Background(), store, Config{KeepSnapshots: 2, SyncInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(httpServer.Close)
	u, _ := url.Parse(httpServer.URL)
	return s, store, &Client{BaseURL: u}
}

func TestUnknownStore(t *testing.T) {
	_, _, c := setupRelay(t)
	if _, err := c.Latest(context.Background(), "missing"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
	if _, err := c.Tasks(context.Background(), "missing"); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestPushAndRead(t *testing.T) {
	_, _, c := setupRelay(t)
	ctx := context.Background()

	doc := taskdoc.New()
	want := task.Task{Uuid: "p1", Content: "pushed", Tags: []string{}}
	doc.Add(want)

	merged, err := c.Push(ctx, "default", doc.CaptureState())
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	other := taskdoc.New()
	other.ApplyUpdate(merged)
	if got := other.List(); len(got) != 1 || !got[0].Equal(want) {
		t.Fatalf("unexpected merged tasks %+v", got)
	}

	tasks, err := c.Tasks(ctx, "default")
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 1 || !tasks[0].Equal(want) {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	latest, err := c.Latest(ctx, "default")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if _, err := taskdoc.Load(latest); err != nil {
		t.Fatalf("expected loadable latest: %v", err)
	}
}

func TestPushRejectsGarbage(t *testing.T) {
	_, _, c := setupRelay(t)
	_, err := c.Push(context.Background(), "default", []byte("garbage"))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestSyncRejectsMessagesWithoutCookie(t *testing.T) {
	_, _, c := setupRelay(t)
	resp, err := http.Post(c.BaseURL.JoinPath("stores/default/sync").String(), "application/json",
		bytes.NewReader([]byte(`{"messages":["AAEC"]}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCookieSyncBetweenTwoDevices(t *testing.T) {
	s, _, c := setupRelay(t)
	ctx := context.Background()

	s.Document("shared", func(doc *taskdoc.Document) {
		doc.Add(task.Task{Uuid: "relay", Content: "on the relay"})
	})

	a, b := taskdoc.New(), taskdoc.New()
	a.Add(task.Task{Uuid: "a", Content: "from a"})
	b.Add(task.Task{Uuid: "b", Content: "from b"})

	cookieA, err := c.Sync(ctx, "shared", a, nil)
	if err != nil {
		t.Fatalf("sync a failed: %v", err)
	}
	if _, err := c.Sync(ctx, "shared", b, nil); err != nil {
		t.Fatalf("sync b failed: %v", err)
	}
	if _, err := c.Sync(ctx, "shared", a, cookieA); err != nil {
		t.Fatalf("resync a failed: %v", err)
	}

	gotA, gotB := a.List(), b.List()
	if len(gotA) != 3 || len(gotB) != 3 {
		t.Fatalf("expected three tasks on both, got %+v and %+v", gotA, gotB)
	}
	for i := range gotA {
		if !gotA[i].Equal(gotB[i]) {
			t.Fatalf("task %d differs: %+v vs %+v", i, gotA[i], gotB[i])
		}
	}
}

func TestWebsocketSync(t *testing.T) {
	s, _, c := setupRelay(t)
	s.Document("ws", func(doc *taskdoc.Document) {
		doc.Add(task.Task{Uuid: "relay"})
	})

	u := c.BaseURL.JoinPath("stores/ws/ws")
	u.Scheme = "ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}

	local := taskdoc.New()
	lock := new(sync.Mutex)
	session := &wsync.Session{Peer: local.NewPeer(), Lock: lock, Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Sync(ctx, conn) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		lock.Lock()
		n := len(local.List())
		lock.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for websocket sync")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestBackupAndReload(t *testing.T) {
	s, store, _ := setupRelay(t)
	ctx := context.Background()

	for i, id := range []string{"one", "two", "three"} {
		s.Document("backup", func(doc *taskdoc.Document) {
			doc.Add(task.Task{Uuid: id, CustomSortOrder: int64(i)})
		})
		if err := s.Backup(ctx); err != nil {
			t.Fatalf("Backup failed: %v", err)
		}
	}
	// nothing changed, nothing written
	if err := s.Backup(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Count(ctx, "backup"); n != 2 {
		t.Fatalf("expected pruning to keep 2 snapshots, got %d", n)
	}

	reloaded, err := NewServer(ctx, store, Config{})
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	reloaded.Document("backup", func(doc *taskdoc.Document) {
		if got := doc.List(); len(got) != 3 || got[0].Uuid != "three" {
			t.Fatalf("unexpected reloaded tasks %+v", got)
		}
	})
}

func TestHistorySvg(t *testing.T) {
	_, _, c := setupRelay(t)
	ctx := context.Background()

	doc := taskdoc.New()
	doc.Add(task.Task{Uuid: "h1", Tags: []string{}})
	if _, err := c.Push(ctx, "default", doc.CaptureState()); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	resp, err := http.Get(c.BaseURL.JoinPath("stores", "default", "history").String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body.String(), "<svg") {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body.String())
	}

	resp, err = http.Get(c.BaseURL.JoinPath("stores", "missing", "history").String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
