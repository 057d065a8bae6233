// Package taskdoc is the replicated task list. A Document owns one automerge document holding a single
// list of task field maps, and exposes task CRUD plus full-state capture and update application.
//
// A Document is not safe for concurrent use; callers serialise access to each instance.
package taskdoc

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"

	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/tasklog"
)

const (
	listKey = "tasks"
	logTag  = "TaskDocument"
)

// genesis is the shared first change of every document: it creates the empty task list. Building it with
// a fixed actor and no timestamp gives the same change hash in every process, so documents created
// independently agree on a single list object when they merge.
var genesis = sync.OnceValue(func() []byte {
	doc := automerge.New()
	if err := doc.SetActorID(hex.EncodeToString([]byte("tasksync/genesis"))); err != nil {
		panic(fmt.Errorf("failed to set genesis actor: %w", err))
	}
	if err := doc.Path(listKey).Set(automerge.NewList()); err != nil {
		panic(fmt.Errorf("failed to create task list: %w", err))
	}
	if _, err := doc.Commit("genesis", automerge.CommitOptions{Time: &time.Time{}}); err != nil {
		panic(fmt.Errorf("failed to commit genesis: %w", err))
	}
	return doc.Save()
})

// Document is one device's replica of the task list.
type Document struct {
	doc       *automerge.Doc
	addPolicy AddPolicy
}

// New returns an empty document.
func New(opts ...Option) *Document {
	doc, err := automerge.Load(genesis())
	if err != nil {
		panic(fmt.Errorf("failed to load genesis: %w", err))
	}
	d := newDocument(doc, opts)
	tasklog.Infof(logTag, "document initialized actor=%s policy=%s", d.ActorID(), d.addPolicy)
	return d
}

// Load restores a document from bytes produced by Save or CaptureState.
func Load(raw []byte, opts ...Option) (*Document, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	d := newDocument(doc, opts)
	tasklog.Infof(logTag, "document loaded actor=%s tasks=%d", d.ActorID(), len(d.List()))
	return d, nil
}

func newDocument(doc *automerge.Doc, opts []Option) *Document {
	o := options{actorID: randomActorID()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := doc.SetActorID(o.actorID); err != nil {
		tasklog.Warnf(logTag, "ignoring invalid actor id %q: %v", o.actorID, err)
		_ = doc.SetActorID(randomActorID())
	}
	return &Document{doc: doc, addPolicy: o.addPolicy}
}

func randomActorID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AddPolicy returns the duplicate-uuid policy of Add.
func (d *Document) AddPolicy() AddPolicy {
	return d.addPolicy
}

// ActorID returns the hex actor id new changes are written as.
func (d *Document) ActorID() string {
	return d.doc.ActorID()
}

// taskList resolves the task list object of doc. Mutations need the resolved object; a list reached
// through a path alone carries no object id.
func taskList(doc *automerge.Doc) (*automerge.List, error) {
	v, err := doc.Path(listKey).Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", listKey, err)
	}
	if v.Kind() != automerge.KindList {
		return nil, fmt.Errorf("%s is a %v, not a list", listKey, v.Kind())
	}
	return v.List(), nil
}

func (d *Document) list() (*automerge.List, bool) {
	l, err := taskList(d.doc)
	if err != nil {
		tasklog.Errorf(logTag, "failed to resolve task list: %v", err)
		return nil, false
	}
	return l, true
}

func (d *Document) values() []*automerge.Value {
	l, ok := d.list()
	if !ok {
		return nil
	}
	values, err := l.Values()
	if err != nil {
		tasklog.Errorf(logTag, "failed to read task list: %v", err)
		return nil
	}
	return values
}

func (d *Document) commit(msg string) {
	if _, err := d.doc.Commit(msg); err != nil {
		tasklog.Errorf(logTag, "failed to commit %q: %v", msg, err)
	}
}

// indexOf returns the position of the first entry whose uuid equals id.
func (d *Document) indexOf(id string) (int, bool) {
	for i, v := range d.values() {
		if got, ok := task.DecodeUuid(v); ok && got == id {
			return i, true
		}
	}
	return 0, false
}

// List returns every task in list order. Entries that are not field maps are skipped.
func (d *Document) List() []task.Task {
	values := d.values()
	out := make([]task.Task, 0, len(values))
	for _, v := range values {
		if t, ok := task.Decode(v); ok {
			out = append(out, t)
		}
	}
	tasklog.Debugf(logTag, "list returning %d tasks", len(out))
	return out
}

// Find returns the first task with the given uuid.
func (d *Document) Find(id string) (task.Task, bool) {
	for _, v := range d.values() {
		if got, ok := task.DecodeUuid(v); ok && got == id {
			return task.Decode(v)
		}
	}
	return task.Task{}, false
}

// RestoreAll replaces the whole list with tasks, in order. This is a local overwrite and replicates as a
// delete of every prior entry.
func (d *Document) RestoreAll(tasks []task.Task) {
	l, ok := d.list()
	if !ok {
		return
	}
	n := l.Len()
	for i := n - 1; i >= 0; i-- {
		if err := l.Delete(i); err != nil {
			tasklog.Errorf(logTag, "restore failed to remove index %d: %v", i, err)
		}
	}
	restored := 0
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			tasklog.Warnf(logTag, "restore skipping %s: %v", t.Uuid, err)
			continue
		}
		if err := l.Append(task.Encode(t)); err != nil {
			tasklog.Errorf(logTag, "restore failed to append %s: %v", t.Uuid, err)
			continue
		}
		restored++
	}
	if n > 0 || restored > 0 {
		d.commit("restore tasks")
	}
	tasklog.Infof(logTag, "restored %d tasks, removed %d", restored, n)
}

// Add inserts t at the head of the list, or replaces an existing task with the same uuid under Upsert.
func (d *Document) Add(t task.Task) {
	if err := t.Validate(); err != nil {
		tasklog.Warnf(logTag, "add rejected for %q: %v", t.Uuid, err)
		return
	}
	if d.addPolicy == Upsert {
		if i, ok := d.indexOf(t.Uuid); ok {
			if d.replaceAt(i, t, "upsert task") {
				tasklog.Debugf(logTag, "add replaced existing %s at %d", t.Uuid, i)
			}
			return
		}
	}
	l, ok := d.list()
	if !ok {
		return
	}
	if err := l.Insert(0, task.Encode(t)); err != nil {
		tasklog.Errorf(logTag, "add failed for %s: %v", t.Uuid, err)
		return
	}
	d.commit("add task")
	tasklog.Debugf(logTag, "add success for %s", t.Uuid)
}

// Update replaces the first task with the given uuid by t at the same position. Fields are not merged:
// the previous revision is discarded. A missing uuid is a no-op.
func (d *Document) Update(id string, t task.Task) {
	if err := t.Validate(); err != nil {
		tasklog.Warnf(logTag, "update rejected for %q: %v", id, err)
		return
	}
	i, ok := d.indexOf(id)
	if !ok {
		tasklog.Debugf(logTag, "update skipped, uuid not found: %s", id)
		return
	}
	if d.replaceAt(i, t, "update task") {
		tasklog.Debugf(logTag, "update success for %s", id)
	}
}

// replaceAt swaps the entry at i for t. The new entry goes in first so a failure never drops the task;
// nothing is committed unless both steps succeed.
func (d *Document) replaceAt(i int, t task.Task, msg string) bool {
	l, ok := d.list()
	if !ok {
		return false
	}
	if err := l.Insert(i, task.Encode(t)); err != nil {
		tasklog.Errorf(logTag, "%s failed to insert at %d: %v", msg, i, err)
		return false
	}
	if err := l.Delete(i + 1); err != nil {
		tasklog.Errorf(logTag, "%s failed to remove index %d: %v", msg, i+1, err)
		return false
	}
	d.commit(msg)
	return true
}

// Delete removes the first task with the given uuid. A missing uuid is a no-op.
func (d *Document) Delete(id string) {
	i, ok := d.indexOf(id)
	if !ok {
		tasklog.Debugf(logTag, "delete skipped, uuid not found: %s", id)
		return
	}
	l, ok := d.list()
	if !ok {
		return
	}
	if err := l.Delete(i); err != nil {
		tasklog.Errorf(logTag, "delete failed for %s: %v", id, err)
		return
	}
	d.commit("delete task")
	tasklog.Debugf(logTag, "delete success for %s", id)
}
