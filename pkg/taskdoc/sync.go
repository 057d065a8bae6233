package taskdoc

import (
	"fmt"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/tasklog"
)

// CaptureState returns the full document state: enough for an empty peer to converge with this one.
func (d *Document) CaptureState() []byte {
	return d.doc.Save()
}

// Save returns the binary snapshot a host persists. It is the same encoding CaptureState produces.
func (d *Document) Save() []byte {
	return d.doc.Save()
}

// ApplyUpdate merges a message produced by CaptureState on any peer. Undecodable messages are logged and
// ignored; applying the same message again changes nothing.
func (d *Document) ApplyUpdate(msg []byte) {
	if err := d.applyUpdate(msg); err != nil {
		tasklog.Errorf(logTag, "discarding update of %d bytes: %v", len(msg), err)
		return
	}
	tasklog.Infof(logTag, "applied update of %d bytes", len(msg))
}

func (d *Document) applyUpdate(msg []byte) error {
	remote, err := automerge.Load(msg)
	if err != nil {
		return fmt.Errorf("failed to decode update: %w", err)
	}
	changes, err := remote.Changes()
	if err != nil {
		return fmt.Errorf("failed to read changes: %w", err)
	}
	if err := d.doc.Apply(changes...); err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	return nil
}

// Heads returns the hashes of the latest changes known to this document.
func (d *Document) Heads() []string {
	heads := d.doc.Heads()
	out := make([]string, 0, len(heads))
	for _, h := range heads {
		out = append(out, h.String())
	}
	return out
}

// Revision describes one change in the document history.
type Revision struct {
	Hash         string
	Actor        string
	Seq          uint64
	Dependencies []string
	// Tasks is the number of tasks visible once this change is applied.
	Tasks int
}

// History lists every change in causal order with the task count as of that change.
func (d *Document) History() ([]Revision, error) {
	changes, err := d.doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	out := make([]Revision, 0, len(changes))
	for _, change := range changes {
		docAt, err := d.doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		deps := make([]string, 0, len(change.Dependencies()))
		for _, h := range change.Dependencies() {
			deps = append(deps, h.String())
		}
		out = append(out, Revision{
			Hash:         change.Hash().String(),
			Actor:        change.ActorID(),
			Seq:          change.ActorSeq(),
			Dependencies: deps,
			Tasks:        countTasks(docAt),
		})
	}
	return out, nil
}

func countTasks(doc *automerge.Doc) int {
	l, err := taskList(doc)
	if err != nil {
		return 0
	}
	values, err := l.Values()
	if err != nil {
		return 0
	}
	n := 0
	for _, v := range values {
		if _, ok := task.Decode(v); ok {
			n++
		}
	}
	return n
}

// Peer tracks what one remote peer is known to have, so only missing changes are exchanged. Messages
// from Generate go to the remote's Receive and vice versa until neither side has anything to send.
type Peer struct {
	doc   *Document
	state *automerge.SyncState
}

// NewPeer starts a sync session with a peer about which nothing is known.
func (d *Document) NewPeer() *Peer {
	return &Peer{doc: d, state: automerge.NewSyncState(d.doc)}
}

// LoadPeer resumes a session from a cookie returned by Peer.Save.
func (d *Document) LoadPeer(cookie []byte) (*Peer, error) {
	ss, err := automerge.LoadSyncState(d.doc, cookie)
	if err != nil {
		return nil, fmt.Errorf("failed to load the cookie: %w", err)
	}
	return &Peer{doc: d, state: ss}, nil
}

// Generate returns the next message for the remote, or false when there is nothing to send.
func (p *Peer) Generate() ([]byte, bool) {
	msg, valid := p.state.GenerateMessage()
	if !valid || msg == nil {
		return nil, false
	}
	return msg.Bytes(), true
}

// Receive applies one message from the remote.
func (p *Peer) Receive(msg []byte) error {
	if _, err := p.state.ReceiveMessage(msg); err != nil {
		return fmt.Errorf("failed to receive message: %w", err)
	}
	return nil
}

// Save encodes the session so it can be resumed with LoadPeer.
func (p *Peer) Save() []byte {
	return p.state.Save()
}

// Exchange passes messages between two in-process peers until both are quiet.
func Exchange(a, b *Peer) error {
	for hadMessages := true; hadMessages; {
		hadMessages = false
		for {
			msg, ok := a.Generate()
			if !ok {
				break
			}
			hadMessages = true
			if err := b.Receive(msg); err != nil {
				return err
			}
		}
		for {
			msg, ok := b.Generate()
			if !ok {
				break
			}
			hadMessages = true
			if err := a.Receive(msg); err != nil {
				return err
			}
		}
	}
	return nil
}
