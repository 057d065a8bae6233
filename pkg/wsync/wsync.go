// Package wsync runs a task document sync session over a websocket. Each side reads the remote's
// messages into its Peer and periodically writes whatever its Peer has to send.
package wsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/tasksync/pkg/taskdoc"
)

// DefaultInterval is how often a session checks for local changes to send.
const DefaultInterval = time.Second

// Session binds a peer to the lock guarding its document.
type Session struct {
	Peer *taskdoc.Peer
	// Lock guards the document the peer belongs to. It is held for each generate or receive.
	Lock     sync.Locker
	Interval time.Duration
}

func (s *Session) readAndReceiveMessage(conn *websocket.Conn) error {
	mt, p, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	switch mt {
	case websocket.BinaryMessage:
		s.Lock.Lock()
		defer s.Lock.Unlock()
		if err := s.Peer.Receive(p); err != nil {
			return fmt.Errorf("failed to receive message: %w", err)
		}
	default:
	}
	return nil
}

func (s *Session) generateAndWriteMessage(conn *websocket.Conn) (bool, error) {
	s.Lock.Lock()
	msg, valid := s.Peer.Generate()
	s.Lock.Unlock()
	if !valid {
		return false, nil
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return false, fmt.Errorf("failed to write message: %w", err)
	}
	return true, nil
}

func (s *Session) flush(conn *websocket.Conn) error {
	for {
		if ok, err := s.generateAndWriteMessage(conn); err != nil {
			return err
		} else if !ok {
			return nil
		}
	}
}

// Sync runs until ctx is done or the connection fails, then closes conn. A clean close by either side is
// not an error.
func (s *Session) Sync(ctx context.Context, conn *websocket.Conn) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	slog.Debug("syncing", "remote", conn.RemoteAddr())

	var readErr, writeErr error
	readerDone := make(chan struct{})
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(readerDone)
		defer conn.Close()
		for {
			if err := s.readAndReceiveMessage(conn); err != nil {
				readErr = err
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()

		if err := s.flush(conn); err != nil {
			writeErr = err
			return
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := s.flush(conn); err != nil {
					writeErr = err
					return
				}
			case <-readerDone:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
		}
	}()

	wg.Wait()
	if ctx.Err() != nil || isClosed(readErr) {
		return nil
	}
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

func isClosed(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
