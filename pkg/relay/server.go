// Package relay is an HTTP relay holding one task document per named store. Devices push full states,
// run the cookie based sync protocol, or hold a websocket sync session open; the relay backs every store
// up to a snapshot store.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/tasksync/pkg/snapshot"
	"github.com/astromechza/tasksync/pkg/taskdoc"
	"github.com/astromechza/tasksync/pkg/viz"
	"github.com/astromechza/tasksync/pkg/wsync"
)

// maxMessagesPerRound bounds the sync messages returned by one cookie sync request.
const maxMessagesPerRound = 100

type syncRequest struct {
	Cookie   []byte   `json:"cookie"`
	Messages [][]byte `json:"messages"`
}

type syncResponse struct {
	Cookie   []byte   `json:"cookie"`
	Messages [][]byte `json:"messages"`
	Heads    []string `json:"heads"`
}

type entry struct {
	mu  sync.Mutex
	doc *taskdoc.Document
}

// Server serves every store it has loaded or created.
type Server struct {
	snapshots    *snapshot.Store
	cache        *sync.Map
	opts         []taskdoc.Option
	keep         int
	syncInterval time.Duration
}

// Config holds what a Server needs beyond its snapshot store.
type Config struct {
	// AddPolicy applies to documents the relay creates or loads.
	AddPolicy taskdoc.AddPolicy
	// KeepSnapshots is how many snapshots per store survive a backup. Values below one keep one.
	KeepSnapshots int
	// SyncInterval is the websocket session polling interval.
	SyncInterval time.Duration
}

// NewServer loads every store found in snapshots.
func NewServer(ctx context.Context, snapshots *snapshot.Store, cfg Config) (*Server, error) {
	s := &Server{
		snapshots:    snapshots,
		cache:        new(sync.Map),
		opts:         []taskdoc.Option{taskdoc.WithAddPolicy(cfg.AddPolicy)},
		keep:         cfg.KeepSnapshots,
		syncInterval: cfg.SyncInterval,
	}
	ids, err := snapshots.Stores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	for _, id := range ids {
		raw, err := snapshots.Latest(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read store %s: %w", id, err)
		}
		doc, err := taskdoc.Load(raw, s.opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load store %s: %w", id, err)
		}
		s.cache.Store(id, &entry{doc: doc})
		slog.Info("loaded store", "store", id, "heads", doc.Heads())
	}
	return s, nil
}

func (s *Server) lookup(id string) (*entry, bool) {
	raw, ok := s.cache.Load(id)
	if !ok {
		return nil, false
	}
	return raw.(*entry), true
}

func (s *Server) lookupOrCreate(id string) *entry {
	if e, ok := s.lookup(id); ok {
		return e
	}
	raw, loaded := s.cache.LoadOrStore(id, &entry{doc: taskdoc.New(s.opts...)})
	if !loaded {
		slog.Info("created store", "store", id)
	}
	return raw.(*entry)
}

// Handler returns the relay routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/stores").HandlerFunc(s.listStores)
	r.Methods(http.MethodGet).Path("/stores/{store}/latest").HandlerFunc(s.getLatest)
	r.Methods(http.MethodGet).Path("/stores/{store}/tasks").HandlerFunc(s.getTasks)
	r.Methods(http.MethodGet).Path("/stores/{store}/history").HandlerFunc(s.getHistory)
	r.Methods(http.MethodPost).Path("/stores/{store}/updates").HandlerFunc(s.postUpdate)
	r.Methods(http.MethodPost).Path("/stores/{store}/sync").HandlerFunc(s.postSync)
	r.Methods(http.MethodGet).Path("/stores/{store}/ws").HandlerFunc(s.syncWebsocket)
	return r
}

func writeJSON(writer http.ResponseWriter, v any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := sonic.ConfigStd.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func (s *Server) listStores(writer http.ResponseWriter, _ *http.Request) {
	ids := make([]string, 0)
	s.cache.Range(func(id, _ any) bool {
		ids = append(ids, id.(string))
		return true
	})
	sort.Strings(ids)
	writeJSON(writer, ids)
}

func (s *Server) getLatest(writer http.ResponseWriter, request *http.Request) {
	e, ok := s.lookup(mux.Vars(request)["store"])
	if !ok {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	e.mu.Lock()
	state := e.doc.CaptureState()
	e.mu.Unlock()
	writer.Header().Add("Content-Type", "application/octet-stream")
	if _, err := writer.Write(state); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) getTasks(writer http.ResponseWriter, request *http.Request) {
	e, ok := s.lookup(mux.Vars(request)["store"])
	if !ok {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	e.mu.Lock()
	transcript := e.doc.ListJSON()
	e.mu.Unlock()
	writer.Header().Set("Content-Type", "application/json")
	if _, err := io.WriteString(writer, transcript); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) getHistory(writer http.ResponseWriter, request *http.Request) {
	e, ok := s.lookup(mux.Vars(request)["store"])
	if !ok {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	var buff bytes.Buffer
	e.mu.Lock()
	err := viz.RenderSvg(e.doc, &buff)
	e.mu.Unlock()
	if err != nil {
		slog.Error("failed to render history", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "image/svg+xml")
	if _, err := writer.Write(buff.Bytes()); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) postUpdate(writer http.ResponseWriter, request *http.Request) {
	body, err := io.ReadAll(request.Body)
	if err != nil {
		slog.Error("failed to read body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	// the document swallows bad updates, so check the payload loads before accepting it
	if _, err := taskdoc.Load(body); err != nil {
		slog.Error("failed to load content", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	e := s.lookupOrCreate(mux.Vars(request)["store"])
	e.mu.Lock()
	e.doc.ApplyUpdate(body)
	state := e.doc.CaptureState()
	e.mu.Unlock()
	writer.Header().Add("Content-Type", "application/octet-stream")
	if _, err := writer.Write(state); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) postSync(writer http.ResponseWriter, request *http.Request) {
	var inputs syncRequest
	if err := sonic.ConfigStd.NewDecoder(request.Body).Decode(&inputs); err != nil {
		slog.Error("failed to decode body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	if inputs.Cookie == nil && len(inputs.Messages) > 0 {
		slog.Error("rejecting sync with messages without cookie")
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	e := s.lookupOrCreate(mux.Vars(request)["store"])
	e.mu.Lock()
	defer e.mu.Unlock()

	peer := e.doc.NewPeer()
	if inputs.Cookie != nil {
		var err error
		if peer, err = e.doc.LoadPeer(inputs.Cookie); err != nil {
			slog.Error("failed to load the cookie", "err", err)
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	for _, message := range inputs.Messages {
		if err := peer.Receive(message); err != nil {
			slog.Error("failed to apply a message", "err", err)
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	out := make([][]byte, 0)
	for i := 0; i < maxMessagesPerRound; i++ {
		msg, valid := peer.Generate()
		if !valid {
			break
		}
		out = append(out, msg)
	}
	writeJSON(writer, syncResponse{Cookie: peer.Save(), Messages: out, Heads: e.doc.Heads()})
}

func (s *Server) syncWebsocket(writer http.ResponseWriter, request *http.Request) {
	e := s.lookupOrCreate(mux.Vars(request)["store"])

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	e.mu.Lock()
	peer := e.doc.NewPeer()
	e.mu.Unlock()
	session := &wsync.Session{Peer: peer, Lock: &e.mu, Interval: s.syncInterval}
	if err := session.Sync(request.Context(), conn); err != nil {
		slog.Error("failed to sync", "err", err)
	}
}

// Backup writes every store whose state changed since its last snapshot and prunes old snapshots.
func (s *Server) Backup(ctx context.Context) error {
	var errs []error
	s.cache.Range(func(id, raw any) bool {
		e := raw.(*entry)
		e.mu.Lock()
		state := e.doc.Save()
		heads := e.doc.Heads()
		e.mu.Unlock()

		written, err := s.snapshots.Put(ctx, id.(string), state)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to backup %s: %w", id, err))
			return true
		}
		if !written {
			return true
		}
		slog.Info("backed up", "store", id, "heads", heads)
		if n, err := s.snapshots.Prune(ctx, id.(string), s.keep); err != nil {
			errs = append(errs, fmt.Errorf("failed to prune %s: %w", id, err))
		} else if n > 0 {
			slog.Debug("pruned snapshots", "store", id, "removed", n)
		}
		return true
	})
	return errors.Join(errs...)
}

// Document runs fn with exclusive access to the document of store id, creating the store if needed.
func (s *Server) Document(id string, fn func(doc *taskdoc.Document)) {
	e := s.lookupOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.doc)
}
