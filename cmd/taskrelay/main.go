package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/tasksync/pkg/relay"
	"github.com/astromechza/tasksync/pkg/snapshot"
	"github.com/astromechza/tasksync/pkg/taskdoc"
	"github.com/astromechza/tasksync/pkg/tasklog"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "localhost:8080", "the address to listen on")
	dbVar := flag.String("db", "taskrelay.sqlite3", "the sqlite database holding store snapshots")
	backupVar := flag.Duration("backup-interval", time.Second*5, "how often changed stores are backed up")
	keepVar := flag.Int("keep", 10, "snapshots kept per store")
	policyVar := flag.String("add-policy", taskdoc.InsertAlways.String(), "duplicate uuid policy for add: insert-always or upsert")
	debugVar := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debugVar {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	tasklog.Register(tasklog.SlogSink(nil))

	policy, err := taskdoc.ParseAddPolicy(*policyVar)
	if err != nil {
		return err
	}

	slog.Info("Opening database", "path", *dbVar)
	snapshots, err := snapshot.Open(*dbVar)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := relay.NewServer(ctx, snapshots, relay.Config{AddPolicy: policy, KeepSnapshots: *keepVar})
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(*backupVar)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := s.Backup(ctx); err != nil {
					slog.Error("failed to backup stores", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{Addr: *addrVar, Handler: s.Handler()}

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	serveErr := serve(httpServer, exit)
	cancel()
	wg.Wait()

	if err := s.Backup(context.Background()); err != nil {
		return errors.Join(serveErr, fmt.Errorf("failed final backup: %w", err))
	}
	if serveErr != nil {
		return serveErr
	}
	slog.Info("stopped")
	return nil
}

// serve runs httpServer until a signal arrives on exit or the listener fails, and closes it either way.
func serve(httpServer *http.Server, exit <-chan os.Signal) error {
	listenErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", httpServer.Addr)
		listenErr <- httpServer.ListenAndServe()
	}()

	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
		_ = httpServer.Close()
		if err := <-listenErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case err := <-listenErr:
		_ = httpServer.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen failed: %w", err)
	}
}
