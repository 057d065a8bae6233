package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/astromechza/tasksync/internal/cli"
	"github.com/astromechza/tasksync/pkg/tasklog"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	tasklog.Register(tasklog.SlogSink(nil))

	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
