package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/astromechza/tasksync/pkg/taskdoc"
	"github.com/astromechza/tasksync/pkg/tasklog"
	"github.com/astromechza/tasksync/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		logrus.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	svgVar := flag.String("svg", "", "render the history graph as svg into this file, or '-' for a temp file")
	flag.Parse()

	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.DebugLevel)
	tasklog.Register(tasklog.LogrusSink(logger))

	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the file to read")
	}
	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	buff, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := taskdoc.Load(buff)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}
	buff = nil
	logger.WithField("tasks", doc.ListJSON()).Info("loaded doc")
	logger.WithField("heads", doc.Heads()).Info("loaded heads")

	revisions, err := doc.History()
	if err != nil {
		return fmt.Errorf("failed to generate history: %w", err)
	}
	for i, r := range revisions {
		logger.WithFields(logrus.Fields{
			"i":     fmt.Sprintf("%4d", i),
			"hash":  r.Hash,
			"actor": r.Actor,
			"seq":   r.Seq,
			"dep":   r.Dependencies,
			"tasks": r.Tasks,
		}).Info("change")
	}

	if err := viz.WriteDot(os.Stdout, revisions); err != nil {
		return fmt.Errorf("failed to write dot: %w", err)
	}

	switch *svgVar {
	case "":
	case "-":
		path, err := viz.RenderToTemp(doc)
		if err != nil {
			return err
		}
		logger.WithField("path", path).Info("rendered history")
	default:
		if err := viz.RenderToFile(doc, *svgVar); err != nil {
			return err
		}
		logger.WithField("path", *svgVar).Info("rendered history")
	}
	return nil
}
