package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/astromechza/tasksync/pkg/taskdoc"
)

// EnvFile overrides the default document path.
const EnvFile = "TASKSYNC_FILE"

const defaultFile = "tasks.automerge"

type globals struct {
	file   string
	policy string
}

func (g *globals) options() ([]taskdoc.Option, error) {
	policy, err := taskdoc.ParseAddPolicy(g.policy)
	if err != nil {
		return nil, err
	}
	return []taskdoc.Option{taskdoc.WithAddPolicy(policy)}, nil
}

func (g *globals) bind(cmd *cobra.Command) {
	def := os.Getenv(EnvFile)
	if def == "" {
		def = defaultFile
	}
	cmd.PersistentFlags().StringVarP(&g.file, "file", "f", def, "path of the task document (env "+EnvFile+")")
	cmd.PersistentFlags().StringVar(&g.policy, "add-policy", taskdoc.InsertAlways.String(), "duplicate uuid policy for add: insert-always or upsert")
}

func (g *globals) load() (*taskdoc.Document, error) {
	opts, err := g.options()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(g.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no document at %s, run init first", g.file)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return taskdoc.Load(raw, opts...)
}

func (g *globals) save(doc *taskdoc.Document) error {
	return writeFileAtomic(g.file, doc.Save())
}

func (g *globals) cookiePath() string {
	return g.file + ".cookie"
}

func writeFileAtomic(path string, content []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
