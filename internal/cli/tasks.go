package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/taskdoc"
)

func initCmd(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty task document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(g.file); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to replace it", g.file)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check %s: %w", g.file, err)
			}
			opts, err := g.options()
			if err != nil {
				return err
			}
			if err := g.save(taskdoc.New(opts...)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", g.file)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing document")
	return cmd
}

func listCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in document order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := g.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, doc.ListJSON())
				return nil
			}
			tasks := doc.List()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks.")
				return nil
			}
			for _, t := range tasks {
				marker := " "
				if t.IsPinned {
					marker = color.New(color.FgYellow).Sprint("*")
				}
				line := fmt.Sprintf("%s %s  %s", marker, t.Uuid, t.Content)
				if len(t.Tags) > 0 {
					line += "  " + color.New(color.FgCyan).Sprint("#"+strings.Join(t.Tags, " #"))
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the JSON transcript")
	return cmd
}

type taskFlags struct {
	content string
	tags    []string
	pinned  bool
	sort    int64
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.content, "content", "c", "", "task text")
	cmd.Flags().StringSliceVarP(&f.tags, "tag", "t", nil, "task tag, repeatable")
	cmd.Flags().BoolVar(&f.pinned, "pinned", false, "pin the task")
	cmd.Flags().Int64Var(&f.sort, "sort-order", 0, "custom sort order")
}

// apply copies the flags the user set onto t.
func (f *taskFlags) apply(cmd *cobra.Command, t *task.Task) {
	if cmd.Flags().Changed("content") {
		t.Content = f.content
	}
	if cmd.Flags().Changed("tag") {
		t.Tags = f.tags
	}
	if cmd.Flags().Changed("pinned") {
		t.IsPinned = f.pinned
	}
	if cmd.Flags().Changed("sort-order") {
		t.CustomSortOrder = f.sort
	}
}

func addCmd(g *globals) *cobra.Command {
	var id string
	f := new(taskFlags)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task at the top of the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := g.load()
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			ts := now().UnixMilli()
			t := task.Task{Uuid: id, CreatedAt: ts, UpdatedAt: ts, Tags: []string{}}
			f.apply(cmd, &t)
			doc.Add(t)
			if err := g.save(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "uuid", "", "task uuid (default: random)")
	f.bind(cmd)
	return cmd
}

func updateCmd(g *globals) *cobra.Command {
	f := new(taskFlags)

	cmd := &cobra.Command{
		Use:   "update <uuid>",
		Short: "Replace a task, keeping fields that are not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := g.load()
			if err != nil {
				return err
			}
			t, ok := doc.Find(args[0])
			if !ok {
				return fmt.Errorf("task %s not found", args[0])
			}
			f.apply(cmd, &t)
			t.UpdatedAt = now().UnixMilli()
			doc.Update(args[0], t)
			if err := g.save(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func deleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uuid>...",
		Short: "Delete tasks by uuid",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := g.load()
			if err != nil {
				return err
			}
			for _, id := range args {
				if _, ok := doc.Find(id); !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Skipped %s (not found)\n", id)
					continue
				}
				doc.Delete(id)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return g.save(doc)
		},
	}
}

func importCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <transcript.json>",
		Short: "Replace every task with the tasks of a JSON transcript",
		Long: `Replace the whole task list with the contents of a JSON transcript.

This is a destructive local overwrite: once synchronised, peers see every
previous task deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read transcript: %w", err)
			}
			if _, err := taskdoc.ParseTranscript(raw); err != nil {
				return err
			}
			doc, err := g.load()
			if err != nil {
				return err
			}
			doc.RestoreJSON(string(raw))
			if err := g.save(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks\n", len(doc.List()))
			return nil
		},
	}
}

func exportCmd(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the JSON transcript of the task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := g.load()
			if err != nil {
				return err
			}
			transcript := doc.ListJSON()
			if output == "" || output == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), transcript)
				return nil
			}
			return writeFileAtomic(output, []byte(transcript))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default: stdout)")
	return cmd
}

func mergeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <document>...",
		Short: "Merge other copies of the document into this one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := g.load()
			if err != nil {
				return err
			}
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if _, err := taskdoc.Load(raw); err != nil {
					return fmt.Errorf("%s is not a task document: %w", path, err)
				}
				doc.ApplyUpdate(raw)
			}
			if err := g.save(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d documents, %d tasks\n", len(args), len(doc.List()))
			return nil
		},
	}
}
