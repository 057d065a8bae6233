// Package cli implements the taskctl commands over a task document stored in a local file.
package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// now is swapped out by tests.
var now = time.Now

// RootCmd returns the taskctl command tree.
func RootCmd() *cobra.Command {
	g := new(globals)
	rootCmd := &cobra.Command{
		Use:   "taskctl",
		Short: "Edit and synchronise a replicated task list",
		Long: `taskctl edits a task list stored as a replicated document on disk.

Copies of the file on different devices can be changed independently and
merged later with merge, push or pull without losing edits.`,
		SilenceUsage: true,
	}
	g.bind(rootCmd)

	rootCmd.AddCommand(initCmd(g))
	rootCmd.AddCommand(listCmd(g))
	rootCmd.AddCommand(addCmd(g))
	rootCmd.AddCommand(updateCmd(g))
	rootCmd.AddCommand(deleteCmd(g))
	rootCmd.AddCommand(importCmd(g))
	rootCmd.AddCommand(exportCmd(g))
	rootCmd.AddCommand(mergeCmd(g))
	rootCmd.AddCommand(pushCmd(g))
	rootCmd.AddCommand(pullCmd(g))
	return rootCmd
}
