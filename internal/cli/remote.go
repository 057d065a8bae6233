package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/astromechza/tasksync/pkg/relay"
)

type remoteFlags struct {
	addr  string
	store string
}

func (r *remoteFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.addr, "addr", "http://127.0.0.1:8080", "relay base url")
	cmd.Flags().StringVar(&r.store, "store", "default", "relay store name")
}

func (r *remoteFlags) client() (*relay.Client, error) {
	u, err := url.Parse(r.addr)
	if err != nil {
		return nil, fmt.Errorf("invalid relay address: %w", err)
	}
	return &relay.Client{BaseURL: u}, nil
}

func pushCmd(g *globals) *cobra.Command {
	r := new(remoteFlags)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Synchronise with a relay store in both directions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.client()
			if err != nil {
				return err
			}
			doc, err := g.load()
			if err != nil {
				return err
			}
			cookie, err := os.ReadFile(g.cookiePath())
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read cookie: %w", err)
			}
			if len(cookie) == 0 {
				cookie = nil
			}
			cookie, err = c.Sync(cmd.Context(), r.store, doc, cookie)
			if err != nil {
				return fmt.Errorf("failed to sync: %w", err)
			}
			if err := g.save(doc); err != nil {
				return err
			}
			if err := writeFileAtomic(g.cookiePath(), cookie); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synchronised with %s, %d tasks\n", r.store, len(doc.List()))
			return nil
		},
	}
	r.bind(cmd)
	return cmd
}

func pullCmd(g *globals) *cobra.Command {
	r := new(remoteFlags)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Merge the relay's full state of a store into the local document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.client()
			if err != nil {
				return err
			}
			doc, err := g.load()
			if err != nil {
				return err
			}
			state, err := c.Latest(cmd.Context(), r.store)
			if err != nil {
				return fmt.Errorf("failed to pull: %w", err)
			}
			doc.ApplyUpdate(state)
			if err := g.save(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s, %d tasks\n", r.store, len(doc.List()))
			return nil
		},
	}
	r.bind(cmd)
	return cmd
}
