package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [mailbox...]",
		Short: "Run one pass over the given mailboxes, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := optionsFrom(cmd)
			for _, id := range args {
				if _, ok := o.cfg.FindMailbox(id); !ok {
					return fmt.Errorf("mailbox %q is not configured", id)
				}
			}

			a, err := newApp(cmd.Context(), o.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			poller := a.poller()
			if len(args) == 0 {
				err = poller.SyncAll(cmd.Context())
			} else {
				for _, id := range args {
					if _, runErr := poller.RunOnce(cmd.Context(), id); runErr != nil {
						err = fmt.Errorf("%s: %w", id, runErr)
						break
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderStatuses(statusesOf(poller)))
			return err
		},
	}
}

// statusesOf returns the poller statuses that carry a pass result.
func statusesOf(p *sync.Poller) []sync.SyncStatus {
	var out []sync.SyncStatus
	for _, s := range p.Statuses() {
		if s.LastResult != nil {
			out = append(out, s)
		}
	}
	return out
}
