package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cursor and last pass of every mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := optionsFrom(cmd)
			st, err := openStore(cmd.Context(), o.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			mailboxes, err := st.ListMailboxes(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMailboxes(mailboxes))
			return nil
		},
	}
}

// renderMailboxes renders the persisted state of each mailbox.
func renderMailboxes(mailboxes []model.Mailbox) string {
	if len(mailboxes) == 0 {
		return theme.LabelStyle.Render("No mailboxes configured.")
	}

	panels := make([]string, 0, len(mailboxes)+1)
	panels = append(panels, theme.HeaderStyle.Render("mailsync status"))
	for _, mb := range mailboxes {
		state := "never synced"
		last := "-"
		if mb.LastPassAt != nil {
			state = "idle"
			last = mb.LastPassAt.Local().Format(time.DateTime)
		}
		if mb.LastError != "" {
			state = "error"
		}

		lines := []string{
			theme.NameStyle.Render(mb.ID) + " " + theme.StateStyle(state).Render(state),
			field("folder", fmt.Sprintf("%s on %s (%s)", mb.Name, mb.Host, mb.Provider)),
			field("cursor", fmt.Sprintf("uidvalidity %d, last uid %d", mb.UIDValidity, mb.LastSeenUID)),
			field("last pass", last),
		}
		if mb.ReadOnly {
			lines = append(lines, field("mode", "read-only"))
		}
		if mb.LastError != "" {
			lines = append(lines, field("error", theme.ErrorStyle.Render(mb.LastError)))
		}
		panels = append(panels, theme.PanelStyle.Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

// renderStatuses renders the outcome of the passes a poller ran.
func renderStatuses(statuses []sync.SyncStatus) string {
	if len(statuses) == 0 {
		return theme.LabelStyle.Render("No passes ran.")
	}

	panels := make([]string, 0, len(statuses))
	for _, s := range statuses {
		res := s.LastResult
		state := res.State.String()
		lines := []string{
			theme.NameStyle.Render(s.MailboxID) + " " + theme.StateStyle(state).Render(state),
			field("cursor", fmt.Sprintf("uidvalidity %d, last uid %d -> %d", res.UIDValidity, res.PreviousUID, res.LastSeenUID)),
			field("messages", fmt.Sprintf("%d new, %d failed, %d refreshed, %d pushed",
				res.NewIngested, res.NewFailed, res.OldRefreshed, res.OutboundPushed)),
		}
		if res.EpochReset {
			lines = append(lines, field("epoch", "reset"))
		}
		if res.Error != "" {
			lines = append(lines, field("error", theme.ErrorStyle.Render(res.Error)))
		}
		panels = append(panels, theme.PanelStyle.Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

func field(name, value string) string {
	return theme.LabelStyle.Render(fmt.Sprintf("%-10s", name)) + " " + theme.ValueStyle.Render(value)
}
