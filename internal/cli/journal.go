package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/journal"
)

func newJournalCmd(a *app) *cobra.Command {
	var limit int
	var unconfirmed bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recently recorded operator actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Journal.Enabled {
				return Exitf(ExitCodeFailure, "journal is disabled (journal.enabled=false)")
			}
			j, err := journal.Open(a.cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := readJournal(cmd.Context(), j, limit, unconfirmed)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []journal.Entry{}
			}
			return a.output(cmd, entries, func(out io.Writer) error {
				if len(entries) == 0 {
					_, werr := fmt.Fprintln(out, "No journal entries.")
					return werr
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						formatTime(e.At),
						e.Operator,
						dash(e.ConversationID),
						string(e.Kind),
						clip(e.Detail, 50),
						formatYesNo(e.Confirmed),
					})
				}
				return writeTable(out, []string{"AT", "OPERATOR", "CONVERSATION", "KIND", "DETAIL", "CONFIRMED"}, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "only sends kept locally that the backend has not echoed")
	return cmd
}

func readJournal(ctx context.Context, j *journal.Journal, limit int, unconfirmed bool) ([]journal.Entry, error) {
	if unconfirmed {
		return j.Unconfirmed(ctx)
	}
	return j.Recent(ctx, limit)
}
