package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type bulkResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	KeptLocally    bool   `json:"kept_locally,omitempty"`
	Error          string `json:"error,omitempty"`
}

func newBulkCmd(a *app) *cobra.Command {
	var ff filterFlags
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "bulk <text>...",
		Short: "Send one message to every conversation matching the filters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := ff.filters(a)
			if err != nil {
				return err
			}
			content := strings.Join(args, " ")
			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			targets := sess.Filtered(filters, ff.search)
			if len(targets) == 0 {
				return Exitf(ExitCodeFailure, "no conversations match the filters")
			}
			ids := make([]string, len(targets))
			for i, conv := range targets {
				ids[i] = conv.ID
			}
			if dryRun {
				return a.output(cmd, ids, func(out io.Writer) error {
					_, werr := fmt.Fprintf(out, "Would send to %d conversations: %s\n", len(ids), strings.Join(ids, ", "))
					return werr
				})
			}

			results, err := sess.Broadcast(cmd.Context(), ids, content)
			if err != nil {
				return actionError(err)
			}

			report := make([]bulkResult, len(results))
			failed, kept := 0, 0
			for i, r := range results {
				report[i] = bulkResult{ConversationID: r.ConversationID, MessageID: r.Message.ID}
				switch {
				case r.KeptLocally():
					kept++
					report[i].KeptLocally = true
				case r.Err != nil:
					failed++
					report[i].Error = r.Err.Error()
				}
			}

			if err := a.output(cmd, report, func(out io.Writer) error {
				rows := make([][]string, 0, len(report))
				for _, r := range report {
					outcome := "sent"
					switch {
					case r.KeptLocally:
						outcome = "kept locally"
					case r.Error != "":
						outcome = r.Error
					}
					rows = append(rows, []string{r.ConversationID, dash(r.MessageID), outcome})
				}
				return writeTable(out, []string{"CONVERSATION", "MESSAGE", "RESULT"}, rows)
			}); err != nil {
				return err
			}

			switch {
			case failed > 0:
				return &ExitError{Code: ExitCodeFailure, Err: fmt.Errorf("%d of %d sends failed", failed, len(results))}
			case kept > 0:
				return &ExitError{Code: ExitCodeKeptLocally, Err: errors.New("some messages were kept locally")}
			}
			return nil
		},
	}
	ff.bind(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the target conversations without sending")
	return cmd
}
