package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/api"
	"github.com/tony-assistant/console/internal/models"
)

// filterFlags binds the conversation list criteria shared by several commands.
type filterFlags struct {
	status    string
	dateRange string
	tags      []string
	operator  string
	mine      bool
	search    string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "filter by status (pending, in_progress, resolved, closed)")
	cmd.Flags().StringVar(&f.dateRange, "date-range", "", "filter by last activity (today, yesterday, last_week, last_month)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "filter by tag (repeatable, any match)")
	cmd.Flags().StringVar(&f.operator, "assigned", "", "filter by assigned operator")
	cmd.Flags().BoolVar(&f.mine, "mine", false, "only conversations assigned to the current operator")
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive search over user names and message text")
}

func (f *filterFlags) filters(a *app) (models.ConversationFilters, error) {
	out := models.ConversationFilters{Tags: f.tags}
	if f.status != "" {
		status, err := models.ParseStatus(f.status)
		if err != nil {
			return out, &ExitError{Code: ExitCodeUsage, Err: err}
		}
		out.Status = status
	}
	dr, err := models.ParseDateRange(f.dateRange)
	if err != nil {
		return out, &ExitError{Code: ExitCodeUsage, Err: err}
	}
	out.DateRange = dr
	switch {
	case f.mine:
		out.Operator = a.operatorID()
	case f.operator != "":
		out.Operator = f.operator
	}
	return out, nil
}

func newConversationsCmd(a *app) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := ff.filters(a)
			if err != nil {
				return err
			}
			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			convs := sess.Filtered(filters, ff.search)
			return a.output(cmd, convs, func(out io.Writer) error {
				if len(convs) == 0 {
					_, err := fmt.Fprintln(out, "No conversations match.")
					return err
				}
				return writeTable(out, conversationHeaders, conversationRows(convs))
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

var conversationHeaders = []string{"ID", "USER", "STATUS", "MODE", "UNREAD", "PENDING", "LAST ACTIVITY", "LAST MESSAGE"}

func conversationRows(convs []models.Conversation) [][]string {
	rows := make([][]string, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		last := "-"
		if msg, ok := conv.LastMessage(); ok {
			last = clip(msg.Content, 40)
		}
		rows = append(rows, []string{
			conv.ID,
			clip(conv.User.Name, 24),
			string(conv.Status),
			string(conv.Mode),
			strconv.Itoa(conv.UnreadCount),
			formatYesNo(conv.HasPendingResponse()),
			formatTime(conv.LastActivity),
			last,
		})
	}
	return rows
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			conv, err := client.GetConversation(cmd.Context(), args[0])
			if err != nil {
				if api.IsNotFound(err) {
					return Exitf(ExitCodeFailure, "conversation %q not found", args[0])
				}
				return &ExitError{Code: ExitCodeFailure, Err: err}
			}
			return a.output(cmd, conv, func(out io.Writer) error {
				return writeTranscript(out, &conv)
			})
		},
	}
}

func writeTranscript(out io.Writer, conv *models.Conversation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", conv.ID, conv.User.Name)
	fmt.Fprintf(&b, "status %s · mode %s · unread %d", conv.Status, conv.Mode, conv.UnreadCount)
	if conv.AssignedOperator != "" {
		fmt.Fprintf(&b, " · assigned %s", conv.AssignedOperator)
	}
	if len(conv.Tags) > 0 {
		fmt.Fprintf(&b, " · tags %s", strings.Join(conv.Tags, ", "))
	}
	b.WriteString("\n\n")
	for _, msg := range conv.Messages {
		edited := ""
		if msg.Edited {
			edited = " (edited)"
		}
		fmt.Fprintf(&b, "[%s] %-8s %s%s\n", formatTime(msg.Timestamp), msg.Sender, msg.Content, edited)
	}
	if conv.HasPendingResponse() {
		fmt.Fprintf(&b, "\npending response: %s\n", conv.PendingResponse.Content)
	}
	_, err := io.WriteString(out, b.String())
	return err
}
