package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/session"
)

// reportKeptLocally warns on stderr when a change only landed locally.
func reportKeptLocally(cmd *cobra.Command, action string, err error) {
	if errors.Is(err, session.ErrKeptLocally) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s kept locally, backend did not confirm\n", action)
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send a message to a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args[1:], " ")
			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			msg, err := sess.SendTo(cmd.Context(), args[0], content)
			if err != nil && !errors.Is(err, session.ErrKeptLocally) {
				return actionError(err)
			}
			reportKeptLocally(cmd, "message", err)
			if outErr := a.output(cmd, msg, func(out io.Writer) error {
				_, werr := fmt.Fprintf(out, "Sent %s to %s as %s\n", msg.ID, args[0], msg.Sender)
				return werr
			}); outErr != nil {
				return outErr
			}
			return actionError(err)
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <message-id> <text>...",
		Short: "Edit a sent message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			err = sess.EditMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil && !errors.Is(err, session.ErrKeptLocally) {
				return actionError(err)
			}
			reportKeptLocally(cmd, "edit", err)
			fmt.Fprintf(cmd.OutOrStdout(), "Edited %s\n", args[0])
			return actionError(err)
		},
	}
}

func newModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <conversation-id> <auto|manual|hybrid>",
		Short: "Change a conversation's mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.ParseMode(args[1])
			if err != nil {
				return &ExitError{Code: ExitCodeUsage, Err: err}
			}
			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			err = sess.ChangeMode(cmd.Context(), args[0], mode)
			if err != nil && !errors.Is(err, session.ErrKeptLocally) {
				return actionError(err)
			}
			reportKeptLocally(cmd, "mode change", err)
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], mode)
			return actionError(err)
		},
	}
}

func newPendingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review bot-drafted responses in hybrid conversations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "approve <conversation-id>",
			Short: "Send the pending response as drafted",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, cleanup, err := a.loadSession(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				msg, err := sess.Approve(cmd.Context(), args[0])
				if err != nil {
					return actionError(err)
				}
				return a.output(cmd, msg, func(out io.Writer) error {
					_, werr := fmt.Fprintf(out, "Approved pending response for %s\n", args[0])
					return werr
				})
			},
		},
		&cobra.Command{
			Use:   "reject <conversation-id>",
			Short: "Discard the pending response",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, cleanup, err := a.loadSession(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				if err := sess.Reject(cmd.Context(), args[0]); err != nil {
					return actionError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected pending response for %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "edit <conversation-id> <text>...",
			Short: "Replace the pending response text and send it",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, cleanup, err := a.loadSession(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()

				msg, err := sess.EditAndApprove(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return actionError(err)
				}
				return a.output(cmd, msg, func(out io.Writer) error {
					_, werr := fmt.Fprintf(out, "Sent edited response for %s\n", args[0])
					return werr
				})
			},
		},
	)
	return cmd
}
