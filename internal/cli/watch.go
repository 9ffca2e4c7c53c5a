package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/session"
)

func newWatchCmd(a *app) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the backend and print notifications as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			sess, cleanup, err := a.newSession(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			a.serveMetrics(ctx)

			events, unsubscribe := sess.Subscribe()
			defer unsubscribe()

			out := cmd.OutOrStdout()
			if err := sess.Open(ctx); err != nil {
				logger := logging.FromContext(ctx)
				logger.Warn().Err(err).Msg("initial load failed, retrying in the background")
				fmt.Fprintf(out, "offline: %v\n", err)
			} else {
				fmt.Fprintf(out, "watching %d conversations (every %s)\n", len(sess.Conversations()), a.cfg.Session.PollInterval)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					printEvent(cmd, ev)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func printEvent(cmd *cobra.Command, ev session.Event) {
	out := cmd.OutOrStdout()
	switch ev.Kind {
	case session.EventNotification:
		if n := ev.Notification; n != nil {
			fmt.Fprintf(out, "[%s] %s: %s (%s)\n", n.Timestamp.Local().Format("15:04:05"), n.Title, n.Message, n.ConversationID)
		}
	case session.EventConnection:
		if ev.Connected {
			fmt.Fprintln(out, "connected")
		} else {
			fmt.Fprintln(out, "disconnected")
		}
	}
}
