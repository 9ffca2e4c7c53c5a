package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/tui"
)

func newUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive operator console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasTTY() {
				return Exitf(ExitCodeUsage, "the console needs a terminal; try `tony conversations` instead")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			sess, cleanup, err := a.newSession(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			a.serveMetrics(ctx)

			if err := sess.Open(ctx); err != nil {
				logger := logging.FromContext(ctx)
				logger.Warn().Err(err).Msg("initial load failed, retrying in the background")
			}

			return tui.Run(ctx, sess, tui.Config{
				Theme:          a.theme(),
				ShowTimestamps: a.cfg.TUI.ShowTimestamps,
				Prefs:          a.prefs,
			})
		},
	}
}
