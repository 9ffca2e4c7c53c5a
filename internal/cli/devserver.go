package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/devserver"
)

func newDevServerCmd(a *app) *cobra.Command {
	var addr, secret string
	var seed bool
	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run an in-memory Tony backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := devserver.New(devserver.Options{Seed: seed, JWTSecret: secret})
			fmt.Fprintf(cmd.OutOrStdout(), "Serving Tony dev backend on http://%s\n", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().BoolVar(&seed, "seed", true, "preload demo conversations")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "require HS256 bearer tokens signed with this secret")
	cmd.AddCommand(newDevTokenCmd(a))
	return cmd
}

func newDevTokenCmd(a *app) *cobra.Command {
	var secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token accepted by a dev server started with --jwt-secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devserver.IssueToken([]byte(secret), a.operatorID(), ttl, time.Now())
			if err != nil {
				return &ExitError{Code: ExitCodeUsage, Err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
