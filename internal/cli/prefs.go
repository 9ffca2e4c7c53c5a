package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/prefs"
)

func newLoginCmd(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a bearer token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(token)
			if token == "" {
				return Exitf(ExitCodeUsage, "--token is required")
			}
			if err := a.prefs.SetToken(token); err != nil {
				return err
			}
			msg := "Token saved"
			if id := operatorFromToken(token); id != "" {
				msg += " for " + id
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the backend")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.prefs.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token cleared")
			return nil
		},
	}
}

func newThemeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "theme [" + strings.Join(prefs.Themes, "|") + "]",
		Short: "Show or set the console theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), a.theme())
				return nil
			}
			if err := a.prefs.SetTheme(args[0]); err != nil {
				if errors.Is(err, prefs.ErrUnknownTheme) {
					return &ExitError{Code: ExitCodeUsage, Err: err}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Theme set to %s\n", args[0])
			return nil
		},
	}
}

// theme returns the saved theme, falling back to config.
func (a *app) theme() string {
	if t := a.prefs.Theme(); t != "" {
		return t
	}
	return a.cfg.TUI.Theme
}
