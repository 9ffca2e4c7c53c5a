package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/api"
	"github.com/tony-assistant/console/internal/models"
)

func newQuickResponsesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "quick-responses",
		Aliases: []string{"qr"},
		Short:   "List canned replies",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			quick := sess.QuickResponses()
			if quick == nil {
				quick = []models.QuickResponse{}
			}
			return a.output(cmd, quick, func(out io.Writer) error {
				rows := make([][]string, 0, len(quick))
				for _, q := range quick {
					rows = append(rows, []string{q.ID, dash(q.Category), q.Text})
				}
				return writeTable(out, []string{"ID", "CATEGORY", "TEXT"}, rows)
			})
		},
	}
}

type healthReport struct {
	BaseURL string            `json:"base_url"`
	Healthy bool              `json:"healthy"`
	Status  *api.HealthStatus `json:"status,omitempty"`
	Latency string            `json:"latency"`
	Error   string            `json:"error,omitempty"`
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			start := time.Now()
			status, err := client.Health(cmd.Context())
			report := healthReport{
				BaseURL: client.BaseURL(),
				Healthy: err == nil,
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				report.Error = err.Error()
			} else {
				report.Status = &status
			}

			if outErr := a.output(cmd, report, func(out io.Writer) error {
				if err != nil {
					_, werr := fmt.Fprintf(out, "%s unreachable (%s): %v\n", report.BaseURL, report.Latency, err)
					return werr
				}
				_, werr := fmt.Fprintf(out, "%s %s version=%s (%s)\n", report.BaseURL, status.Status, dash(status.Version), report.Latency)
				return werr
			}); outErr != nil {
				return outErr
			}
			if err != nil {
				return &ExitError{Code: ExitCodeFailure, Err: err, Printed: true}
			}
			return nil
		},
	}
}
