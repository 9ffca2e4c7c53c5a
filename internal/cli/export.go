package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var ff filterFlags
	var outPath string
	var withMessages bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write conversations to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := ff.filters(a)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = fmt.Sprintf("tony-conversations-%s.xlsx", time.Now().Format("20060102-150405"))
			}
			if !strings.HasSuffix(strings.ToLower(outPath), ".xlsx") {
				return Exitf(ExitCodeUsage, "output file must end in .xlsx: %s", outPath)
			}

			sess, cleanup, err := a.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			convs := sess.Filtered(filters, ff.search)
			if err := export.WriteFile(outPath, convs, export.Options{IncludeMessages: withMessages, Location: time.Local}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d conversations to %s\n", len(convs), outPath)
			return nil
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output .xlsx path")
	cmd.Flags().BoolVar(&withMessages, "messages", false, "include a sheet with every message")
	return cmd
}
