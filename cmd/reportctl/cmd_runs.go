package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sitereport/sitereport/internal/handler/dto"
)

type runsOptions struct {
	client string
	month  string
	limit  int
}

// newRunsCmd shows generation history.
//
//	reportctl runs --client acme --month 2024-02
//	reportctl runs 01HQ3...
func newRunsCmd(logger func() *slog.Logger) *cobra.Command {
	opts := &runsOptions{}
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show generation runs of a client month, or one run by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && (opts.client == "" || opts.month == "") {
				return fmt.Errorf("either a run id or both --client and --month are required")
			}
			sess, err := openSession(cmd.Context(), logger())
			if err != nil {
				return err
			}
			defer func() { _ = sess.close() }()

			if len(args) == 1 {
				run, err := sess.svc.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dto.ToRunResponse(run))
			}
			runs, err := sess.svc.ListRuns(cmd.Context(), opts.client, opts.month, opts.limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), dto.ToRunListResponse(runs))
		},
	}
	cmd.Flags().StringVar(&opts.client, "client", "", "Client id from the registry")
	cmd.Flags().StringVar(&opts.month, "month", "", "Report month YYYY-MM")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum runs to show (default 20, max 100)")
	return cmd
}
