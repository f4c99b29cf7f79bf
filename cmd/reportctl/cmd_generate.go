package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sitereport/sitereport/internal/handler/dto"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/service"
)

type generateOptions struct {
	client  string
	month   string
	trigger string
}

// newGenerateCmd generates one client month.
//
//	reportctl generate --client acme               # previous month
//	reportctl generate --client acme --month 2024-02
func newGenerateCmd(logger func() *slog.Logger) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the report of one client month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), logger())
			if err != nil {
				return err
			}
			defer func() { _ = sess.close() }()
			return runGenerate(cmd, sess.svc, opts)
		},
	}
	cmd.Flags().StringVar(&opts.client, "client", "", "Client id from the registry")
	cmd.Flags().StringVar(&opts.month, "month", "", "Report month YYYY-MM (default: previous calendar month)")
	cmd.Flags().StringVar(&opts.trigger, "trigger", string(model.TriggerManual), "Trigger recorded on the run (manual or scheduled)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func runGenerate(cmd *cobra.Command, svc reportService, opts *generateOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := svc.Client(opts.client)
	if err != nil {
		return err
	}
	res, err := svc.Generate(ctx, service.GenerateRequest{
		Client:  client,
		Month:   opts.month,
		Trigger: model.TriggerType(opts.trigger),
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), dto.ToGenerateReportResponse(res))
}
