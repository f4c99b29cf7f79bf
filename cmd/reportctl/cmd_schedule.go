package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitereport/sitereport/internal/scheduler"
)

type outcomeOutput struct {
	ClientID string `json:"client_id"`
	Month    string `json:"month"`
	RunID    string `json:"run_id,omitempty"`
	Warnings int    `json:"warnings"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// newScheduleOnceCmd runs the scheduled trigger for every client once, the
// way the in-process scheduler does when it fires. It takes the same Redis
// locks, so it is safe to run from cron next to the API. Without Redis
// nothing prevents a second invocation from regenerating the same month.
func newScheduleOnceCmd(logger func() *slog.Logger) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "schedule-once",
		Short: "Run the scheduled generation for every client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseReference(at)
			if err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), logger())
			if err != nil {
				return err
			}
			defer func() { _ = sess.close() }()
			return runScheduleOnce(cmd, sess.svc, sess.locker, ref, logger())
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Reference time in RFC 3339 (default: now)")
	return cmd
}

func parseReference(at string) (time.Time, error) {
	if at == "" {
		return time.Now().UTC(), nil
	}
	ref, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: want RFC 3339", at)
	}
	return ref.UTC(), nil
}

func runScheduleOnce(cmd *cobra.Command, svc reportService, locker scheduler.Locker, ref time.Time, logger *slog.Logger) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Day and hour only matter for the ticking loop.
	sched := scheduler.New(svc, locker, 1, 0, logger)
	outcomes := sched.RunOnce(ctx, ref)

	out := make([]outcomeOutput, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		row := outcomeOutput{ClientID: o.ClientID, Month: o.Month, RunID: o.RunID, Warnings: o.Warnings, Status: "success"}
		switch {
		case o.Skipped():
			row.Status = "skipped"
		case o.Err != nil:
			row.Status = "failed"
			row.Error = o.Err.Error()
			failed++
		}
		out = append(out, row)
	}
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d clients failed", failed, len(outcomes))
	}
	return nil
}
