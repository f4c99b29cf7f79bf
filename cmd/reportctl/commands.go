package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitereport/sitereport/internal/app"
	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/scheduler"
	"github.com/sitereport/sitereport/internal/service"
)

// reportService is the part of the generator the commands drive.
type reportService interface {
	Client(id string) (config.Client, error)
	Clients() []config.Client
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	ListRuns(ctx context.Context, clientID, monthKey string, limit int) ([]*model.ReportRun, error)
	GetRun(ctx context.Context, id string) (*model.ReportRun, error)
}

// session is a connected pipeline. locker is nil without Redis.
type session struct {
	svc    reportService
	locker scheduler.Locker
	close  func() error
}

// openSession connects the full pipeline. Tests replace it.
var openSession = func(ctx context.Context, logger *slog.Logger) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	tp, err := app.NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger, metrics.NewNoop())
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	s := &session{
		svc: a.Generator,
		close: func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.Join(a.Close(), tp.Shutdown(flushCtx))
		},
	}
	if a.Cache != nil {
		s.locker = scheduler.NewRedisLocker(a.Cache)
	}
	return s, nil
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Generate and inspect monthly site reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr (debug, info, warn, error)")

	logger := func() *slog.Logger {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: app.ParseLogLevel(logLevel)}))
	}

	root.AddCommand(newGenerateCmd(logger))
	root.AddCommand(newScheduleOnceCmd(logger))
	root.AddCommand(newClientsCmd())
	root.AddCommand(newRunsCmd(logger))
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
