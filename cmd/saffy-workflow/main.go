package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"saffy-workflow/internal/config"
	"saffy-workflow/internal/database"
	"saffy-workflow/internal/engine"
	httpapi "saffy-workflow/internal/http"
	"saffy-workflow/internal/logger"
	"saffy-workflow/internal/repository"
	"saffy-workflow/internal/service"
)

const serviceName = "saffy-workflow"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Facility operations workflow engine",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(newServeCmd(), newMigrateCmd(), newScoreCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := database.NewPostgresDB(ctx, &cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close(db)
			if err := repository.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <frequency> <severity>",
		Short: "Print the risk level and grade for a frequency/severity pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("frequency: %w", err)
			}
			s, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("severity: %w", err)
			}
			res, err := engine.New(nil).ScoreRisk(f, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "level=%d grade=%s\n", res.Level, res.Grade)
			return nil
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer log.Sync()

	deps, err := buildDeps(ctx, cfg, logger.Component(log, "deps"))
	if err != nil {
		return err
	}
	defer deps.Close()

	e := engine.New(deps.store,
		engine.WithLogger(logger.Component(log, "engine")),
		engine.WithSequencer(deps.sequencer),
		engine.WithPublisher(deps.publisher),
		engine.WithControlTable(cfg.ControlTable),
		engine.WithAlertPolicy(cfg.AlertPolicy),
	)
	httpLog := logger.Component(log, "http")
	router := httpapi.NewRouter(httpLog)
	router.RegisterWorkflowRoutes(httpapi.NewWorkflowHandler(e, httpLog))

	srv := service.NewServer(cfg.HTTP.Addr, router, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		if runErr != nil {
			log.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}
	return runErr
}
