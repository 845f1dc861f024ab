package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockflow/internal/api"
	"stockflow/internal/config"
	"stockflow/internal/database"
	"stockflow/internal/logging"
	"stockflow/internal/migrations"
	"stockflow/internal/sales"
	"stockflow/internal/seed"
	"stockflow/internal/store"
	"stockflow/internal/telemetry"
)

var version = "dev"

// app holds what every command needs once configuration is read.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func main() {
	_ = godotenv.Load()

	a := &app{}
	root := &cobra.Command{
		Use:           "stockflow",
		Short:         "Inventory and point-of-sale server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run migrations, seed and start the HTTP API",
			RunE:  func(cmd *cobra.Command, args []string) error { return a.serve(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withDB(cmd.Context(), func(ctx context.Context, db *sqlx.DB) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the admin account and load the catalog CSV",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withDB(cmd.Context(), a.seed)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("command failed", zap.Error(err))
			_ = a.logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// withDB connects, migrates and hands the database to fn.
func (a *app) withDB(ctx context.Context, fn func(ctx context.Context, db *sqlx.DB) error) error {
	db, err := database.Connect(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		return err
	}
	a.logger.Info("schema up to date", zap.String("driver", a.cfg.DatabaseDriver))
	return fn(ctx, db)
}

func (a *app) seed(ctx context.Context, db *sqlx.DB) error {
	if err := seed.EnsureAdmin(ctx, store.New(db), a.logger, a.cfg.AdminEmail, a.cfg.AdminPassword); err != nil {
		return err
	}
	if a.cfg.CatalogCSV == "" {
		return nil
	}
	_, err := seed.LoadCatalogFile(ctx, db, a.logger, a.cfg.CatalogCSV)
	return err
}

func (a *app) serve(ctx context.Context) error {
	shutdownTracing, err := telemetry.Init(ctx, a.cfg.OTLPEndpoint, a.cfg.ServiceName, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	return a.withDB(ctx, func(ctx context.Context, db *sqlx.DB) error {
		if err := a.seed(ctx, db); err != nil {
			return err
		}

		st := store.New(db)
		svc := sales.NewService(st, sales.Config{
			MaxRetries: a.cfg.SaleMaxRetries,
			TxTimeout:  a.cfg.SaleTxTimeout,
		}, a.logger.Named("sales"))
		handler := api.New(st, svc, a.cfg.Secret, a.cfg.TokenTTL, a.logger.Named("api"))

		srv := &http.Server{
			Addr:              ":" + a.cfg.HTTPPort,
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("StockFlow server starting", zap.String("addr", srv.Addr), zap.String("version", version))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
