package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gonzalop/ftpd/internal/promstats"
	"github.com/gonzalop/ftpd/server"
	"github.com/gonzalop/ftpd/userdir"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftpd",
		Short: "Multi-user FTP server with per-user sandboxes",
		Long: `ftpd serves FTP to the users listed in a registry file. Each user is
confined to their own home directory below --root, and each connected
client holds one port from the --dpr range for passive transfers.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "ftpd:", err)
				return err
			}
			logger := cfg.newLogger(cmd.ErrOrStderr())
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("server_failed", "error", err)
				return err
			}
			return nil
		},
	}
	addFlags(cmd.Flags())
	return cmd
}

// run serves FTP, and metrics when configured, until ctx is cancelled or a
// listener fails.
func run(ctx context.Context, cfg *config, logger *slog.Logger) error {
	users, err := userdir.Load(cfg.Users, cfg.Root)
	if err != nil {
		return err
	}
	if err := users.EnsureHomes(); err != nil {
		return err
	}
	logger.Info("users_loaded", "count", users.Len(), "file", cfg.Users, "root", cfg.Root)

	opts := append(cfg.serverOptions(),
		server.WithUsers(users),
		server.WithLogger(logger),
	)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		stats := promstats.New("ftpd")
		opts = append(opts, server.WithMetricsCollector(stats))
		metricsSrv = stats.NewHTTPServer(cfg.MetricsAddr)
	}

	srv, err := server.NewServer(cfg.Addr(), opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})

	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("metrics_listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var result *multierror.Error
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(sctx); err != nil {
				result = multierror.Append(result, fmt.Errorf("metrics server: %w", err))
			}
		}
		if err := srv.Shutdown(sctx); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	})

	return g.Wait()
}
