// Command qrpay-server runs the in-memory development payment service that
// the client talks to in tests and demos.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/harrylevesque/qrpay/internal/config"
	"github.com/harrylevesque/qrpay/internal/server"
	"github.com/harrylevesque/qrpay/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, listen, seedFile string
	var demo bool
	cmd := &cobra.Command{
		Use:           "qrpay-server",
		Short:         "Development payment service for qrpay",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(valueOr(configPath, config.DefaultPath()))
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			if seedFile != "" {
				cfg.Server.SeedFile = seedFile
			}
			return serve(cmd.Context(), cfg, demo)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default ~/.qrpay/config.yaml)")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default :8080)")
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML file of users and merchants to load")
	cmd.Flags().BoolVar(&demo, "demo", true, "Load the demo user and merchant")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, demo bool) error {
	logger, closer, err := utils.NewLogger(utils.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format, Path: cfg.Log.Path})
	if err != nil {
		return err
	}
	defer closer.Close()

	ttl, err := cfg.TokenTTL()
	if err != nil {
		return err
	}
	store := server.NewStore(ttl)
	if demo {
		if err := store.LoadSeed([]byte(server.DemoSeed)); err != nil {
			return fmt.Errorf("load demo seed: %w", err)
		}
	}
	if cfg.Server.SeedFile != "" {
		if err := store.LoadSeedFile(cfg.Server.SeedFile); err != nil {
			return err
		}
		logger.Info("seed loaded", slog.String("path", cfg.Server.SeedFile))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.NewRouter(server.NewHandler(store, logger), reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
