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

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/benjamonnguyen/breathe-go"
	"github.com/benjamonnguyen/breathe-go/backend"
)

var isProd bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "breathe-backend",
		Short:         "In-memory breathing API for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().BoolVar(&isProd, "prod", false, "load .env instead of .env.dev")
	rootCmd.AddCommand(newTokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for BREATHE_API_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := breathe.LoadBackendConfig(isProd)
			if err != nil {
				return err
			}
			token, err := backend.IssueToken(backend.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "dev-user", "user id the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func serve(ctx context.Context) error {
	cfg, err := breathe.LoadBackendConfig(isProd)
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "backend"})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	store := backend.NewInMemoryStore()
	service := backend.NewService(store, cfg, logger)
	handler := backend.NewHandler(service, backend.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger)

	server := backend.NewServer(backend.ServerConfig{
		Address:      cfg.Address,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, handler.Router())

	errC := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Address, "presets", cfg.DurationPresets.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("shut down")
	return nil
}
