package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vapvarun/fymodules/auth"
	"github.com/vapvarun/fymodules/health"
	"github.com/vapvarun/fymodules/httpapi"
	"github.com/vapvarun/fymodules/quarantine"
	"github.com/vapvarun/fymodules/store"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the module management API",
		Long: `Serve boots every enabled module, retries quarantined modules on the
configured schedule and serves the module management API until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.configPath, cmd)
		},
	}
}

func runServe(ctx context.Context, configPath string, cmd *cobra.Command) error {
	a, err := newApp(ctx, configPath, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("Failed to close store", "error", err)
		}
	}()

	if err := a.bootstrap(ctx); err != nil {
		a.logger.Error("Bootstrap incomplete", "error", err)
	}
	report, err := a.manager.Boot(ctx)
	if err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}
	a.logger.Info("Modules booted", "loaded", report.Loaded, "errored", report.Errored)

	if fs, ok := a.backend.(*store.FileStore); ok {
		if err := fs.Watch(ctx, func() {
			a.logger.Info("Module state changed on disk", "path", fs.Path())
		}); err != nil {
			a.logger.Warn("Cannot watch state file", "path", fs.Path(), "error", err)
		}
	}

	if !a.cfg.Quarantine.Disabled {
		retrier, err := quarantine.New(a.manager, a.cfg.Quarantine.Schedule, a.logger)
		if err != nil {
			return err
		}
		if err := retrier.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := retrier.Stop(stopCtx); err != nil {
				a.logger.Error("Failed to stop retrier", "error", err)
			}
		}()
	}

	tokens, err := auth.NewService(auth.Config{
		Secret:   a.cfg.Auth.Secret,
		Issuer:   a.cfg.Auth.Issuer,
		TokenTTL: a.cfg.Auth.TokenTTL,
		NonceTTL: a.cfg.Auth.NonceTTL,
	})
	if err != nil {
		return err
	}
	checks := health.NewAggregator(5 * time.Second)
	if err := checks.RegisterCheck(health.StoreChecker(a.backend)); err != nil {
		return err
	}
	if err := checks.RegisterCheck(health.NewModulesChecker(a.registry)); err != nil {
		return err
	}

	routes := httpapi.RouterConfig{
		Manager:  a.manager,
		Logger:   a.logger,
		BasePath: a.cfg.Server.BasePath,
		Actors:   tokens,
		Health:   checks,
	}
	if !a.cfg.Auth.DisableNonce {
		routes.Nonces = tokens
	}

	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      httpapi.NewRouter(routes),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Listening", "addr", server.Addr, "basePath", a.cfg.Server.BasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
