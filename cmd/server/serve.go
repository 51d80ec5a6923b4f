package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/api"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/service"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/vcs"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  withApp(runServe),
	}
}

func runServe(cmd *cobra.Command, a *app) error {
	log := a.log
	cfg := a.cfg
	log.Info().Str("store", cfg.Store.Driver).Msg("Starting parts submission API server...")

	repos, closeStore, err := a.openStore(true)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open rate-limit store")
		return err
	}
	defer closeStore()

	host, err := vcs.NewGitHubClient(cfg.GitHub, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create GitHub client")
		return err
	}

	services, err := service.NewServices(host, repos, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize services")
		return err
	}

	router := api.NewRouter(services, cfg, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
			return err
		}
		return nil
	case <-quit:
	case <-cmd.Context().Done():
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Server exited gracefully")
	return nil
}
