package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strefethen/room-combine-go/internal/config"
	"github.com/strefethen/room-combine-go/internal/server"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogging(cfg.LogLevel)
			addr := cfg.Host + ":" + cfg.Port

			handler, shutdownHandler, err := server.NewHandler(cfg, server.Options{Logger: logger})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("http shutdown")
				}
				if err := shutdownHandler(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown")
				}
			}()

			logger.Info().Str("addr", addr).Msg("room-combine listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				stop()
				<-stopped
				return err
			}
			<-stopped
			return nil
		},
	}
}
