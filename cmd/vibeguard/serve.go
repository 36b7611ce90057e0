package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/vibeguard/internal/config"
	"github.com/raaihank/vibeguard/internal/proxy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the redaction service and provider proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		log, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer log.Sync()

		log.Info("Starting VibeGuard",
			zap.String("version", version),
			zap.String("commit", commit),
			zap.String("build_date", date),
			zap.Int("port", cfg.Server.Port),
		)

		server, err := proxy.New(cfg, log)
		if err != nil {
			log.Error("Failed to create server", zap.Error(err))
			return err
		}

		if serveWatch && cfg.LoadedFrom != "" {
			if err := config.Watch(cfg, func(next *config.Config) {
				log.Info("Configuration file changed", zap.String("path", next.LoadedFrom))
				server.Reload(next)
			}); err != nil {
				log.Warn("Config watching disabled", zap.Error(err))
			}
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
			serverErrors <- server.Start()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			log.Error("Server error", zap.Error(err))
			return err
		case sig := <-shutdown:
			log.Info("Shutdown signal received", zap.String("signal", sig.String()))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Stop(ctx); err != nil {
				log.Error("Failed to shutdown server gracefully", zap.Error(err))
				return err
			}

			log.Info("Server shutdown complete")
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload rules when the config file changes")
}
