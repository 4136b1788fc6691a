package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomcast/edgeauth/pkg/handler"
)

// Settings for the standalone server
type ServerSettings struct {
	Listen     string
	ConfigPath string
	LogLevel   string
}

func main() {
	settings := parseCliFlags()

	bootstrap, err := handler.NewBootstrap()
	if err != nil {
		slog.Error("Failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}

	addr := bootstrap.Config.Listen
	if settings.Listen != "" {
		addr = settings.Listen
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           bootstrap.Handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		slog.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Listening",
		slog.String("addr", addr),
		slog.String("environment", bootstrap.Config.Environment),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

func parseCliFlags() ServerSettings {
	settings := ServerSettings{}

	flag.StringVar(&settings.Listen, "listen", "", "Listen address, overrides configuration")
	flag.StringVar(&settings.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&settings.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	flag.Parse()

	// Set config path as environment variable if provided
	if settings.ConfigPath != "" {
		if err := os.Setenv("CONFIG_PATH", settings.ConfigPath); err != nil {
			slog.Error("Error setting CONFIG_PATH environment variable", "error", err)
		}
	}
	if settings.LogLevel != "" {
		if err := os.Setenv("LOG_LEVEL", settings.LogLevel); err != nil {
			slog.Error("Error setting LOG_LEVEL environment variable", "error", err)
		}
	}

	return settings
}
