package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/bashautom/internal/infrastructure/config"
	"github.com/GriffinCanCode/bashautom/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment variables
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Shell.Path, "shell", cfg.Shell.Path, "Shell executable")
	flag.StringVar(&cfg.Profiles.File, "profiles", cfg.Profiles.File, "Session profiles file (.yaml or .toml)")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.IntVar(&cfg.Shell.MaxSessions, "max-sessions", cfg.Shell.MaxSessions, "Maximum concurrent sessions, 0 for unlimited")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode (colored logs)")
	flag.Parse()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		stop()
		log.Fatalf("Server error: %v", err)
	}
}
