package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nebulapilot/internal/catalog"
	"nebulapilot/internal/cli"
	"nebulapilot/internal/config"
	"nebulapilot/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}

	store, err := catalog.New(cfg.Paths.DatabasePath)
	if err != nil {
		log.Error("cannot open catalog", "path", cfg.Paths.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(cfg, log, store)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
