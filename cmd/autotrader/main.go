package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"autotrader/internal/app"
	"autotrader/internal/config"
	"autotrader/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("loading configuration failed: %v", err)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Errorf("run failed: %v", err)
		os.Exit(1)
	}
}
