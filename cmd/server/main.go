// Package main implements the entry point for the relay API server, which
// accepts asynchronous text-generation jobs, processes them against the
// upstream provider, and notifies callers when results are ready.
package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.Setup(cfg.Server.LogLevel)
	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"redis_enabled", cfg.Redis.Addr != "",
		"nsq_enabled", cfg.NSQ.NSQDAddress != "")

	app, err := newApplication(cfg, logg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(context.Background()); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
