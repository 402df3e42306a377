package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/basecamp/internal/api"
	"github.com/user/basecamp/internal/config"
	"github.com/user/basecamp/internal/db"
	"github.com/user/basecamp/internal/hub"
	"github.com/user/basecamp/internal/provider"
	"github.com/user/basecamp/internal/server"
	"github.com/user/basecamp/internal/team"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("basecamp failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	registry, err := provider.NewRegistry(cfg.ProvidersPath)
	if err != nil {
		return fmt.Errorf("failed to load provider settings: %w", err)
	}
	chat := provider.NewClient(registry, &http.Client{Timeout: 120 * time.Second})

	notifier := hub.New(cfg.Token)
	go notifier.Run(ctx)

	teams, err := team.New(team.Options{
		CampsRoot: cfg.CampsRoot,
		Chat:      chat,
		Camps:     db.NewCampRepo(database.SQL()),
		Runs:      db.NewRunRepo(database.SQL()),
		Notifier:  notifier,
	})
	if err != nil {
		return fmt.Errorf("failed to build team service: %w", err)
	}

	router := api.NewRouter(database.SQL(), teams, cfg.Token, cfg.CampsRoot)

	if cfg.PrintToken {
		fmt.Printf("\nbasecamp running at http://localhost:%d (token: %s)\n\n", cfg.Port, cfg.Token)
	} else {
		fmt.Printf("\nbasecamp running at http://localhost:%d\n\n", cfg.Port)
	}

	return server.New(cfg, notifier, router).Start(ctx)
}
