// Package main provides the starmirror server: background sync and
// enrichment jobs plus the REST and WebSocket API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lukaswerner/starmirror/internal/broadcast"
	"github.com/lukaswerner/starmirror/internal/config"
	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/github"
	"github.com/lukaswerner/starmirror/internal/llm"
	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/scheduler"
	"github.com/lukaswerner/starmirror/internal/server"
	"github.com/lukaswerner/starmirror/internal/service"
	"github.com/lukaswerner/starmirror/internal/vector"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("starting starmirror-server", "port", cfg.ServerPort)

	mc := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	if err != nil {
		cancel()
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("STARMIRROR_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		slog.Warn("database wiped")
	}
	cancel()

	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	embedder, err := llm.NewEmbedder(cfg, mc)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	gh := github.NewClient(cfg.GitHubBaseURL, cfg.GitHubToken, mc)
	index := vector.NewSurrealIndex(dbClient)
	hub := broadcast.NewHub()

	syncSvc := service.NewSyncService(gh, dbClient, cfg.GitHubUser, cfg.SyncBatchSize, cfg.FastUpsert)
	readmeSvc := service.NewReadmeService(gh, dbClient, index, embedder, cfg.ReadmeConcurrency)
	searchSvc := service.NewSearchService(dbClient, index, embedder)

	sched := scheduler.New(syncSvc, readmeSvc, hub, cfg.IncrementalLimit)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(runCtx)
	defer sched.Stop()

	srv := server.New(":"+cfg.ServerPort, sched, dbClient, readmeSvc, searchSvc, gh, hub, mc, logger)
	if err := srv.Run(runCtx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
