// Package main is the entry point for the litgraph pipeline worker.
// It runs the worker pool that drains the job queue: parsing papers,
// extracting elements and linking libraries.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/litgraph/litgraph/domain/extraction"
	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/domain/libraries"
	"github.com/litgraph/litgraph/domain/linking"
	"github.com/litgraph/litgraph/domain/papers"
	"github.com/litgraph/litgraph/domain/parsing"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/database"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/internal/storage"
	embeddingsgenai "github.com/litgraph/litgraph/pkg/embeddings/genai"
	"github.com/litgraph/litgraph/pkg/grobid"
	llmgenai "github.com/litgraph/litgraph/pkg/llm/genai"
	"github.com/litgraph/litgraph/pkg/logger"
)

func main() {
	var (
		workers      int
		pollInterval int
	)
	flag.IntVar(&workers, "workers", 0, "Number of concurrent workers (default 4, or WORKER_COUNT)")
	flag.IntVar(&pollInterval, "poll-interval", 0, "Seconds to sleep when the queue is empty (default 5, or WORKER_POLL_INTERVAL)")
	flag.Parse()

	if err := run(workers, pollInterval); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(workers, pollInterval int) error {
	_ = godotenv.Load()

	log := logger.NewLogger()
	cfg, err := config.NewConfig(log)
	if err != nil {
		return err
	}

	// CLI flags win over environment configuration.
	if workers > 0 {
		cfg.Worker.Count = workers
	}
	if pollInterval > 0 {
		cfg.Worker.PollInterval = time.Duration(pollInterval) * time.Second
	}

	ctx := context.Background()
	db, err := database.OpenBunDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	store := jobs.NewPGStore(db, jobs.Options{
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
		RetryMaxDelay:  cfg.Worker.RetryMaxDelay,
	}, log)

	storageSvc, err := storage.NewService(cfg, log)
	if err != nil {
		return err
	}
	grobidClient := grobid.NewClient(cfg, log)
	provider, err := llmgenai.NewClient(cfg, log)
	if err != nil {
		return err
	}
	embedder, err := embeddingsgenai.NewClient(cfg, log)
	if err != nil {
		return err
	}

	paperRepo := papers.NewRepository(db, log)
	extractRepo := extracts.NewRepository(db, log)
	libraryRepo := libraries.NewRepository(db, log)

	coordinator := linking.NewCoordinator(store, libraryRepo, extractRepo, cfg, log)

	registry := jobs.NewRegistry()
	registry.Register(parsing.NewHandler(paperRepo, storageSvc, grobidClient, store, cfg, log))
	registry.Register(extraction.NewHandler(paperRepo, extractRepo, libraryRepo, storageSvc, provider, embedder, coordinator, cfg, log))
	registry.Register(linking.NewHandler(store, libraryRepo, extractRepo, provider, cfg, log))

	pool := jobs.NewPool(store, registry, jobs.PoolConfig{
		Workers:      cfg.Worker.Count,
		PollInterval: cfg.Worker.PollInterval,
		StaleAfter:   cfg.Worker.StaleAfter,
	}, log)

	if err := pool.Start(ctx); err != nil {
		return err
	}

	// Graceful drain: workers finish their in-flight job, then exit.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return pool.Stop(stopCtx)
}
