package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docforge/eval-queue/internal/config"
	"github.com/docforge/eval-queue/internal/db"
	"github.com/docforge/eval-queue/internal/evaluator"
	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/utils"
	"github.com/docforge/eval-queue/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	if cfg.EvalEndpoint == "" {
		logger.Fatal("EVAL_ENDPOINT is required for the worker")
	}

	if err := db.RunMigrations(cfg.DBPath); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	database, err := db.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	taskRepo := repository.NewTaskRepository(database)
	docRepo := repository.NewDocumentRepository(database)
	eval := evaluator.NewRemoteEvaluator(cfg.EvalEndpoint, cfg.EvalAPIKey, logger)

	w := worker.New(taskRepo, docRepo, eval, cfg.PollInterval, cfg.EvalTimeout, logger)

	// A termination signal cancels the context; the worker finishes its
	// in-flight task and exits before the next claim.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.Run(ctx)
}
