package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docforge/eval-queue/internal/config"
	"github.com/docforge/eval-queue/internal/db"
	"github.com/docforge/eval-queue/internal/extractor"
	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/router"
	"github.com/docforge/eval-queue/internal/services"
	"github.com/docforge/eval-queue/internal/storage"
	"github.com/docforge/eval-queue/internal/utils"
)

func main() {
	// Load configuration (.env is optional)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Run migrations, then open the shared store once for the process lifetime
	if err := db.RunMigrations(cfg.DBPath); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	database, err := db.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	// Document storage backend
	var store storage.Storage
	switch cfg.StorageBackend {
	case "s3":
		store, err = storage.NewS3Storage(cfg)
	default:
		store, err = storage.NewLocalStorage(cfg.StorageRoot)
	}
	if err != nil {
		logger.Fatal("Failed to initialize storage", "error", err)
	}

	// Services
	docRepo := repository.NewDocumentRepository(database)
	taskRepo := repository.NewTaskRepository(database)
	docService := services.NewDocumentService(docRepo, taskRepo, store, extractor.CountPDFPages, logger)
	taskService := services.NewTaskService(taskRepo, docRepo, services.TaskDefaults{
		ModelURI:     cfg.DefaultModelURI,
		NumTestCases: cfg.DefaultNumTestCases,
	}, logger)

	// Setup HTTP router
	handler := router.NewRouter(docService, taskService, cfg.MaxUploadSize, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
