package router

import (
	"net/http"

	"github.com/docforge/eval-queue/internal/handlers"
	"github.com/docforge/eval-queue/internal/middleware"
	"github.com/docforge/eval-queue/internal/services"
	"github.com/docforge/eval-queue/internal/utils"

	"github.com/gorilla/mux"
)

func NewRouter(
	docService services.DocumentService,
	taskService services.TaskService,
	maxUploadSize int64,
	logger *utils.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	docHandler := handlers.NewDocumentHandler(docService, maxUploadSize, logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Document endpoints
	api.HandleFunc("/documents/upload", docHandler.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents", docHandler.ListDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", docHandler.GetDocument).Methods(http.MethodGet)

	// Task endpoints
	api.HandleFunc("/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks", taskHandler.ListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/queue/pending", taskHandler.ListPendingTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", taskHandler.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", taskHandler.UpdateTask).Methods(http.MethodPatch)

	return r
}
