package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/services"
	"github.com/docforge/eval-queue/internal/utils"
)

func respondJSON(w http.ResponseWriter, logger *utils.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, logger *utils.Logger, err error) {
	var status int
	var message string

	var appErr *utils.AppError
	switch {
	case errors.As(err, &appErr):
		status = appErr.StatusCode
		message = appErr.Message
	case errors.Is(err, services.ErrInvalidPageRange),
		errors.Is(err, services.ErrUnreadableDocument):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, repository.ErrDocumentNotFound),
		errors.Is(err, repository.ErrTaskNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, repository.ErrTaskFinished):
		status = http.StatusConflict
		message = err.Error()
	default:
		status = http.StatusInternalServerError
		message = "Internal server error"
	}

	logger.Error("Request error", "status", status, "error", err.Error())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
