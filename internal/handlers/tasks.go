package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/docforge/eval-queue/internal/models"
	"github.com/docforge/eval-queue/internal/services"
	"github.com/docforge/eval-queue/internal/utils"
)

type TaskHandler struct {
	service services.TaskService
	logger  *utils.Logger
}

func NewTaskHandler(service services.TaskService, logger *utils.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid request body"))
		return
	}
	if req.DocumentID <= 0 {
		respondError(w, h.logger, utils.NewBadRequestError("document_id is required"))
		return
	}

	task, err := h.service.Create(r.Context(), &req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid task ID"))
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, task)
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := models.TaskFilter{Limit: queryInt(r, "limit", 100)}

	if raw := r.URL.Query().Get("document_id"); raw != "" {
		docID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, h.logger, utils.NewBadRequestError("Invalid document_id filter"))
			return
		}
		filter.DocumentID = &docID
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			respondError(w, h.logger, utils.NewBadRequestError("Invalid status filter"))
			return
		}
		filter.Status = &status
	}

	tasks, err := h.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"total": len(tasks),
		"tasks": tasks,
	})
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid task ID"))
		return
	}

	var req models.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid request body"))
		return
	}

	if err := h.service.Update(r.Context(), id, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Task updated"})
}

// ListPendingTasks exposes the queue for inspection. It never mutates task
// status; claiming happens only inside worker processes.
func (h *TaskHandler) ListPendingTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListPending(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"total": len(tasks),
		"tasks": tasks,
	})
}
