package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/docforge/eval-queue/internal/models"
	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/utils"
)

// ErrInvalidPageRange is returned when task page bounds fall outside the
// document or start exceeds end.
var ErrInvalidPageRange = errors.New("invalid page range")

// TaskDefaults fills evaluation configuration the create request omits.
type TaskDefaults struct {
	ModelURI     string
	NumTestCases int
}

type TaskService interface {
	Create(ctx context.Context, req *models.CreateTaskRequest) (*models.EvalTask, error)
	Get(ctx context.Context, id int64) (*models.EvalTask, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.EvalTask, error)
	Update(ctx context.Context, id int64, req *models.UpdateTaskRequest) error

	// ListPending inspects the queue without claiming anything.
	ListPending(ctx context.Context, limit int) ([]*models.EvalTask, error)
}

type taskService struct {
	tasks    repository.TaskRepository
	docs     repository.DocumentRepository
	defaults TaskDefaults
	logger   *utils.Logger
}

func NewTaskService(
	tasks repository.TaskRepository,
	docs repository.DocumentRepository,
	defaults TaskDefaults,
	logger *utils.Logger,
) TaskService {
	return &taskService{
		tasks:    tasks,
		docs:     docs,
		defaults: defaults,
		logger:   logger,
	}
}

func (s *taskService) Create(ctx context.Context, req *models.CreateTaskRequest) (*models.EvalTask, error) {
	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, utils.NewNotFoundError("Document not found")
	}
	if err != nil {
		s.logger.Error("Failed to resolve document", "error", err, "document_id", req.DocumentID)
		return nil, utils.NewInternalError("Failed to resolve document")
	}

	if err := validatePageRange(req.StartPage, req.EndPage, doc.TotalPages); err != nil {
		return nil, err
	}

	modelURI := req.ModelURI
	if modelURI == "" {
		modelURI = s.defaults.ModelURI
	}
	numTestCases := req.NumTestCases
	if numTestCases <= 0 {
		numTestCases = s.defaults.NumTestCases
	}

	task := &models.EvalTask{
		DocumentID:   req.DocumentID,
		StartPage:    req.StartPage,
		EndPage:      req.EndPage,
		ModelURI:     modelURI,
		NumTestCases: numTestCases,
		Status:       models.StatusPending,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		s.logger.Error("Failed to create task", "error", err, "document_id", req.DocumentID)
		return nil, utils.NewInternalError("Failed to create task")
	}

	// Best-effort counter bump; a failure here must not fail task creation.
	if err := s.docs.IncrementEvalCount(ctx, req.DocumentID); err != nil {
		s.logger.Warn("Failed to increment eval count", "error", err, "document_id", req.DocumentID)
	}

	s.logger.Info("Task created",
		"task_id", task.ID,
		"document_id", task.DocumentID,
		"model_uri", task.ModelURI,
		"num_test_cases", task.NumTestCases)

	return task, nil
}

func (s *taskService) Get(ctx context.Context, id int64) (*models.EvalTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return nil, utils.NewNotFoundError("Task not found")
	}
	if err != nil {
		s.logger.Error("Failed to get task", "error", err, "task_id", id)
		return nil, utils.NewInternalError("Failed to retrieve task")
	}

	return task, nil
}

func (s *taskService) List(ctx context.Context, filter models.TaskFilter) ([]*models.EvalTask, error) {
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list tasks", "error", err)
		return nil, utils.NewInternalError("Failed to list tasks")
	}

	return tasks, nil
}

func (s *taskService) Update(ctx context.Context, id int64, req *models.UpdateTaskRequest) error {
	patch := &models.TaskPatch{
		Progress:       req.Progress,
		CompletedAt:    req.CompletedAt,
		ResultPath:     req.ResultPath,
		DatasetPath:    req.DatasetPath,
		AvgScore:       req.AvgScore,
		MetricsSummary: req.MetricsSummary,
		Error:          req.Error,
	}

	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil {
			return utils.NewBadRequestError(fmt.Sprintf("Invalid status %q", *req.Status))
		}
		patch.Status = &status
	}

	if patch.Empty() {
		return utils.NewBadRequestError("No fields to update")
	}

	err := s.tasks.Update(ctx, id, patch)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return utils.NewNotFoundError("Task not found")
	}
	if errors.Is(err, repository.ErrTaskFinished) {
		return utils.NewConflictError("Task has already finished and can no longer be updated")
	}
	if err != nil {
		s.logger.Error("Failed to update task", "error", err, "task_id", id)
		return utils.NewInternalError("Failed to update task")
	}

	return nil
}

func (s *taskService) ListPending(ctx context.Context, limit int) ([]*models.EvalTask, error) {
	if limit <= 0 {
		limit = 10
	}
	status := models.StatusPending
	return s.List(ctx, models.TaskFilter{Status: &status, Limit: limit})
}

func validatePageRange(startPage, endPage *int, totalPages int) error {
	if startPage == nil && endPage == nil {
		return nil
	}

	start := 1
	if startPage != nil {
		start = *startPage
	}
	end := totalPages
	if endPage != nil {
		end = *endPage
	}

	if start < 1 || end > totalPages {
		return fmt.Errorf("%w: document has %d pages", ErrInvalidPageRange, totalPages)
	}
	if start > end {
		return fmt.Errorf("%w: start page %d exceeds end page %d", ErrInvalidPageRange, start, end)
	}

	return nil
}
