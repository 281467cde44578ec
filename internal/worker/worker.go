// Package worker runs the polling evaluation loop. Several worker processes
// may share one task backlog; the atomic claim in the task repository is the
// only coordination between them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docforge/eval-queue/internal/evaluator"
	"github.com/docforge/eval-queue/internal/models"
	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/utils"
)

type Worker struct {
	tasks       repository.TaskRepository
	docs        repository.DocumentRepository
	eval        evaluator.Evaluator
	interval    time.Duration
	evalTimeout time.Duration
	logger      *utils.Logger
}

// New creates a worker. evalTimeout bounds a single pipeline call; zero means
// no limit.
func New(
	tasks repository.TaskRepository,
	docs repository.DocumentRepository,
	eval evaluator.Evaluator,
	interval time.Duration,
	evalTimeout time.Duration,
	logger *utils.Logger,
) *Worker {
	return &Worker{
		tasks:       tasks,
		docs:        docs,
		eval:        eval,
		interval:    interval,
		evalTimeout: evalTimeout,
		logger:      logger,
	}
}

// Run polls the queue until ctx is cancelled. Cancellation is observed before
// each claim; a task already in flight is always finished, never abandoned.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Worker started", "poll_interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Poll once at startup instead of waiting out the first interval.
	w.processNext(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopped")
			return
		case <-ticker.C:
			w.processNext(ctx)
		}
	}
}

func (w *Worker) processNext(ctx context.Context) {
	if ctx.Err() != nil {
		// Stop signal already received; never claim past it.
		return
	}

	task, err := w.tasks.ClaimNext(ctx)
	if err != nil {
		// Store-level claim failures are retryable; wait for the next poll.
		w.logger.Warn("Failed to claim task, will retry next interval", "error", err)
		return
	}
	if task == nil {
		return
	}

	w.logger.Info("Claimed task",
		"task_id", task.ID,
		"document_id", task.DocumentID,
		"model_uri", task.ModelURI)

	// Detach from the stop signal so the claimed task runs to completion and
	// its terminal state is always recorded.
	w.process(context.WithoutCancel(ctx), task)
}

func (w *Worker) process(ctx context.Context, task *models.EvalTask) {
	doc, err := w.docs.GetByID(ctx, task.DocumentID)
	if err != nil {
		// The task references a document we cannot resolve. Data corruption,
		// not a transient condition: fail the task, keep the worker alive.
		msg := fmt.Sprintf("failed to resolve document %d: %v", task.DocumentID, err)
		if errors.Is(err, repository.ErrDocumentNotFound) {
			msg = fmt.Sprintf("document %d no longer exists", task.DocumentID)
		}
		w.logger.Error("Task references unresolvable document", "task_id", task.ID, "error", err)
		w.markFailed(ctx, task.ID, msg)
		return
	}

	evalCtx := ctx
	if w.evalTimeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, w.evalTimeout)
		defer cancel()
	}

	outcome, err := w.eval.Evaluate(evalCtx, evaluator.Request{
		DocumentPath: doc.StoragePath,
		StartPage:    task.StartPage,
		EndPage:      task.EndPage,
		ModelURI:     task.ModelURI,
		NumTestCases: task.NumTestCases,
	})
	if err != nil {
		w.logger.Error("Evaluation failed", "task_id", task.ID, "error", err)
		w.markFailed(ctx, task.ID, err.Error())
		return
	}

	now := time.Now().UTC()
	status := models.StatusCompleted
	progress := 100
	patch := &models.TaskPatch{
		Status:         &status,
		Progress:       &progress,
		CompletedAt:    &now,
		ResultPath:     &outcome.ResultPath,
		DatasetPath:    &outcome.DatasetPath,
		AvgScore:       &outcome.AvgScore,
		MetricsSummary: outcome.MetricsSummary,
	}

	if err := w.tasks.Update(ctx, task.ID, patch); err != nil {
		w.logger.Error("Failed to record task completion", "task_id", task.ID, "error", err)
		return
	}

	w.logger.Info("Task completed",
		"task_id", task.ID,
		"avg_score", outcome.AvgScore,
		"result_path", outcome.ResultPath)
}

func (w *Worker) markFailed(ctx context.Context, taskID int64, message string) {
	now := time.Now().UTC()
	status := models.StatusFailed
	patch := &models.TaskPatch{
		Status:      &status,
		CompletedAt: &now,
		Error:       &message,
	}

	if err := w.tasks.Update(ctx, taskID, patch); err != nil {
		w.logger.Error("Failed to mark task failed", "task_id", taskID, "error", err)
	}
}
