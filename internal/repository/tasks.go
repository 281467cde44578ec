package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docforge/eval-queue/internal/models"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrTaskNotFound is returned when a task id resolves to no row.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinished is returned when an update targets a task that has
	// already reached a terminal state. Terminal rows are immutable.
	ErrTaskFinished = errors.New("task already in a terminal state")
)

type TaskRepository interface {
	Create(ctx context.Context, task *models.EvalTask) error
	GetByID(ctx context.Context, id int64) (*models.EvalTask, error)
	List(ctx context.Context, filter models.TaskFilter) ([]*models.EvalTask, error)
	Update(ctx context.Context, id int64, patch *models.TaskPatch) error

	// ClaimNext atomically pops the oldest pending task and marks it running.
	// Returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context) (*models.EvalTask, error)
}

type taskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, document_id, start_page, end_page, model_uri, num_test_cases,
	status, progress, created_at, started_at, completed_at,
	result_path, dataset_path, avg_score, metrics_summary, error`

func (r *taskRepository) Create(ctx context.Context, task *models.EvalTask) error {
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO eval_tasks (document_id, start_page, end_page, model_uri, num_test_cases, status, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.ExecContext(ctx, query,
		task.DocumentID,
		task.StartPage,
		task.EndPage,
		task.ModelURI,
		task.NumTestCases,
		task.Status,
		task.Progress,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read task id: %w", err)
	}
	task.ID = id

	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id int64) (*models.EvalTask, error) {
	query := `SELECT ` + taskColumns + ` FROM eval_tasks WHERE id = ?`
	return scanTask(r.db.QueryRowContext(ctx, query, id))
}

func (r *taskRepository) List(ctx context.Context, filter models.TaskFilter) ([]*models.EvalTask, error) {
	query := `SELECT ` + taskColumns + ` FROM eval_tasks WHERE 1=1`
	var params []any

	if filter.DocumentID != nil {
		query += ` AND document_id = ?`
		params = append(params, *filter.DocumentID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		params = append(params, *filter.Status)
	}

	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		params = append(params, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.EvalTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// Update applies a sparse patch: nil patch fields leave the stored value
// untouched. Tasks in a terminal state reject every patch with ErrTaskFinished.
func (r *taskRepository) Update(ctx context.Context, id int64, patch *models.TaskPatch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var rawStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM eval_tasks WHERE id = ?`, id).Scan(&rawStatus)
	if err == sql.ErrNoRows {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}

	current, err := models.ParseStatus(rawStatus)
	if err != nil {
		return fmt.Errorf("stored status invalid: %w", err)
	}
	if current.Terminal() {
		return fmt.Errorf("task %d: %w", id, ErrTaskFinished)
	}

	var updates []string
	var params []any

	if patch.Status != nil {
		updates = append(updates, "status = ?")
		params = append(params, *patch.Status)
	}
	if patch.Progress != nil {
		// Progress is monotonic non-decreasing while running.
		updates = append(updates, "progress = MAX(progress, ?)")
		params = append(params, *patch.Progress)
	}
	if patch.StartedAt != nil {
		updates = append(updates, "started_at = ?")
		params = append(params, *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		updates = append(updates, "completed_at = ?")
		params = append(params, *patch.CompletedAt)
	}
	if patch.ResultPath != nil {
		updates = append(updates, "result_path = ?")
		params = append(params, *patch.ResultPath)
	}
	if patch.DatasetPath != nil {
		updates = append(updates, "dataset_path = ?")
		params = append(params, *patch.DatasetPath)
	}
	if patch.AvgScore != nil {
		updates = append(updates, "avg_score = ?")
		params = append(params, *patch.AvgScore)
	}
	if patch.MetricsSummary != nil {
		summaryJSON, err := json.Marshal(patch.MetricsSummary)
		if err != nil {
			return fmt.Errorf("marshal metrics summary: %w", err)
		}
		updates = append(updates, "metrics_summary = ?")
		params = append(params, string(summaryJSON))
	}
	if patch.Error != nil {
		updates = append(updates, "error = ?")
		params = append(params, *patch.Error)
	}

	if len(updates) == 0 {
		return tx.Commit()
	}

	query := fmt.Sprintf("UPDATE eval_tasks SET %s WHERE id = ?", strings.Join(updates, ", "))
	params = append(params, id)

	if _, err := tx.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	return tx.Commit()
}

// ClaimNext selects the oldest pending task, transitions it to running and
// returns the committed row, all within one transaction. Concurrent callers
// never receive the same task: the transition is guarded on status, and a
// claim lost to another writer is treated as an empty queue.
func (r *taskRepository) ClaimNext(ctx context.Context) (*models.EvalTask, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM eval_tasks
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, models.StatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending task: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE eval_tasks
		SET status = ?, started_at = ?, progress = 0
		WHERE id = ? AND status = ?
	`, models.StatusRunning, time.Now().UTC(), id, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check claim result: %w", err)
	}
	if affected == 0 {
		// Another claimer got there first.
		return nil, nil
	}

	// Read the row back so the caller sees exactly what was committed.
	task, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM eval_tasks WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	return task, nil
}

func scanTask(row rowScanner) (*models.EvalTask, error) {
	var task models.EvalTask
	var startedAt, completedAt sql.NullTime
	var summaryJSON sql.NullString

	err := row.Scan(
		&task.ID,
		&task.DocumentID,
		&task.StartPage,
		&task.EndPage,
		&task.ModelURI,
		&task.NumTestCases,
		&task.Status,
		&task.Progress,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
		&task.ResultPath,
		&task.DatasetPath,
		&task.AvgScore,
		&summaryJSON,
		&task.Error,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &task.MetricsSummary); err != nil {
			return nil, fmt.Errorf("unmarshal metrics summary: %w", err)
		}
	}

	return &task, nil
}
