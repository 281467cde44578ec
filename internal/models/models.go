package models

import (
	"fmt"
	"time"
)

// TaskStatus is the closed set of evaluation task states.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// ParseStatus validates a raw status string at the store boundary.
// Unknown values are rejected, never passed through.
func ParseStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Terminal reports whether no further status transition is permitted.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is an uploaded PDF, deduplicated by content hash.
// One document can be evaluated many times.
type Document struct {
	ID          int64     `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	TotalPages  int       `json:"total_pages" db:"total_pages"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	UploadedAt  time.Time `json:"uploaded_at" db:"uploaded_at"`
	EvalCount   int       `json:"eval_count" db:"eval_count"`
}

// EvalTask is one evaluation run against a page range of a document.
type EvalTask struct {
	ID         int64 `json:"id" db:"id"`
	DocumentID int64 `json:"document_id" db:"document_id"`

	// Evaluation configuration, immutable after creation.
	// Nil page bounds mean the whole document.
	StartPage    *int   `json:"start_page,omitempty" db:"start_page"`
	EndPage      *int   `json:"end_page,omitempty" db:"end_page"`
	ModelURI     string `json:"model_uri" db:"model_uri"`
	NumTestCases int    `json:"num_test_cases" db:"num_test_cases"`

	Status      TaskStatus `json:"status" db:"status"`
	Progress    int        `json:"progress" db:"progress"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Results, null until the task reaches a terminal state.
	ResultPath     *string            `json:"result_path,omitempty" db:"result_path"`
	DatasetPath    *string            `json:"dataset_path,omitempty" db:"dataset_path"`
	AvgScore       *float64           `json:"avg_score,omitempty" db:"avg_score"`
	MetricsSummary map[string]float64 `json:"metrics_summary,omitempty"`
	Error          *string            `json:"error,omitempty" db:"error"`
}

// TaskPatch is a sparse update: nil fields are left untouched.
type TaskPatch struct {
	Status         *TaskStatus
	Progress       *int
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ResultPath     *string
	DatasetPath    *string
	AvgScore       *float64
	MetricsSummary map[string]float64
	Error          *string
}

// Empty reports whether the patch would change nothing.
func (p *TaskPatch) Empty() bool {
	return p.Status == nil && p.Progress == nil && p.StartedAt == nil &&
		p.CompletedAt == nil && p.ResultPath == nil && p.DatasetPath == nil &&
		p.AvgScore == nil && p.MetricsSummary == nil && p.Error == nil
}

// TaskFilter narrows task listings; nil fields match everything and a
// non-positive Limit returns every match.
type TaskFilter struct {
	DocumentID *int64
	Status     *TaskStatus
	Limit      int
}

type UploadRequest struct {
	File     []byte
	Filename string
}

type UploadResponse struct {
	Document      *Document `json:"document"`
	AlreadyExists bool      `json:"already_exists"`
	Message       string    `json:"message"`
}

type DocumentDetail struct {
	*Document
	Tasks []*EvalTask `json:"eval_tasks"`
}

type CreateTaskRequest struct {
	DocumentID   int64  `json:"document_id"`
	StartPage    *int   `json:"start_page,omitempty"`
	EndPage      *int   `json:"end_page,omitempty"`
	ModelURI     string `json:"model_uri,omitempty"`
	NumTestCases int    `json:"num_test_cases,omitempty"`
}

// UpdateTaskRequest is the wire form of a TaskPatch. Status arrives as a raw
// string and is validated before it reaches the store.
type UpdateTaskRequest struct {
	Status         *string            `json:"status,omitempty"`
	Progress       *int               `json:"progress,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	ResultPath     *string            `json:"result_path,omitempty"`
	DatasetPath    *string            `json:"dataset_path,omitempty"`
	AvgScore       *float64           `json:"avg_score,omitempty"`
	MetricsSummary map[string]float64 `json:"metrics_summary,omitempty"`
	Error          *string            `json:"error,omitempty"`
}
