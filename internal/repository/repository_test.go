package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/docforge/eval-queue/internal/db"
	"github.com/docforge/eval-queue/internal/models"
)

// newTestDB migrates and opens a fresh SQLite database in a temp directory.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.RunMigrations(path))

	database, err := db.NewSQLiteDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func createTestDocument(t *testing.T, docs DocumentRepository, hash string) *models.Document {
	t.Helper()

	doc := &models.Document{
		Filename:    "guidelines.pdf",
		StoragePath: "/data/uploads/guidelines_" + hash[:8] + ".pdf",
		SizeBytes:   2048,
		TotalPages:  20,
		ContentHash: hash,
	}
	require.NoError(t, docs.Create(context.Background(), doc))
	require.NotZero(t, doc.ID)

	return doc
}

func createTestTask(t *testing.T, tasks TaskRepository, docID int64, createdAt time.Time) *models.EvalTask {
	t.Helper()

	task := &models.EvalTask{
		DocumentID:   docID,
		ModelURI:     "openai/gpt-4o-mini",
		NumTestCases: 10,
		CreatedAt:    createdAt,
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	return task
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func statusPtr(s models.TaskStatus) *models.TaskStatus { return &s }
