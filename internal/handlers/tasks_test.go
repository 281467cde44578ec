package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/eval-queue/internal/db"
	"github.com/docforge/eval-queue/internal/models"
	"github.com/docforge/eval-queue/internal/repository"
	"github.com/docforge/eval-queue/internal/router"
	"github.com/docforge/eval-queue/internal/services"
	"github.com/docforge/eval-queue/internal/storage"
	"github.com/docforge/eval-queue/internal/utils"
)

type apiFixture struct {
	handler http.Handler
	docs    repository.DocumentRepository
	tasks   repository.TaskRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := utils.NewLogger("error")
	docs := repository.NewDocumentRepository(database)
	tasks := repository.NewTaskRepository(database)

	docService := services.NewDocumentService(docs, tasks, store,
		func(data []byte) (int, error) { return 20, nil }, logger)
	taskService := services.NewTaskService(tasks, docs, services.TaskDefaults{
		ModelURI:     "openai/gpt-4o-mini",
		NumTestCases: 50,
	}, logger)

	return &apiFixture{
		handler: router.NewRouter(docService, taskService, 100<<20, logger),
		docs:    docs,
		tasks:   tasks,
	}
}

func (f *apiFixture) insertDocument(t *testing.T) *models.Document {
	t.Helper()

	doc := &models.Document{
		Filename:    "guidelines.pdf",
		StoragePath: "/data/uploads/guidelines.pdf",
		SizeBytes:   1024,
		TotalPages:  20,
		ContentHash: "ffeeddccffeeddccffeeddccffeeddccffeeddccffeeddccffeeddccffeeddcc",
	}
	require.NoError(t, f.docs.Create(context.Background(), doc))

	return doc
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func TestCreateAndGetTask(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.insertDocument(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"document_id": doc.ID,
		"start_page":  1,
		"end_page":    10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.EvalTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "openai/gpt-4o-mini", created.ModelURI)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched models.EvalTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestCreateTaskValidationErrors(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.insertDocument(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"document_id": doc.ID,
		"start_page":  15,
		"end_page":    10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{
		"document_id": 99999,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPendingTasksEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.insertDocument(t)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{"document_id": doc.ID})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/tasks/queue/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int               `json:"total"`
		Tasks []models.EvalTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	for _, task := range body.Tasks {
		assert.Equal(t, models.StatusPending, task.Status)
	}
}

func TestUpdateTaskEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	doc := f.insertDocument(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", map[string]any{"document_id": doc.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.EvalTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/tasks/%d", created.ID), map[string]any{
		"status":   "completed",
		"progress": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Terminal tasks reject further updates.
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/tasks/%d", created.ID), map[string]any{
		"status": "running",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown status values are rejected at the boundary.
	rec = f.do(t, http.MethodPatch, "/api/v1/tasks/1", map[string]any{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/tasks?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
