package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/eval-queue/internal/models"
)

func TestClaimNextEmptyQueue(t *testing.T) {
	tasks := NewTaskRepository(newTestDB(t))

	task, err := tasks.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task, "empty queue is not an error")
}

func TestClaimNextFIFO(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("aa", 32))

	base := time.Now().UTC().Add(-time.Hour)
	first := createTestTask(t, tasks, doc.ID, base)
	second := createTestTask(t, tasks, doc.ID, base.Add(time.Minute))
	third := createTestTask(t, tasks, doc.ID, base.Add(2*time.Minute))

	for _, want := range []*models.EvalTask{first, second, third} {
		claimed, err := tasks.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, want.ID, claimed.ID, "tasks claimed in creation order")
		assert.Equal(t, models.StatusRunning, claimed.Status)
		assert.Equal(t, 0, claimed.Progress)
		require.NotNil(t, claimed.StartedAt)
	}

	leftover, err := tasks.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, leftover)
}

func TestClaimNextReturnsCommittedRow(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("bb", 32))
	createTestTask(t, tasks, doc.ID, time.Now().UTC())

	claimed, err := tasks.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	stored, err := tasks.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Status, claimed.Status)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, stored.StartedAt.UnixNano(), claimed.StartedAt.UnixNano(),
		"returned task carries the persisted start time, not a recomputed one")
}

func TestClaimNextAtMostOnce(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("cc", 32))
	only := createTestTask(t, tasks, doc.ID, time.Now().UTC())

	const claimers = 8

	var mu sync.Mutex
	var claimedIDs []int64
	var claimErrs []error
	var wg sync.WaitGroup

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := tasks.ClaimNext(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				claimErrs = append(claimErrs, err)
				return
			}
			if task != nil {
				claimedIDs = append(claimedIDs, task.ID)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, claimErrs)

	require.Len(t, claimedIDs, 1, "exactly one claimer may win the task")
	assert.Equal(t, only.ID, claimedIDs[0])
}

func TestUpdateSparsePatch(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("dd", 32))
	task := createTestTask(t, tasks, doc.ID, time.Now().UTC())

	require.NoError(t, tasks.Update(ctx, task.ID, &models.TaskPatch{
		Status:   statusPtr(models.StatusRunning),
		Progress: intPtr(40),
	}))

	// Patch only one field; everything else must stay put.
	require.NoError(t, tasks.Update(ctx, task.ID, &models.TaskPatch{
		DatasetPath: strPtr("/results/dataset.json"),
	}))

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, 40, got.Progress)
	require.NotNil(t, got.DatasetPath)
	assert.Equal(t, "/results/dataset.json", *got.DatasetPath)
	assert.Nil(t, got.ResultPath)
	assert.Nil(t, got.AvgScore)
	assert.Nil(t, got.Error)
}

func TestUpdateProgressMonotonic(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("ee", 32))
	task := createTestTask(t, tasks, doc.ID, time.Now().UTC())

	require.NoError(t, tasks.Update(ctx, task.ID, &models.TaskPatch{Progress: intPtr(60)}))
	require.NoError(t, tasks.Update(ctx, task.ID, &models.TaskPatch{Progress: intPtr(30)}))

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress, "a stale lower progress value must not move progress backwards")
}

func TestUpdateTerminalTaskRejected(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("ff", 32))
	task := createTestTask(t, tasks, doc.ID, time.Now().UTC())

	now := time.Now().UTC()
	require.NoError(t, tasks.Update(ctx, task.ID, &models.TaskPatch{
		Status:      statusPtr(models.StatusCompleted),
		Progress:    intPtr(100),
		CompletedAt: &now,
		AvgScore:    floatPtr(0.91),
	}))

	err := tasks.Update(ctx, task.ID, &models.TaskPatch{Status: statusPtr(models.StatusRunning)})
	assert.ErrorIs(t, err, ErrTaskFinished)

	err = tasks.Update(ctx, task.ID, &models.TaskPatch{Error: strPtr("late failure")})
	assert.ErrorIs(t, err, ErrTaskFinished)

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Nil(t, got.Error)
}

func TestUpdateTaskNotFound(t *testing.T) {
	tasks := NewTaskRepository(newTestDB(t))

	err := tasks.Update(context.Background(), 424242, &models.TaskPatch{Progress: intPtr(10)})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestUpdateMetricsSummaryRoundTrip(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("ab", 32))
	task := createTestTask(t, tasks, doc.ID, time.Now().UTC())

	require.NoError(t, tasks.Update(ctx, task.ID, &models.TaskPatch{
		MetricsSummary: map[string]float64{"faithfulness": 0.9, "relevance": 0.84},
	}))

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"faithfulness": 0.9, "relevance": 0.84}, got.MetricsSummary)
}

func TestListTasksFilters(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	docA := createTestDocument(t, docs, strings.Repeat("cd", 32))
	docB := createTestDocument(t, docs, strings.Repeat("ef", 32))

	base := time.Now().UTC().Add(-time.Hour)
	taskA1 := createTestTask(t, tasks, docA.ID, base)
	taskA2 := createTestTask(t, tasks, docA.ID, base.Add(time.Minute))
	taskB := createTestTask(t, tasks, docB.ID, base.Add(2*time.Minute))

	all, err := tasks.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, taskB.ID, all[0].ID, "newest created first")

	byDoc, err := tasks.List(ctx, models.TaskFilter{DocumentID: &docA.ID})
	require.NoError(t, err)
	require.Len(t, byDoc, 2)
	assert.Equal(t, taskA2.ID, byDoc[0].ID)
	assert.Equal(t, taskA1.ID, byDoc[1].ID)

	// Claiming flips the oldest task to running; the pending filter must no
	// longer see it.
	claimed, err := tasks.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	pending := models.StatusPending
	stillPending, err := tasks.List(ctx, models.TaskFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, stillPending, 2)
	for _, task := range stillPending {
		assert.NotEqual(t, claimed.ID, task.ID)
	}
}

func TestListTasksWithoutLimitReturnsAll(t *testing.T) {
	database := newTestDB(t)
	docs := NewDocumentRepository(database)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	doc := createTestDocument(t, docs, strings.Repeat("ab", 32))
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 120; i++ {
		createTestTask(t, tasks, doc.ID, base.Add(time.Duration(i)*time.Second))
	}

	// No limit means the full history, not a silent cap.
	all, err := tasks.List(ctx, models.TaskFilter{DocumentID: &doc.ID})
	require.NoError(t, err)
	assert.Len(t, all, 120)

	capped, err := tasks.List(ctx, models.TaskFilter{DocumentID: &doc.ID, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, capped, 5)
}
