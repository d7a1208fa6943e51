package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flapjack/internal/oplog"
	"github.com/cuemby/flapjack/internal/query"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(Config{
		DataDir:          t.TempDir(),
		NodeID:           "node-1",
		QueueCapacity:    32,
		TaskCapPerTenant: 4,
	})
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func waitSucceeded(t *testing.T, m *Manager, tenant, taskID string) types.Task {
	t.Helper()
	var task types.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = m.GetTask(tenant, taskID)
		return err == nil && task.Status == types.TaskSucceeded
	}, 2*time.Second, 10*time.Millisecond)
	return task
}

func TestAddDocumentsAndSearch(t *testing.T) {
	m := newTestManager(t)

	task, err := m.AddDocuments("acme", []types.Document{
		{ObjectID: "a", Fields: map[string]types.FieldValue{"title": types.Text("red leather couch")}},
		{ObjectID: "b", Fields: map[string]types.FieldValue{"title": types.Text("blue ottoman")}},
	})
	require.NoError(t, err)
	got := waitSucceeded(t, m, "acme", task.TaskID)
	assert.Equal(t, 2, got.Indexed)

	cfg, err := m.GetSettings("acme")
	require.NoError(t, err)

	res, err := m.SearchWithFallback("acme",
		query.ParserInput{Text: "couch", SearchablePaths: []query.SearchableField{{Path: "title", Weight: 1}}, Settings: cfg},
		query.SearchRequest{Limit: 10, Settings: cfg},
	)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "a", res.Documents[0].ObjectID)
}

func TestAddDocumentsOverBatchLimitRejected(t *testing.T) {
	m := New(Config{DataDir: t.TempDir(), MaxBatchSize: 1})
	t.Cleanup(func() { _ = m.Shutdown() })

	_, err := m.AddDocuments("acme", []types.Document{
		{ObjectID: "a"}, {ObjectID: "b"},
	})
	assert.ErrorIs(t, err, types.ErrBatchTooLarge)
}

func TestClearObjects(t *testing.T) {
	m := newTestManager(t)

	task, err := m.AddDocuments("acme", []types.Document{
		{ObjectID: "a", Fields: map[string]types.FieldValue{"title": types.Text("couch")}},
	})
	require.NoError(t, err)
	waitSucceeded(t, m, "acme", task.TaskID)

	clearTask, err := m.ClearObjects("acme")
	require.NoError(t, err)
	waitSucceeded(t, m, "acme", clearTask.TaskID)

	docs, err := m.ExportTenant("acme")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPutSettingsReturnsNoopTask(t *testing.T) {
	m := newTestManager(t)

	cfg := settings.Default()
	cfg.AttributesForFaceting = []string{"brand"}
	task, err := m.PutSettings("acme", cfg)
	require.NoError(t, err)
	assert.Equal(t, types.TaskSucceeded, task.Status)

	got, err := m.GetSettings("acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"brand"}, got.AttributesForFaceting)
}

func TestTaskTableEvictsOldestOverCapacity(t *testing.T) {
	m := New(Config{DataDir: t.TempDir(), TaskCapPerTenant: 2, QueueCapacity: 32})
	t.Cleanup(func() { _ = m.Shutdown() })

	first, err := m.AddDocuments("acme", []types.Document{{ObjectID: "a"}})
	require.NoError(t, err)
	waitSucceeded(t, m, "acme", first.TaskID)

	second, err := m.AddDocuments("acme", []types.Document{{ObjectID: "b"}})
	require.NoError(t, err)
	waitSucceeded(t, m, "acme", second.TaskID)

	third, err := m.AddDocuments("acme", []types.Document{{ObjectID: "c"}})
	require.NoError(t, err)
	waitSucceeded(t, m, "acme", third.TaskID)

	_, err = m.GetTask("acme", first.TaskID)
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestRecoveryReplaysUncommittedOps(t *testing.T) {
	dataDir := t.TempDir()

	m1 := New(Config{DataDir: dataDir, QueueCapacity: 32})
	task, err := m1.AddDocuments("acme", []types.Document{
		{ObjectID: "a", Fields: map[string]types.FieldValue{"title": types.Text("couch")}},
	})
	require.NoError(t, err)
	waitSucceeded(t, m1, "acme", task.TaskID)
	require.NoError(t, m1.Shutdown())

	// Force the sidecar back to zero so the next Manager is guaranteed
	// to find the already-committed op pending replay, regardless of
	// how fast the commit path wrote it during the first run.
	require.NoError(t, oplog.WriteCommittedSeq(dataDir, "acme", 0))

	m2 := New(Config{DataDir: dataDir, QueueCapacity: 32})
	t.Cleanup(func() { _ = m2.Shutdown() })

	docs, err := m2.ExportTenant("acme")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
