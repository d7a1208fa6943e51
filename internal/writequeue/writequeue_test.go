package writequeue

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flapjack/internal/document"
	"github.com/cuemby/flapjack/internal/oplog"
	"github.com/cuemby/flapjack/internal/segment"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

type fakeSink struct {
	mu        sync.Mutex
	succeeded map[string]int
	failed    map[string]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{succeeded: map[string]int{}, failed: map[string]string{}}
}

func (f *fakeSink) MarkSucceeded(taskID string, received, indexed, rejectedCount int, rejected []types.DocFailure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.succeeded[taskID] = indexed
}

func (f *fakeSink) MarkFailed(taskID string, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[taskID] = msg
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated int
}

func (c *fakeCache) InvalidateTenant(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
}

func newTestQueue(t *testing.T) (*Queue, *fakeSink, *segment.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := segment.Open(filepath.Join(dir, "tenant1", "segments"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ol, err := oplog.Open(dir, "tenant1", "node-1")
	require.NoError(t, err)
	t.Cleanup(func() { ol.Close() })

	sink := newFakeSink()
	q := New(Config{
		Tenant:  "tenant1",
		DataDir: dir,
		Capacity: 32,
		Store:   store,
		OpLog:   ol,
		Convert: func(doc types.Document) document.Segment {
			return document.Convert(doc, settings.Default())
		},
		MaxDocBytes: 1024,
		Sink:        sink,
		Cache:       &fakeCache{},
	})
	t.Cleanup(q.Close)
	return q, sink, store
}

func TestEnqueueFlushesOnSize(t *testing.T) {
	q, sink, store := newTestQueue(t)

	for i := 0; i < flushBatchSize; i++ {
		err := q.Enqueue(WriteOp{
			TaskID: "task-size",
			Actions: []Action{{
				Kind: ActionUpsert,
				Doc:  types.Document{ObjectID: "x", Fields: map[string]types.FieldValue{"title": types.Text("a")}},
			}},
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		_, ok := sink.succeeded["task-size"]
		return ok
	}, time.Second, 10*time.Millisecond)

	count, err := store.Index().DocCount()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, uint64(1))
}

func TestEnqueueFlushesOnTimer(t *testing.T) {
	q, sink, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue(WriteOp{
		TaskID: "task-timer",
		Actions: []Action{{
			Kind: ActionUpsert,
			Doc:  types.Document{ObjectID: "y", Fields: map[string]types.FieldValue{"title": types.Text("b")}},
		}},
	}))

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		_, ok := sink.succeeded["task-timer"]
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDocumentTooLargeRejected(t *testing.T) {
	q, sink, _ := newTestQueue(t)

	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, q.Enqueue(WriteOp{
		TaskID: "task-big",
		Actions: []Action{{
			Kind: ActionUpsert,
			Doc:  types.Document{ObjectID: "z", Fields: map[string]types.FieldValue{"title": types.Text(string(big))}},
		}},
	}))

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		_, ok := sink.succeeded["task-big"]
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 0, sink.succeeded["task-big"])
}

func TestQueueFullMarksFailed(t *testing.T) {
	dir := t.TempDir()
	store, err := segment.Open(filepath.Join(dir, "tenant1", "segments"))
	require.NoError(t, err)
	defer store.Close()
	ol, err := oplog.Open(dir, "tenant1", "node-1")
	require.NoError(t, err)
	defer ol.Close()

	sink := newFakeSink()
	q := &Queue{
		tenant: "tenant1",
		ops:    make(chan WriteOp), // unbuffered, no consumer running
		sink:   sink,
	}

	err = q.Enqueue(WriteOp{TaskID: "task-full"})
	assert.ErrorIs(t, err, ErrQueueFull)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "queue full", sink.failed["task-full"])
}
