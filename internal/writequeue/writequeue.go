// Package writequeue implements the per-tenant single-consumer write
// pipeline of spec §4.5: producers enqueue WriteOps, one goroutine per
// tenant batches and commits them to the OpLog and segment store.
package writequeue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/flapjack/internal/document"
	"github.com/cuemby/flapjack/internal/log"
	"github.com/cuemby/flapjack/internal/metrics"
	"github.com/cuemby/flapjack/internal/oplog"
	"github.com/cuemby/flapjack/internal/segment"
	"github.com/cuemby/flapjack/internal/types"
)

// ActionKind identifies one WriteOp action (spec §4.5).
type ActionKind int

const (
	ActionUpsert ActionKind = iota
	ActionDelete
	ActionCompact
	ActionClear
)

// Action is one unit of work inside a WriteOp.
type Action struct {
	Kind     ActionKind
	Doc      types.Document
	ObjectID string
}

// WriteOp is a producer's unit of enqueue: a task plus the actions to
// apply under it.
type WriteOp struct {
	TaskID  string
	Actions []Action
}

// TaskSink is how the consumer reports task outcomes back to the
// owning IndexManager (spec §4.8 owns the task table; the queue only
// mutates through this seam, keeping the "only the consumer mutates"
// policy of §4.8 Shared-resource policy honest without a direct
// dependency on the manager package).
type TaskSink interface {
	MarkSucceeded(taskID string, received, indexed, rejectedCount int, rejected []types.DocFailure)
	MarkFailed(taskID string, msg string)
}

// CacheInvalidator is notified after every successful commit so the
// tenant's cached query results can be dropped (spec I4). The manager's
// implementation drops only the facet cache; config caches are not
// touched by a commit.
type CacheInvalidator interface {
	InvalidateTenant(tenant string)
}

const (
	flushBatchSize = 10
	flushInterval  = 100 * time.Millisecond
	defaultRetention = 1000
)

// Queue owns one tenant's consumer goroutine (spec I3: at most one
// consumer per tenant).
type Queue struct {
	tenant      string
	dataDir     string
	ops         chan WriteOp
	store       *segment.Store
	oplog       *oplog.Log
	convert     func(types.Document) document.Segment
	maxDocBytes int
	retention   uint64
	sink        TaskSink
	cache       CacheInvalidator

	closeCh chan struct{}
	doneCh  chan struct{}
}

// ErrQueueFull is returned by Enqueue when the channel is saturated
// (spec §4.5: "Full-queue producers receive QueueFull").
var ErrQueueFull = fmt.Errorf("writequeue: %w", types.ErrQueueFull)

// Config bundles the wiring a Queue needs from its IndexManager.
type Config struct {
	Tenant      string
	DataDir     string
	Capacity    int
	Store       *segment.Store
	OpLog       *oplog.Log
	Convert     func(types.Document) document.Segment
	MaxDocBytes int
	Retention   uint64
	Sink        TaskSink
	Cache       CacheInvalidator
}

// New builds and starts a tenant's consumer goroutine.
func New(cfg Config) *Queue {
	retention := cfg.Retention
	if retention == 0 {
		retention = defaultRetention
	}
	q := &Queue{
		tenant:      cfg.Tenant,
		dataDir:     cfg.DataDir,
		ops:         make(chan WriteOp, cfg.Capacity),
		store:       cfg.Store,
		oplog:       cfg.OpLog,
		convert:     cfg.Convert,
		maxDocBytes: cfg.MaxDocBytes,
		retention:   retention,
		sink:        cfg.Sink,
		cache:       cfg.Cache,
		closeCh:     make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue submits a WriteOp without blocking. If the queue is
// saturated the task is marked Failed before ErrQueueFull is returned
// (spec §4.5).
func (q *Queue) Enqueue(op WriteOp) error {
	select {
	case q.ops <- op:
		return nil
	default:
		q.sink.MarkFailed(op.TaskID, "queue full")
		metrics.TasksTotal.WithLabelValues(q.tenant, "failed").Inc()
		return ErrQueueFull
	}
}

// Close stops the consumer after draining and flushing whatever is
// pending (spec pseudocode: "channel_closed -> flush pending; exit").
func (q *Queue) Close() {
	close(q.closeCh)
	<-q.doneCh
}

func (q *Queue) run() {
	defer close(q.doneCh)

	logger := log.WithTenant(q.tenant)
	var pending []WriteOp
	timer := time.NewTimer(flushInterval)
	defer timer.Stop()

	for {
		select {
		case op, ok := <-q.ops:
			if !ok {
				q.flush(pending)
				return
			}
			if kind, ok := soloAction(op); ok {
				q.flush(pending)
				pending = nil
				switch kind {
				case ActionCompact:
					q.runCompact(op)
				case ActionClear:
					q.runClear(op)
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(flushInterval)
				continue
			}
			pending = append(pending, op)
			if len(pending) >= flushBatchSize {
				q.flush(pending)
				pending = nil
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(flushInterval)
			}

		case <-timer.C:
			if len(pending) > 0 {
				q.flush(pending)
				pending = nil
			}
			timer.Reset(flushInterval)

		case <-q.closeCh:
			q.flush(pending)
			logger.Info().Msg("write queue consumer stopped")
			return
		}
	}
}

// soloAction reports whether op is a single whole-store action
// (Compact/Clear) that must run by itself, outside the normal batched
// flush path.
func soloAction(op WriteOp) (ActionKind, bool) {
	if len(op.Actions) != 1 {
		return 0, false
	}
	switch op.Actions[0].Kind {
	case ActionCompact, ActionClear:
		return op.Actions[0].Kind, true
	default:
		return 0, false
	}
}

func (q *Queue) runCompact(op WriteOp) {
	err := q.store.Compact()
	if err != nil {
		q.sink.MarkFailed(op.TaskID, err.Error())
		return
	}
	_ = q.store.Reload()
	q.cache.InvalidateTenant(q.tenant)
	q.sink.MarkSucceeded(op.TaskID, 0, 0, 0, nil)
}

// runClear implements the `clear` op of spec §4.8: delete every document
// in the store, then log it so recovery can replay the wipe.
func (q *Queue) runClear(op WriteOp) {
	if err := q.store.Clear(); err != nil {
		q.sink.MarkFailed(op.TaskID, err.Error())
		return
	}
	if _, err := q.oplog.AppendBatch([]oplog.PendingOp{{OpType: types.OpClear}}); err != nil {
		q.sink.MarkFailed(op.TaskID, err.Error())
		return
	}
	_ = q.store.Reload()
	q.cache.InvalidateTenant(q.tenant)

	seq := q.oplog.CurrentSeq()
	if err := oplog.WriteCommittedSeq(q.dataDir, q.tenant, seq); err != nil {
		log.WithTenant(q.tenant).Error().Err(err).Msg("write committed_seq")
	}
	q.sink.MarkSucceeded(op.TaskID, 0, 0, 0, nil)
}

// flush implements spec §4.5's nine-step flush semantics.
func (q *Queue) flush(ops []WriteOp) {
	if len(ops) == 0 {
		return
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.WriteCommitDuration, q.tenant)

	batch := q.store.NewBatch()
	var pendingEntries []oplog.PendingOp

	type outcome struct {
		taskID        string
		received      int
		indexed       int
		rejected      []types.DocFailure
		rejectedCount int
		byReason      map[types.DocFailureReason]int
	}
	outcomes := make([]outcome, len(ops))

	for i, op := range ops {
		oc := outcome{taskID: op.TaskID, byReason: map[types.DocFailureReason]int{}}
		for _, a := range op.Actions {
			oc.received++
			switch a.Kind {
			case ActionDelete:
				batch.Delete(a.ObjectID)
				pendingEntries = append(pendingEntries, deleteEntry(a.ObjectID))
				oc.indexed++

			case ActionUpsert:
				if reason, msg, ok := q.validate(a.Doc); !ok {
					oc.rejectedCount++
					oc.byReason[reason]++
					if len(oc.rejected) < types.MaxRetainedRejections {
						oc.rejected = append(oc.rejected, types.DocFailure{
							ObjectID: a.Doc.ObjectID, Reason: reason, Message: msg,
						})
					}
					continue
				}
				seg := q.convert(a.Doc)
				if err := batch.Upsert(seg); err != nil {
					oc.rejectedCount++
					oc.byReason[types.ReasonValidationErr]++
					if len(oc.rejected) < types.MaxRetainedRejections {
						oc.rejected = append(oc.rejected, types.DocFailure{
							ObjectID: a.Doc.ObjectID, Reason: types.ReasonValidationErr, Message: err.Error(),
						})
					}
					continue
				}
				pendingEntries = append(pendingEntries, upsertEntry(a.Doc))
				oc.indexed++
			}
		}
		outcomes[i] = oc
	}

	if len(pendingEntries) > 0 {
		if _, err := q.oplog.AppendBatch(pendingEntries); err != nil {
			q.failAll(ops, fmt.Sprintf("oplog append: %v", err))
			return
		}
	}

	if err := q.store.Commit(batch); err != nil {
		we := &types.WriterError{Err: err}
		q.failAll(ops, we.Error())
		return
	}

	_ = q.store.Reload()
	q.cache.InvalidateTenant(q.tenant)

	seq := q.oplog.CurrentSeq()
	if err := oplog.WriteCommittedSeq(q.dataDir, q.tenant, seq); err != nil {
		log.WithTenant(q.tenant).Error().Err(err).Msg("write committed_seq")
	}
	if seq > q.retention {
		_ = q.oplog.TruncateBefore(seq - q.retention)
	}

	for _, oc := range outcomes {
		q.sink.MarkSucceeded(oc.taskID, oc.received, oc.indexed, oc.rejectedCount, oc.rejected)
		metrics.TasksTotal.WithLabelValues(q.tenant, "succeeded").Inc()
		metrics.DocumentsIndexed.WithLabelValues(q.tenant).Add(float64(oc.indexed))
		for reason, n := range oc.byReason {
			metrics.DocumentsRejected.WithLabelValues(q.tenant, string(reason)).Add(float64(n))
		}
	}
}

func (q *Queue) failAll(ops []WriteOp, msg string) {
	log.WithTenant(q.tenant).Error().Str("reason", msg).Msg("flush failed")
	for _, op := range ops {
		q.sink.MarkFailed(op.TaskID, msg)
		metrics.TasksTotal.WithLabelValues(q.tenant, "failed").Inc()
	}
}

// validate checks a document against the per-document size limit
// derived from the memory budget (spec §4.5 step 1, §5).
func (q *Queue) validate(doc types.Document) (types.DocFailureReason, string, bool) {
	if q.maxDocBytes <= 0 {
		return "", "", true
	}
	raw, err := json.Marshal(document.ToJSON(doc))
	if err != nil {
		return types.ReasonValidationErr, err.Error(), false
	}
	if len(raw) > q.maxDocBytes {
		return types.ReasonDocTooLarge, fmt.Sprintf("document %d bytes exceeds limit %d", len(raw), q.maxDocBytes), false
	}
	return "", "", true
}

func upsertEntry(doc types.Document) oplog.PendingOp {
	payload, _ := json.Marshal(types.UpsertPayload{ObjectID: doc.ObjectID, Body: document.ToJSON(doc)})
	return oplog.PendingOp{OpType: types.OpUpsert, Payload: payload}
}

func deleteEntry(objectID string) oplog.PendingOp {
	payload, _ := json.Marshal(types.DeletePayload{ObjectID: objectID})
	return oplog.PendingOp{OpType: types.OpDelete, Payload: payload}
}
