// Package manager implements the IndexManager of spec §4.8: the
// process-wide, lazily-populated owner of every tenant's segment store,
// OpLog, write queue, config caches and task table. It is the seam the
// HTTP layer (out of scope, §6.5) drives through.
package manager

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/flapjack/internal/document"
	"github.com/cuemby/flapjack/internal/events"
	"github.com/cuemby/flapjack/internal/log"
	"github.com/cuemby/flapjack/internal/metrics"
	"github.com/cuemby/flapjack/internal/oplog"
	"github.com/cuemby/flapjack/internal/query"
	"github.com/cuemby/flapjack/internal/segment"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
	"github.com/cuemby/flapjack/internal/writequeue"
)

const (
	defaultMaxBatchSize       = 10000
	defaultOpLogRetention     = 1000
	defaultTaskCapPerTenant   = 1000
	defaultFacetCacheCapacity = 500
	defaultQueueCapacity      = 1000
)

// Config bundles the process-wide knobs the manager is built from (spec
// §6.4 plus the process-tuning additions of §5).
type Config struct {
	DataDir            string
	NodeID             string
	MaxBatchSize       int
	OpLogRetention     uint64
	TaskCapPerTenant   int
	FacetCacheCapacity int
	MaxDocBytes        int
	QueueCapacity      int
}

// tenantState is the mutex-guarded bundle of live resources for one
// tenant, mirroring the teacher's Worker.containers map of live
// resources keyed by id (pkg/worker/worker.go): lazily constructed,
// looked up by name, mutated only by its owning consumer.
type tenantState struct {
	tenant string
	store  *segment.Store
	oplog  *oplog.Log
	config *settings.TenantConfig
	queue  *writequeue.Queue
	exec   *query.Executor

	tasksMu sync.RWMutex
	tasks   map[string]*types.Task
	order   []string // insertion order, for oldest-first eviction
}

// Manager is the IndexManager of spec §4.8.
type Manager struct {
	cfg Config

	facetCache    *query.FacetCache
	events        *events.Broker
	writerPermits *writerPermits

	mu      sync.RWMutex
	tenants map[string]*tenantState

	taskSeq   int64
	taskSeqMu sync.Mutex
}

// New builds a Manager. No tenant state is loaded until first access
// (spec §4.8: "loaded: mapping tenant→Index (lazy, on first access)").
func New(cfg Config) *Manager {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.OpLogRetention <= 0 {
		cfg.OpLogRetention = defaultOpLogRetention
	}
	if cfg.TaskCapPerTenant <= 0 {
		cfg.TaskCapPerTenant = defaultTaskCapPerTenant
	}
	if cfg.FacetCacheCapacity <= 0 {
		cfg.FacetCacheCapacity = defaultFacetCacheCapacity
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	return &Manager{
		cfg:           cfg,
		facetCache:    query.NewFacetCache(cfg.FacetCacheCapacity),
		events:        events.NewBroker(),
		writerPermits: newWriterPermits(defaultConcurrentWriterCap),
		tenants:       make(map[string]*tenantState),
	}
}

// Events returns the manager's analytics broker (spec §6.5: "Analytics
// collector ← IndexManager: fire-and-forget search-event emission"). A
// collector built against internal/collab.AnalyticsCollector subscribes
// to it directly.
func (m *Manager) Events() *events.Broker {
	return m.events
}

// getOrLoad returns the tenant's live state, opening (and, on recovery,
// rebuilding) it on first access (spec §4.8 get_or_load).
func (m *Manager) getOrLoad(tenant string) (*tenantState, error) {
	m.mu.RLock()
	if ts, ok := m.tenants[tenant]; ok {
		m.mu.RUnlock()
		return ts, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.tenants[tenant]; ok {
		return ts, nil
	}

	ts, err := m.load(tenant)
	if err != nil {
		return nil, err
	}
	m.tenants[tenant] = ts
	return ts, nil
}

func (m *Manager) load(tenant string) (*tenantState, error) {
	logger := log.WithTenant(tenant)
	segPath := filepath.Join(m.cfg.DataDir, tenant, "segments")

	store, err := segment.Open(segPath)
	if err != nil {
		logger.Warn().Err(err).Msg("segment store open failed; resetting and replaying from committed_seq=0")
		if wErr := oplog.WriteCommittedSeq(m.cfg.DataDir, tenant, 0); wErr != nil {
			return nil, fmt.Errorf("manager: reset committed_seq for %s: %w", tenant, wErr)
		}
		store, err = segment.Reset(segPath)
		if err != nil {
			return nil, fmt.Errorf("manager: rebuild segment store for %s: %w", tenant, err)
		}
	}

	olog, err := oplog.Open(m.cfg.DataDir, tenant, m.cfg.NodeID)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("manager: open oplog for %s: %w", tenant, err)
	}

	ts := &tenantState{
		tenant: tenant,
		store:  store,
		oplog:  olog,
		config: settings.NewTenantConfig(m.cfg.DataDir, tenant),
		tasks:  make(map[string]*types.Task),
	}
	ts.exec = query.NewExecutor(store, m.facetCache)

	if err := m.recover(ts); err != nil {
		logger.Error().Err(err).Msg("recovery pass failed; tenant loaded with whatever state survived")
	}

	ts.queue = writequeue.New(writequeue.Config{
		Tenant:      tenant,
		DataDir:     m.cfg.DataDir,
		Capacity:    m.cfg.QueueCapacity,
		Store:       store,
		OpLog:       olog,
		Convert:     func(d types.Document) document.Segment { return m.convertWithSettings(ts, d) },
		MaxDocBytes: m.cfg.MaxDocBytes,
		Retention:   m.cfg.OpLogRetention,
		Sink:        &tenantSink{m: m, tenant: tenant},
		Cache:       m,
	})

	logger.Info().Msg("tenant loaded")
	return ts, nil
}

// convertWithSettings reads the tenant's current settings for every
// conversion (cheap: settings.Store caches in memory and refreshes the
// cached value on write, spec §4.4).
func (m *Manager) convertWithSettings(ts *tenantState, d types.Document) document.Segment {
	cfg, err := ts.config.Settings.Get()
	if err != nil {
		log.WithTenant(ts.tenant).Warn().Err(err).Msg("settings load failed; converting with defaults")
		cfg = settings.Default()
	}
	return document.Convert(d, cfg)
}

// recover implements the §4.8 recovery algorithm.
func (m *Manager) recover(ts *tenantState) error {
	seq, err := oplog.ReadCommittedSeq(m.cfg.DataDir, ts.tenant)
	if err != nil {
		return fmt.Errorf("read committed_seq: %w", err)
	}

	ops, err := ts.oplog.ReadSince(seq)
	if err != nil {
		return fmt.Errorf("read since %d: %w", seq, err)
	}
	if len(ops) == 0 {
		return nil
	}

	logger := log.WithTenant(ts.tenant)
	logger.Info().Int("ops", len(ops)).Uint64("since", seq).Msg("replaying oplog")

	for _, e := range ops {
		if e.OpType != types.OpSettings {
			continue
		}
		var payload types.SettingsPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			logger.Warn().Err(err).Msg("recovery: malformed settings payload")
			continue
		}
		raw, err := json.Marshal(payload.Raw)
		if err != nil {
			continue
		}
		var s settings.IndexSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			logger.Warn().Err(err).Msg("recovery: undecodable settings payload")
			continue
		}
		if err := ts.config.Settings.Save(s); err != nil {
			return fmt.Errorf("recovery: save settings: %w", err)
		}
	}

	cfg, err := ts.config.Settings.Get()
	if err != nil {
		return fmt.Errorf("recovery: load restored settings: %w", err)
	}

	batch := ts.store.NewBatch()
	applied := false
	failed := 0

	for _, e := range ops {
		switch e.OpType {
		case types.OpUpsert:
			var p types.UpsertPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				failed++
				continue
			}
			doc, err := document.FromJSON(p.Body)
			if err != nil {
				failed++
				continue
			}
			doc.ObjectID = p.ObjectID
			if err := batch.Upsert(document.Convert(doc, cfg)); err != nil {
				failed++
				continue
			}
			applied = true

		case types.OpDelete:
			var p types.DeletePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				failed++
				continue
			}
			batch.Delete(p.ObjectID)
			applied = true

		case types.OpClear:
			// Drop upserts/deletes staged before the clear so only ops
			// logged after it survive, as on the live write path.
			batch = ts.store.NewBatch()
			if err := ts.store.Clear(); err != nil {
				return fmt.Errorf("recovery: clear: %w", err)
			}
			applied = true

		case types.OpSettings:
			// handled in the first pass above.

		case types.OpSynonyms, types.OpRules:
			// Per spec §9 Open Questions: these config types are
			// reserved but not replayed; the corresponding JSON files
			// are assumed restored out-of-band.
			failed++
			logger.Warn().Str("op_type", string(e.OpType)).Msg("recovery: skipping unreplayed config op")
		}
	}

	if !applied {
		if failed > 0 {
			logger.Warn().Int("failed", failed).Msg("recovery: ops skipped")
		}
		return nil
	}

	if err := ts.store.Commit(batch); err != nil {
		return fmt.Errorf("recovery: commit: %w", err)
	}
	_ = ts.store.Reload()
	ts.config.InvalidateAll()
	m.facetCache.InvalidateTenant(ts.tenant)

	newSeq := ts.oplog.CurrentSeq()
	if err := oplog.WriteCommittedSeq(m.cfg.DataDir, ts.tenant, newSeq); err != nil {
		return fmt.Errorf("recovery: write committed_seq: %w", err)
	}
	if failed > 0 {
		logger.Warn().Int("failed", failed).Msg("recovery: some ops could not be replayed")
	}
	logger.Info().Uint64("committed_seq", newSeq).Msg("recovery complete")
	return nil
}

// InvalidateTenant implements writequeue.CacheInvalidator (spec I4): the
// facet cache is the only tenant-keyed cache a plain write commit must
// drop. Config caches are invalidated separately, only on a settings/
// synonyms/rules write or during recovery replay.
func (m *Manager) InvalidateTenant(tenant string) {
	m.facetCache.InvalidateTenant(tenant)
}

// tenantSink adapts one tenant's task table to writequeue.TaskSink. A
// distinct instance per tenant is required because the interface's
// methods carry no tenant argument (the queue already knows its own).
type tenantSink struct {
	m      *Manager
	tenant string
}

func (s *tenantSink) MarkSucceeded(taskID string, received, indexed, rejectedCount int, rejected []types.DocFailure) {
	s.m.updateTask(s.tenant, taskID, func(t *types.Task) {
		t.Received = received
		t.Indexed = indexed
		t.RejectedCount = rejectedCount
		t.Rejected = rejected
		t.Succeed()
	})
}

func (s *tenantSink) MarkFailed(taskID, msg string) {
	s.m.updateTask(s.tenant, taskID, func(t *types.Task) { t.Fail(msg) })
}

func (m *Manager) updateTask(tenant, taskID string, mutate func(*types.Task)) {
	m.mu.RLock()
	ts, ok := m.tenants[tenant]
	m.mu.RUnlock()
	if !ok {
		return
	}
	ts.tasksMu.Lock()
	defer ts.tasksMu.Unlock()
	t, ok := ts.tasks[taskID]
	if !ok {
		log.WithTenant(tenant).Warn().Str("task_id", taskID).Msg("task outcome for unknown task")
		return
	}
	mutate(t)
}

// newTask allocates and registers a task in the Enqueued state,
// evicting the oldest task if the tenant's table is at capacity (spec
// §4.8: "tasks ... bounded per tenant, default 1000, oldest-first
// eviction").
func (m *Manager) newTask(ts *tenantState) *types.Task {
	t := &types.Task{
		TaskID:    uuid.New().String(),
		NumericID: m.nextNumericID(),
		Status:    types.TaskEnqueued,
		CreatedAt: time.Now(),
	}

	ts.tasksMu.Lock()
	defer ts.tasksMu.Unlock()
	if len(ts.order) >= m.cfg.TaskCapPerTenant {
		oldest := ts.order[0]
		ts.order = ts.order[1:]
		delete(ts.tasks, oldest)
		metrics.TaskEvictionsTotal.WithLabelValues(ts.tenant).Inc()
	}
	ts.tasks[t.TaskID] = t
	ts.order = append(ts.order, t.TaskID)
	return t
}

// newNoopTask allocates a task directly in the Succeeded state (spec
// §4.9: delete-by-query completion, index move/copy, settings change).
func (m *Manager) newNoopTask(ts *tenantState) *types.Task {
	t := m.newTask(ts)
	t.Succeed()
	return t
}

func (m *Manager) nextNumericID() int64 {
	m.taskSeqMu.Lock()
	defer m.taskSeqMu.Unlock()
	m.taskSeq++
	return m.taskSeq
}

// TrimTasks re-asserts the per-tenant task cap for an already-loaded
// tenant, evicting oldest-first, and returns how many it dropped. New
// admissions already enforce the cap inline (newTask); this is a
// periodic backstop for internal/taskgc, the same belt-and-suspenders
// shape as the teacher's reconciler re-checking invariants it usually
// already holds.
func (m *Manager) TrimTasks(tenant string) int {
	m.mu.RLock()
	ts, ok := m.tenants[tenant]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	ts.tasksMu.Lock()
	defer ts.tasksMu.Unlock()
	evicted := 0
	for len(ts.order) > m.cfg.TaskCapPerTenant {
		oldest := ts.order[0]
		ts.order = ts.order[1:]
		delete(ts.tasks, oldest)
		evicted++
	}
	if evicted > 0 {
		metrics.TaskEvictionsTotal.WithLabelValues(tenant).Add(float64(evicted))
	}
	return evicted
}

// GetTask looks up a task by id within a tenant.
func (m *Manager) GetTask(tenant, taskID string) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	ts.tasksMu.RLock()
	defer ts.tasksMu.RUnlock()
	t, ok := ts.tasks[taskID]
	if !ok {
		return types.Task{}, types.ErrTaskNotFound
	}
	return *t, nil
}

// AddDocuments enqueues a batch upsert (spec §4.5/§6.5 add/update
// documents).
func (m *Manager) AddDocuments(tenant string, docs []types.Document) (types.Task, error) {
	if len(docs) > m.cfg.MaxBatchSize {
		return types.Task{}, types.ErrBatchTooLarge
	}
	if err := m.acquireWriterPermit(); err != nil {
		return types.Task{}, err
	}
	defer m.releaseWriterPermit()

	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	task := m.newTask(ts)
	actions := make([]writequeue.Action, len(docs))
	for i, d := range docs {
		actions[i] = writequeue.Action{Kind: writequeue.ActionUpsert, Doc: d}
	}
	metrics.TaskQueueDepth.WithLabelValues(tenant).Inc()
	defer metrics.TaskQueueDepth.WithLabelValues(tenant).Dec()
	if err := ts.queue.Enqueue(writequeue.WriteOp{TaskID: task.TaskID, Actions: actions}); err != nil {
		return *task, err
	}
	return *task, nil
}

// DeleteDocuments enqueues a batch delete by object id.
func (m *Manager) DeleteDocuments(tenant string, objectIDs []string) (types.Task, error) {
	if len(objectIDs) > m.cfg.MaxBatchSize {
		return types.Task{}, types.ErrBatchTooLarge
	}
	if err := m.acquireWriterPermit(); err != nil {
		return types.Task{}, err
	}
	defer m.releaseWriterPermit()

	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	task := m.newTask(ts)
	actions := make([]writequeue.Action, len(objectIDs))
	for i, id := range objectIDs {
		actions[i] = writequeue.Action{Kind: writequeue.ActionDelete, ObjectID: id}
	}
	if err := ts.queue.Enqueue(writequeue.WriteOp{TaskID: task.TaskID, Actions: actions}); err != nil {
		return *task, err
	}
	return *task, nil
}

// DeleteByQuery resolves every document matching filter and enqueues
// their deletion, then returns immediately with a noop-succeeded task
// (spec §4.9: "delete-by-query completion" is a noop task).
func (m *Manager) DeleteByQuery(tenant string, filter query.Filter, filterExpr string) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}

	cfg, err := ts.config.Settings.Get()
	if err != nil {
		return types.Task{}, err
	}

	count, err := ts.store.Index().DocCount()
	if err != nil {
		return types.Task{}, err
	}

	res, err := ts.exec.Search(query.SearchRequest{
		Tenant:     tenant,
		Filter:     filter,
		FilterExpr: filterExpr,
		Limit:      int(count), // resolve every match, not one page
		Settings:   cfg,
	})
	if err != nil {
		return types.Task{}, err
	}
	if res.Total == 0 {
		return *m.newNoopTask(ts), nil
	}

	ids := make([]string, len(res.Documents))
	for i, h := range res.Documents {
		ids[i] = h.ObjectID
	}

	bg := m.newTask(ts)
	actions := make([]writequeue.Action, len(ids))
	for i, id := range ids {
		actions[i] = writequeue.Action{Kind: writequeue.ActionDelete, ObjectID: id}
	}
	if err := ts.queue.Enqueue(writequeue.WriteOp{TaskID: bg.TaskID, Actions: actions}); err != nil {
		return types.Task{}, err
	}

	m.events.Publish(events.SearchEvent{
		Type:       events.EventDeleteByQuery,
		Tenant:     tenant,
		FilterExpr: filterExpr,
		NumHits:    len(ids),
	})

	return *m.newNoopTask(ts), nil
}

// ClearObjects wipes every document in a tenant (spec §4.8 recovery's
// `clear` op, triggered here as a direct operation rather than replay).
func (m *Manager) ClearObjects(tenant string) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	task := m.newTask(ts)
	if err := ts.queue.Enqueue(writequeue.WriteOp{
		TaskID:  task.TaskID,
		Actions: []writequeue.Action{{Kind: writequeue.ActionClear}},
	}); err != nil {
		return *task, err
	}
	return *task, nil
}

// Compact enqueues a forced segment merge (spec §4.5's Compact action).
func (m *Manager) Compact(tenant string) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	task := m.newTask(ts)
	if err := ts.queue.Enqueue(writequeue.WriteOp{
		TaskID:  task.TaskID,
		Actions: []writequeue.Action{{Kind: writequeue.ActionCompact}},
	}); err != nil {
		return *task, err
	}
	return *task, nil
}

// Search executes a query against a tenant's segment store (spec §4.7).
func (m *Manager) Search(tenant string, req query.SearchRequest) (*query.SearchResult, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SearchDuration, tenant)
	req.Tenant = tenant
	res, err := ts.exec.Search(req)
	if err == nil {
		m.publishSearchEvent(events.EventSearch, tenant, strings.Join(req.ParsedQuery.QueryWords, " "), req.FilterExpr, res, timer)
	}
	return res, err
}

// SearchWithFallback is Search plus the §4.7.4 no-results retry ladder.
func (m *Manager) SearchWithFallback(tenant string, in query.ParserInput, req query.SearchRequest) (*query.SearchResult, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SearchDuration, tenant)
	in.Settings = req.Settings
	req.Tenant = tenant
	res, err := ts.exec.SearchWithFallback(in, req)
	if err == nil {
		m.publishSearchEvent(events.EventSearch, tenant, in.Text, req.FilterExpr, res, timer)
	}
	return res, err
}

// publishSearchEvent fires a fire-and-forget analytics event (spec
// §6.5); a slow or absent collector never affects the caller.
func (m *Manager) publishSearchEvent(typ events.EventType, tenant, q, filterExpr string, res *query.SearchResult, timer *metrics.Timer) {
	numHits := 0
	if res != nil {
		numHits = len(res.Documents)
	}
	m.events.Publish(events.SearchEvent{
		Type:       typ,
		Tenant:     tenant,
		Query:      q,
		FilterExpr: filterExpr,
		NumHits:    numHits,
		DurationMS: timer.Duration().Milliseconds(),
	})
}

// GetSettings / PutSettings expose the per-tenant IndexSettings store.
func (m *Manager) GetSettings(tenant string) (settings.IndexSettings, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return settings.IndexSettings{}, err
	}
	return ts.config.Settings.Get()
}

// PutSettings saves new settings, logs the change to the OpLog so
// recovery's first pass can restore it (spec §4.8 step 3), and returns a
// noop-succeeded task (spec §4.9).
func (m *Manager) PutSettings(tenant string, s settings.IndexSettings) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	if err := ts.config.Settings.Save(s); err != nil {
		return types.Task{}, err
	}

	raw, err := json.Marshal(s)
	if err == nil {
		var asMap map[string]any
		if jErr := json.Unmarshal(raw, &asMap); jErr == nil {
			payload, _ := json.Marshal(types.SettingsPayload{Raw: asMap})
			if _, aErr := ts.oplog.Append(types.OpSettings, payload); aErr != nil {
				log.WithTenant(tenant).Error().Err(aErr).Msg("append settings op")
			}
		}
	}

	m.facetCache.InvalidateTenant(tenant)
	return *m.newNoopTask(ts), nil
}

// GetSynonyms / PutSynonyms / GetRules / PutRules follow the same
// save-and-invalidate shape. Per spec §9 Open Questions, these two
// config kinds are not logged to the OpLog: recovery explicitly skips
// replaying them, relying on the JSON files being restored out-of-band.
func (m *Manager) GetSynonyms(tenant string) (settings.SynonymStore, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return settings.SynonymStore{}, err
	}
	return ts.config.LoadSynonyms()
}

func (m *Manager) PutSynonyms(tenant string, s settings.SynonymStore) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	if err := ts.config.Synonyms.Save(s); err != nil {
		return types.Task{}, err
	}
	m.facetCache.InvalidateTenant(tenant)
	return *m.newNoopTask(ts), nil
}

func (m *Manager) GetRules(tenant string) (settings.RuleStore, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return settings.RuleStore{}, err
	}
	return ts.config.Rules.Get()
}

func (m *Manager) PutRules(tenant string, s settings.RuleStore) (types.Task, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return types.Task{}, err
	}
	if err := ts.config.Rules.Save(s); err != nil {
		return types.Task{}, err
	}
	m.facetCache.InvalidateTenant(tenant)
	return *m.newNoopTask(ts), nil
}

// CreateTenant forces a tenant's state to be loaded (or created fresh)
// without performing any write, satisfying the HTTP layer's
// create_tenant collaborator call (spec §6.5).
func (m *Manager) CreateTenant(tenant string) error {
	_, err := m.getOrLoad(tenant)
	return err
}

// Tenants lists every tenant currently loaded in memory, sorted for
// deterministic iteration.
func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tenants))
	for t := range m.tenants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Shutdown stops every tenant's write queue and closes its storage
// handles. Safe to call once at process exit.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for tenant, ts := range m.tenants {
		ts.queue.Close()
		if err := ts.oplog.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close oplog for %s: %w", tenant, err)
		}
		if err := ts.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close segment store for %s: %w", tenant, err)
		}
	}
	m.tenants = make(map[string]*tenantState)
	m.events.Stop()
	return firstErr
}
