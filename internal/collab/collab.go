// Package collab defines the Go interfaces the core index engine
// exposes to its external collaborators (spec §6.5): the HTTP layer,
// the analytics collector, and a replication peer. These are contracts
// only — the HTTP wire protocol, the analytics pipeline, and the
// replication transport are explicit Non-goals of the core (spec §1);
// nothing in this package implements them.
package collab

import (
	"github.com/cuemby/flapjack/internal/events"
	"github.com/cuemby/flapjack/internal/query"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

// IndexManager is the surface the HTTP layer drives (spec §6.5): tenant
// lifecycle, settings/synonyms/rules, document mutation (both the
// task-returning async path and the sync wait-for-completion path a
// caller builds atop get_task), search, maintenance, and migration.
// *manager.Manager satisfies this interface structurally.
type IndexManager interface {
	CreateTenant(tenant string) error
	Tenants() []string

	GetSettings(tenant string) (settings.IndexSettings, error)
	PutSettings(tenant string, s settings.IndexSettings) (types.Task, error)
	GetSynonyms(tenant string) (settings.SynonymStore, error)
	PutSynonyms(tenant string, s settings.SynonymStore) (types.Task, error)
	GetRules(tenant string) (settings.RuleStore, error)
	PutRules(tenant string, s settings.RuleStore) (types.Task, error)

	AddDocuments(tenant string, docs []types.Document) (types.Task, error)
	DeleteDocuments(tenant string, objectIDs []string) (types.Task, error)
	DeleteByQuery(tenant string, filter query.Filter, filterExpr string) (types.Task, error)
	ClearObjects(tenant string) (types.Task, error)

	// Search and SearchWithFallback back both single-query search and,
	// called once per query by the HTTP layer, batch-search — the core
	// has no dedicated multi-search entry point, spec §6.5's
	// "batch-search" is an HTTP-layer composition of these.
	Search(tenant string, req query.SearchRequest) (*query.SearchResult, error)
	SearchWithFallback(tenant string, in query.ParserInput, req query.SearchRequest) (*query.SearchResult, error)

	Compact(tenant string) (types.Task, error)
	ExportTenant(tenant string) ([]map[string]any, error)
	ImportTenant(tenant string, docs []map[string]any) error
	MoveIndex(src, dst string) (types.Task, error)
	CopyIndex(src, dst string) (types.Task, error)

	GetTask(tenant, taskID string) (types.Task, error)
}

// AnalyticsCollector is the fire-and-forget consumer side of
// internal/events (spec §6.5: "never affects the search response").
// A collector subscribes to a *events.Broker and reads from the
// returned channel at its own pace; a slow collector only loses events,
// it never blocks a search.
type AnalyticsCollector interface {
	Collect(ev events.SearchEvent)
}

// ReplicationPeer is the contract a replication transport would drive
// against the per-tenant OpLog (spec §6.5): read a seq range to ship to
// followers, and apply entries received from a leader directly, without
// going through the local writer's task generation. The replication
// transport itself is out of scope for the core (spec §1 Non-goals);
// this interface only records the shape a future adapter would need.
type ReplicationPeer interface {
	ReadOpLogRange(tenant string, fromSeq, toSeq uint64) ([]types.OpLogEntry, error)
	ApplyReplicatedEntry(tenant string, entry types.OpLogEntry) error
}
