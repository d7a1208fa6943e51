package manager

import (
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2"

	"github.com/cuemby/flapjack/internal/document"
	"github.com/cuemby/flapjack/internal/types"
)

// exportBatchSize bounds how many documents are rebuilt per bleve batch
// during ImportTenant, keeping memory bounded for large tenants.
const exportBatchSize = 500

// ExportTenant snapshots every document currently in a tenant's segment
// store, decoded back to its logical JSON form (spec §6.5 export; also
// the building block MoveIndex/CopyIndex use per original_source/
// handlers/migration.rs). This bypasses the OpLog entirely: it is a
// synchronous, maintenance-style bulk read, not a replayable mutation,
// the same scoping Compact already has.
func (m *Manager) ExportTenant(tenant string) ([]map[string]any, error) {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return nil, err
	}

	idx := ts.store.Index()
	count, err := idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("manager: export doc count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{"json_filter_raw"}
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("manager: export search: %w", err)
	}

	out := make([]map[string]any, 0, len(res.Hits))
	for _, hit := range res.Hits {
		raw, ok := hit.Fields["json_filter_raw"].(string)
		if !ok || raw == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// ImportTenant rebuilds a tenant's segment store from exported JSON
// documents, converting each with the tenant's current settings and
// committing in bounded batches. Like ExportTenant, this bypasses the
// OpLog: a crash mid-import is not itself recoverable by replay, an
// accepted tradeoff for a bulk maintenance operation (see DESIGN.md).
func (m *Manager) ImportTenant(tenant string, docs []map[string]any) error {
	ts, err := m.getOrLoad(tenant)
	if err != nil {
		return err
	}
	cfg, err := ts.config.Settings.Get()
	if err != nil {
		return err
	}

	for start := 0; start < len(docs); start += exportBatchSize {
		end := start + exportBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := ts.store.NewBatch()
		for _, raw := range docs[start:end] {
			d, err := document.FromJSON(raw)
			if err != nil {
				continue
			}
			if err := batch.Upsert(document.Convert(d, cfg)); err != nil {
				return fmt.Errorf("manager: import upsert: %w", err)
			}
		}
		if err := ts.store.Commit(batch); err != nil {
			return fmt.Errorf("manager: import commit: %w", err)
		}
	}

	_ = ts.store.Reload()
	m.facetCache.InvalidateTenant(tenant)
	return nil
}

// MoveIndex renames a tenant's contents by copying every document into
// dst and clearing src, returning a noop-succeeded task (spec §4.9;
// grounded on original_source/handlers/migration.rs treating move as a
// task-returning snapshot-export/import pair).
func (m *Manager) MoveIndex(src, dst string) (types.Task, error) {
	docs, err := m.ExportTenant(src)
	if err != nil {
		return types.Task{}, err
	}
	if err := m.ImportTenant(dst, docs); err != nil {
		return types.Task{}, err
	}
	if _, err := m.ClearObjects(src); err != nil {
		return types.Task{}, err
	}

	dstTs, err := m.getOrLoad(dst)
	if err != nil {
		return types.Task{}, err
	}
	return *m.newNoopTask(dstTs), nil
}

// CopyIndex copies every document from src into dst without touching
// src, returning a noop-succeeded task (spec §4.9/§C.4).
func (m *Manager) CopyIndex(src, dst string) (types.Task, error) {
	docs, err := m.ExportTenant(src)
	if err != nil {
		return types.Task{}, err
	}
	if err := m.ImportTenant(dst, docs); err != nil {
		return types.Task{}, err
	}

	dstTs, err := m.getOrLoad(dst)
	if err != nil {
		return types.Task{}, err
	}
	return *m.newNoopTask(dstTs), nil
}
