// Package oplog implements the per-tenant append-only mutation log of
// spec §4.2: monotone sequence numbers, durable-before-return appends,
// and bounded replay after a crash.
//
// Storage is a single bbolt database per tenant living at
// "<tenant>/oplog/oplog.db" (spec §6.1's "oplog/" directory holding
// append-only chunk files — here one growing chunk, framed by bolt's own
// page/transaction format rather than a hand-rolled length-prefixed
// encoding). bolt commits are fsynced by default, so every seq returned
// by Append is durable before the call returns, matching the §4.2
// durability contract.
package oplog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/flapjack/internal/log"
	"github.com/cuemby/flapjack/internal/metrics"
	"github.com/cuemby/flapjack/internal/types"
)

var bucketEntries = []byte("entries")

// Log is a tenant's durable OpLog.
type Log struct {
	tenant string
	nodeID string
	db     *bolt.DB
}

// Open opens or creates the OpLog for a tenant under dataDir.
func Open(dataDir, tenant, nodeID string) (*Log, error) {
	dir := filepath.Join(dataDir, tenant, "oplog")
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("oplog: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "oplog.db"), 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("oplog: open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("oplog: init bucket: %w", err)
	}
	return &Log{tenant: tenant, nodeID: nodeID, db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Append writes one entry and returns its assigned sequence number.
// Strictly monotone per tenant (O3/P7): bolt's NextSequence is
// per-bucket and only ever increases.
func (l *Log) Append(opType types.OpType, payload []byte) (uint64, error) {
	seqs, err := l.AppendBatch([]PendingOp{{OpType: opType, Payload: payload}})
	if err != nil {
		return 0, err
	}
	return seqs[len(seqs)-1], nil
}

// PendingOp is one not-yet-assigned-a-seq operation to append.
type PendingOp struct {
	OpType  types.OpType
	Payload []byte
}

// AppendBatch appends many ops in a single bolt transaction (one fsync),
// implementing the "batching coalesces many ops into one flush" contract
// of spec §4.2. Returns the assigned seq for each op, in order.
func (l *Log) AppendBatch(ops []PendingOp) ([]uint64, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	seqs := make([]uint64, len(ops))
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for i, op := range ops {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			entry := types.OpLogEntry{
				Seq:     seq,
				WallMS:  time.Now().UnixMilli(),
				NodeID:  l.nodeID,
				OpType:  op.OpType,
				Payload: op.Payload,
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encode entry: %w", err)
			}
			if err := b.Put(seqKey(seq), data); err != nil {
				return err
			}
			seqs[i] = seq
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("oplog: append batch: %w", err)
	}
	metrics.OpLogSeq.WithLabelValues(l.tenant).Set(float64(seqs[len(seqs)-1]))
	return seqs, nil
}

// ReadSince returns every entry with seq > since, in increasing order.
func (l *Log) ReadSince(since uint64) ([]types.OpLogEntry, error) {
	var out []types.OpLogEntry
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, v := c.Seek(seqKey(since + 1)); k != nil; k, v = c.Next() {
			var e types.OpLogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry at %x: %w", k, err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("oplog: read since %d: %w", since, err)
	}
	return out, nil
}

// CurrentSeq returns the highest seq appended so far, or 0 if empty.
func (l *Log) CurrentSeq() uint64 {
	var seq uint64
	_ = l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		k, _ := c.Last()
		if k != nil {
			seq = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return seq
}

// TruncateBefore deletes every entry with seq < before (spec §4.5 step 8:
// "Truncate OpLog below current_seq - retention").
func (l *Log) TruncateBefore(before uint64) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) >= before {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("oplog: truncate before %d: %w", before, err)
	}
	metrics.OpLogTruncations.WithLabelValues(l.tenant).Inc()
	log.WithComponent("oplog").Debug().Str("tenant", l.tenant).Uint64("before", before).Msg("truncated")
	return nil
}
