package oplog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// committedSeqPath returns the path of the per-tenant committed_seq
// sidecar described in spec §6.1.
func committedSeqPath(dataDir, tenant string) string {
	return filepath.Join(dataDir, tenant, "committed_seq")
}

// ReadCommittedSeq reads the committed_seq sidecar, defaulting to 0 if
// absent (spec §4.8 Recovery step 1).
func ReadCommittedSeq(dataDir, tenant string) (uint64, error) {
	data, err := os.ReadFile(committedSeqPath(dataDir, tenant))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read committed_seq: %w", err)
	}
	seq, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse committed_seq: %w", err)
	}
	return seq, nil
}

// WriteCommittedSeq atomically rewrites the committed_seq sidecar
// (write-tmp-then-rename, per spec §6.1's "all JSON files are rewritten
// atomically" rule extended to this ASCII sidecar).
func WriteCommittedSeq(dataDir, tenant string, seq uint64) error {
	path := committedSeqPath(dataDir, tenant)
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(seq, 10)), 0o644); err != nil {
		return fmt.Errorf("write committed_seq tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename committed_seq: %w", err)
	}
	return nil
}
