package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "pacewatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.notifications.jsonl (append-only JSON Lines)
//   - <prefix>.seen.snapshot.json  (periodic snapshot of the seen-key set)
//   - <prefix>.seen.journal.jsonl  (append-only journal)
//
// The journal is periodically compacted into the snapshot. Seen keys are
// append-only for the life of the store; they are never expired.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	notifFile *os.File

	seenSnapshotPath string
	seenJournalFile  *os.File
	seen             map[string]int64 // key -> recorded-at unix milli

	seenWrites int
}

type seenRecord struct {
	Key string `json:"key"`
	At  int64  `json:"at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	notifPath := prefix + ".notifications.jsonl"
	snapPath := prefix + ".seen.snapshot.json"
	journalPath := prefix + ".seen.journal.jsonl"

	nf, err := os.OpenFile(notifPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load seen keys from snapshot + journal.
	seen := map[string]int64{}
	_ = loadSeenSnapshot(snapPath, seen)
	_ = replaySeenJournal(journalPath, seen)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = nf.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		notifFile:        nf,
		seenSnapshotPath: snapPath,
		seenJournalFile:  jf,
		seen:             seen,
		seenWrites:       0,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.notifFile != nil {
		err1 = s.notifFile.Close()
		s.notifFile = nil
	}
	if s.seenJournalFile != nil {
		err2 = s.seenJournalFile.Close()
		s.seenJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) CheckAndRecord(ctx context.Context, keys []string) (bool, error) {
	_ = ctx
	clean := cleanKeys(keys)
	if len(clean) == 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenJournalFile == nil {
		return false, errors.New("seen journal closed")
	}
	if s.seen == nil {
		s.seen = map[string]int64{}
	}

	for _, k := range clean {
		if _, ok := s.seen[k]; ok {
			return false, nil
		}
	}

	now := time.Now().UnixMilli()
	enc := json.NewEncoder(s.seenJournalFile)
	for _, k := range clean {
		s.seen[k] = now
		if err := enc.Encode(seenRecord{Key: k, At: now}); err != nil {
			return false, err
		}
	}
	s.seenWrites += len(clean)
	if s.seenWrites >= 1000 {
		s.seenWrites = 0
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("seen-set compact failed", logx.Any("err", err))
		}
	}
	return true, nil
}

func (s *fileStore) AppendNotification(ctx context.Context, e NotificationEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifFile == nil {
		return errors.New("notification file closed")
	}
	return json.NewEncoder(s.notifFile).Encode(e)
}

func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	if s.seen == nil || s.seenJournalFile == nil {
		return nil
	}

	tmp := s.seenSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.seen); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.seenSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.seenJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.seenJournalFile.Seek(0, 2)
	return err
}

func loadSeenSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replaySeenJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r seenRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.At
	}
	return sc.Err()
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}
