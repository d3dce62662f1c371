// Package store persists the latest Analysis snapshot per timeframe and
// an append-only trade history log, grounded on
// original_source/src/ai/gpt_analysis_store.py's save/load-latest shape
// and the teacher's transaction-then-commit write discipline
// (internal/database/db.go) adapted here to atomic file rename instead
// of a SQL transaction, since spec.md's persistence Non-goal caps this
// system at flat files rather than a database.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/model"
)

// Store is a single-process, single-writer-per-timeframe snapshot
// store plus an append-only trade log, rooted at dir.
type Store struct {
	dir string
	log *logging.Logger

	mu sync.Mutex // serializes every read and write of the store's files
}

// analysisSubdir and tradesSubdir nest the two kinds of state store
// manages under dir, matching the persisted-state layout
// (<data_dir>/analysis/analysis_{tf}.json, <data_dir>/trades/history.jsonl).
const (
	analysisSubdir = "analysis"
	tradesSubdir   = "trades"
)

// New creates (if necessary) dir's analysis/ and trades/ subdirectories
// and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, analysisSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create analysis dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, tradesSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create trades dir: %w", err)
	}
	return &Store{dir: dir, log: logging.WithComponent("store")}, nil
}

func (s *Store) snapshotPath(tf model.Timeframe) string {
	return filepath.Join(s.dir, analysisSubdir, fmt.Sprintf("analysis_%s.json", tf))
}

// PutAnalysis atomically writes analysis as the latest snapshot for its
// timeframe (write-to-temp then os.Rename, so a reader never observes a
// half-written file) and returns whatever snapshot previously occupied
// that slot, so callers can diff for a signal flip (spec.md's recovered
// "previous snapshot" feature — see SPEC_FULL.md §11).
func (s *Store) PutAnalysis(tf model.Timeframe, analysis model.Analysis) (*model.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.getLatestLocked(tf)
	if err != nil {
		s.log.Warn("discarding unreadable previous snapshot", "timeframe", string(tf), "error", err.Error())
		previous = nil
	}

	if err := s.writeAtomic(s.snapshotPath(tf), analysis); err != nil {
		return nil, err
	}
	return previous, nil
}

// PutFinal writes the synthetic combined-pass analysis, but only after
// verifying every source timeframe has a snapshot newer than maxAge —
// the scheduler's "final" trigger fires after every 4h pass, successful
// or not, so this guards against stale source snapshots and against a
// store built from a partially warmed cache (e.g. right after process
// start).
func (s *Store) PutFinal(final model.Analysis, maxAge time.Duration) (*model.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, tf := range model.SourceTimeframes {
		snap, err := s.getLatestLocked(tf)
		if err != nil || snap == nil {
			return nil, fmt.Errorf("final pass: missing snapshot for %s", tf)
		}
		age := now.Sub(time.UnixMilli(snap.GeneratedAtMs))
		if age > maxAge {
			return nil, fmt.Errorf("final pass: %s snapshot is %s old, older than max age %s", tf, age, maxAge)
		}
	}

	previous, err := s.getLatestLocked(model.TimeframeFinal)
	if err != nil {
		previous = nil
	}
	if err := s.writeAtomic(s.snapshotPath(model.TimeframeFinal), final); err != nil {
		return nil, err
	}
	return previous, nil
}

// GetLatest returns the most recent snapshot for tf, or nil if none has
// ever been written. A corrupt file is quarantined (renamed with a
// .bad.<unixnano> suffix so repeated corruption never clobbers a prior
// quarantined file) and treated as "none".
func (s *Store) GetLatest(tf model.Timeframe) (*model.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLatestLocked(tf)
}

func (s *Store) getLatestLocked(tf model.Timeframe) (*model.Analysis, error) {
	path := s.snapshotPath(tf)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w", tf, err)
	}

	var analysis model.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		s.quarantine(path)
		return nil, fmt.Errorf("corrupt snapshot %s: %w", tf, err)
	}
	return &analysis, nil
}

func (s *Store) quarantine(path string) {
	bad := fmt.Sprintf("%s.bad.%d", path, time.Now().UnixNano())
	if err := os.Rename(path, bad); err != nil {
		s.log.Error("failed to quarantine corrupt snapshot", "path", path, "error", err.Error())
	}
}

func (s *Store) writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

const tradesLogFile = "history.jsonl"

func (s *Store) tradesLogPath() string {
	return filepath.Join(s.dir, tradesSubdir, tradesLogFile)
}

// AppendTrade appends record as one JSON line to the permanent trade
// history log. The log is append-only and never rewritten, so no
// locking beyond the file's own O_APPEND atomicity is required for
// concurrent writers within one process.
func (s *Store) AppendTrade(record model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.tradesLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal trade record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write trade record: %w", err)
	}
	return nil
}

// TradeHistory reads every trade record ever appended, oldest first.
func (s *Store) TradeHistory() ([]model.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.tradesLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	var records []model.TradeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record model.TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			s.log.Warn("skipping corrupt trade log line", "error", err.Error())
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trade log: %w", err)
	}
	return records, nil
}
