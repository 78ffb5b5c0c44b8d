package riskreports

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultReportsDir   = "./wal/risk"
	reportsSegmentLimit = 1000
	reportsMaxSegments  = 100
	reportKeyPrefix     = "risk_report_"
	// defaultRetained number of recent reports kept in memory for streaming.
	defaultRetained = 500
)

type storedReport struct {
	Index  uint64        `json:"index"`
	Report domain.Report `json:"report"`
}

// WALStore persists risk reports in a WAL for history and streaming.
type WALStore struct {
	wal      *gowal.Wal
	mu       sync.RWMutex
	recent   []domain.ReportRecord
	retained int
}

// NewWALStore initializes a WAL-backed report store under the provided directory.
func NewWALStore(l *zap.Logger, dir string, retained int) (*WALStore, error) {
	if dir == "" {
		dir = defaultReportsDir
	}
	if retained < 1 {
		retained = defaultRetained
	}
	if l == nil {
		l = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "report_",
		SegmentThreshold: reportsSegmentLimit,
		MaxSegments:      reportsMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init risk report WAL")
	}

	s := &WALStore{wal: wal, retained: retained}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, reportKeyPrefix) {
			continue
		}
		var rec storedReport
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			l.Error("failed to unmarshal risk report", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		s.remember(domain.ReportRecord{Index: rec.Index, Report: rec.Report})
	}

	return s, nil
}

// Save writes the report to the WAL and returns its index.
func (s *WALStore) Save(report domain.Report) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("risk report store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	payload, err := json.Marshal(storedReport{Index: nextIndex, Report: report})
	if err != nil {
		return 0, errors.Wrap(err, "marshal risk report")
	}

	key := reportKeyPrefix + report.GeneratedAt.UTC().Format("20060102T150405.000000000")
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return 0, errors.Wrap(err, "write risk report")
	}
	s.remember(domain.ReportRecord{Index: nextIndex, Report: report})

	return nextIndex, nil
}

// ReportsAfter returns retained reports written after the provided WAL index.
func (s *WALStore) ReportsAfter(index uint64) ([]domain.ReportRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("risk report store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ReportRecord
	for _, rec := range s.recent {
		if rec.Index > index {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Latest returns the most recent report, if any.
func (s *WALStore) Latest() (domain.ReportRecord, bool) {
	if s == nil {
		return domain.ReportRecord{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.recent) == 0 {
		return domain.ReportRecord{}, false
	}
	return s.recent[len(s.recent)-1], true
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("risk report store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

func (s *WALStore) remember(rec domain.ReportRecord) {
	s.recent = append(s.recent, rec)
	if extra := len(s.recent) - s.retained; extra > 0 {
		s.recent = append(s.recent[:0:0], s.recent[extra:]...)
	}
}
