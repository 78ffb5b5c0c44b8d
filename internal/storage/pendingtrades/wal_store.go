package pendingtrades

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultTradesDir   = "./wal/trades"
	tradesSegmentLimit = 1000
	tradesMaxSegments  = 100
	createdKeyPrefix   = "trade_created_"
	stateKeyPrefix     = "trade_state_"
	walDirPermissions  = 0o755
)

// stateRecord is the WAL payload of a committed transition.
type stateRecord struct {
	ID     string             `json:"id"`
	Change domain.StateChange `json:"change"`
}

// WALStore persists pending trades and their transitions in a WAL.
// The full set is replayed into memory when the store is opened.
type WALStore struct {
	wal    *gowal.Wal
	mu     sync.RWMutex
	trades map[string]domain.PendingTrade
}

// NewWALStore opens the store under dir and replays its log.
func NewWALStore(l *zap.Logger, dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultTradesDir
	}
	if l == nil {
		l = zap.NewNop()
	}
	if err := os.MkdirAll(dir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trades_",
		SegmentThreshold: tradesSegmentLimit,
		MaxSegments:      tradesMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init pending trades WAL")
	}

	trades := make(map[string]domain.PendingTrade)
	for msg := range wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, createdKeyPrefix):
			var trade domain.PendingTrade
			if err := json.Unmarshal(msg.Value, &trade); err != nil {
				l.Error("failed to unmarshal pending trade", zap.Error(err), zap.String("key", msg.Key))
				continue
			}
			trades[trade.ID] = trade
		case strings.HasPrefix(msg.Key, stateKeyPrefix):
			var rec stateRecord
			if err := json.Unmarshal(msg.Value, &rec); err != nil {
				l.Error("failed to unmarshal trade state", zap.Error(err), zap.String("key", msg.Key))
				continue
			}
			trade, ok := trades[rec.ID]
			if !ok {
				l.Warn("state change for unknown trade", zap.String("id", rec.ID))
				continue
			}
			trades[rec.ID] = trade.Apply(rec.Change)
		}
	}

	return &WALStore{wal: wal, trades: trades}, nil
}

// Create writes a new trade. The id must not exist yet.
func (s *WALStore) Create(_ context.Context, trade domain.PendingTrade) error {
	if s == nil || s.wal == nil {
		return errors.New("pending trades store is not initialized")
	}
	if trade.ID == "" {
		return fmt.Errorf("pending trade id is required")
	}

	payload, err := json.Marshal(trade)
	if err != nil {
		return errors.Wrap(err, "marshal pending trade")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[trade.ID]; ok {
		return errors.Wrapf(domain.ErrDuplicateTrade, "trade %s", trade.ID)
	}
	if err := s.write(createdKeyPrefix+trade.ID, payload); err != nil {
		return err
	}
	s.trades[trade.ID] = trade

	return nil
}

// Get returns a trade by id.
func (s *WALStore) Get(_ context.Context, id string) (domain.PendingTrade, error) {
	if s == nil || s.wal == nil {
		return domain.PendingTrade{}, errors.New("pending trades store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	trade, ok := s.trades[id]
	if !ok {
		return domain.PendingTrade{}, errors.Wrapf(domain.ErrNotFound, "trade %s", id)
	}
	return trade, nil
}

// List returns all trades in no particular order.
func (s *WALStore) List(_ context.Context) ([]domain.PendingTrade, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("pending trades store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PendingTrade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, t)
	}
	return out, nil
}

// UpdateState appends a transition. Terminal records are never overwritten.
func (s *WALStore) UpdateState(_ context.Context, id string, change domain.StateChange) error {
	if s == nil || s.wal == nil {
		return errors.New("pending trades store is not initialized")
	}

	payload, err := json.Marshal(stateRecord{ID: id, Change: change})
	if err != nil {
		return errors.Wrap(err, "marshal trade state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trade, ok := s.trades[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "trade %s", id)
	}
	if trade.State.IsTerminal() {
		return domain.NewTransitionError(id, trade.State, change.State, domain.ErrAlreadyResolved)
	}
	if err := s.write(stateKeyPrefix+id, payload); err != nil {
		return err
	}
	s.trades[id] = trade.Apply(change)

	return nil
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
		return errors.New("pending trades store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// write appends under s.mu.
func (s *WALStore) write(key string, payload []byte) error {
	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}
