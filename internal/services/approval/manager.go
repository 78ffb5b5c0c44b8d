// Package approval tracks proposed trades through the pending, approved, rejected and expired states.
package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultTTL lifetime of a submitted trade without an explicit deadline.
	DefaultTTL = 15 * time.Minute
	// DefaultSweepInterval matches the dashboard poll cadence.
	DefaultSweepInterval = 10 * time.Second
)

// Store durable home of pending trade records.
type Store interface {
	Create(ctx context.Context, trade domain.PendingTrade) error
	Get(ctx context.Context, id string) (domain.PendingTrade, error)
	List(ctx context.Context) ([]domain.PendingTrade, error)
	UpdateState(ctx context.Context, id string, change domain.StateChange) error
}

// Notifier receives lifecycle events after they are committed.
type Notifier interface {
	Publish(event domain.ApprovalEvent)
}

// Clock source of the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Outcome result of one item in a bulk operation.
type Outcome struct {
	TradeID string               `json:"trade_id"`
	Symbol  string               `json:"symbol"`
	State   domain.ApprovalState `json:"state"`
	Err     error                `json:"-"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for expiry.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithTTL sets the default lifetime for submitted trades.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithNotifier adds a lifecycle event receiver.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
}

// entry guards a single trade; all transitions of that trade happen under mu.
type entry struct {
	mu    sync.Mutex
	trade domain.PendingTrade
}

// Manager owns the approval state machine.
type Manager struct {
	l         *zap.Logger
	store     Store
	clock     Clock
	ttl       time.Duration
	validate  *validator.Validate
	notifiers []Notifier

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewManager creates a manager and loads existing trades from the store.
func NewManager(ctx context.Context, l *zap.Logger, store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("approval store is required")
	}
	if l == nil {
		l = zap.NewNop()
	}

	m := &Manager{
		l:        l,
		store:    store,
		clock:    systemClock{},
		ttl:      DefaultTTL,
		validate: validator.New(),
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.Reload(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

// Reload adopts trades from the store that the manager does not know yet.
func (m *Manager) Reload(ctx context.Context) error {
	trades, err := m.store.List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list pending trades")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, t := range trades {
		if _, ok := m.entries[t.ID]; ok {
			continue
		}
		m.entries[t.ID] = &entry{trade: t}
		added++
	}
	if added > 0 {
		m.l.Debug("loaded trades from store", zap.Int("count", added))
	}

	return nil
}

// Submit validates and stores a new pending trade.
func (m *Manager) Submit(ctx context.Context, trade domain.PendingTrade) (domain.PendingTrade, error) {
	now := m.clock.Now()

	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	if trade.ExpiresAt.IsZero() {
		trade.ExpiresAt = trade.CreatedAt.Add(m.ttl)
	}
	if trade.EstimatedValue.IsZero() {
		trade.EstimatedValue = trade.Quantity.Mul(trade.EstimatedPrice)
	}
	trade.State = domain.ApprovalStatePending
	trade.ResolvedAt = nil
	trade.RejectionReason = ""

	if err := m.validate.Struct(trade); err != nil {
		return domain.PendingTrade{}, errors.Wrap(domain.ErrInvalidTrade, err.Error())
	}
	if !trade.Quantity.IsPositive() {
		return domain.PendingTrade{}, errors.Wrapf(domain.ErrInvalidTrade, "quantity must be positive, got %s", trade.Quantity)
	}
	if trade.EstimatedPrice.IsNegative() {
		return domain.PendingTrade{}, errors.Wrapf(domain.ErrInvalidTrade, "estimated price must not be negative, got %s", trade.EstimatedPrice)
	}
	if trade.IsExpiredAt(now) {
		return domain.PendingTrade{}, errors.Wrapf(domain.ErrInvalidTrade, "trade %s is already past its deadline", trade.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[trade.ID]; ok {
		return domain.PendingTrade{}, errors.Wrapf(domain.ErrDuplicateTrade, "trade %s", trade.ID)
	}
	if err := m.store.Create(ctx, trade); err != nil {
		return domain.PendingTrade{}, errors.Wrapf(err, "failed to store trade %s", trade.ID)
	}
	m.entries[trade.ID] = &entry{trade: trade}

	m.l.Info("trade submitted",
		zap.String("id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("type", string(trade.TradeType)),
		zap.Float64("risk_score", trade.RiskScore),
		zap.Time("expires_at", trade.ExpiresAt))
	m.publish(domain.ApprovalEvent{TradeID: trade.ID, Symbol: trade.Symbol, To: trade.State, At: trade.CreatedAt})

	return trade, nil
}

// ListPending returns live pending trades matching filter, oldest first.
// Overdue trades are expired on the way and never returned.
func (m *Manager) ListPending(ctx context.Context, filter domain.Filter) ([]domain.PendingTrade, error) {
	entries := m.snapshot()
	now := m.clock.Now()

	out := make([]domain.PendingTrade, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.mu.Lock()
		m.expireLocked(ctx, e, now)
		trade := e.trade
		e.mu.Unlock()

		if trade.State != domain.ApprovalStatePending || trade.IsExpiredAt(now) {
			continue
		}
		if filter.Matches(trade) {
			out = append(out, trade)
		}
	}

	sortTrades(out)
	return out, nil
}

// List returns every known trade regardless of state, oldest first.
func (m *Manager) List(ctx context.Context) ([]domain.PendingTrade, error) {
	entries := m.snapshot()
	now := m.clock.Now()

	out := make([]domain.PendingTrade, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.mu.Lock()
		m.expireLocked(ctx, e, now)
		out = append(out, e.trade)
		e.mu.Unlock()
	}

	sortTrades(out)
	return out, nil
}

// Get returns the current record of a trade with expiry applied.
func (m *Manager) Get(ctx context.Context, id string) (domain.PendingTrade, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return domain.PendingTrade{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m.expireLocked(ctx, e, m.clock.Now())
	return e.trade, nil
}

// Approve moves a pending trade to approved.
func (m *Manager) Approve(ctx context.Context, id string) error {
	_, err := m.resolve(ctx, id, domain.ApprovalStateApproved, "")
	return err
}

// Reject moves a pending trade to rejected with an optional reason.
func (m *Manager) Reject(ctx context.Context, id, reason string) error {
	_, err := m.resolve(ctx, id, domain.ApprovalStateRejected, reason)
	return err
}

// ApproveAll approves every trade matching filter at call time.
func (m *Manager) ApproveAll(ctx context.Context, filter domain.Filter) ([]Outcome, error) {
	return m.resolveAll(ctx, filter, domain.ApprovalStateApproved, "")
}

// RejectAll rejects every trade matching filter at call time.
func (m *Manager) RejectAll(ctx context.Context, filter domain.Filter, reason string) ([]Outcome, error) {
	return m.resolveAll(ctx, filter, domain.ApprovalStateRejected, reason)
}

// Sweep expires every overdue pending trade and returns how many were expired.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	entries := m.snapshot()
	now := m.clock.Now()

	expired := 0
	var firstErr error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		e.mu.Lock()
		if e.trade.State == domain.ApprovalStatePending && e.trade.IsExpiredAt(now) {
			err := m.commitLocked(ctx, e, domain.StateChange{State: domain.ApprovalStateExpired, At: now})
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if err == nil {
				expired++
			}
		}
		e.mu.Unlock()
	}

	return expired, firstErr
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.l.Info("starting expiry sweep", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			m.l.Info("context done, stopping expiry sweep")
			return ctx.Err()
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.l.Error("expiry sweep failed", zap.Error(err))
			}
			if n > 0 {
				m.l.Info("expired overdue trades", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) resolveAll(ctx context.Context, filter domain.Filter, target domain.ApprovalState, reason string) ([]Outcome, error) {
	batch, err := m.ListPending(ctx, filter)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(batch))
	for _, t := range batch {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		state, err := m.resolve(ctx, t.ID, target, reason)
		outcomes = append(outcomes, Outcome{TradeID: t.ID, Symbol: t.Symbol, State: state, Err: err})
	}

	m.l.Info("bulk resolution finished",
		zap.String("target", string(target)),
		zap.String("filter", string(filter)),
		zap.Int("count", len(outcomes)))

	return outcomes, nil
}

// resolve applies target to a pending trade and returns the state the trade ends up in.
func (m *Manager) resolve(ctx context.Context, id string, target domain.ApprovalState, reason string) (domain.ApprovalState, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.clock.Now()
	current := e.trade.State

	switch current {
	case domain.ApprovalStatePending:
		if e.trade.IsExpiredAt(now) {
			if err := m.commitLocked(ctx, e, domain.StateChange{State: domain.ApprovalStateExpired, At: now}); err != nil {
				return current, err
			}
			return e.trade.State, domain.NewTransitionError(id, current, target, domain.ErrExpired)
		}
	case domain.ApprovalStateApproved, domain.ApprovalStateRejected:
		return current, domain.NewTransitionError(id, current, target, domain.ErrAlreadyResolved)
	case domain.ApprovalStateExpired:
		return current, domain.NewTransitionError(id, current, target, domain.ErrExpired)
	default:
		return current, domain.NewTransitionError(id, current, target, domain.ErrInvalidTransition)
	}

	if err := m.commitLocked(ctx, e, domain.StateChange{State: target, At: now, Reason: reason}); err != nil {
		return current, err
	}

	return e.trade.State, nil
}

// expireLocked expires an overdue pending trade. A store failure is logged and
// the record stays pending until the next attempt.
func (m *Manager) expireLocked(ctx context.Context, e *entry, now time.Time) {
	if e.trade.State != domain.ApprovalStatePending || !e.trade.IsExpiredAt(now) {
		return
	}
	if err := m.commitLocked(ctx, e, domain.StateChange{State: domain.ApprovalStateExpired, At: now}); err != nil {
		m.l.Warn("failed to expire trade", zap.String("id", e.trade.ID), zap.Error(err))
	}
}

// commitLocked persists the change and only then applies it in memory. Caller holds e.mu.
func (m *Manager) commitLocked(ctx context.Context, e *entry, change domain.StateChange) error {
	from := e.trade.State
	if err := m.store.UpdateState(ctx, e.trade.ID, change); err != nil {
		return errors.Wrapf(err, "failed to persist %s for trade %s", change.State, e.trade.ID)
	}
	e.trade = e.trade.Apply(change)

	m.l.Info("trade state changed",
		zap.String("id", e.trade.ID),
		zap.String("symbol", e.trade.Symbol),
		zap.String("from", string(from)),
		zap.String("to", string(change.State)),
		zap.String("reason", change.Reason))
	m.publish(domain.ApprovalEvent{
		TradeID: e.trade.ID,
		Symbol:  e.trade.Symbol,
		From:    from,
		To:      change.State,
		Reason:  change.Reason,
		At:      change.At,
	})

	return nil
}

// lookup finds a trade in memory, falling back to the store for records created elsewhere.
func (m *Manager) lookup(ctx context.Context, id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	trade, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "trade %s", id)
		}
		return nil, errors.Wrapf(err, "failed to load trade %s", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[id]; ok {
		return existing, nil
	}
	e = &entry{trade: trade}
	m.entries[id] = e

	return e, nil
}

func (m *Manager) snapshot() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return entries
}

func (m *Manager) publish(event domain.ApprovalEvent) {
	for _, n := range m.notifiers {
		n.Publish(event)
	}
}

func sortTrades(trades []domain.PendingTrade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
}
