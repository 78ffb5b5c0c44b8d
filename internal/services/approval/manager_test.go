package approval

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/riskdesk/internal/domain"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memStore struct {
	mu       sync.Mutex
	trades   map[string]domain.PendingTrade
	updates  int
	failWith error
	onUpdate func(id string, change domain.StateChange)
}

func newMemStore() *memStore {
	return &memStore{trades: make(map[string]domain.PendingTrade)}
}

func (s *memStore) Create(_ context.Context, trade domain.PendingTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[trade.ID]; ok {
		return domain.ErrDuplicateTrade
	}
	s.trades[trade.ID] = trade
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (domain.PendingTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.PendingTrade{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *memStore) List(_ context.Context) ([]domain.PendingTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingTrade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, t)
	}
	return out, nil
}

func (s *memStore) UpdateState(_ context.Context, id string, change domain.StateChange) error {
	s.mu.Lock()
	if s.failWith != nil {
		s.mu.Unlock()
		return s.failWith
	}
	t, ok := s.trades[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	s.trades[id] = t.Apply(change)
	s.updates++
	hook := s.onUpdate
	s.mu.Unlock()

	if hook != nil {
		hook(id, change)
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ApprovalEvent
}

func (n *recordingNotifier) Publish(ev domain.ApprovalEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

type testManager struct {
	*Manager
	store *memStore
	clock *fakeClock
}

func newTestManager(t *testing.T, opts ...Option) *testManager {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{now: t0}
	opts = append([]Option{WithClock(clock)}, opts...)
	m, err := NewManager(context.Background(), zap.NewNop(), store, opts...)
	require.NoError(t, err)
	return &testManager{Manager: m, store: store, clock: clock}
}

// seed submits a trade created offset after t0 that lives for ttl.
func (tm *testManager) seed(t *testing.T, id string, score float64, offset, ttl time.Duration) domain.PendingTrade {
	t.Helper()
	created := t0.Add(offset)
	trade, err := tm.Submit(context.Background(), domain.PendingTrade{
		ID:             id,
		ExecutionID:    "exec-" + id,
		Symbol:         "SPY",
		TradeType:      domain.TradeTypeBuy,
		Quantity:       decimal.NewFromInt(2),
		EstimatedPrice: decimal.NewFromInt(450),
		RiskScore:      score,
		AIConfidence:   80,
		CreatedAt:      created,
		ExpiresAt:      created.Add(ttl),
	})
	require.NoError(t, err)
	return trade
}

func ids(trades []domain.PendingTrade) []string {
	out := make([]string, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.ID)
	}
	return out
}

func TestManager_SubmitDefaults(t *testing.T) {
	tm := newTestManager(t, WithTTL(5*time.Minute))

	trade, err := tm.Submit(context.Background(), domain.PendingTrade{
		Symbol:         "AAPL",
		TradeType:      domain.TradeTypeSell,
		Quantity:       decimal.NewFromInt(3),
		EstimatedPrice: decimal.NewFromInt(200),
		RiskScore:      5,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, t0, trade.CreatedAt)
	assert.Equal(t, t0.Add(5*time.Minute), trade.ExpiresAt)
	assert.True(t, trade.EstimatedValue.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, domain.ApprovalStatePending, trade.State)

	stored, err := tm.store.Get(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.ID, stored.ID)
}

func TestManager_SubmitValidation(t *testing.T) {
	tm := newTestManager(t)
	valid := domain.PendingTrade{
		ID:             "t1",
		Symbol:         "QQQ",
		TradeType:      domain.TradeTypeBuy,
		Quantity:       decimal.NewFromInt(1),
		EstimatedPrice: decimal.NewFromInt(380),
		RiskScore:      3,
	}

	tests := []struct {
		name   string
		mutate func(p *domain.PendingTrade)
	}{
		{"missing symbol", func(p *domain.PendingTrade) { p.Symbol = "" }},
		{"bad trade type", func(p *domain.PendingTrade) { p.TradeType = "hold" }},
		{"risk score above range", func(p *domain.PendingTrade) { p.RiskScore = 11 }},
		{"confidence above range", func(p *domain.PendingTrade) { p.AIConfidence = 101 }},
		{"zero quantity", func(p *domain.PendingTrade) { p.Quantity = decimal.Zero }},
		{"deadline before creation", func(p *domain.PendingTrade) {
			p.CreatedAt = t0
			p.ExpiresAt = t0.Add(-time.Minute)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := valid
			tt.mutate(&trade)
			_, err := tm.Submit(context.Background(), trade)
			assert.True(t, errors.Is(err, domain.ErrInvalidTrade), "got %v", err)
		})
	}

	_, err := tm.Submit(context.Background(), valid)
	require.NoError(t, err)
	_, err = tm.Submit(context.Background(), valid)
	assert.True(t, errors.Is(err, domain.ErrDuplicateTrade))
}

func TestManager_ExpiredTradeNeverListed(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "short", 5, 0, time.Minute)
	tm.seed(t, "long", 5, time.Second, time.Hour)

	pending, err := tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"short", "long"}, ids(pending))

	tm.clock.Advance(time.Minute)

	pending, err = tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, ids(pending))

	got, err := tm.Get(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStateExpired, got.State)
	require.NotNil(t, got.ResolvedAt)
}

func TestManager_ExpiredFilteredEvenWhenStoreFails(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 5, 0, time.Minute)
	tm.clock.Advance(2 * time.Minute)
	tm.store.failWith = errors.New("disk full")

	pending, err := tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestManager_ApproveTwice(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 5, 0, time.Hour)

	require.NoError(t, tm.Approve(context.Background(), "a"))

	err := tm.Approve(context.Background(), "a")
	assert.True(t, errors.Is(err, domain.ErrAlreadyResolved))
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	var terr *domain.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, domain.ApprovalStateApproved, terr.From)

	got, err := tm.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStateApproved, got.State)
}

func TestManager_TerminalStates(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "rejected", 5, 0, time.Hour)
	tm.seed(t, "expired", 5, 0, time.Minute)

	require.NoError(t, tm.Reject(context.Background(), "rejected", "too risky"))
	got, err := tm.Get(context.Background(), "rejected")
	require.NoError(t, err)
	assert.Equal(t, "too risky", got.RejectionReason)

	assert.True(t, errors.Is(tm.Approve(context.Background(), "rejected"), domain.ErrAlreadyResolved))
	assert.True(t, errors.Is(tm.Reject(context.Background(), "rejected", ""), domain.ErrAlreadyResolved))

	tm.clock.Advance(time.Minute)
	err = tm.Approve(context.Background(), "expired")
	assert.True(t, errors.Is(err, domain.ErrExpired))
	// repeated attempts fail the same way
	err = tm.Reject(context.Background(), "expired", "")
	assert.True(t, errors.Is(err, domain.ErrExpired))

	got, err = tm.Get(context.Background(), "expired")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStateExpired, got.State)
}

func TestManager_NotFound(t *testing.T) {
	tm := newTestManager(t)

	assert.True(t, errors.Is(tm.Approve(context.Background(), "missing"), domain.ErrNotFound))
	assert.True(t, errors.Is(tm.Reject(context.Background(), "missing", ""), domain.ErrNotFound))
	_, err := tm.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestManager_Filters(t *testing.T) {
	tm := newTestManager(t)
	scores := []float64{0, 3.9, 4, 6.9, 7, 10}
	for i, s := range scores {
		tm.seed(t, fmt.Sprintf("t%d", i), s, time.Duration(i)*time.Second, time.Hour)
	}

	all, err := tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	high, err := tm.ListPending(context.Background(), domain.FilterHighRisk)
	require.NoError(t, err)
	assert.Equal(t, []string{"t4", "t5"}, ids(high))

	low, err := tm.ListPending(context.Background(), domain.FilterLowRisk)
	require.NoError(t, err)
	assert.Equal(t, []string{"t0", "t1"}, ids(low))
}

func TestManager_ApproveAllWithMidBatchExpiry(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 8, 0, 10*time.Minute)
	tm.seed(t, "b", 9, time.Second, time.Minute)
	tm.seed(t, "c", 7.5, 2*time.Second, 10*time.Minute)
	tm.seed(t, "low", 2, 3*time.Second, 10*time.Minute)

	var once sync.Once
	tm.store.onUpdate = func(string, domain.StateChange) {
		once.Do(func() { tm.clock.Advance(5 * time.Minute) })
	}

	outcomes, err := tm.ApproveAll(context.Background(), domain.FilterHighRisk)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "a", outcomes[0].TradeID)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, domain.ApprovalStateApproved, outcomes[0].State)

	assert.Equal(t, "b", outcomes[1].TradeID)
	assert.True(t, errors.Is(outcomes[1].Err, domain.ErrExpired))
	assert.Equal(t, domain.ApprovalStateExpired, outcomes[1].State)

	assert.Equal(t, "c", outcomes[2].TradeID)
	assert.NoError(t, outcomes[2].Err)

	pending, err := tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"low"}, ids(pending))
}

func TestManager_RejectAllEmptiesQueue(t *testing.T) {
	tm := newTestManager(t)
	for i := 0; i < 20; i++ {
		tm.seed(t, fmt.Sprintf("t%02d", i), float64(i%11), time.Duration(i)*time.Second, time.Hour)
	}
	require.NoError(t, tm.Approve(context.Background(), "t03"))

	outcomes, err := tm.RejectAll(context.Background(), domain.FilterAll, "market closed")
	require.NoError(t, err)
	assert.Len(t, outcomes, 19)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.Equal(t, domain.ApprovalStateRejected, o.State)
	}

	pending, err := tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestManager_BulkCancellationKeepsCommitted(t *testing.T) {
	tm := newTestManager(t)
	for i := 0; i < 5; i++ {
		tm.seed(t, fmt.Sprintf("t%d", i), 8, time.Duration(i)*time.Second, time.Hour)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	tm.store.onUpdate = func(string, domain.StateChange) {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
	}

	outcomes, err := tm.ApproveAll(ctx, domain.FilterAll)
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, outcomes, 2)

	tm.store.onUpdate = nil
	pending, err := tm.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t3", "t4"}, ids(pending))
}

func TestManager_ConcurrentResolutionSingleWinner(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 5, 0, time.Hour)

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes int32
		resolved  int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = tm.Approve(context.Background(), "a")
			} else {
				err = tm.Reject(context.Background(), "a", "no")
			}
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, domain.ErrAlreadyResolved):
				atomic.AddInt32(&resolved, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	assert.EqualValues(t, workers-1, resolved)
	assert.Equal(t, 1, tm.store.updates)
}

func TestManager_SweepRacesApprove(t *testing.T) {
	tm := newTestManager(t)
	for i := 0; i < 20; i++ {
		tm.seed(t, fmt.Sprintf("t%02d", i), 5, 0, time.Minute)
	}
	tm.clock.Advance(time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = tm.Sweep(context.Background())
	}()
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tm.Approve(context.Background(), fmt.Sprintf("t%02d", i))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.True(t, errors.Is(err, domain.ErrExpired))
	}
	all, err := tm.List(context.Background())
	require.NoError(t, err)
	for _, trade := range all {
		assert.Equal(t, domain.ApprovalStateExpired, trade.State)
	}
	// every trade transitioned exactly once
	assert.Equal(t, 20, tm.store.updates)
}

func TestManager_Sweep(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 5, 0, time.Minute)
	tm.seed(t, "b", 5, 0, time.Hour)
	require.NoError(t, tm.Approve(context.Background(), "b"))
	tm.seed(t, "c", 5, 0, time.Hour)

	tm.clock.Advance(2 * time.Minute)

	n, err := tm.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tm.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := tm.store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStateExpired, got.State)
}

func TestManager_StoreFailureLeavesStateUnchanged(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 5, 0, time.Hour)
	tm.store.failWith = errors.New("io error")

	err := tm.Approve(context.Background(), "a")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidTransition))

	tm.store.failWith = nil
	got, err := tm.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatePending, got.State)

	require.NoError(t, tm.Approve(context.Background(), "a"))
}

func TestManager_LoadsFromStore(t *testing.T) {
	store := newMemStore()
	clock := &fakeClock{now: t0}
	existing := domain.PendingTrade{
		ID:        "existing",
		Symbol:    "IWM",
		TradeType: domain.TradeTypeBuy,
		Quantity:  decimal.NewFromInt(1),
		CreatedAt: t0,
		ExpiresAt: t0.Add(time.Hour),
		State:     domain.ApprovalStatePending,
	}
	require.NoError(t, store.Create(context.Background(), existing))

	m, err := NewManager(context.Background(), zap.NewNop(), store, WithClock(clock))
	require.NoError(t, err)

	pending, err := m.ListPending(context.Background(), domain.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"existing"}, ids(pending))

	// created behind the manager's back
	late := existing
	late.ID = "late"
	require.NoError(t, store.Create(context.Background(), late))
	require.NoError(t, m.Approve(context.Background(), "late"))
}

func TestManager_Notifier(t *testing.T) {
	n := &recordingNotifier{}
	tm := newTestManager(t, WithNotifier(n))
	tm.seed(t, "a", 5, 0, time.Hour)
	require.NoError(t, tm.Reject(context.Background(), "a", "stale signal"))

	require.Len(t, n.events, 2)
	assert.Equal(t, domain.ApprovalStatePending, n.events[0].To)
	assert.Equal(t, domain.ApprovalStatePending, n.events[1].From)
	assert.Equal(t, domain.ApprovalStateRejected, n.events[1].To)
	assert.Equal(t, "stale signal", n.events[1].Reason)
}

func TestManager_Run(t *testing.T) {
	tm := newTestManager(t)
	tm.seed(t, "a", 5, 0, time.Minute)
	tm.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tm.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		got, err := tm.store.Get(context.Background(), "a")
		return err == nil && got.State == domain.ApprovalStateExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestTimeRemaining(t *testing.T) {
	trade := domain.PendingTrade{ExpiresAt: t0.Add(90 * time.Second)}

	d, expired := trade.TimeRemaining(t0)
	assert.False(t, expired)
	assert.Equal(t, 90*time.Second, d)

	d, expired = trade.TimeRemaining(t0.Add(90 * time.Second))
	assert.True(t, expired)
	assert.Zero(t, d)

	d, expired = trade.TimeRemaining(t0.Add(time.Hour))
	assert.True(t, expired)
	assert.Zero(t, d)
}
