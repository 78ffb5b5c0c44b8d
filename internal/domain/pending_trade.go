package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeType side of a proposed order.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// ApprovalState lifecycle state of a proposed trade.
type ApprovalState string

const (
	ApprovalStatePending  ApprovalState = "pending"
	ApprovalStateApproved ApprovalState = "approved"
	ApprovalStateRejected ApprovalState = "rejected"
	ApprovalStateExpired  ApprovalState = "expired"
)

// IsValid checks if the ApprovalState value is valid.
func (s ApprovalState) IsValid() bool {
	switch s {
	case ApprovalStatePending, ApprovalStateApproved, ApprovalStateRejected, ApprovalStateExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s ApprovalState) IsTerminal() bool {
	return s == ApprovalStateApproved || s == ApprovalStateRejected || s == ApprovalStateExpired
}

// Risk score boundaries used by the queue filters.
const (
	HighRiskScore = 7.0
	LowRiskScore  = 4.0
)

// PendingTrade an automated trade proposal waiting for a human decision.
type PendingTrade struct {
	ID              string          `json:"id" validate:"required"`
	ExecutionID     string          `json:"execution_id"`
	Symbol          string          `json:"symbol" validate:"required"`
	TradeType       TradeType       `json:"trade_type" validate:"required,oneof=buy sell"`
	Quantity        decimal.Decimal `json:"quantity"`
	EstimatedPrice  decimal.Decimal `json:"estimated_price"`
	EstimatedValue  decimal.Decimal `json:"estimated_value"`
	Reason          string          `json:"reason"`
	RiskScore       float64         `json:"risk_score" validate:"gte=0,lte=10"`
	CreatedAt       time.Time       `json:"created_at" validate:"required"`
	ExpiresAt       time.Time       `json:"expires_at" validate:"required,gtfield=CreatedAt"`
	AIConfidence    float64         `json:"ai_confidence" validate:"gte=0,lte=100"`
	SupportingData  map[string]any  `json:"supporting_data,omitempty"`
	State           ApprovalState   `json:"state"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

// IsExpiredAt reports whether the deadline has passed at now.
func (t PendingTrade) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TimeRemaining returns the time left before expiry. The duration is zero once expired.
func (t PendingTrade) TimeRemaining(now time.Time) (time.Duration, bool) {
	if t.IsExpiredAt(now) {
		return 0, true
	}
	return t.ExpiresAt.Sub(now), false
}

// Apply returns a copy of the trade with the state change applied.
func (t PendingTrade) Apply(change StateChange) PendingTrade {
	at := change.At
	t.State = change.State
	t.ResolvedAt = &at
	if change.State == ApprovalStateRejected {
		t.RejectionReason = change.Reason
	}
	return t
}

// StateChange a committed lifecycle transition.
type StateChange struct {
	State  ApprovalState `json:"state"`
	At     time.Time     `json:"at"`
	Reason string        `json:"reason,omitempty"`
}

// Filter selects pending trades by risk score.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterHighRisk Filter = "highRisk"
	FilterLowRisk  Filter = "lowRisk"
)

// ParseFilter parses a filter name. Empty input means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "highrisk", "high_risk", "high":
		return FilterHighRisk, nil
	case "lowrisk", "low_risk", "low":
		return FilterLowRisk, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Matches reports whether the trade's risk score falls inside the filter.
// Scores in [LowRiskScore, HighRiskScore) match only FilterAll.
func (f Filter) Matches(t PendingTrade) bool {
	switch f {
	case FilterHighRisk:
		return t.RiskScore >= HighRiskScore
	case FilterLowRisk:
		return t.RiskScore < LowRiskScore
	default:
		return true
	}
}

// ApprovalEvent is published whenever a trade enters a new state.
type ApprovalEvent struct {
	TradeID string        `json:"trade_id"`
	Symbol  string        `json:"symbol"`
	From    ApprovalState `json:"from,omitempty"`
	To      ApprovalState `json:"to"`
	Reason  string        `json:"reason,omitempty"`
	At      time.Time     `json:"at"`
}
