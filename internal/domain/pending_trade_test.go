package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{"", FilterAll, false},
		{"all", FilterAll, false},
		{"highRisk", FilterHighRisk, false},
		{"high_risk", FilterHighRisk, false},
		{" LOW ", FilterLowRisk, false},
		{"medium", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		score float64
		high  bool
		low   bool
	}{
		{0, false, true},
		{3.99, false, true},
		{4, false, false},
		{6.99, false, false},
		{7, true, false},
		{10, true, false},
	}

	for _, tt := range tests {
		trade := PendingTrade{RiskScore: tt.score}
		assert.True(t, FilterAll.Matches(trade))
		assert.Equal(t, tt.high, FilterHighRisk.Matches(trade), "score %v", tt.score)
		assert.Equal(t, tt.low, FilterLowRisk.Matches(trade), "score %v", tt.score)
	}
}

func TestPendingTrade_Apply(t *testing.T) {
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	trade := PendingTrade{ID: "a", State: ApprovalStatePending}

	rejected := trade.Apply(StateChange{State: ApprovalStateRejected, At: at, Reason: "late"})
	assert.Equal(t, ApprovalStateRejected, rejected.State)
	assert.Equal(t, "late", rejected.RejectionReason)
	require.NotNil(t, rejected.ResolvedAt)
	assert.Equal(t, at, *rejected.ResolvedAt)

	// original copy untouched
	assert.Equal(t, ApprovalStatePending, trade.State)
	assert.Nil(t, trade.ResolvedAt)

	approved := trade.Apply(StateChange{State: ApprovalStateApproved, At: at, Reason: "ignored"})
	assert.Empty(t, approved.RejectionReason)
}

func TestApprovalState(t *testing.T) {
	assert.False(t, ApprovalStatePending.IsTerminal())
	assert.True(t, ApprovalStateApproved.IsTerminal())
	assert.True(t, ApprovalStateRejected.IsTerminal())
	assert.True(t, ApprovalStateExpired.IsTerminal())
	assert.False(t, ApprovalState("cancelled").IsValid())
}
