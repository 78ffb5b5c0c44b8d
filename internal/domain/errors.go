package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidSnapshot malformed account or position input.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrNotFound unknown trade id.
	ErrNotFound = errors.New("trade not found")
	// ErrAlreadyResolved transition attempted on an approved or rejected trade.
	ErrAlreadyResolved = errors.New("trade already resolved")
	// ErrExpired transition attempted after the trade deadline.
	ErrExpired = errors.New("trade expired")
	// ErrInvalidTransition any other illegal state change.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrDuplicateTrade trade id is already known to the store.
	ErrDuplicateTrade = errors.New("trade already exists")
	// ErrInvalidTrade submitted trade failed validation.
	ErrInvalidTrade = errors.New("invalid trade")
)

// TransitionError describes a refused state change.
// It unwraps to its Kind and also matches ErrInvalidTransition.
type TransitionError struct {
	TradeID string
	From    ApprovalState
	To      ApprovalState
	Kind    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("trade %s: %s -> %s: %v", e.TradeID, e.From, e.To, e.Kind)
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

// Is reports whether target is ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewTransitionError builds a TransitionError, falling back to ErrInvalidTransition when kind is nil.
func NewTransitionError(id string, from, to ApprovalState, kind error) *TransitionError {
	if kind == nil {
		kind = ErrInvalidTransition
	}
	return &TransitionError{TradeID: id, From: from, To: to, Kind: kind}
}
