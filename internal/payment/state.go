// Package payment drives one payer-side payment attempt from a scanned code
// to a succeeded or failed execution.
package payment

import (
	"errors"
	"fmt"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/models"
)

// State is the position of a Session in the payment lifecycle.
type State int

const (
	Idle State = iota
	Initiating
	AwaitingConfirmation
	Executing
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initiating:
		return "initiating"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Executing:
		return "executing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further calls can be made in s.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

func (s State) busy() bool { return s == Initiating || s == Executing }

var (
	ErrNoScan        = fmt.Errorf("%w: no code scanned", api.InvalidRequest)
	ErrInvalidAmount = fmt.Errorf("%w: amount must be a number greater than zero", api.InvalidRequest)
	ErrEmptyPIN      = fmt.Errorf("%w: PIN is required", api.InvalidRequest)

	// ErrBusy is returned when a call for this attempt is already in flight.
	ErrBusy = errors.New("payment: request already in progress")
	// ErrWrongState is returned for an action the current state does not allow.
	ErrWrongState = errors.New("payment: action not allowed in current state")
	// ErrCancelled is returned to a caller whose response arrived after the
	// attempt was cancelled. The response has been discarded.
	ErrCancelled = errors.New("payment: attempt cancelled")
)

// Snapshot is an immutable view of a Session.
type Snapshot struct {
	State          State
	Code           string
	Amount         float64
	IdempotencyKey string
	Payment        *models.PaymentInitResult
	Result         *models.ExecutionResult
	Err            error
}

// MerchantName is the name of the payee once the payment has been initiated.
func (s Snapshot) MerchantName() string {
	if s.Payment == nil {
		return ""
	}
	return s.Payment.Merchant.Name
}

// Retryable reports whether the last failure can be retried within the same
// attempt: initiate from Idle, or execute from AwaitingConfirmation.
func (s Snapshot) Retryable() bool {
	if s.Err == nil {
		return false
	}
	switch s.State {
	case Idle:
		return s.Code != ""
	case AwaitingConfirmation:
		return true
	}
	return false
}
