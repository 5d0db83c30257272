package domain

import (
	"errors"
	"fmt"
)

// Settlement errors
var (
	// ErrNoReservationsFound means no reservation id could be resolved from the request or gateway metadata
	ErrNoReservationsFound = errors.New("no reservations found for transaction")
	// ErrInventoryExceeded means the tier cannot absorb the reservation's quantity
	ErrInventoryExceeded = errors.New("ticket inventory exceeded")
	// ErrAlreadySettled is not a failure: the reference or reservation was settled before
	ErrAlreadySettled = errors.New("already settled")
	// ErrSignatureMismatch means a webhook signature or token did not verify
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	// ErrReservationNotFound means a candidate reservation does not exist
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationNotSettleable means the reservation was cancelled
	ErrReservationNotSettleable = errors.New("reservation cannot be settled")
	// ErrAmountMismatch means the gateway charged less than owed, or in another currency
	ErrAmountMismatch = errors.New("payment amount does not match reservations")
	// ErrTicketsNotFound means no tickets exist for a reference
	ErrTicketsNotFound = errors.New("tickets not found")
)

// Payout errors
var (
	ErrPayoutNotFound          = errors.New("payout not found")
	ErrPayoutInProgress        = errors.New("a payout is already pending or processing for this event")
	ErrInvalidPayoutTransition = errors.New("invalid payout status transition")
	ErrInvalidPayoutAmount     = errors.New("payout amount must be positive")
	ErrPayoutCurrencyRequired  = errors.New("currency is required when the event has no single revenue currency")
	ErrInsufficientBalance     = errors.New("payout exceeds available balance")
)

// Lookup and authorization errors
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrTierNotFound       = errors.New("ticket tier not found")
	ErrDiscountNotFound   = errors.New("discount not found")
	ErrAddonNotFound      = errors.New("addon not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidFeeSettings = errors.New("fee percentages must be within [0, 100)")
)

// VerificationError means the gateway could not be reached or answered
// ambiguously. It is retryable.
type VerificationError struct {
	Reference string
	Err       error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("gateway verification unavailable for %s: %v", e.Reference, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// VerificationFailed means the gateway confirmed the charge did not succeed.
// It is terminal.
type VerificationFailed struct {
	Reference string
	Status    string
}

func (e *VerificationFailed) Error() string {
	return fmt.Sprintf("payment %s not successful: gateway status %q", e.Reference, e.Status)
}

// PersistenceError wraps a database write failure. Re-invoking settlement is
// safe, so it is retryable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err unless it is nil or already a domain error
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether the caller should retry (webhooks answer 5xx)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ve *VerificationError
	if errors.As(err, &ve) {
		return true
	}
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ErrorCode maps a settlement error to a stable machine-readable code
func ErrorCode(err error) string {
	var ve *VerificationError
	var vf *VerificationFailed
	var pe *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "VERIFICATION_UNAVAILABLE"
	case errors.As(err, &vf):
		return "PAYMENT_NOT_SUCCESSFUL"
	case errors.As(err, &pe):
		return "PERSISTENCE_ERROR"
	case errors.Is(err, ErrNoReservationsFound):
		return "NO_RESERVATIONS"
	case errors.Is(err, ErrInventoryExceeded):
		return "INVENTORY_EXCEEDED"
	case errors.Is(err, ErrAlreadySettled):
		return "ALREADY_SETTLED"
	case errors.Is(err, ErrSignatureMismatch):
		return "SIGNATURE_MISMATCH"
	case errors.Is(err, ErrReservationNotFound):
		return "RESERVATION_NOT_FOUND"
	case errors.Is(err, ErrReservationNotSettleable):
		return "RESERVATION_NOT_SETTLEABLE"
	case errors.Is(err, ErrAmountMismatch):
		return "AMOUNT_MISMATCH"
	case errors.Is(err, ErrTicketsNotFound):
		return "TICKETS_NOT_FOUND"
	case errors.Is(err, ErrPayoutNotFound):
		return "PAYOUT_NOT_FOUND"
	case errors.Is(err, ErrPayoutInProgress):
		return "PAYOUT_IN_PROGRESS"
	case errors.Is(err, ErrInvalidPayoutTransition):
		return "INVALID_PAYOUT_TRANSITION"
	case errors.Is(err, ErrInvalidPayoutAmount):
		return "INVALID_PAYOUT_AMOUNT"
	case errors.Is(err, ErrPayoutCurrencyRequired):
		return "CURRENCY_REQUIRED"
	case errors.Is(err, ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, ErrEventNotFound):
		return "EVENT_NOT_FOUND"
	case errors.Is(err, ErrTierNotFound):
		return "TIER_NOT_FOUND"
	case errors.Is(err, ErrDiscountNotFound):
		return "DISCOUNT_NOT_FOUND"
	case errors.Is(err, ErrAddonNotFound):
		return "ADDON_NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidFeeSettings):
		return "INVALID_FEE_SETTINGS"
	}
	return "INTERNAL_ERROR"
}
