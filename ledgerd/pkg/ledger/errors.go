package ledger

import "errors"

// Ledger failures are non-retryable as-is: callers must re-fetch state
// (nonce, price) before retrying, or escalate for authority failures.
var (
	ErrInvalidTier         = errors.New("tier id outside configured range")
	ErrRegistryExists      = errors.New("bounty registry already initialized for tier")
	ErrRegistryNotFound    = errors.New("bounty registry not found")
	ErrInsufficientPayment = errors.New("amount below current entry price")
	ErrInsufficientFunds   = errors.New("payer balance below amount")
	ErrDuplicateEntry      = errors.New("entry already recorded for (tier, payer, nonce)")
	ErrUnauthorized        = errors.New("not authorized by settlement authority")
	ErrStaleDecision       = errors.New("decision does not match current registry state")
	ErrEmptyJackpot        = errors.New("jackpot balance is zero")
	ErrRecoveryTooEarly    = errors.New("recovery window has not elapsed")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrAccountNotFound     = errors.New("account not found")
)
