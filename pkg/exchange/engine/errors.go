package engine

import "errors"

// Failure taxonomy shared by the trading core and its API surface. Callers
// classify with errors.Is; everything user-facing is detected before any
// mutation of the book or the ledger.
var (
	// ErrNotFound: participant, order, instrument or order book absent.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientBalance: pre-match validation or withdraw shortfall.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidState: operation not allowed for the order's current status.
	ErrInvalidState = errors.New("invalid order state")

	// ErrInvariant marks internal corruption (e.g. a negative resting
	// quantity). It never surfaces from a correct pass.
	ErrInvariant = errors.New("invariant violation")
)
