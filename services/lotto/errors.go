package lotto

import "errors"

// Validation errors: reported to the caller, never retried, no state change.
var (
	ErrInvalidCommission = errors.New("commission percentages must sum to less than 100")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNoFunds           = errors.New("no funds provided")
	ErrInvalidPayment    = errors.New("invalid payment")
	ErrInvalidRandomness = errors.New("invalid randomness")
	ErrMalformedCallback = errors.New("malformed callback job id")
)

// Authorization errors: reported, no state change, logged as
// security-relevant.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnauthorizedCallback = errors.New("unauthorized randomness callback")
)

// Domain-state errors: reported; state is left unchanged so the exact same
// call may be safely retried.
var (
	ErrRoundNotFound  = errors.New("round not found")
	ErrRoundClosed    = errors.New("round deposit stage ended")
	ErrAlreadySettled = errors.New("round already settled")
	ErrNoParticipants = errors.New("no participants")
	ErrConfigExists   = errors.New("configuration already initialized")
	ErrConfigNotFound = errors.New("configuration not initialized")
)
