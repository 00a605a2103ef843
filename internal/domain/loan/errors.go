package loan

import "errors"

var (
	ErrNotFound = errors.New("loan not found")

	// Input validation.
	ErrInvalidAmount       = errors.New("invalid loan amount")
	ErrInvalidInterestRate = errors.New("invalid interest rate")
	ErrInvalidDuration     = errors.New("invalid loan duration")
	ErrInvalidExpiry       = errors.New("expiry must be in the future")
	ErrInvalidProtocolFee  = errors.New("protocol fee exceeds maximum")

	// Authorization.
	ErrNotAuthorized = errors.New("caller not authorized")
	ErrNotDebtor     = errors.New("caller is not the debtor")

	// State machine.
	ErrLoanNotPending    = errors.New("loan is not pending")
	ErrLoanNotActive     = errors.New("loan is not active")
	ErrInvalidLoanStatus = errors.New("invalid loan status for operation")
	ErrLoanExpired       = errors.New("loan request expired")

	// Payment bounds.
	ErrZeroPayment          = errors.New("payment must be positive")
	ErrPaymentTooLarge      = errors.New("payment exceeds amount due")
	ErrPaymentExceedsBuffer = errors.New("payment exceeds payoff buffer")
)
