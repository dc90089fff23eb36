package models

import "errors"

// Error taxonomy for the withdrawal engine. Services wrap these with
// fmt.Errorf("%w: ...") to attach shortfall/remaining detail; handlers
// match with errors.Is and map each kind to an HTTP problem response.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrDailyLimitExceeded    = errors.New("daily withdrawal limit exceeded")
	ErrMonthlyLimitExceeded  = errors.New("monthly withdrawal limit exceeded")
	ErrFeeExceedsAmount      = errors.New("fee exceeds withdrawal amount")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired confirmation token")
	ErrInvalidStateTransition = errors.New("invalid withdrawal state transition")
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
)
