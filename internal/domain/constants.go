package domain

import "time"

// Withdrawal statuses. Lowercase on the wire and in the database.
const (
	StatusPending             = "pending"
	StatusPendingConfirmation = "pending_confirmation"
	StatusUnderReview         = "under_review"
	StatusApproved            = "approved"
	StatusProcessing          = "processing"
	StatusCompleted           = "completed"
	StatusRejected            = "rejected"
)

// Withdrawal methods.
const (
	MethodBankTransfer = "bank_transfer"
	MethodCrypto       = "crypto"
	MethodWallet       = "wallet"
)

const (
	// MinWithdrawalMicros is the smallest accepted withdrawal amount ($10).
	MinWithdrawalMicros int64 = 10_000_000

	// Default per-user limits applied when no limit row exists yet.
	DefaultDailyLimitMicros   int64 = 5_000_000_000  // $5,000
	DefaultMonthlyLimitMicros int64 = 50_000_000_000 // $50,000

	// ConfirmationTTL is how long an issued confirmation token stays valid.
	ConfirmationTTL = 30 * time.Minute
)

// IsTerminalStatus reports whether no further transition is permitted.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusRejected
}

// ValidStatus reports whether the status is one of the lifecycle states.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusPendingConfirmation, StatusUnderReview,
		StatusApproved, StatusProcessing, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// ValidMethod reports whether the withdrawal method is supported.
func ValidMethod(method string) bool {
	switch method {
	case MethodBankTransfer, MethodCrypto, MethodWallet:
		return true
	}
	return false
}
