package models

import (
	"time"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Account struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Currency      string    `json:"currency"`
	BalanceMicros int64     `json:"balance_micros"`
	CreatedAt     time.Time `json:"created_at"`
}

// Withdrawal is one row of the withdrawal ledger. Identity and amounts are
// immutable after creation; only the review/confirmation fields mutate, and
// only through guarded status transitions.
type Withdrawal struct {
	ID           uuid.UUID          `json:"id"`
	UserID       uuid.UUID          `json:"user_id"`
	AmountMicros int64              `json:"amount_micros"`
	Currency     string             `json:"currency"`
	Method       string             `json:"method"`
	Destination  domain.Destination `json:"destination"`
	FeeMicros    int64              `json:"fee_micros"`
	NetMicros    int64              `json:"net_micros"`
	Status       string             `json:"status"`

	AdminNotes      *string    `json:"admin_notes,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ReviewedBy      *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	IsConfirmed           bool       `json:"is_confirmed"`
	ConfirmationExpiresAt *time.Time `json:"confirmation_expires_at,omitempty"`
	TransactionHash       *string    `json:"transaction_hash,omitempty"`

	RequestedAt time.Time `json:"requested_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WithdrawalLimits is the per-user limit row as exposed to callers.
type WithdrawalLimits struct {
	UserID             uuid.UUID `json:"user_id"`
	DailyLimitMicros   int64     `json:"daily_limit_micros"`
	MonthlyLimitMicros int64     `json:"monthly_limit_micros"`
	DailyUsedMicros    int64     `json:"daily_used_micros"`
	MonthlyUsedMicros  int64     `json:"monthly_used_micros"`
	LastResetAt        time.Time `json:"last_reset_at"`
}
