package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/notify"
	"github.com/ayo6706/withdrawal-engine/internal/observability"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

// WithdrawalService owns the withdrawal lifecycle: fee quoting, limit
// enforcement, funds reservation, confirmation, cancellation, and the
// expiry sweep. Every money movement happens inside one transaction with
// the matching ledger row change.
type WithdrawalService struct {
	store           QueryStore
	notifier        notify.Notifier
	audit           *AuditService
	confirmationTTL time.Duration
}

func NewWithdrawalService(store QueryStore, notifier notify.Notifier) *WithdrawalService {
	return &WithdrawalService{
		store:           store,
		notifier:        notifier,
		audit:           NewAuditService(store),
		confirmationTTL: domain.ConfirmationTTL,
	}
}

// WithConfirmationTTL overrides the confirmation window for issued tokens.
func (s *WithdrawalService) WithConfirmationTTL(ttl time.Duration) *WithdrawalService {
	if ttl > 0 {
		s.confirmationTTL = ttl
	}
	return s
}

// RequestWithdrawalRequest holds the parameters for creating a withdrawal.
type RequestWithdrawalRequest struct {
	UserID       uuid.UUID
	AmountMicros int64
	Currency     string
	Method       string
	Destination  domain.Destination
}

// RequestWithdrawalResponse is returned to the caller after a request is
// accepted and funds are reserved.
type RequestWithdrawalResponse struct {
	WithdrawalID      uuid.UUID `json:"withdrawal_id"`
	Status            string    `json:"status"`
	FeeMicros         int64     `json:"fee_micros"`
	NetMicros         int64     `json:"net_micros"`
	ConfirmationToken string    `json:"confirmation_token"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// FeeQuote is the result of a fee calculation.
type FeeQuote struct {
	FeeMicros int64 `json:"fee_micros"`
	NetMicros int64 `json:"net_micros"`
}

// QuoteFees computes the fee and net amount for a prospective withdrawal.
// Pure; no reservation happens here.
func (s *WithdrawalService) QuoteFees(amountMicros int64, method string) (FeeQuote, error) {
	fee, err := domain.QuoteFee(amountMicros, method)
	if err != nil {
		return FeeQuote{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	net := amountMicros - fee
	if net <= 0 {
		return FeeQuote{}, fmt.Errorf("%w: fee %d on amount %d", models.ErrFeeExceedsAmount, fee, amountMicros)
	}
	return FeeQuote{FeeMicros: fee, NetMicros: net}, nil
}

// RequestWithdrawal validates the request, then atomically reserves funds,
// bumps limit usage, and creates the ledger row with a confirmation token.
// The limit check, balance check, and row creation share one transaction
// under row locks on the account and limit records, so two concurrent
// requests cannot both pass checks against the same stale snapshot.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, req RequestWithdrawalRequest) (*RequestWithdrawalResponse, error) {
	if req.AmountMicros < domain.MinWithdrawalMicros {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", models.ErrValidation, req.AmountMicros, domain.MinWithdrawalMicros)
	}
	if !domain.ValidMethod(req.Method) {
		return nil, fmt.Errorf("%w: unknown method %q", models.ErrValidation, req.Method)
	}
	if err := req.Destination.Validate(req.Method); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	quote, err := s.QuoteFees(req.AmountMicros, req.Method)
	if err != nil {
		return nil, err
	}

	token, err := newConfirmationToken()
	if err != nil {
		return nil, err
	}

	destJSON, err := domain.MarshalDestination(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("encode destination: %w", err)
	}

	withdrawalID := uuid.New()
	now := time.Now().UTC()
	expiresAt := now.Add(s.confirmationTTL)

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		account, err := qtx.GetAccountForUpdate(ctx, repository.ToPgUUID(req.UserID), req.Currency)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("account: %w", models.ErrNotFound)
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if account.BalanceMicros < req.AmountMicros {
			return fmt.Errorf("%w: balance %d, requested %d", models.ErrInsufficientBalance, account.BalanceMicros, req.AmountMicros)
		}

		if err := qtx.EnsureLimits(ctx, repository.EnsureLimitsParams{
			UserID:             repository.ToPgUUID(req.UserID),
			DailyLimitMicros:   domain.DefaultDailyLimitMicros,
			MonthlyLimitMicros: domain.DefaultMonthlyLimitMicros,
			LastResetAt:        pgtype.Timestamptz{Time: now, Valid: true},
		}); err != nil {
			return fmt.Errorf("ensure limits: %w", err)
		}

		limitsRow, err := qtx.GetLimitsForUpdate(ctx, repository.ToPgUUID(req.UserID))
		if err != nil {
			return fmt.Errorf("lock limits: %w", err)
		}

		rec := domain.ResetIfStale(domain.LimitRecord{
			DailyLimitMicros:   limitsRow.DailyLimitMicros,
			MonthlyLimitMicros: limitsRow.MonthlyLimitMicros,
			DailyUsedMicros:    limitsRow.DailyUsedMicros,
			MonthlyUsedMicros:  limitsRow.MonthlyUsedMicros,
			LastResetAt:        limitsRow.LastResetAt.Time,
		}, now)

		if req.AmountMicros > rec.DailyRemaining() {
			observability.IncrementLimitRejection("daily")
			return fmt.Errorf("%w: remaining %d, requested %d", models.ErrDailyLimitExceeded, rec.DailyRemaining(), req.AmountMicros)
		}
		if req.AmountMicros > rec.MonthlyRemaining() {
			observability.IncrementLimitRejection("monthly")
			return fmt.Errorf("%w: remaining %d, requested %d", models.ErrMonthlyLimitExceeded, rec.MonthlyRemaining(), req.AmountMicros)
		}

		rows, err := qtx.ReserveAccountFunds(ctx, repository.ReserveAccountFundsParams{
			AmountMicros: req.AmountMicros,
			ID:           account.ID,
		})
		if err != nil {
			return fmt.Errorf("reserve funds: %w", err)
		}
		if rows != 1 {
			// The guarded UPDATE saw a balance below the amount.
			return fmt.Errorf("%w: reservation guard", models.ErrInsufficientBalance)
		}

		rows, err = qtx.UpdateLimitUsage(ctx, repository.UpdateLimitUsageParams{
			DailyUsedMicros:   rec.DailyUsedMicros + req.AmountMicros,
			MonthlyUsedMicros: rec.MonthlyUsedMicros + req.AmountMicros,
			LastResetAt:       pgtype.Timestamptz{Time: rec.LastResetAt, Valid: true},
			UserID:            repository.ToPgUUID(req.UserID),
		})
		if err != nil {
			return fmt.Errorf("update limit usage: %w", err)
		}
		if err := requireExactlyOne(rows, "update limit usage"); err != nil {
			return err
		}

		if _, err := qtx.InsertWithdrawal(ctx, repository.InsertWithdrawalParams{
			ID:                    repository.ToPgUUID(withdrawalID),
			UserID:                repository.ToPgUUID(req.UserID),
			AmountMicros:          req.AmountMicros,
			Currency:              req.Currency,
			Method:                req.Method,
			Destination:           destJSON,
			FeeMicros:             quote.FeeMicros,
			NetMicros:             quote.NetMicros,
			Status:                domain.StatusPendingConfirmation,
			ConfirmationToken:     token,
			ConfirmationExpiresAt: pgtype.Timestamptz{Time: expiresAt, Valid: true},
		}); err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}

		metadata, err := json.Marshal(map[string]any{
			"amount_micros": req.AmountMicros,
			"method":        req.Method,
			"fee_micros":    quote.FeeMicros,
		})
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		if err := s.audit.Write(ctx, qtx, "withdrawal", withdrawalID, &req.UserID, "created", "", domain.StatusPendingConfirmation, metadata); err != nil {
			return err
		}

		observability.IncrementWithdrawalTransition(domain.StatusPendingConfirmation)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendNotification(ctx, req.UserID, "withdrawal.requested", map[string]any{
		"withdrawal_id": withdrawalID.String(),
		"amount_micros": req.AmountMicros,
		"expires_at":    expiresAt,
	})

	return &RequestWithdrawalResponse{
		WithdrawalID:      withdrawalID,
		Status:            domain.StatusPendingConfirmation,
		FeeMicros:         quote.FeeMicros,
		NetMicros:         quote.NetMicros,
		ConfirmationToken: token,
		ExpiresAt:         expiresAt,
	}, nil
}

// ConfirmWithdrawalResponse reports the state after a successful token
// validation.
type ConfirmWithdrawalResponse struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Status       string    `json:"status"`
}

// ConfirmWithdrawal validates a confirmation token and advances the request
// to admin review. Tokens are single use: the validation and the token burn
// happen under the same row lock, so a replay sees no matching row.
func (s *WithdrawalService) ConfirmWithdrawal(ctx context.Context, userID uuid.UUID, token string) (*ConfirmWithdrawalResponse, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", models.ErrInvalidOrExpiredToken)
	}

	var withdrawalID uuid.UUID
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := qtx.GetWithdrawalByTokenForUpdate(ctx, repository.ToPgUUID(userID), token)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("resolve token: %w", err)
		}
		withdrawalID = repository.FromPgUUID(row.ID)

		if row.IsConfirmed {
			return models.ErrInvalidOrExpiredToken
		}
		if !row.ConfirmationExpiresAt.Valid || time.Now().After(row.ConfirmationExpiresAt.Time) {
			return models.ErrInvalidOrExpiredToken
		}
		status := normalizeStatus(row.Status)
		if status != domain.StatusPending && status != domain.StatusPendingConfirmation {
			return models.ErrInvalidOrExpiredToken
		}

		rows, err := qtx.MarkWithdrawalConfirmed(ctx, row.ID)
		if err != nil {
			return fmt.Errorf("mark confirmed: %w", err)
		}
		if err := requireExactlyOne(rows, "mark withdrawal confirmed"); err != nil {
			return err
		}

		return transitionWithdrawalState(ctx, qtx, s.audit, withdrawalID, domain.StatusUnderReview, &userID, "confirmed", nil)
	})
	if err != nil {
		return nil, err
	}

	s.sendNotification(ctx, userID, "withdrawal.confirmed", map[string]any{
		"withdrawal_id": withdrawalID.String(),
	})

	return &ConfirmWithdrawalResponse{
		WithdrawalID: withdrawalID,
		Status:       domain.StatusUnderReview,
	}, nil
}

// CancelWithdrawalResponse reports the refund applied by a cancellation.
type CancelWithdrawalResponse struct {
	WithdrawalID   uuid.UUID `json:"withdrawal_id"`
	Status         string    `json:"status"`
	RefundedMicros int64     `json:"refunded_micros"`
}

// CancelWithdrawal lets the request owner abandon an unconfirmed request,
// refunding the reservation. Only one refund may ever be applied: the
// status guard runs under the row lock, so a repeated cancel fails with
// ErrInvalidStateTransition instead of crediting twice.
func (s *WithdrawalService) CancelWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*CancelWithdrawalResponse, error) {
	var refunded int64
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := qtx.GetWithdrawalForUpdate(ctx, repository.ToPgUUID(withdrawalID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("withdrawal: %w", models.ErrNotFound)
			}
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		if repository.FromPgUUID(row.UserID) != userID {
			return fmt.Errorf("%w: not the request owner", models.ErrUnauthorized)
		}
		status := normalizeStatus(row.Status)
		if status != domain.StatusPending && status != domain.StatusPendingConfirmation {
			return fmt.Errorf("%w: cancel from %s", models.ErrInvalidStateTransition, row.Status)
		}

		if err := s.refundReservation(ctx, qtx, row, "user_cancel"); err != nil {
			return err
		}
		refunded = row.AmountMicros

		reason := "cancelled by user"
		if _, err := qtx.SetWithdrawalReview(ctx, repository.SetWithdrawalReviewParams{
			RejectionReason: &reason,
			ID:              row.ID,
		}); err != nil {
			return fmt.Errorf("record cancellation: %w", err)
		}

		return transitionWithdrawalState(ctx, qtx, s.audit, withdrawalID, domain.StatusRejected, &userID, "user_cancel", nil)
	})
	if err != nil {
		return nil, err
	}

	s.sendNotification(ctx, userID, "withdrawal.cancelled", map[string]any{
		"withdrawal_id":   withdrawalID.String(),
		"refunded_micros": refunded,
	})

	return &CancelWithdrawalResponse{
		WithdrawalID:   withdrawalID,
		Status:         domain.StatusRejected,
		RefundedMicros: refunded,
	}, nil
}

// GetWithdrawal returns one request, restricted to its owner. Non-owners get
// ErrNotFound rather than ErrUnauthorized so the row's existence does not leak.
func (s *WithdrawalService) GetWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	row, err := s.store.Queries().GetWithdrawal(ctx, repository.ToPgUUID(withdrawalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	if repository.FromPgUUID(row.UserID) != userID {
		return nil, fmt.Errorf("withdrawal: %w", models.ErrNotFound)
	}
	return withdrawalFromRow(row), nil
}

// GetWithdrawalAny returns one request without the owner restriction. The
// handler gates this behind the admin role.
func (s *WithdrawalService) GetWithdrawalAny(ctx context.Context, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	row, err := s.store.Queries().GetWithdrawal(ctx, repository.ToPgUUID(withdrawalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return withdrawalFromRow(row), nil
}

// ListWithdrawals returns the owner's request history, newest first.
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]*models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.store.Queries().ListWithdrawalsByUser(ctx, repository.ListWithdrawalsByUserParams{
		UserID: repository.ToPgUUID(userID),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	out := make([]*models.Withdrawal, 0, len(rows))
	for _, row := range rows {
		out = append(out, withdrawalFromRow(row))
	}
	return out, nil
}

// GetLimits returns the user's limit record with the reset policy applied,
// so callers always see fresh windows. Read only; the stored row is
// rewritten lazily on the next reservation.
func (s *WithdrawalService) GetLimits(ctx context.Context, userID uuid.UUID) (*models.WithdrawalLimits, error) {
	now := time.Now().UTC()
	row, err := s.store.Queries().GetLimits(ctx, repository.ToPgUUID(userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			rec := domain.DefaultLimits(now)
			return &models.WithdrawalLimits{
				UserID:             userID,
				DailyLimitMicros:   rec.DailyLimitMicros,
				MonthlyLimitMicros: rec.MonthlyLimitMicros,
				LastResetAt:        rec.LastResetAt,
			}, nil
		}
		return nil, fmt.Errorf("get limits: %w", err)
	}

	rec := domain.ResetIfStale(domain.LimitRecord{
		DailyLimitMicros:   row.DailyLimitMicros,
		MonthlyLimitMicros: row.MonthlyLimitMicros,
		DailyUsedMicros:    row.DailyUsedMicros,
		MonthlyUsedMicros:  row.MonthlyUsedMicros,
		LastResetAt:        row.LastResetAt.Time,
	}, now)

	return &models.WithdrawalLimits{
		UserID:             userID,
		DailyLimitMicros:   rec.DailyLimitMicros,
		MonthlyLimitMicros: rec.MonthlyLimitMicros,
		DailyUsedMicros:    rec.DailyUsedMicros,
		MonthlyUsedMicros:  rec.MonthlyUsedMicros,
		LastResetAt:        rec.LastResetAt,
	}, nil
}

// SweepExpired refunds reservations whose confirmation window lapsed without
// a confirmation. Rows are claimed with SKIP LOCKED so concurrent sweepers
// never double-refund. Returns the number of requests swept.
func (s *WithdrawalService) SweepExpired(ctx context.Context, batchSize int32) (int, error) {
	swept := 0
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.GetExpiredUnconfirmed(ctx, repository.GetExpiredUnconfirmedParams{
			Now:   pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
			Limit: batchSize,
		})
		if err != nil {
			return fmt.Errorf("load expired withdrawals: %w", err)
		}

		for _, row := range rows {
			id := repository.FromPgUUID(row.ID)
			if err := s.refundReservation(ctx, qtx, row, "confirmation_expired"); err != nil {
				return err
			}
			reason := "confirmation window expired"
			if _, err := qtx.SetWithdrawalReview(ctx, repository.SetWithdrawalReviewParams{
				RejectionReason: &reason,
				ID:              row.ID,
			}); err != nil {
				return fmt.Errorf("record expiry %s: %w", id, err)
			}
			if err := transitionWithdrawalState(ctx, qtx, s.audit, id, domain.StatusRejected, nil, "confirmation_expired", nil); err != nil {
				return fmt.Errorf("transition expired withdrawal %s: %w", id, err)
			}
			swept++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		zap.L().Info("swept expired withdrawal reservations", zap.Int("count", swept))
	}
	return swept, nil
}

// refundReservation credits the reserved amount back to the owning account.
// Must run inside the same transaction as the status change that marks the
// refund, so a retry sees the terminal status instead of the money.
func (s *WithdrawalService) refundReservation(ctx context.Context, qtx *repository.Queries, row repository.WithdrawalRow, reason string) error {
	account, err := qtx.GetAccountForUpdate(ctx, row.UserID, row.Currency)
	if err != nil {
		return fmt.Errorf("lock account for refund: %w", err)
	}
	rows, err := qtx.RefundAccountFunds(ctx, repository.RefundAccountFundsParams{
		AmountMicros: row.AmountMicros,
		ID:           account.ID,
	})
	if err != nil {
		return fmt.Errorf("refund funds: %w", err)
	}
	if err := requireExactlyOne(rows, "refund reserved funds"); err != nil {
		return err
	}
	observability.IncrementWithdrawalRefund(reason)
	return nil
}

func (s *WithdrawalService) sendNotification(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, event, payload); err != nil {
		zap.L().Warn("notification delivery failed",
			zap.Error(err),
			zap.String("event", event),
			zap.String("user_id", userID.String()),
		)
	}
}

func withdrawalFromRow(row repository.WithdrawalRow) *models.Withdrawal {
	w := &models.Withdrawal{
		ID:           repository.FromPgUUID(row.ID),
		UserID:       repository.FromPgUUID(row.UserID),
		AmountMicros: row.AmountMicros,
		Currency:     row.Currency,
		Method:       row.Method,
		Destination:  domain.UnmarshalDestination(row.Destination),
		FeeMicros:    row.FeeMicros,
		NetMicros:    row.NetMicros,
		Status:       row.Status,

		AdminNotes:      row.AdminNotes,
		RejectionReason: row.RejectionReason,
		TransactionHash: row.TransactionHash,
		IsConfirmed:     row.IsConfirmed,

		RequestedAt: row.RequestedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
	if row.ReviewedBy.Valid {
		id := repository.FromPgUUID(row.ReviewedBy)
		w.ReviewedBy = &id
	}
	w.ReviewedAt = timePtr(row.ReviewedAt)
	w.ProcessedAt = timePtr(row.ProcessedAt)
	w.CompletedAt = timePtr(row.CompletedAt)
	w.ConfirmationExpiresAt = timePtr(row.ConfirmationExpiresAt)
	return w
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
