package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/notify"
	"github.com/ayo6706/withdrawal-engine/internal/observability"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ReviewService applies admin decisions to withdrawal requests. Each
// decision loads the row under a lock, checks the source state, and applies
// the transition plus any compensating refund as one atomic unit.
type ReviewService struct {
	store    QueryStore
	notifier notify.Notifier
	audit    *AuditService
}

func NewReviewService(store QueryStore, notifier notify.Notifier) *ReviewService {
	return &ReviewService{
		store:    store,
		notifier: notifier,
		audit:    NewAuditService(store),
	}
}

// ReviewDecisionRequest carries an admin decision against one withdrawal.
type ReviewDecisionRequest struct {
	WithdrawalID uuid.UUID
	AdminID      uuid.UUID
	Notes        string
	Reason       string
	// TransactionHash is the external settlement reference, set on complete.
	TransactionHash string
}

// ReviewDecisionResponse reports the resulting state.
type ReviewDecisionResponse struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Status       string    `json:"status"`
}

// Approve moves a confirmed request out of review and into processing. No
// balance change happens; the funds were already reserved at request time.
func (s *ReviewService) Approve(ctx context.Context, req ReviewDecisionRequest) (*ReviewDecisionResponse, error) {
	var ownerID uuid.UUID
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := s.loadForReview(ctx, qtx, req.WithdrawalID)
		if err != nil {
			return err
		}
		ownerID = repository.FromPgUUID(row.UserID)

		if normalizeStatus(row.Status) != domain.StatusUnderReview {
			return fmt.Errorf("%w: approve from %s", models.ErrInvalidStateTransition, row.Status)
		}

		if _, err := qtx.SetWithdrawalReview(ctx, repository.SetWithdrawalReviewParams{
			ReviewedBy: repository.ToPgUUID(req.AdminID),
			AdminNotes: textParam(req.Notes),
			ID:         row.ID,
		}); err != nil {
			return fmt.Errorf("record review: %w", err)
		}

		metadata, err := json.Marshal(map[string]any{"notes": req.Notes})
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		if err := transitionWithdrawalState(ctx, qtx, s.audit, req.WithdrawalID, domain.StatusApproved, &req.AdminID, "admin_approve", metadata); err != nil {
			return err
		}
		// An approved request is handed straight to the payout executor.
		if err := transitionWithdrawalState(ctx, qtx, s.audit, req.WithdrawalID, domain.StatusProcessing, &req.AdminID, "processing_started", nil); err != nil {
			return err
		}
		if _, err := qtx.SetWithdrawalProcessing(ctx, row.ID); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendNotification(ctx, ownerID, "withdrawal.approved", map[string]any{
		"withdrawal_id": req.WithdrawalID.String(),
	})

	return &ReviewDecisionResponse{WithdrawalID: req.WithdrawalID, Status: domain.StatusProcessing}, nil
}

// Reject turns down a request under review and refunds the reservation.
// The refund and the terminal transition commit together, so a repeated
// reject fails the state guard instead of crediting twice.
func (s *ReviewService) Reject(ctx context.Context, req ReviewDecisionRequest) (*ReviewDecisionResponse, error) {
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", models.ErrValidation)
	}

	var (
		ownerID  uuid.UUID
		refunded int64
	)
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := s.loadForReview(ctx, qtx, req.WithdrawalID)
		if err != nil {
			return err
		}
		ownerID = repository.FromPgUUID(row.UserID)

		if normalizeStatus(row.Status) != domain.StatusUnderReview {
			return fmt.Errorf("%w: reject from %s", models.ErrInvalidStateTransition, row.Status)
		}

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
		if err := requireExactlyOne(rows, "refund rejected withdrawal"); err != nil {
			return err
		}
		refunded = row.AmountMicros
		observability.IncrementWithdrawalRefund("admin_reject")

		if _, err := qtx.SetWithdrawalReview(ctx, repository.SetWithdrawalReviewParams{
			ReviewedBy:      repository.ToPgUUID(req.AdminID),
			AdminNotes:      textParam(req.Notes),
			RejectionReason: &req.Reason,
			ID:              row.ID,
		}); err != nil {
			return fmt.Errorf("record review: %w", err)
		}

		metadata, err := json.Marshal(map[string]any{"reason": req.Reason})
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		return transitionWithdrawalState(ctx, qtx, s.audit, req.WithdrawalID, domain.StatusRejected, &req.AdminID, "admin_reject", metadata)
	})
	if err != nil {
		return nil, err
	}

	s.sendNotification(ctx, ownerID, "withdrawal.rejected", map[string]any{
		"withdrawal_id":   req.WithdrawalID.String(),
		"reason":          req.Reason,
		"refunded_micros": refunded,
	})

	return &ReviewDecisionResponse{WithdrawalID: req.WithdrawalID, Status: domain.StatusRejected}, nil
}

// Complete settles a processing request after the external payout executor
// confirmed transfer. No balance change; the funds left the ledger at
// reservation time.
func (s *ReviewService) Complete(ctx context.Context, req ReviewDecisionRequest) (*ReviewDecisionResponse, error) {
	var ownerID uuid.UUID
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := s.loadForReview(ctx, qtx, req.WithdrawalID)
		if err != nil {
			return err
		}
		ownerID = repository.FromPgUUID(row.UserID)

		if normalizeStatus(row.Status) != domain.StatusProcessing {
			return fmt.Errorf("%w: complete from %s", models.ErrInvalidStateTransition, row.Status)
		}

		if _, err := qtx.SetWithdrawalCompleted(ctx, repository.SetWithdrawalCompletedParams{
			AdminNotes:      textParam(req.Notes),
			TransactionHash: textParam(req.TransactionHash),
			ID:              row.ID,
		}); err != nil {
			return fmt.Errorf("record completion: %w", err)
		}

		return transitionWithdrawalState(ctx, qtx, s.audit, req.WithdrawalID, domain.StatusCompleted, &req.AdminID, "admin_complete", nil)
	})
	if err != nil {
		return nil, err
	}

	s.sendNotification(ctx, ownerID, "withdrawal.completed", map[string]any{
		"withdrawal_id": req.WithdrawalID.String(),
	})

	return &ReviewDecisionResponse{WithdrawalID: req.WithdrawalID, Status: domain.StatusCompleted}, nil
}

// ListReviewQueue returns requests in the given status, oldest first, and
// refreshes the queue size gauge. An empty status means the review queue.
func (s *ReviewService) ListReviewQueue(ctx context.Context, status string, limit, offset int32) ([]*models.Withdrawal, error) {
	if status == "" {
		status = domain.StatusUnderReview
	}
	status = normalizeStatus(status)
	if !domain.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	queries := s.store.Queries()
	rows, err := queries.ListWithdrawalsByStatus(ctx, repository.ListWithdrawalsByStatusParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	if size, err := queries.CountWithdrawalsByStatus(ctx, domain.StatusUnderReview); err == nil {
		observability.SetReviewQueueSize(size)
	}

	out := make([]*models.Withdrawal, 0, len(rows))
	for _, row := range rows {
		out = append(out, withdrawalFromRow(row))
	}
	return out, nil
}

func (s *ReviewService) loadForReview(ctx context.Context, qtx *repository.Queries, withdrawalID uuid.UUID) (repository.WithdrawalRow, error) {
	row, err := qtx.GetWithdrawalForUpdate(ctx, repository.ToPgUUID(withdrawalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.WithdrawalRow{}, fmt.Errorf("withdrawal: %w", models.ErrNotFound)
		}
		return repository.WithdrawalRow{}, fmt.Errorf("lock withdrawal: %w", err)
	}
	// The owning user must still exist; a review against a deleted user is
	// a data integrity fault, not a decision to apply.
	if _, err := qtx.GetUserRole(ctx, row.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.WithdrawalRow{}, fmt.Errorf("withdrawal owner: %w", models.ErrNotFound)
		}
		return repository.WithdrawalRow{}, fmt.Errorf("load withdrawal owner: %w", err)
	}
	return row, nil
}

func (s *ReviewService) sendNotification(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
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
