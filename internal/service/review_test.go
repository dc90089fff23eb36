package service

import (
	"context"
	"testing"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/notify"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// requestAndConfirm drives a fresh withdrawal into under_review.
func requestAndConfirm(t *testing.T, svc *WithdrawalService, userID uuid.UUID) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       userID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)
	_, err = svc.ConfirmWithdrawal(ctx, userID, resp.ConfirmationToken)
	require.NoError(t, err)
	return resp.WithdrawalID
}

func TestApproveMovesToProcessing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)
	admin := seedAdmin(t, db)
	withdrawalID := requestAndConfirm(t, withdrawalSvc, user.ID)

	resp, err := reviewSvc.Approve(ctx, ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      admin.ID,
		Notes:        "verified against KYC record",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, resp.Status)

	w, err := withdrawalSvc.GetWithdrawal(ctx, user.ID, withdrawalID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, w.Status)
	require.NotNil(t, w.ReviewedBy)
	require.Equal(t, admin.ID, *w.ReviewedBy)
	require.NotNil(t, w.AdminNotes)
	require.Equal(t, "verified against KYC record", *w.AdminNotes)
	require.NotNil(t, w.ProcessedAt)

	// Approval settles the reservation; the balance does not move.
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))
}

func TestApproveRequiresUnderReview(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)
	admin := seedAdmin(t, db)

	// Still pending confirmation, not yet reviewable.
	resp, err := withdrawalSvc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	_, err = reviewSvc.Approve(ctx, ReviewDecisionRequest{
		WithdrawalID: resp.WithdrawalID,
		AdminID:      admin.ID,
	})
	require.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestRejectRefundsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)
	admin := seedAdmin(t, db)
	withdrawalID := requestAndConfirm(t, withdrawalSvc, user.ID)
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))

	resp, err := reviewSvc.Reject(ctx, ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      admin.ID,
		Reason:       "destination account flagged",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, resp.Status)
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))

	w, err := withdrawalSvc.GetWithdrawal(ctx, user.ID, withdrawalID)
	require.NoError(t, err)
	require.NotNil(t, w.RejectionReason)
	require.Equal(t, "destination account flagged", *w.RejectionReason)

	// Retrying the rejection fails on the status guard before any refund.
	_, err = reviewSvc.Reject(ctx, ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      admin.ID,
		Reason:       "destination account flagged",
	})
	require.ErrorIs(t, err, models.ErrInvalidStateTransition)
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))
}

func TestRejectRequiresReason(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	user := seedUserWithBalance(t, db, 100_000_000)
	admin := seedAdmin(t, db)
	withdrawalID := requestAndConfirm(t, withdrawalSvc, user.ID)

	_, err := reviewSvc.Reject(context.Background(), ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      admin.ID,
	})
	require.ErrorIs(t, err, models.ErrValidation)
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))
}

func TestCompleteFromProcessing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)
	admin := seedAdmin(t, db)
	withdrawalID := requestAndConfirm(t, withdrawalSvc, user.ID)

	_, err := reviewSvc.Approve(ctx, ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      admin.ID,
	})
	require.NoError(t, err)

	resp, err := reviewSvc.Complete(ctx, ReviewDecisionRequest{
		WithdrawalID:    withdrawalID,
		AdminID:         admin.ID,
		TransactionHash: "0xdeadbeef",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, resp.Status)

	w, err := withdrawalSvc.GetWithdrawal(ctx, user.ID, withdrawalID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, w.Status)
	require.NotNil(t, w.TransactionHash)
	require.Equal(t, "0xdeadbeef", *w.TransactionHash)
	require.NotNil(t, w.CompletedAt)

	// Settlement keeps the reservation; the debit is final.
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))
}

func TestCompleteRequiresProcessing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	user := seedUserWithBalance(t, db, 100_000_000)
	admin := seedAdmin(t, db)
	withdrawalID := requestAndConfirm(t, withdrawalSvc, user.ID)

	_, err := reviewSvc.Complete(context.Background(), ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      admin.ID,
	})
	require.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestReviewUnknownWithdrawal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	reviewSvc := NewReviewService(repository.NewStore(db), notify.NewMockNotifier())
	admin := seedAdmin(t, db)

	_, err := reviewSvc.Approve(context.Background(), ReviewDecisionRequest{
		WithdrawalID: uuid.New(),
		AdminID:      admin.ID,
	})
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestListReviewQueue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	withdrawalSvc := NewWithdrawalService(store, notify.NewMockNotifier())
	reviewSvc := NewReviewService(store, notify.NewMockNotifier())

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 500_000_000)

	first := requestAndConfirm(t, withdrawalSvc, user.ID)
	second := requestAndConfirm(t, withdrawalSvc, user.ID)

	queue, err := reviewSvc.ListReviewQueue(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	// Oldest first so admins work the queue in arrival order.
	require.Equal(t, first, queue[0].ID)
	require.Equal(t, second, queue[1].ID)

	none, err := reviewSvc.ListReviewQueue(ctx, domain.StatusCompleted, 10, 0)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = reviewSvc.ListReviewQueue(ctx, "limbo", 10, 0)
	require.ErrorIs(t, err, models.ErrValidation)
}
