package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/notify"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func bankDestination() domain.Destination {
	return domain.Destination{
		IBAN:        "GB29NWBK60161331926819",
		AccountName: "John Doe",
		BankName:    "NWBK",
	}
}

func TestQuoteFees(t *testing.T) {
	svc := NewWithdrawalService(nil, notify.NewMockNotifier())

	quote, err := svc.QuoteFees(40_000_000, domain.MethodBankTransfer)
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000), quote.FeeMicros)
	require.Equal(t, int64(38_000_000), quote.NetMicros)

	// 0.5% of $500 is $2.50, above the $1 floor.
	quote, err = svc.QuoteFees(500_000_000, domain.MethodCrypto)
	require.NoError(t, err)
	require.Equal(t, int64(2_500_000), quote.FeeMicros)

	// Fee at or above the amount is rejected outright.
	_, err = svc.QuoteFees(2_000_000, domain.MethodBankTransfer)
	require.ErrorIs(t, err, models.ErrFeeExceedsAmount)

	_, err = svc.QuoteFees(40_000_000, "carrier_pigeon")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestRequestWithdrawalReservesFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	notifier := notify.NewMockNotifier()
	svc := NewWithdrawalService(store, notifier)

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingConfirmation, resp.Status)
	require.Equal(t, int64(2_000_000), resp.FeeMicros)
	require.Equal(t, int64(38_000_000), resp.NetMicros)
	require.NotEmpty(t, resp.ConfirmationToken)
	require.True(t, resp.ExpiresAt.After(time.Now()))

	// Full gross amount is reserved immediately.
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))

	limits, err := svc.GetLimits(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40_000_000), limits.DailyUsedMicros)
	require.Equal(t, int64(40_000_000), limits.MonthlyUsedMicros)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "withdrawal.requested", sent[0].Event)
	require.Equal(t, user.ID, sent[0].UserID)
}

func TestRequestWithdrawalBelowMinimum(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	user := seedUserWithBalance(t, db, 100_000_000)

	_, err := svc.RequestWithdrawal(context.Background(), RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 5_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.ErrorIs(t, err, models.ErrValidation)

	// Nothing was reserved and no row was created.
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))
	var count int
	require.NoError(t, db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM withdrawals WHERE user_id = $1`, user.ID).Scan(&count))
	require.Zero(t, count)
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	user := seedUserWithBalance(t, db, 30_000_000)

	_, err := svc.RequestWithdrawal(context.Background(), RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
	require.Equal(t, int64(30_000_000), accountBalance(t, db, user.ID))
}

func TestRequestWithdrawalDailyLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	user := seedUserWithBalance(t, db, 1_000_000_000)

	// $5,000 daily limit with $4,980 already used leaves only $20 of headroom.
	setLimitUsage(t, db, user.ID, 5_000_000_000, 4_980_000_000)

	_, err := svc.RequestWithdrawal(context.Background(), RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.ErrorIs(t, err, models.ErrDailyLimitExceeded)
	require.Equal(t, int64(1_000_000_000), accountBalance(t, db, user.ID))
}

func TestConfirmWithdrawalSingleUse(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc := NewWithdrawalService(store, notify.NewMockNotifier())

	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmWithdrawal(ctx, user.ID, resp.ConfirmationToken)
	require.NoError(t, err)
	require.Equal(t, resp.WithdrawalID, confirmed.WithdrawalID)
	require.Equal(t, domain.StatusUnderReview, confirmed.Status)

	// The token is burned on first use; a replay cannot find it.
	_, err = svc.ConfirmWithdrawal(ctx, user.ID, resp.ConfirmationToken)
	require.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)

	// Confirming changes no balances.
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))
}

func TestConfirmWithdrawalWrongUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	owner := seedUserWithBalance(t, db, 100_000_000)
	other := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       owner.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	_, err = svc.ConfirmWithdrawal(ctx, other.ID, resp.ConfirmationToken)
	require.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)

	// The owner can still confirm afterwards.
	_, err = svc.ConfirmWithdrawal(ctx, owner.ID, resp.ConfirmationToken)
	require.NoError(t, err)
}

func TestConfirmWithdrawalExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	expireConfirmation(t, db, resp.WithdrawalID)

	_, err = svc.ConfirmWithdrawal(ctx, user.ID, resp.ConfirmationToken)
	require.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)
}

func TestCancelWithdrawalRefundsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))

	cancelled, err := svc.CancelWithdrawal(ctx, user.ID, resp.WithdrawalID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, cancelled.Status)
	require.Equal(t, int64(40_000_000), cancelled.RefundedMicros)
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))

	// A second cancel hits the terminal status guard, not the balance.
	_, err = svc.CancelWithdrawal(ctx, user.ID, resp.WithdrawalID)
	require.ErrorIs(t, err, models.ErrInvalidStateTransition)
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))
}

func TestCancelWithdrawalNotOwner(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	owner := seedUserWithBalance(t, db, 100_000_000)
	other := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       owner.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	_, err = svc.CancelWithdrawal(ctx, other.ID, resp.WithdrawalID)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	require.Equal(t, int64(60_000_000), accountBalance(t, db, owner.ID))
}

func TestCancelAfterConfirmFails(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	_, err = svc.ConfirmWithdrawal(ctx, user.ID, resp.ConfirmationToken)
	require.NoError(t, err)

	_, err = svc.CancelWithdrawal(ctx, user.ID, resp.WithdrawalID)
	require.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestSweepExpiredRefunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc := NewWithdrawalService(store, notify.NewMockNotifier())
	ctx := context.Background()
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)
	expireConfirmation(t, db, resp.WithdrawalID)

	swept, err := svc.SweepExpired(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))

	w, err := svc.GetWithdrawal(ctx, user.ID, resp.WithdrawalID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, w.Status)
	require.NotNil(t, w.RejectionReason)

	// The already-rejected row is not picked up again.
	swept, err = svc.SweepExpired(ctx, 50)
	require.NoError(t, err)
	require.Zero(t, swept)
	require.Equal(t, int64(100_000_000), accountBalance(t, db, user.ID))
}

func TestNotifierFailureDoesNotBlock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	notifier := notify.NewMockNotifier()
	notifier.FailWith = errors.New("smtp down")
	svc := NewWithdrawalService(repository.NewStore(db), notifier)
	user := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(context.Background(), RequestWithdrawalRequest{
		UserID:       user.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingConfirmation, resp.Status)
	require.Equal(t, int64(60_000_000), accountBalance(t, db, user.ID))
}

func TestListWithdrawals(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	user := seedUserWithBalance(t, db, 500_000_000)

	for i := 0; i < 3; i++ {
		_, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
			UserID:       user.ID,
			AmountMicros: 20_000_000,
			Currency:     "USD",
			Method:       domain.MethodBankTransfer,
			Destination:  bankDestination(),
		})
		require.NoError(t, err)
	}

	list, err := svc.ListWithdrawals(ctx, user.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	rest, err := svc.ListWithdrawals(ctx, user.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestGetWithdrawalHidesOtherUsers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	owner := seedUserWithBalance(t, db, 100_000_000)
	other := seedUserWithBalance(t, db, 100_000_000)

	resp, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
		UserID:       owner.ID,
		AmountMicros: 40_000_000,
		Currency:     "USD",
		Method:       domain.MethodBankTransfer,
		Destination:  bankDestination(),
	})
	require.NoError(t, err)

	_, err = svc.GetWithdrawal(ctx, other.ID, resp.WithdrawalID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.GetWithdrawal(ctx, owner.ID, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetLimitsDefaultsForNewUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	user := seedUserWithBalance(t, db, 100_000_000)

	limits, err := svc.GetLimits(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultDailyLimitMicros, limits.DailyLimitMicros)
	require.Equal(t, domain.DefaultMonthlyLimitMicros, limits.MonthlyLimitMicros)
	require.Zero(t, limits.DailyUsedMicros)
	require.Zero(t, limits.MonthlyUsedMicros)
}

// Concurrent requests against one limit window must serialize on the limit
// row lock: with $100 of daily headroom, at most two $40 requests can pass.
func TestConcurrentRequestsRespectLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWithdrawalService(repository.NewStore(db), notify.NewMockNotifier())
	ctx := context.Background()
	user := seedUserWithBalance(t, db, 1_000_000_000)
	setLimitUsage(t, db, user.ID, 100_000_000, 0)

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestWithdrawal(ctx, RequestWithdrawalRequest{
				UserID:       user.ID,
				AmountMicros: 40_000_000,
				Currency:     "USD",
				Method:       domain.MethodBankTransfer,
				Destination:  bankDestination(),
			})
			if err == nil {
				succeeded.Add(1)
			} else if !errors.Is(err, models.ErrDailyLimitExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(2), succeeded.Load())
	require.Equal(t, int64(1_000_000_000-2*40_000_000), accountBalance(t, db, user.ID))
}
