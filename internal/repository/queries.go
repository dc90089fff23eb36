package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgx executors usable by Queries, satisfied by both
// *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries is the typed query set over a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx scopes the query set to a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// ---- accounts ----

type AccountRow struct {
	ID            pgtype.UUID
	UserID        pgtype.UUID
	Currency      string
	BalanceMicros int64
	CreatedAt     pgtype.Timestamptz
}

// GetAccountForUpdate locks the user's account row in the given currency for
// the remainder of the transaction.
func (q *Queries) GetAccountForUpdate(ctx context.Context, userID pgtype.UUID, currency string) (AccountRow, error) {
	var row AccountRow
	err := q.db.QueryRow(ctx, `
		SELECT id, user_id, currency, balance_micros, created_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE
	`, userID, currency).Scan(&row.ID, &row.UserID, &row.Currency, &row.BalanceMicros, &row.CreatedAt)
	return row, err
}

func (q *Queries) GetAccountByUser(ctx context.Context, userID pgtype.UUID, currency string) (AccountRow, error) {
	var row AccountRow
	err := q.db.QueryRow(ctx, `
		SELECT id, user_id, currency, balance_micros, created_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2
	`, userID, currency).Scan(&row.ID, &row.UserID, &row.Currency, &row.BalanceMicros, &row.CreatedAt)
	return row, err
}

type ReserveAccountFundsParams struct {
	AmountMicros int64
	ID           pgtype.UUID
}

// ReserveAccountFunds decrements the balance only when sufficient funds
// remain; 0 affected rows means the guard failed.
func (q *Queries) ReserveAccountFunds(ctx context.Context, arg ReserveAccountFundsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts
		SET balance_micros = balance_micros - $1
		WHERE id = $2 AND balance_micros >= $1
	`, arg.AmountMicros, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type RefundAccountFundsParams struct {
	AmountMicros int64
	ID           pgtype.UUID
}

func (q *Queries) RefundAccountFunds(ctx context.Context, arg RefundAccountFundsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts
		SET balance_micros = balance_micros + $1
		WHERE id = $2
	`, arg.AmountMicros, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetUserRole returns the stored role for a user.
func (q *Queries) GetUserRole(ctx context.Context, id pgtype.UUID) (string, error) {
	var role string
	err := q.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	return role, err
}

// ---- withdrawal limits ----

type LimitsRow struct {
	UserID             pgtype.UUID
	DailyLimitMicros   int64
	MonthlyLimitMicros int64
	DailyUsedMicros    int64
	MonthlyUsedMicros  int64
	LastResetAt        pgtype.Timestamptz
}

type EnsureLimitsParams struct {
	UserID             pgtype.UUID
	DailyLimitMicros   int64
	MonthlyLimitMicros int64
	LastResetAt        pgtype.Timestamptz
}

// EnsureLimits creates the user's limit row with defaults if absent.
func (q *Queries) EnsureLimits(ctx context.Context, arg EnsureLimitsParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO withdrawal_limits (user_id, daily_limit_micros, monthly_limit_micros, daily_used_micros, monthly_used_micros, last_reset_at)
		VALUES ($1, $2, $3, 0, 0, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, arg.UserID, arg.DailyLimitMicros, arg.MonthlyLimitMicros, arg.LastResetAt)
	return err
}

// GetLimitsForUpdate locks the user's limit row for the transaction.
func (q *Queries) GetLimitsForUpdate(ctx context.Context, userID pgtype.UUID) (LimitsRow, error) {
	var row LimitsRow
	err := q.db.QueryRow(ctx, `
		SELECT user_id, daily_limit_micros, monthly_limit_micros, daily_used_micros, monthly_used_micros, last_reset_at
		FROM withdrawal_limits
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&row.UserID, &row.DailyLimitMicros, &row.MonthlyLimitMicros, &row.DailyUsedMicros, &row.MonthlyUsedMicros, &row.LastResetAt)
	return row, err
}

func (q *Queries) GetLimits(ctx context.Context, userID pgtype.UUID) (LimitsRow, error) {
	var row LimitsRow
	err := q.db.QueryRow(ctx, `
		SELECT user_id, daily_limit_micros, monthly_limit_micros, daily_used_micros, monthly_used_micros, last_reset_at
		FROM withdrawal_limits
		WHERE user_id = $1
	`, userID).Scan(&row.UserID, &row.DailyLimitMicros, &row.MonthlyLimitMicros, &row.DailyUsedMicros, &row.MonthlyUsedMicros, &row.LastResetAt)
	return row, err
}

type UpdateLimitUsageParams struct {
	DailyUsedMicros   int64
	MonthlyUsedMicros int64
	LastResetAt       pgtype.Timestamptz
	UserID            pgtype.UUID
}

func (q *Queries) UpdateLimitUsage(ctx context.Context, arg UpdateLimitUsageParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawal_limits
		SET daily_used_micros = $1, monthly_used_micros = $2, last_reset_at = $3
		WHERE user_id = $4
	`, arg.DailyUsedMicros, arg.MonthlyUsedMicros, arg.LastResetAt, arg.UserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ---- withdrawals ----

type WithdrawalRow struct {
	ID                    pgtype.UUID
	UserID                pgtype.UUID
	AmountMicros          int64
	Currency              string
	Method                string
	Destination           []byte
	FeeMicros             int64
	NetMicros             int64
	Status                string
	AdminNotes            *string
	RejectionReason       *string
	ReviewedBy            pgtype.UUID
	ReviewedAt            pgtype.Timestamptz
	ProcessedAt           pgtype.Timestamptz
	CompletedAt           pgtype.Timestamptz
	IsConfirmed           bool
	ConfirmationToken     *string
	ConfirmationExpiresAt pgtype.Timestamptz
	TransactionHash       *string
	RequestedAt           pgtype.Timestamptz
	UpdatedAt             pgtype.Timestamptz
}

const withdrawalColumns = `id, user_id, amount_micros, currency, method, destination, fee_micros, net_micros, status,
	admin_notes, rejection_reason, reviewed_by, reviewed_at, processed_at, completed_at,
	is_confirmed, confirmation_token, confirmation_expires_at, transaction_hash, requested_at, updated_at`

func scanWithdrawal(row pgx.Row) (WithdrawalRow, error) {
	var w WithdrawalRow
	err := row.Scan(
		&w.ID, &w.UserID, &w.AmountMicros, &w.Currency, &w.Method, &w.Destination, &w.FeeMicros, &w.NetMicros, &w.Status,
		&w.AdminNotes, &w.RejectionReason, &w.ReviewedBy, &w.ReviewedAt, &w.ProcessedAt, &w.CompletedAt,
		&w.IsConfirmed, &w.ConfirmationToken, &w.ConfirmationExpiresAt, &w.TransactionHash, &w.RequestedAt, &w.UpdatedAt,
	)
	return w, err
}

type InsertWithdrawalParams struct {
	ID                    pgtype.UUID
	UserID                pgtype.UUID
	AmountMicros          int64
	Currency              string
	Method                string
	Destination           []byte
	FeeMicros             int64
	NetMicros             int64
	Status                string
	ConfirmationToken     string
	ConfirmationExpiresAt pgtype.Timestamptz
}

func (q *Queries) InsertWithdrawal(ctx context.Context, arg InsertWithdrawalParams) (WithdrawalRow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO withdrawals (id, user_id, amount_micros, currency, method, destination, fee_micros, net_micros, status,
			confirmation_token, confirmation_expires_at, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING `+withdrawalColumns,
		arg.ID, arg.UserID, arg.AmountMicros, arg.Currency, arg.Method, arg.Destination, arg.FeeMicros, arg.NetMicros,
		arg.Status, arg.ConfirmationToken, arg.ConfirmationExpiresAt)
	return scanWithdrawal(row)
}

func (q *Queries) GetWithdrawal(ctx context.Context, id pgtype.UUID) (WithdrawalRow, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1
	`, id))
}

// GetWithdrawalStatusForUpdate locks the withdrawal row and returns only its
// current status.
func (q *Queries) GetWithdrawalStatusForUpdate(ctx context.Context, id pgtype.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, `
		SELECT status FROM withdrawals WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	return status, err
}

// GetWithdrawalForUpdate locks the withdrawal row for the transaction.
func (q *Queries) GetWithdrawalForUpdate(ctx context.Context, id pgtype.UUID) (WithdrawalRow, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1
		FOR UPDATE
	`, id))
}

// GetWithdrawalByTokenForUpdate resolves a confirmation token to its locked
// row. Consumed or cleared tokens no longer match.
func (q *Queries) GetWithdrawalByTokenForUpdate(ctx context.Context, userID pgtype.UUID, token string) (WithdrawalRow, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE user_id = $1 AND confirmation_token = $2
		FOR UPDATE
	`, userID, token))
}

type UpdateWithdrawalStatusParams struct {
	Status string
	ID     pgtype.UUID
}

func (q *Queries) UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawals SET status = $1, updated_at = NOW() WHERE id = $2
	`, arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkWithdrawalConfirmed flips the confirmation flag and burns the token.
func (q *Queries) MarkWithdrawalConfirmed(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawals
		SET is_confirmed = TRUE, confirmation_token = NULL, updated_at = NOW()
		WHERE id = $1 AND is_confirmed = FALSE
	`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type SetWithdrawalReviewParams struct {
	ReviewedBy      pgtype.UUID
	AdminNotes      *string
	RejectionReason *string
	ID              pgtype.UUID
}

// SetWithdrawalReview records the reviewing admin and decision fields.
func (q *Queries) SetWithdrawalReview(ctx context.Context, arg SetWithdrawalReviewParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawals
		SET reviewed_by = $1, reviewed_at = NOW(), admin_notes = $2, rejection_reason = $3, updated_at = NOW()
		WHERE id = $4
	`, arg.ReviewedBy, arg.AdminNotes, arg.RejectionReason, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) SetWithdrawalProcessing(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawals SET processed_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type SetWithdrawalCompletedParams struct {
	AdminNotes      *string
	TransactionHash *string
	ID              pgtype.UUID
}

func (q *Queries) SetWithdrawalCompleted(ctx context.Context, arg SetWithdrawalCompletedParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE withdrawals
		SET completed_at = NOW(), admin_notes = COALESCE($1, admin_notes), transaction_hash = $2, updated_at = NOW()
		WHERE id = $3
	`, arg.AdminNotes, arg.TransactionHash, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type ListWithdrawalsByUserParams struct {
	UserID pgtype.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListWithdrawalsByUser(ctx context.Context, arg ListWithdrawalsByUserParams) ([]WithdrawalRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE user_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

type ListWithdrawalsByStatusParams struct {
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListWithdrawalsByStatus(ctx context.Context, arg ListWithdrawalsByStatusParams) ([]WithdrawalRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = $1
		ORDER BY requested_at ASC
		LIMIT $2 OFFSET $3
	`, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

func (q *Queries) CountWithdrawalsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE status = $1`, status).Scan(&count)
	return count, err
}

type GetExpiredUnconfirmedParams struct {
	Now   pgtype.Timestamptz
	Limit int32
}

// GetExpiredUnconfirmed claims a batch of expired unconfirmed requests.
// SKIP LOCKED keeps concurrent sweepers from double-claiming rows.
func (q *Queries) GetExpiredUnconfirmed(ctx context.Context, arg GetExpiredUnconfirmedParams) ([]WithdrawalRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status IN ('pending', 'pending_confirmation') AND confirmation_expires_at < $1
		ORDER BY confirmation_expires_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

func collectWithdrawals(rows pgx.Rows) ([]WithdrawalRow, error) {
	var out []WithdrawalRow
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ---- audit log ----

type InsertAuditLogParams struct {
	EntityType string
	EntityID   pgtype.UUID
	ActorID    pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id
	`, arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata).Scan(&id)
	return id, err
}

// ---- idempotency keys ----

type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress, created_at, updated_at
		FROM idempotency_keys
		WHERE idempotency_key = $1
	`, key).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path, &row.ResponseStatus,
		&row.ResponseBody, &row.ContentType, &row.InProgress, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (string, error) {
	var key string
	err := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key
	`, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path).Scan(&key)
	return key, err
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress, created_at, updated_at
	`, arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash,
	).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path, &row.ResponseStatus,
		&row.ResponseBody, &row.ContentType, &row.InProgress, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}
