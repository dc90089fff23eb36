package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, username, email, role, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	err := r.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, email, role, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, email, role, created_at FROM users WHERE username = $1`
	err := r.db.QueryRow(ctx, query, username).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (id, user_id, currency, balance_micros, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	err := r.db.QueryRow(ctx, query, account.ID, account.UserID, account.Currency, account.BalanceMicros).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account := &models.Account{}
	query := `SELECT id, user_id, currency, balance_micros, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&account.ID, &account.UserID, &account.Currency, &account.BalanceMicros, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *Repository) GetAccountByUser(ctx context.Context, userID uuid.UUID, currency string) (*models.Account, error) {
	account := &models.Account{}
	query := `SELECT id, user_id, currency, balance_micros, created_at FROM accounts WHERE user_id = $1 AND currency = $2`
	err := r.db.QueryRow(ctx, query, userID, currency).Scan(&account.ID, &account.UserID, &account.Currency, &account.BalanceMicros, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get account for user: %w", err)
	}
	return account, nil
}
