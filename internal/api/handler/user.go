package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserHandler struct {
	repo *repository.Repository
}

func NewUserHandler(repo *repository.Repository) *UserHandler {
	return &UserHandler{repo: repo}
}

// CreateUser registers a user and opens a USD balance account. The role
// field in the payload is ignored; admins are provisioned out of band.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username            string `json:"username"`
		Email               string `json:"email"`
		InitialBalanceMicros int64 `json:"initial_balance_micros"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.InitialBalanceMicros < 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-balance", "initial_balance_micros must not be negative")
		return
	}

	user := &models.User{
		ID:       uuid.New(),
		Username: req.Username,
		Email:    req.Email,
		Role:     "user",
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create user failed", zap.Error(err), zap.String("email", req.Email))
		RespondError(w, r, http.StatusInternalServerError, "user/create-failed", "Failed to create user")
		return
	}

	account := &models.Account{
		ID:            uuid.New(),
		UserID:        user.ID,
		Currency:      "USD",
		BalanceMicros: req.InitialBalanceMicros,
	}
	if err := h.repo.CreateAccount(r.Context(), account); err != nil {
		zap.L().Error("create account failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/create-failed", "Failed to create account")
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

// GetBalance returns a user's USD account. Owner or admin only.
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user ID")
		return
	}
	if !isAdmin && userID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	account, err := h.repo.GetAccountByUser(r.Context(), userID, "USD")
	if err != nil {
		zap.L().Error("get balance failed", zap.Error(err), zap.String("user_id", userID.String()))
		RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
		return
	}

	RespondJSON(w, http.StatusOK, account)
}
