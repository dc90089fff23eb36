package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayo6706/withdrawal-engine/internal/api/middleware"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type AuthHandler struct {
	repo *repository.Repository
}

func NewAuthHandler(repo *repository.Repository) *AuthHandler {
	return &AuthHandler{repo: repo}
}

// Login issues a JWT for an existing user. Mock flow; a real deployment
// would sit behind an identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	uid, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}

	user, err := h.repo.GetUser(r.Context(), uid)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "user/not-found", "User not found")
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uid.String(),
		"role":    user.Role,
		"iss":     middleware.JWTIssuer(),
		"aud":     middleware.JWTAudience(),
		"sub":     uid.String(),
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/sign-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}
