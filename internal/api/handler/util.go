package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/withdrawal-engine/internal/api/middleware"
	"github.com/ayo6706/withdrawal-engine/internal/api/problem"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

// mapServiceError translates the withdrawal error taxonomy into an HTTP
// problem response. Returns false for errors that are not part of the
// taxonomy; the caller logs those and answers 500.
func mapServiceError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "withdrawal/validation", true
	case errors.Is(err, models.ErrFeeExceedsAmount):
		return http.StatusBadRequest, "withdrawal/fee-exceeds-amount", true
	case errors.Is(err, models.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "withdrawal/invalid-or-expired-token", true
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "withdrawal/insufficient-balance", true
	case errors.Is(err, models.ErrDailyLimitExceeded):
		return http.StatusUnprocessableEntity, "withdrawal/daily-limit-exceeded", true
	case errors.Is(err, models.ErrMonthlyLimitExceeded):
		return http.StatusUnprocessableEntity, "withdrawal/monthly-limit-exceeded", true
	case errors.Is(err, models.ErrInvalidStateTransition):
		return http.StatusConflict, "withdrawal/invalid-state-transition", true
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "withdrawal/not-found", true
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden, "auth/insufficient-permissions", true
	default:
		return 0, "", false
	}
}

func mapDBError(err error) (int, string, string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
