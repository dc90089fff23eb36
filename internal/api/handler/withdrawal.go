package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WithdrawalHandler exposes the user-facing withdrawal lifecycle.
type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(svc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc}
}

type requestWithdrawalBody struct {
	AmountMicros int64              `json:"amount_micros"`
	Currency     string             `json:"currency"`
	Method       string             `json:"method"`
	Destination  domain.Destination `json:"destination"`
}

// Request creates a withdrawal request, reserving funds.
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var body requestWithdrawalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if body.Currency == "" {
		body.Currency = "USD"
	}

	resp, err := h.svc.RequestWithdrawal(r.Context(), service.RequestWithdrawalRequest{
		UserID:       actorID,
		AmountMicros: body.AmountMicros,
		Currency:     body.Currency,
		Method:       body.Method,
		Destination:  body.Destination,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "request withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusCreated, resp)
}

// Confirm validates a confirmation token and advances the request to review.
func (h *WithdrawalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	resp, err := h.svc.ConfirmWithdrawal(r.Context(), actorID, body.Token)
	if err != nil {
		h.respondServiceError(w, r, err, "confirm withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}

// Cancel abandons an unconfirmed request and refunds the reservation.
func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	withdrawalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-withdrawal-id", "Invalid withdrawal ID")
		return
	}

	resp, err := h.svc.CancelWithdrawal(r.Context(), actorID, withdrawalID)
	if err != nil {
		h.respondServiceError(w, r, err, "cancel withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}

// Get returns one of the caller's withdrawal requests.
func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	withdrawalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-withdrawal-id", "Invalid withdrawal ID")
		return
	}

	var withdrawal *models.Withdrawal
	if isAdmin {
		withdrawal, err = h.svc.GetWithdrawalAny(r.Context(), withdrawalID)
	} else {
		withdrawal, err = h.svc.GetWithdrawal(r.Context(), actorID, withdrawalID)
	}
	if err != nil {
		h.respondServiceError(w, r, err, "get withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusOK, withdrawal)
}

// List returns the caller's withdrawal history, newest first.
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	withdrawals, err := h.svc.ListWithdrawals(r.Context(), actorID, int32(limit), int32(offset))
	if err != nil {
		h.respondServiceError(w, r, err, "list withdrawals failed")
		return
	}

	RespondJSON(w, http.StatusOK, withdrawals)
}

// Limits returns the caller's limit record with fresh reset windows.
func (h *WithdrawalHandler) Limits(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	limits, err := h.svc.GetLimits(r.Context(), actorID)
	if err != nil {
		h.respondServiceError(w, r, err, "get limits failed")
		return
	}

	RespondJSON(w, http.StatusOK, limits)
}

// QuoteFees computes fees for a prospective withdrawal without reserving.
func (h *WithdrawalHandler) QuoteFees(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountMicros int64  `json:"amount_micros"`
		Method       string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	quote, err := h.svc.QuoteFees(body.AmountMicros, body.Method)
	if err != nil {
		h.respondServiceError(w, r, err, "quote fees failed")
		return
	}

	RespondJSON(w, http.StatusOK, quote)
}

func (h *WithdrawalHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	if status, pType, ok := mapServiceError(err); ok {
		RespondError(w, r, status, pType, err.Error())
		return
	}
	if status, pType, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, pType, msg)
		return
	}
	zap.L().Error(logMsg, zap.Error(err))
	RespondError(w, r, http.StatusInternalServerError, "withdrawal/internal", "withdrawal operation failed")
}
