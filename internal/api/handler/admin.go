package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayo6706/withdrawal-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminHandler exposes the admin review workflow. Routes are mounted behind
// RequireRole("admin").
type AdminHandler struct {
	svc *service.ReviewService
}

func NewAdminHandler(svc *service.ReviewService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type reviewBody struct {
	Notes           string `json:"notes"`
	Reason          string `json:"reason"`
	TransactionHash string `json:"transaction_hash"`
}

// Approve moves a withdrawal from review into processing.
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID, withdrawalID, body, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Approve(r.Context(), service.ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      adminID,
		Notes:        body.Notes,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "approve withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}

// Reject turns down a withdrawal and refunds the reservation.
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, withdrawalID, body, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Reject(r.Context(), service.ReviewDecisionRequest{
		WithdrawalID: withdrawalID,
		AdminID:      adminID,
		Notes:        body.Notes,
		Reason:       body.Reason,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "reject withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}

// Complete settles a processing withdrawal after external payout.
func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	adminID, withdrawalID, body, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Complete(r.Context(), service.ReviewDecisionRequest{
		WithdrawalID:    withdrawalID,
		AdminID:         adminID,
		Notes:           body.Notes,
		TransactionHash: body.TransactionHash,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "complete withdrawal failed")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}

// ReviewQueue lists withdrawals awaiting a decision, oldest first.
func (h *AdminHandler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	withdrawals, err := h.svc.ListReviewQueue(r.Context(), status, int32(limit), int32(offset))
	if err != nil {
		h.respondServiceError(w, r, err, "list review queue failed")
		return
	}

	RespondJSON(w, http.StatusOK, withdrawals)
}

func (h *AdminHandler) decodeDecision(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, reviewBody, bool) {
	adminID, isAdmin, err := requestActor(r)
	if err != nil || !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return uuid.Nil, uuid.Nil, reviewBody{}, false
	}

	withdrawalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-withdrawal-id", "Invalid withdrawal ID")
		return uuid.Nil, uuid.Nil, reviewBody{}, false
	}

	var body reviewBody
	if r.Body != nil {
		// An empty body is fine for approve/complete.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	return adminID, withdrawalID, body, true
}

func (h *AdminHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	if status, pType, ok := mapServiceError(err); ok {
		RespondError(w, r, status, pType, err.Error())
		return
	}
	zap.L().Error(logMsg, zap.Error(err))
	RespondError(w, r, http.StatusInternalServerError, "withdrawal/internal", "review operation failed")
}
