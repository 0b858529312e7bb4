package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/service"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
)

// GroupHandler serves the public group-buy flow: create, share, join.
type GroupHandler struct {
	groups   *service.GroupService
	payments *service.PaymentService
	log      *logger.Logger
}

// NewGroupHandler creates a new group handler.
func NewGroupHandler(groups *service.GroupService, payments *service.PaymentService, log *logger.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, payments: payments, log: log}
}

// Create handles POST /api/v1/campaigns/{id}/groups.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.CreateGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	result, err := h.groups.CreateGroup(r.Context(), campaignID, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, result)
}

// Get handles GET /api/v1/groups/{code}; code may be a group code or a
// share token.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, r, h.log, errors.NewValidationError("group code is required", nil))
		return
	}

	view, err := h.groups.GetGroupView(r.Context(), code)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, view)
}

// Join handles POST /api/v1/groups/{code}/join.
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, r, h.log, errors.NewValidationError("group code is required", nil))
		return
	}

	var req domain.JoinGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	result, err := h.groups.JoinGroup(r.Context(), code, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, result)
}

// PaymentStatus handles GET /api/v1/participants/{id}/payment.
func (h *GroupHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	participantID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	payment, err := h.payments.GetPaymentStatus(r.Context(), participantID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, payment)
}

// RetryPayment handles POST /api/v1/participants/{id}/payments.
func (h *GroupHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	participantID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req struct {
		PaymentMethod domain.PaymentMethod `json:"payment_method"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	payment, err := h.payments.RetryPayment(r.Context(), participantID, req.PaymentMethod)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, payment)
}

// InitiateCharge handles POST /api/v1/payments/{id}/charge.
func (h *GroupHandler) InitiateCharge(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	result, err := h.payments.InitiateCardPayment(r.Context(), paymentID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, result)
}

// ConfirmCharge handles POST /api/v1/payments/{id}/confirm, the
// card-provider webhook callback.
func (h *GroupHandler) ConfirmCharge(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req struct {
		ChargeID string `json:"charge_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.ChargeID == "" {
		writeError(w, r, h.log, errors.NewValidationError("charge_id is required", nil))
		return
	}

	if err := h.payments.ConfirmCardPayment(r.Context(), paymentID, req.ChargeID); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "paid"})
}
