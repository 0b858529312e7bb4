package handler

import (
	"net/http"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/middleware"
	"groupbuy-be/internal/service"
	"groupbuy-be/internal/service/sweep"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

// AdminHandler serves the back-office operations: payment verification
// and refunds, group overrides, participant removal and manual sweeps.
type AdminHandler struct {
	groups   *service.GroupService
	payments *service.PaymentService
	sweeper  *sweep.Sweeper
	cache    *redis.Client
	log      *logger.Logger
}

// NewAdminHandler creates a new admin handler. cache may be nil; the
// idempotency guard is then skipped.
func NewAdminHandler(groups *service.GroupService, payments *service.PaymentService, sweeper *sweep.Sweeper, cache *redis.Client, log *logger.Logger) *AdminHandler {
	return &AdminHandler{groups: groups, payments: payments, sweeper: sweeper, cache: cache, log: log}
}

// guardIdempotency claims the X-Idempotency-Key header, if present, so
// a double-submitted admin action runs once. Returns false when the
// key was already claimed; Redis being down fails open.
func (h *AdminHandler) guardIdempotency(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-Idempotency-Key")
	if key == "" || h.cache == nil {
		return true
	}

	ok, err := h.cache.SetNX(r.Context(), h.cache.KeyBuilder.KeyAdminAction(key), "1", redis.TTLAdminAction)
	if err != nil {
		h.log.WithError(err).Warn("admin idempotency check unavailable")
		return true
	}
	if !ok {
		writeError(w, r, h.log, errors.NewIllegalTransition("this action was already submitted"))
		return false
	}
	return true
}

// VerifyPayment handles POST /api/v1/admin/payments/{id}/verify.
func (h *AdminHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if !h.guardIdempotency(w, r) {
		return
	}
	paymentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.VerifyPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	payment, err := h.payments.VerifyPayment(r.Context(), paymentID, middleware.AdminUser(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, payment)
}

// RefundPayment handles POST /api/v1/admin/payments/{id}/refund.
func (h *AdminHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	if !h.guardIdempotency(w, r) {
		return
	}
	paymentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.RefundPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.payments.Refund(r.Context(), paymentID, middleware.AdminUser(r.Context()), &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "refunded"})
}

// CancelGroup handles POST /api/v1/admin/groups/{id}/cancel.
func (h *AdminHandler) CancelGroup(w http.ResponseWriter, r *http.Request) {
	if !h.guardIdempotency(w, r) {
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.Reason == "" {
		writeError(w, r, h.log, errors.NewValidationError("reason is required", nil))
		return
	}

	if err := h.groups.CancelGroup(r.Context(), groupID, req.Reason, middleware.AdminUser(r.Context())); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ForceSuccess handles POST /api/v1/admin/groups/{id}/force-success.
func (h *AdminHandler) ForceSuccess(w http.ResponseWriter, r *http.Request) {
	if !h.guardIdempotency(w, r) {
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.groups.ForceSuccess(r.Context(), groupID, middleware.AdminUser(r.Context())); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "success"})
}

// CancelParticipant handles POST /api/v1/admin/participants/{id}/cancel.
func (h *AdminHandler) CancelParticipant(w http.ResponseWriter, r *http.Request) {
	if !h.guardIdempotency(w, r) {
		return
	}
	participantID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.Reason == "" {
		writeError(w, r, h.log, errors.NewValidationError("reason is required", nil))
		return
	}

	if err := h.groups.CancelParticipant(r.Context(), participantID, req.Reason, middleware.AdminUser(r.Context())); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RunSweep handles POST /api/v1/admin/sweep, triggering one full
// maintenance pass outside the ticker schedule.
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	h.sweeper.RunOnce(r.Context())
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "completed"})
}
