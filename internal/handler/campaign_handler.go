package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/service"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
)

// CampaignHandler serves campaign configuration endpoints.
type CampaignHandler struct {
	campaigns *service.CampaignService
	log       *logger.Logger
}

// NewCampaignHandler creates a new campaign handler.
func NewCampaignHandler(campaigns *service.CampaignService, log *logger.Logger) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, log: log}
}

// Create handles POST /api/v1/admin/campaigns.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	campaign, err := h.campaigns.CreateCampaign(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, campaign)
}

// Get handles GET /api/v1/campaigns/{id}.
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	campaign, err := h.campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, campaign)
}

// pathID parses a numeric chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.NewValidationError("invalid "+name+" parameter", nil)
	}
	return id, nil
}
