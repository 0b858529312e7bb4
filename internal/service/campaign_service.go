package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/repository"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

const defaultAutoCancelHours = 4

// CampaignService manages campaign configuration. Campaign rows are
// written rarely and read on every group operation, so reads go
// through a short-lived cache.
type CampaignService struct {
	store repository.Store
	cache *redis.Client
	log   *logger.Logger
	now   func() time.Time
}

// NewCampaignService creates a new CampaignService. cache may be nil,
// in which case every read hits the store.
func NewCampaignService(store repository.Store, cache *redis.Client, log *logger.Logger) *CampaignService {
	return &CampaignService{
		store: store,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateCampaign validates and persists a new campaign.
func (s *CampaignService) CreateCampaign(ctx context.Context, req *domain.CreateCampaignRequest) (*domain.Campaign, error) {
	if err := validateCampaignRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	c := &domain.Campaign{
		Name:                req.Name,
		ProductType:         req.ProductType,
		RegularPrice:        req.RegularPrice.RoundBank(2),
		GroupPrice:          req.GroupPrice.RoundBank(2),
		MinParticipants:     req.MinParticipants,
		MaxParticipants:     req.MaxParticipants,
		CampaignStartDate:   req.CampaignStartDate,
		CampaignEndDate:     req.CampaignEndDate,
		DurationHours:       req.DurationHours,
		TotalSlots:          req.TotalSlots,
		MaxPax:              req.MaxPax,
		AllowPartialPayment: req.AllowPartialPayment,
		PartialPaymentType:  req.PartialPaymentType,
		PartialPaymentValue: req.PartialPaymentValue,
		AutoCancelEnabled:   req.AutoCancelEnabled,
		AutoCancelHours:     req.AutoCancelHours,
		AutoCancelSendEmail: req.AutoCancelSendEmail,
		SpecialBookerCodes:  req.SpecialBookerCodes,
		Status:              domain.CampaignStatusActive,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if c.AutoCancelEnabled && c.AutoCancelHours <= 0 {
		c.AutoCancelHours = defaultAutoCancelHours
	}
	if c.TotalSlots != nil {
		slots := *c.TotalSlots
		c.AvailableSlots = &slots
	}

	// The deposit configuration must be coherent before any group can
	// depend on it.
	if _, err := PolicyFromCampaign(c); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateCampaign(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"campaign_id": c.ID,
		"name":        c.Name,
	}).Info("campaign created")
	return c, nil
}

// GetCampaign returns a campaign by id, serving from cache when fresh.
// Capacity counters in a cached copy may lag a few minutes; anything
// that decides admission re-reads the row under lock.
func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	if s.cache != nil {
		key := s.cache.KeyBuilder.KeyCampaignConfig(id)
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var c domain.Campaign
			if jerr := json.Unmarshal([]byte(raw), &c); jerr == nil {
				return &c, nil
			}
		} else if !redis.IsNil(err) {
			s.log.WithError(err).Warn("campaign cache read failed")
		}
	}

	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.NewNotFoundError("campaign not found")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(c); err == nil {
			key := s.cache.KeyBuilder.KeyCampaignConfig(id)
			if serr := s.cache.Set(ctx, key, raw, redis.TTLCampaignConfig); serr != nil {
				s.log.WithError(serr).Warn("campaign cache write failed")
			}
		}
	}
	return c, nil
}

func validateCampaignRequest(req *domain.CreateCampaignRequest) error {
	if req.Name == "" {
		return errors.NewValidationError("name is required", nil)
	}
	if req.MinParticipants < 1 {
		return errors.NewValidationError("min_participants must be at least 1", nil)
	}
	if req.MaxParticipants != nil && *req.MaxParticipants < req.MinParticipants {
		return errors.NewValidationError("max_participants must be at least min_participants", nil)
	}
	if req.DurationHours < 1 {
		return errors.NewValidationError("duration_hours must be at least 1", nil)
	}
	if !req.CampaignEndDate.After(req.CampaignStartDate) {
		return errors.NewValidationError("campaign_end_date must be after campaign_start_date", nil)
	}
	if req.GroupPrice.LessThanOrEqual(decimal.Zero) {
		return errors.NewValidationError("group_price must be positive", nil)
	}
	if req.RegularPrice.LessThan(req.GroupPrice) {
		return errors.NewValidationError("regular_price must not be below group_price", nil)
	}
	if req.TotalSlots != nil && *req.TotalSlots < 1 {
		return errors.NewValidationError("total_slots must be at least 1", nil)
	}
	if req.MaxPax != nil && *req.MaxPax < 1 {
		return errors.NewValidationError("max_pax must be at least 1", nil)
	}
	return nil
}
