package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/repository"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

func validCampaignRequest() *domain.CreateCampaignRequest {
	return &domain.CreateCampaignRequest{
		Name:              "Chiang Mai Lantern Festival 4D3N",
		ProductType:       "tour",
		RegularPrice:      dec("18900.005"),
		GroupPrice:        dec("14900.00"),
		MinParticipants:   3,
		CampaignStartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CampaignEndDate:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		DurationHours:     48,
		TotalSlots:        intPtr(10),
	}
}

func TestCreateCampaign(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewCampaignService(store, nil, logger.NewNop())

	req := validCampaignRequest()
	req.AutoCancelEnabled = true

	c, err := svc.CreateCampaign(context.Background(), req)
	require.NoError(t, err)

	assert.NotZero(t, c.ID)
	assert.Equal(t, domain.CampaignStatusActive, c.Status)
	assert.True(t, c.IsActive)
	// Prices are normalized to two places on the way in.
	assert.Equal(t, "18900.00", c.RegularPrice.StringFixedBank(2))
	// available_slots starts at total_slots.
	require.NotNil(t, c.AvailableSlots)
	assert.Equal(t, 10, *c.AvailableSlots)
	// Auto-cancel enabled without a window falls back to the default.
	assert.Equal(t, 4, c.AutoCancelHours)

	stored, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, c.Name, stored.Name)
}

func TestCreateCampaignValidation(t *testing.T) {
	tests := []struct {
		name     string
		mut      func(*domain.CreateCampaignRequest)
		wantType errors.ErrorType
	}{
		{"missing name", func(r *domain.CreateCampaignRequest) { r.Name = "" }, errors.ErrorTypeValidation},
		{"zero min participants", func(r *domain.CreateCampaignRequest) { r.MinParticipants = 0 }, errors.ErrorTypeValidation},
		{"max below min", func(r *domain.CreateCampaignRequest) { r.MaxParticipants = intPtr(2) }, errors.ErrorTypeValidation},
		{"zero duration", func(r *domain.CreateCampaignRequest) { r.DurationHours = 0 }, errors.ErrorTypeValidation},
		{"window inverted", func(r *domain.CreateCampaignRequest) { r.CampaignEndDate = r.CampaignStartDate }, errors.ErrorTypeValidation},
		{"free group price", func(r *domain.CreateCampaignRequest) { r.GroupPrice = dec("0") }, errors.ErrorTypeValidation},
		{"regular below group", func(r *domain.CreateCampaignRequest) { r.RegularPrice = dec("100.00") }, errors.ErrorTypeValidation},
		{"zero slots", func(r *domain.CreateCampaignRequest) { r.TotalSlots = intPtr(0) }, errors.ErrorTypeValidation},
		{"zero max pax", func(r *domain.CreateCampaignRequest) { r.MaxPax = intPtr(0) }, errors.ErrorTypeValidation},
		{"partial payment without value", func(r *domain.CreateCampaignRequest) {
			r.AllowPartialPayment = true
			r.PartialPaymentType = domain.PartialPaymentPercentage
		}, errors.ErrorTypeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewCampaignService(repository.NewMemStore(), nil, logger.NewNop())
			req := validCampaignRequest()
			tt.mut(req)
			_, err := svc.CreateCampaign(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestGetCampaign(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewCampaignService(store, nil, logger.NewNop())

	created, err := svc.CreateCampaign(context.Background(), validCampaignRequest())
	require.NoError(t, err)

	got, err := svc.GetCampaign(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	_, err = svc.GetCampaign(context.Background(), created.ID+1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestGetCampaignServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	store := repository.NewMemStore()
	svc := NewCampaignService(store, cache, logger.NewNop())

	created, err := svc.CreateCampaign(context.Background(), validCampaignRequest())
	require.NoError(t, err)

	// First read misses and fills the cache.
	got, err := svc.GetCampaign(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	// Rename behind the cache's back; the cached copy keeps serving
	// until its TTL runs out.
	_ = store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		c, _ := tx.GetCampaignForUpdate(ctx, created.ID)
		c.Name = "renamed"
		return tx.UpdateCampaign(ctx, c)
	})

	got, err = svc.GetCampaign(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	mr.FastForward(redis.TTLCampaignConfig + time.Second)

	got, err = svc.GetCampaign(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestDiscountPercentage(t *testing.T) {
	c := &domain.Campaign{
		RegularPrice: dec("18900.00"),
		GroupPrice:   dec("14900.00"),
	}
	// (18900 - 14900) / 18900 = 21.16%
	assert.Equal(t, "21.16", c.DiscountPercentage().StringFixedBank(2))

	free := &domain.Campaign{}
	assert.True(t, free.DiscountPercentage().IsZero())
}
