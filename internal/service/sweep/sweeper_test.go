package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/gateway"
	"groupbuy-be/internal/repository"
	"groupbuy-be/internal/service"
	"groupbuy-be/pkg/logger"
)

type recordingDispatcher struct {
	events []domain.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e domain.Event) {
	d.events = append(d.events, e)
}

type recordingExporter struct {
	batches [][]domain.BookingRecord
}

func (e *recordingExporter) Export(_ context.Context, records []domain.BookingRecord) error {
	e.batches = append(e.batches, records)
	return nil
}

func intPtr(v int) *int { return &v }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedSweepState loads a store with one campaign carrying two stale
// groups: an expired active one whose only member never paid, and an
// already-failed one with a paid member the refund pass must catch.
func seedSweepState(now time.Time) *repository.MemStore {
	store := repository.NewMemStore()

	paymentID1 := int64(1)
	paymentID2 := int64(2)
	paidAt := now.Add(-40 * time.Hour)
	cancelledAt := now.Add(-30 * time.Hour)

	store.Seed(
		[]*domain.Campaign{{
			ID:                  1,
			Name:                "Krabi Island Hopper",
			ProductType:         "tour",
			RegularPrice:        dec("9900.00"),
			GroupPrice:          dec("7900.00"),
			MinParticipants:     2,
			CampaignStartDate:   now.Add(-30 * 24 * time.Hour),
			CampaignEndDate:     now.Add(7 * 24 * time.Hour),
			DurationHours:       48,
			TotalSlots:          intPtr(5),
			AvailableSlots:      intPtr(4),
			AutoCancelEnabled:   true,
			AutoCancelHours:     4,
			AutoCancelSendEmail: true,
			Status:              domain.CampaignStatusActive,
			IsActive:            true,
		}},
		[]*domain.Group{
			{
				ID:                   1,
				CampaignID:           1,
				GroupCode:            "GB-SWEEPA",
				ShareToken:           "tok-sweep-a",
				LeaderName:           "Anan",
				LeaderEmail:          "anan@example.com",
				CurrentParticipants:  1,
				RequiredParticipants: 2,
				Status:               domain.GroupStatusActive,
				CreatedAt:            now.Add(-50 * time.Hour),
				ExpiresAt:            now.Add(-time.Hour),
			},
			{
				ID:                   2,
				CampaignID:           1,
				GroupCode:            "GB-SWEEPB",
				ShareToken:           "tok-sweep-b",
				LeaderName:           "Baramee",
				LeaderEmail:          "baramee@example.com",
				CurrentParticipants:  1,
				RequiredParticipants: 2,
				Status:               domain.GroupStatusFailed,
				CreatedAt:            now.Add(-80 * time.Hour),
				ExpiresAt:            now.Add(-32 * time.Hour),
				CancelledAt:          &cancelledAt,
			},
		},
		[]*domain.Participant{
			{
				ID:            1,
				GroupID:       1,
				CampaignID:    1,
				Name:          "Anan",
				Email:         "anan@example.com",
				IsLeader:      true,
				JoinOrder:     1,
				PaxCount:      1,
				PaymentID:     &paymentID1,
				PaymentStatus: domain.PaymentStatusPending,
				PaymentAmount: dec("7900.00"),
				Status:        domain.ParticipantStatusActive,
				CreatedAt:     now.Add(-6 * time.Hour),
			},
			{
				ID:            2,
				GroupID:       2,
				CampaignID:    1,
				Name:          "Baramee",
				Email:         "baramee@example.com",
				IsLeader:      true,
				JoinOrder:     1,
				PaxCount:      2,
				PaymentID:     &paymentID2,
				PaymentStatus: domain.PaymentStatusPaid,
				PaymentAmount: dec("15800.00"),
				PaymentDate:   &paidAt,
				Status:        domain.ParticipantStatusActive,
				CreatedAt:     now.Add(-80 * time.Hour),
			},
		},
		[]*domain.Payment{
			{
				ID:             1,
				CampaignID:     1,
				GroupID:        1,
				ParticipantID:  1,
				Method:         domain.PaymentMethodBank,
				Amount:         dec("7900.00"),
				TotalAmount:    dec("7900.00"),
				Status:         domain.PaymentStatusPending,
				PaymentTimeout: now.Add(-5 * time.Hour),
				CreatedAt:      now.Add(-6 * time.Hour),
			},
			{
				ID:             2,
				CampaignID:     1,
				GroupID:        2,
				ParticipantID:  2,
				Method:         domain.PaymentMethodBank,
				Amount:         dec("15800.00"),
				TotalAmount:    dec("15800.00"),
				Status:         domain.PaymentStatusPaid,
				PaymentTimeout: now.Add(-76 * time.Hour),
				PaidAt:         &paidAt,
				CreatedAt:      now.Add(-80 * time.Hour),
			},
		},
	)
	return store
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := seedSweepState(now)

	log := logger.NewNop()
	disp := &recordingDispatcher{}
	exp := &recordingExporter{}
	gw := gateway.NewNoop(log)
	groups := service.NewGroupService(store, disp, exp, gw, log, 15*time.Minute)
	payments := service.NewPaymentService(store, groups, gw, log)
	sweeper := NewSweeper(store, groups, payments, log, time.Minute)

	sweeper.RunOnce(ctx)

	// The stale pending payment timed out.
	pay1, err := store.GetPayment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, pay1.Status)
	assert.NotEmpty(t, pay1.FailureReason)

	// Its participant sat pending past the auto-cancel window.
	p1, err := store.GetParticipant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusCancelled, p1.Status)

	// The expired group, now empty, settled as failed and its slot
	// returned to the campaign.
	g1, err := store.GetGroupByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupStatusFailed, g1.Status)

	c, err := store.GetCampaign(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, *c.AvailableSlots)

	// The paid member left behind on the failed group was refunded.
	pay2, err := store.GetPayment(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, pay2.Status)
	p2, err := store.GetParticipant(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, p2.PaymentStatus)

	kinds := map[domain.EventKind]int{}
	for _, e := range disp.events {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[domain.EventPaymentTimeout])
	assert.Equal(t, 1, kinds[domain.EventParticipantCancelled])
	assert.Equal(t, 1, kinds[domain.EventGroupFailed])
	assert.Equal(t, 1, kinds[domain.EventRefundIssued])

	// The second run finds nothing left to do.
	before := len(disp.events)
	sweeper.RunOnce(ctx)
	assert.Len(t, disp.events, before)
}

func TestStartStop(t *testing.T) {
	store := repository.NewMemStore()
	log := logger.NewNop()
	gw := gateway.NewNoop(log)
	groups := service.NewGroupService(store, &recordingDispatcher{}, &recordingExporter{}, gw, log, 15*time.Minute)
	payments := service.NewPaymentService(store, groups, gw, log)
	sweeper := NewSweeper(store, groups, payments, log, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper.Start(ctx)
	sweeper.Start(ctx) // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop() // second stop is a no-op
}
