package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbuy-be/internal/domain"
	"groupbuy-be/pkg/errors"
)

func TestVerifyPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 2))
	require.NoError(t, err)

	pay, err := env.payments.VerifyPayment(context.Background(), created.Payment.ID, "supakit", &domain.VerifyPaymentRequest{
		SlipImage:    "slips/abc123.jpg",
		TransferDate: "2026-03-10",
		TransferTime: "12:05",
		Notes:        "verified against bank statement",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, pay.Status)
	require.NotNil(t, pay.PaidAt)
	assert.Equal(t, "supakit", pay.AdminVerifiedBy)
	require.NotNil(t, pay.AdminVerifiedAt)
	assert.Equal(t, "slips/abc123.jpg", pay.SlipImage)
	assert.Equal(t, "verified against bank statement", pay.AdminNotes)

	p := env.participant(t, created.Participant.ID)
	assert.Equal(t, domain.PaymentStatusPaid, p.PaymentStatus)
	require.NotNil(t, p.PaymentDate)

	assert.Contains(t, env.disp.kinds(), domain.EventPaymentConfirmed)

	// A paid payment cannot be verified again.
	_, err = env.payments.VerifyPayment(context.Background(), created.Payment.ID, "supakit", &domain.VerifyPaymentRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))
}

func TestVerifyPaymentDeadline(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)

	// Exactly at the deadline is still allowed.
	env.clock = created.Payment.PaymentTimeout
	_, err = env.payments.VerifyPayment(context.Background(), created.Payment.ID, "supakit", &domain.VerifyPaymentRequest{})
	require.NoError(t, err)
}

func TestVerifyPaymentAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)

	env.advance(16 * time.Minute)
	_, err = env.payments.VerifyPayment(context.Background(), created.Payment.ID, "supakit", &domain.VerifyPaymentRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))
}

func TestVerifyPaymentOnClosedGroup(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)
	require.NoError(t, env.groups.CancelGroup(context.Background(), created.Group.ID, "operator error", "admin"))

	// Still inside the payment window, but the group is gone.
	_, err = env.payments.VerifyPayment(context.Background(), created.Payment.ID, "supakit", &domain.VerifyPaymentRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))
}

func stripeCreateReq(name, email string, pax int) *domain.CreateGroupRequest {
	r := createReq(name, email, pax)
	r.PaymentMethod = domain.PaymentMethodStripe
	return r
}

func TestCardPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, stripeCreateReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)

	result, err := env.payments.InitiateCardPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ChargeID)

	require.Len(t, env.gw.charges, 1)
	assert.Equal(t, created.Payment.ID, env.gw.charges[0].PaymentID)
	assert.Equal(t, "thb", env.gw.charges[0].Currency)
	assert.NotEmpty(t, env.gw.charges[0].IdempotencyKey)

	assert.Equal(t, result.ChargeID, env.payment(t, created.Payment.ID).GatewayChargeID)

	// A confirmation for some other charge never settles this payment.
	err = env.payments.ConfirmCardPayment(context.Background(), created.Payment.ID, "ch_other")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	require.NoError(t, env.payments.ConfirmCardPayment(context.Background(), created.Payment.ID, result.ChargeID))

	pay := env.payment(t, created.Payment.ID)
	assert.Equal(t, domain.PaymentStatusPaid, pay.Status)
	assert.Equal(t, domain.PaymentStatusPaid, env.participant(t, created.Participant.ID).PaymentStatus)

	// Webhooks deliver at least once; the duplicate is absorbed.
	require.NoError(t, env.payments.ConfirmCardPayment(context.Background(), created.Payment.ID, result.ChargeID))
}

func TestConfirmCardPaymentAtDeadline(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, stripeCreateReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)
	result, err := env.payments.InitiateCardPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)

	// Exactly at the deadline is still allowed.
	env.clock = created.Payment.PaymentTimeout
	require.NoError(t, env.payments.ConfirmCardPayment(context.Background(), created.Payment.ID, result.ChargeID))
	assert.Equal(t, domain.PaymentStatusPaid, env.payment(t, created.Payment.ID).Status)
}

func TestConfirmCardPaymentAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, stripeCreateReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)
	result, err := env.payments.InitiateCardPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)

	// A webhook landing after the deadline must not settle the payment;
	// the timeout sweep owns it from here.
	env.advance(16 * time.Minute)
	err = env.payments.ConfirmCardPayment(context.Background(), created.Payment.ID, result.ChargeID)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))

	pay := env.payment(t, created.Payment.ID)
	assert.Equal(t, domain.PaymentStatusPending, pay.Status)
	assert.Nil(t, pay.PaidAt)
}

func TestInitiateCardPaymentRejections(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	t.Run("not a card payment", func(t *testing.T) {
		created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
		require.NoError(t, err)
		_, err = env.payments.InitiateCardPayment(context.Background(), created.Payment.ID)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("past the deadline", func(t *testing.T) {
		created, err := env.groups.CreateGroup(context.Background(), c.ID, stripeCreateReq("Baramee", "baramee@example.com", 1))
		require.NoError(t, err)
		env.advance(16 * time.Minute)
		_, err = env.payments.InitiateCardPayment(context.Background(), created.Payment.ID)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))
	})
}

func TestRefund(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, stripeCreateReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)
	result, err := env.payments.InitiateCardPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)
	require.NoError(t, env.payments.ConfirmCardPayment(context.Background(), created.Payment.ID, result.ChargeID))

	half := created.Payment.TotalAmount.Div(dec("2")).RoundBank(2)
	err = env.payments.Refund(context.Background(), created.Payment.ID, "supakit", &domain.RefundPaymentRequest{
		Reason: "goodwill partial refund",
		Amount: &half,
	})
	require.NoError(t, err)

	pay := env.payment(t, created.Payment.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, pay.Status)
	require.NotNil(t, pay.RefundAmount)
	assert.True(t, pay.RefundAmount.Equal(half))
	assert.Equal(t, "goodwill partial refund", pay.RefundReason)
	assert.Equal(t, "supakit", pay.RefundedBy)

	// The card provider is asked to return the charge after commit.
	require.Len(t, env.gw.refunds, 1)
	assert.Equal(t, result.ChargeID, env.gw.refunds[0].ChargeID)
	assert.True(t, env.gw.refunds[0].Amount.Equal(half))

	assert.Equal(t, domain.PaymentStatusRefunded, env.participant(t, created.Participant.ID).PaymentStatus)
}

func TestRefundValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)

	t.Run("reason required", func(t *testing.T) {
		err := env.payments.Refund(context.Background(), created.Payment.ID, "supakit", &domain.RefundPaymentRequest{})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("pending payment cannot be refunded", func(t *testing.T) {
		err := env.payments.Refund(context.Background(), created.Payment.ID, "supakit", &domain.RefundPaymentRequest{Reason: "oops"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))
	})

	_, err = env.payments.VerifyPayment(context.Background(), created.Payment.ID, "supakit", &domain.VerifyPaymentRequest{})
	require.NoError(t, err)

	t.Run("amount above total", func(t *testing.T) {
		over := created.Payment.TotalAmount.Add(dec("0.01"))
		err := env.payments.Refund(context.Background(), created.Payment.ID, "supakit", &domain.RefundPaymentRequest{
			Reason: "too much",
			Amount: &over,
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		zero := dec("0")
		err := env.payments.Refund(context.Background(), created.Payment.ID, "supakit", &domain.RefundPaymentRequest{
			Reason: "nothing",
			Amount: &zero,
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestFailExpiredPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
	require.NoError(t, err)

	// Still inside the window: nothing to do.
	acted, err := env.payments.FailExpiredPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)
	assert.False(t, acted)

	env.advance(16 * time.Minute)
	acted, err = env.payments.FailExpiredPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)
	assert.True(t, acted)

	pay := env.payment(t, created.Payment.ID)
	assert.Equal(t, domain.PaymentStatusFailed, pay.Status)
	assert.Equal(t, "payment window expired", pay.FailureReason)

	// The participant stays pending for the auto-cancel sweep to find.
	assert.Equal(t, domain.PaymentStatusPending, env.participant(t, created.Participant.ID).PaymentStatus)
	assert.Contains(t, env.disp.kinds(), domain.EventPaymentTimeout)

	// The second pass over the same payment is a no-op.
	acted, err = env.payments.FailExpiredPayment(context.Background(), created.Payment.ID)
	require.NoError(t, err)
	assert.False(t, acted)
}

func TestRetryPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 2))
	require.NoError(t, err)
	firstID := created.Payment.ID

	env.advance(10 * time.Minute)
	fresh, err := env.payments.RetryPayment(context.Background(), created.Participant.ID, domain.PaymentMethodStripe)
	require.NoError(t, err)

	assert.NotEqual(t, firstID, fresh.ID)
	assert.Equal(t, domain.PaymentStatusPending, fresh.Status)
	assert.Equal(t, domain.PaymentMethodStripe, fresh.Method)
	assert.True(t, fresh.TotalAmount.Equal(created.Payment.TotalAmount))
	assert.Equal(t, env.clock.Add(15*time.Minute), fresh.PaymentTimeout)

	// The open first attempt was superseded.
	old := env.payment(t, firstID)
	assert.Equal(t, domain.PaymentStatusFailed, old.Status)
	assert.Equal(t, "superseded by a new payment attempt", old.FailureReason)

	// The participant points at the latest attempt.
	p := env.participant(t, created.Participant.ID)
	require.NotNil(t, p.PaymentID)
	assert.Equal(t, fresh.ID, *p.PaymentID)

	latest, err := env.payments.GetPaymentStatus(context.Background(), created.Participant.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, latest.ID)
}

func TestRetryPaymentRejections(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(nil)

	t.Run("paid participant", func(t *testing.T) {
		created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Anan", "anan@example.com", 1))
		require.NoError(t, err)
		_, err = env.payments.VerifyPayment(context.Background(), created.Payment.ID, "admin", &domain.VerifyPaymentRequest{})
		require.NoError(t, err)

		_, err = env.payments.RetryPayment(context.Background(), created.Participant.ID, domain.PaymentMethodBank)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeIllegalTransition))
	})

	t.Run("closed group", func(t *testing.T) {
		created, err := env.groups.CreateGroup(context.Background(), c.ID, createReq("Baramee", "baramee@example.com", 1))
		require.NoError(t, err)
		require.NoError(t, env.groups.CancelGroup(context.Background(), created.Group.ID, "operator error", "admin"))

		_, err = env.payments.RetryPayment(context.Background(), created.Participant.ID, domain.PaymentMethodBank)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeGroupNotActive))
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := env.payments.RetryPayment(context.Background(), 1, domain.PaymentMethod("cheque"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestGetPaymentStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.payments.GetPaymentStatus(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
