package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/gateway"
	"groupbuy-be/internal/repository"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
)

const paymentExpiredReason = "payment window expired"

// PaymentService drives the payment lifecycle. All state changes take
// the full lock chain campaign, group, participant, payment, so a
// verification never races a group resolution or a sweep.
type PaymentService struct {
	store  repository.Store
	groups *GroupService
	gw     gateway.Gateway
	log    *logger.Logger
}

// NewPaymentService creates a new PaymentService. It shares the group
// service's post-commit dispatch so payment events flow through the
// same dedup path.
func NewPaymentService(store repository.Store, groups *GroupService, gw gateway.Gateway, log *logger.Logger) *PaymentService {
	return &PaymentService{store: store, groups: groups, gw: gw, log: log}
}

// VerifyPayment is the admin path for bank and QR transfers: the
// operator checked the uploaded slip and marks the payment paid.
func (s *PaymentService) VerifyPayment(ctx context.Context, paymentID int64, adminUser string, req *domain.VerifyPaymentRequest) (*domain.Payment, error) {
	var (
		verified *domain.Payment
		sink     eventSink
	)
	err := s.withPaymentLocks(ctx, paymentID, func(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, p *domain.Participant, payment *domain.Payment) error {
		now := s.groups.now()
		if !payment.Status.CanTransitionTo(domain.PaymentStatusPaid) {
			return errors.NewIllegalTransition(
				fmt.Sprintf("payment is %s and cannot be verified", payment.Status))
		}
		if now.After(payment.PaymentTimeout) {
			return errors.NewIllegalTransition("payment deadline has passed")
		}
		if g.Status == domain.GroupStatusFailed || g.Status == domain.GroupStatusCancelled {
			return errors.NewIllegalTransition("group is closed; the payment must be refunded, not verified")
		}

		payment.Status = domain.PaymentStatusPaid
		payment.PaidAt = &now
		payment.AdminVerifiedBy = adminUser
		payment.AdminVerifiedAt = &now
		if req != nil {
			if req.SlipImage != "" {
				payment.SlipImage = req.SlipImage
			}
			payment.TransferDate = req.TransferDate
			payment.TransferTime = req.TransferTime
			payment.AdminNotes = req.Notes
		}
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		p.PaymentStatus = domain.PaymentStatusPaid
		p.PaymentDate = &now
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		event := domain.NewEvent(domain.EventPaymentConfirmed,
			fmt.Sprintf("payment of %s confirmed for %s by %s", payment.TotalAmount.StringFixedBank(2), p.Email, adminUser), now)
		event.CampaignID = c.ID
		event.GroupID = g.ID
		event.ParticipantID = p.ID
		event.PaymentID = payment.ID
		sink.add(event)

		verified = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.groups.flush(ctx, &sink)
	return verified, nil
}

// InitiateCardPayment opens a charge with the card provider for a
// pending stripe payment and pins the charge reference to the record.
// The provider call happens outside any transaction.
func (s *PaymentService) InitiateCardPayment(ctx context.Context, paymentID int64) (*gateway.ChargeResult, error) {
	peek, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, errors.NewNotFoundError("payment not found")
	}
	if peek.Method != domain.PaymentMethodStripe {
		return nil, errors.NewValidationError("payment is not a card payment", nil)
	}
	if peek.Status != domain.PaymentStatusPending {
		return nil, errors.NewIllegalTransition(
			fmt.Sprintf("payment is %s and cannot be charged", peek.Status))
	}
	if s.groups.now().After(peek.PaymentTimeout) {
		return nil, errors.NewIllegalTransition("payment deadline has passed")
	}

	result, err := s.gw.CreateCharge(ctx, gateway.ChargeRequest{
		PaymentID:      peek.ID,
		Amount:         peek.TotalAmount,
		Currency:       "thb",
		Description:    fmt.Sprintf("group-buy deposit, payment %d", peek.ID),
		IdempotencyKey: gateway.NewIdempotencyKey(),
	})
	if err != nil {
		return nil, errors.NewPaymentGatewayError("card charge failed", err)
	}

	err = s.withPaymentLocks(ctx, paymentID, func(ctx context.Context, tx repository.Tx, _ *domain.Campaign, _ *domain.Group, _ *domain.Participant, payment *domain.Payment) error {
		if payment.Status != domain.PaymentStatusPending {
			return errors.NewIllegalTransition(
				fmt.Sprintf("payment is %s and cannot be charged", payment.Status))
		}
		payment.GatewayChargeID = result.ChargeID
		return tx.UpdatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmCardPayment settles a stripe payment once the provider
// reports the charge captured, typically from a webhook.
func (s *PaymentService) ConfirmCardPayment(ctx context.Context, paymentID int64, chargeID string) error {
	var sink eventSink
	err := s.withPaymentLocks(ctx, paymentID, func(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, p *domain.Participant, payment *domain.Payment) error {
		if payment.Status == domain.PaymentStatusPaid {
			return nil // duplicate webhook delivery
		}
		if !payment.Status.CanTransitionTo(domain.PaymentStatusPaid) {
			return errors.NewIllegalTransition(
				fmt.Sprintf("payment is %s and cannot be confirmed", payment.Status))
		}
		now := s.groups.now()
		if now.After(payment.PaymentTimeout) {
			return errors.NewIllegalTransition("payment deadline has passed")
		}
		if payment.GatewayChargeID != "" && payment.GatewayChargeID != chargeID {
			return errors.NewValidationError("charge reference does not match the payment", nil)
		}

		payment.Status = domain.PaymentStatusPaid
		payment.PaidAt = &now
		payment.GatewayChargeID = chargeID
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		p.PaymentStatus = domain.PaymentStatusPaid
		p.PaymentDate = &now
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		event := domain.NewEvent(domain.EventPaymentConfirmed,
			fmt.Sprintf("card payment of %s captured for %s", payment.TotalAmount.StringFixedBank(2), p.Email), now)
		event.CampaignID = c.ID
		event.GroupID = g.ID
		event.ParticipantID = p.ID
		event.PaymentID = payment.ID
		sink.add(event)
		return nil
	})
	if err != nil {
		return err
	}

	s.groups.flush(ctx, &sink)
	return nil
}

// Refund returns a paid payment at an admin's request, in full or for
// a partial amount. The record flips first; a card-provider refund is
// issued after commit.
func (s *PaymentService) Refund(ctx context.Context, paymentID int64, actor string, req *domain.RefundPaymentRequest) error {
	if req == nil || req.Reason == "" {
		return errors.NewValidationError("refund reason is required", nil)
	}

	var sink eventSink
	err := s.withPaymentLocks(ctx, paymentID, func(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, p *domain.Participant, payment *domain.Payment) error {
		if !payment.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
			return errors.NewIllegalTransition(
				fmt.Sprintf("payment is %s and cannot be refunded", payment.Status))
		}

		amount := payment.TotalAmount
		if req.Amount != nil {
			amount = req.Amount.RoundBank(2)
			if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(payment.TotalAmount) {
				return errors.NewValidationError("refund amount must be positive and at most the total paid", nil)
			}
		}

		now := s.groups.now()
		payment.Status = domain.PaymentStatusRefunded
		payment.RefundAmount = &amount
		payment.RefundReason = req.Reason
		payment.RefundedBy = actor
		payment.RefundedAt = &now
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		p.PaymentStatus = domain.PaymentStatusRefunded
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		event := domain.NewEvent(domain.EventRefundIssued,
			fmt.Sprintf("refund of %s issued to %s by %s", amount.StringFixedBank(2), p.Email, actor), now)
		event.CampaignID = c.ID
		event.GroupID = g.ID
		event.ParticipantID = p.ID
		event.PaymentID = payment.ID
		sink.add(event)

		if payment.Method == domain.PaymentMethodStripe && payment.GatewayChargeID != "" {
			sink.refunds = append(sink.refunds, gateway.RefundRequest{
				PaymentID:      payment.ID,
				ChargeID:       payment.GatewayChargeID,
				Amount:         amount,
				Reason:         req.Reason,
				IdempotencyKey: gateway.NewIdempotencyKey(),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.groups.flush(ctx, &sink)
	return nil
}

// RetryPayment issues a fresh pending payment for a participant whose
// previous attempt failed, restarting the timeout window. The
// participant keeps pointing at the latest attempt.
func (s *PaymentService) RetryPayment(ctx context.Context, participantID int64, method domain.PaymentMethod) (*domain.Payment, error) {
	if !method.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown payment method %q", method), nil)
	}

	peek, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, errors.NewNotFoundError("participant not found")
	}
	groupPeek, err := s.store.GetGroupByID(ctx, peek.GroupID)
	if err != nil {
		return nil, err
	}
	if groupPeek == nil {
		return nil, errors.NewNotFoundError("group not found")
	}

	var fresh *domain.Payment
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, groupPeek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, peek.GroupID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}
		if g.Status == domain.GroupStatusFailed || g.Status == domain.GroupStatusCancelled {
			return errors.NewGroupNotActive("group is closed; no further payment is due")
		}
		p, err := tx.GetParticipantForUpdate(ctx, participantID)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.NewNotFoundError("participant not found")
		}
		if p.Status != domain.ParticipantStatusActive {
			return errors.NewIllegalTransition("participant is not active")
		}
		if p.PaymentStatus == domain.PaymentStatusPaid {
			return errors.NewIllegalTransition("participant already paid")
		}

		// Close the previous attempt if it is still open.
		if p.PaymentID != nil {
			prev, err := tx.GetPaymentForUpdate(ctx, *p.PaymentID)
			if err != nil {
				return err
			}
			if prev != nil && prev.Status == domain.PaymentStatusPending {
				prev.Status = domain.PaymentStatusFailed
				prev.FailureReason = "superseded by a new payment attempt"
				if err := tx.UpdatePayment(ctx, prev); err != nil {
					return err
				}
			}
		}

		now := s.groups.now()
		payment := &domain.Payment{
			CampaignID:     g.CampaignID,
			GroupID:        g.ID,
			ParticipantID:  p.ID,
			Method:         method,
			Amount:         p.PaymentAmount,
			FeeAmount:      decimal.Zero,
			TotalAmount:    p.PaymentAmount,
			Status:         domain.PaymentStatusPending,
			PaymentTimeout: now.Add(s.groups.paymentTimeout),
			CreatedAt:      now,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		p.PaymentID = &payment.ID
		p.PaymentStatus = domain.PaymentStatusPending
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		fresh = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// FailExpiredPayment closes out one pending payment whose deadline has
// passed. It re-checks the precondition under lock and reports whether
// it acted; the participant row is left for the auto-cancel sweep.
func (s *PaymentService) FailExpiredPayment(ctx context.Context, paymentID int64) (bool, error) {
	var (
		acted bool
		sink  eventSink
	)
	err := s.withPaymentLocks(ctx, paymentID, func(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, p *domain.Participant, payment *domain.Payment) error {
		now := s.groups.now()
		if payment.Status != domain.PaymentStatusPending || !now.After(payment.PaymentTimeout) {
			return nil
		}

		payment.Status = domain.PaymentStatusFailed
		payment.FailureReason = paymentExpiredReason
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		event := domain.NewEvent(domain.EventPaymentTimeout,
			fmt.Sprintf("payment for %s timed out after the %s deadline", p.Email, payment.PaymentTimeout.Format("15:04:05")), now)
		event.CampaignID = c.ID
		event.GroupID = g.ID
		event.ParticipantID = p.ID
		event.PaymentID = payment.ID
		sink.add(event)

		acted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	s.groups.flush(ctx, &sink)
	return acted, nil
}

// GetPaymentStatus returns a participant's latest payment.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, participantID int64) (*domain.Payment, error) {
	payment, err := s.store.GetPaymentByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, errors.NewNotFoundError("payment not found")
	}
	return payment, nil
}

// withPaymentLocks runs fn with the full lock chain held: campaign,
// group, participant, payment, in that order.
func (s *PaymentService) withPaymentLocks(
	ctx context.Context,
	paymentID int64,
	fn func(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, p *domain.Participant, payment *domain.Payment) error,
) error {
	peek, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if peek == nil {
		return errors.NewNotFoundError("payment not found")
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, peek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, peek.GroupID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}
		p, err := tx.GetParticipantForUpdate(ctx, peek.ParticipantID)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.NewNotFoundError("participant not found")
		}
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return errors.NewNotFoundError("payment not found")
		}
		return fn(ctx, tx, c, g, p, payment)
	})
}
