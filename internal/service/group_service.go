package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/gateway"
	"groupbuy-be/internal/notify"
	"groupbuy-be/internal/repository"
	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
)

const (
	codeGenAttempts      = 5
	defaultPayTimeout    = 15 * time.Minute
	autoCancelReason     = "auto-cancelled: payment overdue"
	groupExpiredReason   = "group expired before reaching required participants"
	groupCancelledPrefix = "group cancelled: "
)

// errJoinSawExpiredGroup aborts a join transaction so the expiry
// transition can commit in its own transaction.
var errJoinSawExpiredGroup = fmt.Errorf("join observed an expired group")

// eventSink accumulates side effects produced under a transaction.
// Nothing in it leaves the process until the transaction has
// committed; on rollback the sink is discarded.
type eventSink struct {
	events   []domain.Event
	bookings []domain.BookingRecord
	refunds  []gateway.RefundRequest
}

func (s *eventSink) add(e domain.Event) {
	s.events = append(s.events, e)
}

// GroupService implements the group state machine: creation, joining,
// resolution and cancellation, with the capacity ledger folded into
// the campaign row updates it makes under the campaign lock.
type GroupService struct {
	store          repository.Store
	dispatcher     notify.Dispatcher
	exporter       notify.BookingExporter
	gw             gateway.Gateway
	log            *logger.Logger
	paymentTimeout time.Duration

	// now is the canonical UTC clock; overridden in tests.
	now func() time.Time
}

// NewGroupService creates a new GroupService.
func NewGroupService(
	store repository.Store,
	dispatcher notify.Dispatcher,
	exporter notify.BookingExporter,
	gw gateway.Gateway,
	log *logger.Logger,
	paymentTimeout time.Duration,
) *GroupService {
	if paymentTimeout <= 0 {
		paymentTimeout = defaultPayTimeout
	}
	return &GroupService{
		store:          store,
		dispatcher:     dispatcher,
		exporter:       exporter,
		gw:             gw,
		log:            log,
		paymentTimeout: paymentTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateGroup opens a new group on a campaign with the requester as
// leader, reserving a group slot and the leader's pax under the
// campaign lock.
func (s *GroupService) CreateGroup(ctx context.Context, campaignID int64, req *domain.CreateGroupRequest) (*domain.JoinResult, error) {
	if err := validatePerson(req.Leader); err != nil {
		return nil, err
	}
	if err := validateJoinBasics(req.PaxCount, req.PaymentMethod); err != nil {
		return nil, err
	}

	var (
		result domain.JoinResult
		sink   eventSink
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}

		now := s.now()
		if !c.IsActiveNow(now) {
			return errors.NewCampaignClosed("campaign is not available")
		}

		policy, err := PolicyFromCampaign(c)
		if err != nil {
			return err
		}

		if c.MaxParticipants != nil && req.PaxCount > *c.MaxParticipants {
			return errors.NewGroupFull(
				fmt.Sprintf("party of %d exceeds the group limit of %d pax", req.PaxCount, *c.MaxParticipants))
		}

		if !c.HasSpecialCode(req.SpecialCode) {
			dup, err := tx.HasActiveParticipantEmail(ctx, c.ID, req.Leader.Email)
			if err != nil {
				return err
			}
			if dup {
				return errors.NewDuplicateBooking("this email already has an active booking in the campaign")
			}
		}

		// Reserve a group slot: an active group occupies inventory
		// until it fails or is cancelled.
		campaignDirty := false
		if c.TotalSlots != nil {
			if c.AvailableSlots == nil || *c.AvailableSlots <= 0 {
				return errors.NewInventoryExhausted("no group slots remain on this campaign")
			}
			slots := *c.AvailableSlots - 1
			c.AvailableSlots = &slots
			campaignDirty = true
		}

		// Reserve the leader's pax against the campaign-wide cap.
		paxUsed := 0
		if c.MaxPax != nil {
			paxUsed, err = tx.PaxUsed(ctx, c.ID)
			if err != nil {
				return err
			}
			remaining := *c.MaxPax - paxUsed
			if req.PaxCount > remaining {
				return errors.NewCapacityExceeded(
					fmt.Sprintf("only %d pax remain on this campaign", remaining), remaining)
			}
		}

		if campaignLimitReached(c, paxUsed+req.PaxCount) {
			c.Status = domain.CampaignStatusSuccess
			c.IsActive = false
			campaignDirty = true
		}

		group, err := s.newGroup(ctx, tx, c, req, now)
		if err != nil {
			return err
		}
		if err := tx.CreateGroup(ctx, group); err != nil {
			return err
		}

		deposit := policy.DepositFor(req.PaxCount)
		leader, payment, err := s.admitParticipant(ctx, tx, group, req.Leader, req.PaxCount, req.PaymentMethod, deposit, 1, true, now)
		if err != nil {
			return err
		}

		if campaignDirty {
			if err := tx.UpdateCampaign(ctx, c); err != nil {
				return err
			}
		}

		event := domain.NewEvent(domain.EventGroupCreated,
			fmt.Sprintf("group %s created on campaign %q by %s", group.GroupCode, c.Name, leader.Name), now)
		event.CampaignID = c.ID
		event.GroupID = group.ID
		event.ParticipantID = leader.ID
		sink.add(event)

		// A campaign with min_participants of one resolves immediately.
		if group.Full() {
			if err := s.resolveSuccessLocked(ctx, tx, c, group, &sink, now); err != nil {
				return err
			}
		}

		result = domain.JoinResult{Group: group, Participant: leader, Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, &sink)
	return &result, nil
}

// JoinGroup admits a participant into an existing group, looked up by
// group code or share token. The last seat is decided under the group
// lock; the join that fills the group resolves it to success.
func (s *GroupService) JoinGroup(ctx context.Context, codeOrToken string, req *domain.JoinGroupRequest) (*domain.JoinResult, error) {
	if err := validatePerson(req.Participant); err != nil {
		return nil, err
	}
	if err := validateJoinBasics(req.PaxCount, req.PaymentMethod); err != nil {
		return nil, err
	}

	peek, err := s.store.GetGroupByCode(ctx, codeOrToken)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, errors.NewNotFoundError("group not found")
	}

	var (
		result domain.JoinResult
		sink   eventSink
	)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// Lock order: campaign before group.
		c, err := tx.GetCampaignForUpdate(ctx, peek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, peek.ID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}

		now := s.now()
		if g.Status != domain.GroupStatusActive {
			return errors.NewGroupNotActive("group is no longer open for joining")
		}
		if g.Expired(now) {
			return errJoinSawExpiredGroup
		}
		if g.Full() {
			return errors.NewGroupFull("group already reached its required participants")
		}

		// The per-group pax ceiling counts travellers, not seats.
		if c.MaxParticipants != nil {
			members, err := tx.ListActiveParticipants(ctx, g.ID)
			if err != nil {
				return err
			}
			groupPax := 0
			for _, m := range members {
				groupPax += m.PaxCount
			}
			if groupPax+req.PaxCount > *c.MaxParticipants {
				return errors.NewGroupFull(
					fmt.Sprintf("party of %d would exceed the group limit of %d pax", req.PaxCount, *c.MaxParticipants))
			}
		}

		if !c.HasSpecialCode(req.SpecialCode) {
			dup, err := tx.HasActiveParticipantEmail(ctx, c.ID, req.Participant.Email)
			if err != nil {
				return err
			}
			if dup {
				return errors.NewDuplicateBooking("this email already has an active booking in the campaign")
			}
		}

		paxUsed := 0
		campaignDirty := false
		if c.MaxPax != nil {
			paxUsed, err = tx.PaxUsed(ctx, c.ID)
			if err != nil {
				return err
			}
			remaining := *c.MaxPax - paxUsed
			if req.PaxCount > remaining {
				return errors.NewCapacityExceeded(
					fmt.Sprintf("only %d pax remain on this campaign", remaining), remaining)
			}
		}
		if campaignLimitReached(c, paxUsed+req.PaxCount) {
			c.Status = domain.CampaignStatusSuccess
			c.IsActive = false
			campaignDirty = true
		}

		policy, err := PolicyFromCampaign(c)
		if err != nil {
			return err
		}
		deposit := policy.DepositFor(req.PaxCount)

		joinOrder, err := tx.NextJoinOrder(ctx, g.ID)
		if err != nil {
			return err
		}

		participant, payment, err := s.admitParticipant(ctx, tx, g, req.Participant, req.PaxCount, req.PaymentMethod, deposit, joinOrder, false, now)
		if err != nil {
			return err
		}

		g.CurrentParticipants++
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return err
		}
		if campaignDirty {
			if err := tx.UpdateCampaign(ctx, c); err != nil {
				return err
			}
		}

		event := domain.NewEvent(domain.EventParticipantJoined,
			fmt.Sprintf("%s joined group %s (%d/%d)", participant.Name, g.GroupCode, g.CurrentParticipants, g.RequiredParticipants), now)
		event.CampaignID = c.ID
		event.GroupID = g.ID
		event.ParticipantID = participant.ID
		sink.add(event)

		if g.Full() {
			if err := s.resolveSuccessLocked(ctx, tx, c, g, &sink, now); err != nil {
				return err
			}
		}

		result = domain.JoinResult{Group: g, Participant: participant, Payment: payment}
		return nil
	})
	if err == errJoinSawExpiredGroup {
		// The join loses, and the expiry is applied as a side effect
		// in its own committed transaction.
		if _, rerr := s.ResolveExpiredGroup(ctx, peek.ID); rerr != nil {
			s.log.WithError(rerr).WithField("group_id", peek.ID).Error("failed to resolve expired group on join")
		}
		return nil, errors.NewGroupExpired("group expired before the join completed")
	}
	if err != nil {
		return nil, err
	}

	s.flush(ctx, &sink)
	return &result, nil
}

// newGroup assembles a group row with fresh identifiers, retrying on
// the unlikely code or token collision.
func (s *GroupService) newGroup(ctx context.Context, tx repository.Tx, c *domain.Campaign, req *domain.CreateGroupRequest, now time.Time) (*domain.Group, error) {
	var code string
	for attempt := 0; ; attempt++ {
		candidate, err := newGroupCode()
		if err != nil {
			return nil, err
		}
		exists, err := tx.GroupCodeExists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !exists {
			code = candidate
			break
		}
		if attempt+1 >= codeGenAttempts {
			return nil, errors.NewInternalError("failed to generate a unique group code", nil)
		}
	}

	var token string
	for attempt := 0; ; attempt++ {
		candidate, err := newShareToken()
		if err != nil {
			return nil, err
		}
		exists, err := tx.ShareTokenExists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !exists {
			token = candidate
			break
		}
		if attempt+1 >= codeGenAttempts {
			return nil, errors.NewInternalError("failed to generate a unique share token", nil)
		}
	}

	return &domain.Group{
		CampaignID:           c.ID,
		GroupCode:            code,
		ShareToken:           token,
		CustomName:           req.CustomGroupName,
		LeaderName:           req.Leader.Name,
		LeaderEmail:          req.Leader.Email,
		LeaderPhone:          req.Leader.Phone,
		LeaderCustomerID:     req.CustomerID,
		CurrentParticipants:  1,
		RequiredParticipants: c.MinParticipants,
		Status:               domain.GroupStatusActive,
		CreatedAt:            now,
		ExpiresAt:            now.Add(time.Duration(c.DurationHours) * time.Hour),
	}, nil
}

// admitParticipant inserts the participant row and its pending payment
// and wires the weak back-reference between them.
func (s *GroupService) admitParticipant(
	ctx context.Context,
	tx repository.Tx,
	g *domain.Group,
	info domain.PersonInfo,
	paxCount int,
	method domain.PaymentMethod,
	deposit decimal.Decimal,
	joinOrder int,
	isLeader bool,
	now time.Time,
) (*domain.Participant, *domain.Payment, error) {
	participant := &domain.Participant{
		GroupID:       g.ID,
		CampaignID:    g.CampaignID,
		Name:          info.Name,
		Email:         info.Email,
		Phone:         info.Phone,
		IsLeader:      isLeader,
		JoinOrder:     joinOrder,
		PaxCount:      paxCount,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentAmount: deposit,
		Status:        domain.ParticipantStatusActive,
		CreatedAt:     now,
	}
	if err := tx.CreateParticipant(ctx, participant); err != nil {
		return nil, nil, err
	}

	payment := &domain.Payment{
		CampaignID:     g.CampaignID,
		GroupID:        g.ID,
		ParticipantID:  participant.ID,
		Method:         method,
		Amount:         deposit,
		FeeAmount:      decimal.Zero,
		TotalAmount:    deposit,
		Status:         domain.PaymentStatusPending,
		PaymentTimeout: now.Add(s.paymentTimeout),
		CreatedAt:      now,
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, nil, err
	}

	participant.PaymentID = &payment.ID
	if err := tx.UpdateParticipant(ctx, participant); err != nil {
		return nil, nil, err
	}
	return participant, payment, nil
}

// resolveSuccessLocked transitions an active group to success under
// the locks already held, and stages the booking export. The group
// slot consumed at creation stays consumed.
func (s *GroupService) resolveSuccessLocked(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, sink *eventSink, now time.Time) error {
	g.Status = domain.GroupStatusSuccess
	g.CompletedAt = &now
	if err := tx.UpdateGroup(ctx, g); err != nil {
		return err
	}

	event := domain.NewEvent(domain.EventGroupSuccess,
		fmt.Sprintf("group %s reached %d participants", g.GroupCode, g.CurrentParticipants), now)
	event.CampaignID = c.ID
	event.GroupID = g.ID
	sink.add(event)

	bookings, err := s.buildBookingRecords(ctx, tx, c, g, now)
	if err != nil {
		return err
	}
	sink.bookings = append(sink.bookings, bookings...)
	return nil
}

// buildBookingRecords produces one master record for the group plus
// one record per active participant, referenced off the group code.
func (s *GroupService) buildBookingRecords(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, now time.Time) ([]domain.BookingRecord, error) {
	participants, err := tx.ListActiveParticipants(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	totalPax := 0
	totalDeposit := decimal.Zero
	records := make([]domain.BookingRecord, 0, len(participants)+1)
	for _, p := range participants {
		totalPax += p.PaxCount
		totalDeposit = totalDeposit.Add(p.PaymentAmount)
	}

	records = append(records, domain.BookingRecord{
		Reference:    g.MasterReference(),
		IsMaster:     true,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		ProductType:  c.ProductType,
		GroupID:      g.ID,
		GroupCode:    g.GroupCode,
		Name:         g.LeaderName,
		Email:        g.LeaderEmail,
		Phone:        g.LeaderPhone,
		PaxCount:     totalPax,
		Amount:       totalDeposit,
		CreatedAt:    now,
	})
	for _, p := range participants {
		records = append(records, domain.BookingRecord{
			Reference:     g.ParticipantReference(p.JoinOrder),
			CampaignID:    c.ID,
			CampaignName:  c.Name,
			ProductType:   c.ProductType,
			GroupID:       g.ID,
			GroupCode:     g.GroupCode,
			ParticipantID: p.ID,
			Name:          p.Name,
			Email:         p.Email,
			Phone:         p.Phone,
			PaxCount:      p.PaxCount,
			PaymentStatus: p.PaymentStatus,
			Amount:        p.PaymentAmount,
			CreatedAt:     now,
		})
	}
	return records, nil
}

// failGroupLocked transitions an active group to failed, releases its
// campaign slot and stages refunds for anyone who already paid.
func (s *GroupService) failGroupLocked(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, sink *eventSink, now time.Time) error {
	g.Status = domain.GroupStatusFailed
	g.CancelledAt = &now
	if err := tx.UpdateGroup(ctx, g); err != nil {
		return err
	}
	if err := s.releaseGroupSlotLocked(ctx, tx, c); err != nil {
		return err
	}

	event := domain.NewEvent(domain.EventGroupFailed,
		fmt.Sprintf("group %s expired with %d of %d participants", g.GroupCode, g.CurrentParticipants, g.RequiredParticipants), now)
	event.CampaignID = c.ID
	event.GroupID = g.ID
	sink.add(event)

	return s.refundPaidParticipantsLocked(ctx, tx, c, g, groupExpiredReason, "system", sink, now)
}

// cancelGroupLocked transitions a group to cancelled from either
// active or success, releasing the slot in both cases.
func (s *GroupService) cancelGroupLocked(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, reason, actor string, sink *eventSink, now time.Time) error {
	g.Status = domain.GroupStatusCancelled
	g.CancelledAt = &now
	if err := tx.UpdateGroup(ctx, g); err != nil {
		return err
	}
	if err := s.releaseGroupSlotLocked(ctx, tx, c); err != nil {
		return err
	}

	event := domain.NewEvent(domain.EventGroupCancelled,
		fmt.Sprintf("group %s cancelled by %s: %s", g.GroupCode, actor, reason), now)
	event.CampaignID = c.ID
	event.GroupID = g.ID
	sink.add(event)

	return s.refundPaidParticipantsLocked(ctx, tx, c, g, groupCancelledPrefix+reason, actor, sink, now)
}

// releaseGroupSlotLocked returns one group slot to the campaign,
// capped at total_slots. A campaign that already closed stays closed;
// slot release never reopens it.
func (s *GroupService) releaseGroupSlotLocked(ctx context.Context, tx repository.Tx, c *domain.Campaign) error {
	if c.TotalSlots == nil || c.AvailableSlots == nil {
		return nil
	}
	slots := *c.AvailableSlots + 1
	if slots > *c.TotalSlots {
		slots = *c.TotalSlots
	}
	c.AvailableSlots = &slots
	return tx.UpdateCampaign(ctx, c)
}

// refundPaidParticipantsLocked marks every paid participant of the
// group refunded and stages the gateway refund calls for after commit.
func (s *GroupService) refundPaidParticipantsLocked(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, reason, actor string, sink *eventSink, now time.Time) error {
	paid, err := tx.ListPaidParticipants(ctx, g.ID)
	if err != nil {
		return err
	}
	for _, p := range paid {
		if err := refundParticipantLocked(ctx, tx, c, g, p, reason, actor, sink, now); err != nil {
			return err
		}
	}
	return nil
}

// refundParticipantLocked flips the participant's payment to refunded
// inside the transaction. The database is the source of truth; the
// gateway call for card payments is staged in the sink and any
// post-commit gateway failure is reconciled out of band.
func refundParticipantLocked(ctx context.Context, tx repository.Tx, c *domain.Campaign, g *domain.Group, p *domain.Participant, reason, actor string, sink *eventSink, now time.Time) error {
	payment, err := tx.GetPaymentForUpdate(ctx, *p.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return errors.NewInternalError(fmt.Sprintf("participant %d has no payment row", p.ID), nil)
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
		return errors.NewIllegalTransition(
			fmt.Sprintf("payment %d is %s and cannot be refunded", payment.ID, payment.Status))
	}

	refundAmount := payment.TotalAmount
	payment.Status = domain.PaymentStatusRefunded
	payment.RefundAmount = &refundAmount
	payment.RefundReason = reason
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
		fmt.Sprintf("refund of %s issued to %s", payment.TotalAmount.StringFixedBank(2), p.Email), now)
	event.CampaignID = c.ID
	event.GroupID = g.ID
	event.ParticipantID = p.ID
	event.PaymentID = payment.ID
	sink.add(event)

	if payment.Method == domain.PaymentMethodStripe && payment.GatewayChargeID != "" {
		sink.refunds = append(sink.refunds, gateway.RefundRequest{
			PaymentID:      payment.ID,
			ChargeID:       payment.GatewayChargeID,
			Amount:         payment.TotalAmount,
			Reason:         reason,
			IdempotencyKey: gateway.NewIdempotencyKey(),
		})
	}
	return nil
}

// CancelParticipant removes a participant from their group at an
// admin's request, refunding them if they had paid.
func (s *GroupService) CancelParticipant(ctx context.Context, participantID int64, reason, actor string) error {
	_, err := s.cancelParticipant(ctx, participantID, reason, actor, true, nil)
	return err
}

// AutoCancelParticipant cancels a participant whose payment stayed
// pending past the campaign's auto-cancel window. It re-checks the
// preconditions under lock and reports whether it acted; sendEmail
// gates only the notification, never the cancellation itself.
func (s *GroupService) AutoCancelParticipant(ctx context.Context, participantID int64, cutoff time.Time, sendEmail bool) (bool, error) {
	return s.cancelParticipant(ctx, participantID, autoCancelReason, "system", sendEmail,
		func(p *domain.Participant) bool {
			return p.PaymentStatus == domain.PaymentStatusPending && p.CreatedAt.Before(cutoff)
		})
}

func (s *GroupService) cancelParticipant(ctx context.Context, participantID int64, reason, actor string, emit bool, precondition func(*domain.Participant) bool) (bool, error) {
	peek, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return false, err
	}
	if peek == nil {
		return false, errors.NewNotFoundError("participant not found")
	}
	groupPeek, err := s.store.GetGroupByID(ctx, peek.GroupID)
	if err != nil {
		return false, err
	}
	if groupPeek == nil {
		return false, errors.NewNotFoundError("group not found")
	}

	var (
		acted bool
		sink  eventSink
	)
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
		p, err := tx.GetParticipantForUpdate(ctx, participantID)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.NewNotFoundError("participant not found")
		}

		if p.Status != domain.ParticipantStatusActive {
			if precondition != nil {
				return nil // already handled by a concurrent actor
			}
			return errors.NewIllegalTransition("participant is not active")
		}
		if precondition != nil && !precondition(p) {
			return nil
		}

		now := s.now()
		if p.PaymentStatus == domain.PaymentStatusPaid {
			if err := refundParticipantLocked(ctx, tx, c, g, p, reason, actor, &sink, now); err != nil {
				return err
			}
		} else if p.PaymentID != nil {
			// A pending payment of a cancelled participant is dead;
			// close it out so the timeout sweep skips it.
			payment, err := tx.GetPaymentForUpdate(ctx, *p.PaymentID)
			if err != nil {
				return err
			}
			if payment != nil && payment.Status == domain.PaymentStatusPending {
				payment.Status = domain.PaymentStatusFailed
				payment.FailureReason = reason
				if err := tx.UpdatePayment(ctx, payment); err != nil {
					return err
				}
			}
		}

		p.Status = domain.ParticipantStatusCancelled
		p.CancelReason = reason
		p.CancelledAt = &now
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		g.CurrentParticipants--
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return err
		}

		if emit {
			event := domain.NewEvent(domain.EventParticipantCancelled,
				fmt.Sprintf("%s removed from group %s: %s", p.Name, g.GroupCode, reason), now)
			event.CampaignID = c.ID
			event.GroupID = g.ID
			event.ParticipantID = p.ID
			sink.add(event)
		}

		acted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	s.flush(ctx, &sink)
	return acted, nil
}

// CancelGroup force-cancels a group on an admin's request. Active and
// successful groups may both be cancelled; failed or already-cancelled
// ones may not.
func (s *GroupService) CancelGroup(ctx context.Context, groupID int64, reason, actor string) error {
	peek, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if peek == nil {
		return errors.NewNotFoundError("group not found")
	}

	var sink eventSink
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, peek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}
		if g.Status != domain.GroupStatusActive && g.Status != domain.GroupStatusSuccess {
			return errors.NewIllegalTransition(
				fmt.Sprintf("group is %s and cannot be cancelled", g.Status))
		}
		return s.cancelGroupLocked(ctx, tx, c, g, reason, actor, &sink, s.now())
	})
	if err != nil {
		return err
	}

	s.flush(ctx, &sink)
	return nil
}

// ForceSuccess resolves an active group to success regardless of its
// participant count. Admin override for edge cases like a group one
// seat short of a departing tour.
func (s *GroupService) ForceSuccess(ctx context.Context, groupID int64, actor string) error {
	peek, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if peek == nil {
		return errors.NewNotFoundError("group not found")
	}

	var sink eventSink
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, peek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}
		if g.Status != domain.GroupStatusActive {
			return errors.NewIllegalTransition(
				fmt.Sprintf("group is %s and cannot be forced to success", g.Status))
		}
		s.log.WithFields(map[string]interface{}{
			"group_id": g.ID,
			"actor":    actor,
		}).Info("forcing group success")
		return s.resolveSuccessLocked(ctx, tx, c, g, &sink, s.now())
	})
	if err != nil {
		return err
	}

	s.flush(ctx, &sink)
	return nil
}

// ResolveExpiredGroup settles a group whose deadline has passed: full
// groups succeed, short ones fail. It re-checks both conditions under
// lock and returns the status it settled on, or empty when the group
// was no longer an expired active group.
func (s *GroupService) ResolveExpiredGroup(ctx context.Context, groupID int64) (domain.GroupStatus, error) {
	peek, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return "", err
	}
	if peek == nil {
		return "", errors.NewNotFoundError("group not found")
	}

	var (
		outcome domain.GroupStatus
		sink    eventSink
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, peek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}

		now := s.now()
		if g.Status != domain.GroupStatusActive || !g.Expired(now) {
			return nil
		}
		if g.Full() {
			outcome = domain.GroupStatusSuccess
			return s.resolveSuccessLocked(ctx, tx, c, g, &sink, now)
		}
		outcome = domain.GroupStatusFailed
		return s.failGroupLocked(ctx, tx, c, g, &sink, now)
	})
	if err != nil {
		return "", err
	}

	s.flush(ctx, &sink)
	return outcome, nil
}

// RefundGroupPayments refunds whatever paid participants remain on a
// failed or cancelled group. Terminal transitions refund inline; this
// is the safety net for a crash between the transition and a retry,
// and it is a no-op when nothing is left to refund.
func (s *GroupService) RefundGroupPayments(ctx context.Context, groupID int64) error {
	peek, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if peek == nil {
		return errors.NewNotFoundError("group not found")
	}

	var sink eventSink
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.GetCampaignForUpdate(ctx, peek.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.NewNotFoundError("campaign not found")
		}
		g, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if g == nil {
			return errors.NewNotFoundError("group not found")
		}
		if g.Status != domain.GroupStatusFailed && g.Status != domain.GroupStatusCancelled {
			return nil
		}
		reason := groupExpiredReason
		if g.Status == domain.GroupStatusCancelled {
			reason = "group cancelled"
		}
		return s.refundPaidParticipantsLocked(ctx, tx, c, g, reason, "system", &sink, s.now())
	})
	if err != nil {
		return err
	}

	s.flush(ctx, &sink)
	return nil
}

// GetGroupView returns the public snapshot of a group for the share
// page, looked up by group code or share token.
func (s *GroupService) GetGroupView(ctx context.Context, codeOrToken string) (*domain.GroupView, error) {
	g, err := s.store.GetGroupByCode(ctx, codeOrToken)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.NewNotFoundError("group not found")
	}
	c, err := s.store.GetCampaign(ctx, g.CampaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.NewNotFoundError("campaign not found")
	}
	participants, err := s.store.ListGroupParticipants(ctx, g.ID, domain.ParticipantStatusActive)
	if err != nil {
		return nil, err
	}

	members := make([]domain.MemberView, 0, len(participants))
	for _, p := range participants {
		members = append(members, domain.MemberView{
			Name:          p.Name,
			IsLeader:      p.IsLeader,
			JoinOrder:     p.JoinOrder,
			PaxCount:      p.PaxCount,
			PaymentStatus: p.PaymentStatus,
		})
	}

	return &domain.GroupView{
		GroupCode:            g.GroupCode,
		CustomName:           g.CustomName,
		CampaignID:           c.ID,
		CampaignName:         c.Name,
		Status:               g.Status,
		CurrentParticipants:  g.CurrentParticipants,
		RequiredParticipants: g.RequiredParticipants,
		ExpiresAt:            g.ExpiresAt,
		Participants:         members,
	}, nil
}

// flush delivers side effects after a successful commit. Failures are
// logged, never propagated: committed state is the source of truth.
func (s *GroupService) flush(ctx context.Context, sink *eventSink) {
	for _, e := range sink.events {
		s.dispatcher.Dispatch(ctx, e)
	}
	if len(sink.bookings) > 0 {
		if err := s.exporter.Export(ctx, sink.bookings); err != nil {
			s.log.WithError(err).Error("booking export failed")
		}
	}
	for _, r := range sink.refunds {
		if err := s.gw.RefundCharge(ctx, r); err != nil {
			s.log.WithError(err).WithField("charge_id", r.ChargeID).Error("gateway refund failed")
		}
	}
}

// campaignLimitReached reports whether the campaign has no remaining
// inventory under either cap after the reservation being made.
func campaignLimitReached(c *domain.Campaign, paxAfter int) bool {
	if c.TotalSlots != nil && c.AvailableSlots != nil && *c.AvailableSlots == 0 {
		return true
	}
	if c.MaxPax != nil && paxAfter >= *c.MaxPax {
		return true
	}
	return false
}

func validatePerson(info domain.PersonInfo) error {
	if info.Name == "" {
		return errors.NewValidationError("name is required", nil)
	}
	if info.Email == "" {
		return errors.NewValidationError("email is required", nil)
	}
	return nil
}

func validateJoinBasics(paxCount int, method domain.PaymentMethod) error {
	if paxCount < 1 {
		return errors.NewValidationError("pax_count must be at least 1", nil)
	}
	if !method.Valid() {
		return errors.NewValidationError(fmt.Sprintf("unknown payment method %q", method), nil)
	}
	return nil
}
