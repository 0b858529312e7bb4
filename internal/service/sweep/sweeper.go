// Package sweep runs the periodic maintenance passes over the engine's
// state: payment timeouts, overdue-participant auto-cancel, group
// expiry and terminal-group refunds. Every pass re-checks its
// precondition under row locks, so overlapping runs and retries after
// a crash converge on the same state.
package sweep

import (
	"context"
	"sync"
	"time"

	"groupbuy-be/internal/repository"
	"groupbuy-be/internal/service"
	"groupbuy-be/pkg/logger"
)

const (
	defaultInterval   = time.Minute
	paymentSweepBatch = 200
)

// Sweeper drives the four maintenance passes on a ticker.
type Sweeper struct {
	store    repository.Store
	groups   *service.GroupService
	payments *service.PaymentService
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time

	ticker    *time.Ticker
	stop      chan struct{}
	mu        sync.Mutex
	isRunning bool
}

// NewSweeper creates a new Sweeper. A non-positive interval falls back
// to one minute.
func NewSweeper(store repository.Store, groups *service.GroupService, payments *service.PaymentService, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		store:    store,
		groups:   groups,
		payments: payments,
		log:      log,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic sweep routine.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}

	s.ticker = time.NewTicker(s.interval)
	go s.run(ctx)
	s.isRunning = true
	s.log.WithField("interval", s.interval.String()).Info("sweeper started")
}

// Stop shuts the sweep routine down.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.isRunning = false
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes all four passes. Order matters: payments are failed
// before participants are cancelled for them, and groups expire before
// the refund pass looks for leftovers.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.sweepExpiredPayments(ctx)
	s.sweepOverdueParticipants(ctx)
	s.sweepExpiredGroups(ctx)
	s.sweepRefundableGroups(ctx)
}

// sweepExpiredPayments fails pending payments past their deadline.
func (s *Sweeper) sweepExpiredPayments(ctx context.Context) {
	ids, err := s.store.ListExpiredPendingPaymentIDs(ctx, s.now(), paymentSweepBatch)
	if err != nil {
		s.log.WithError(err).Error("expired-payment scan failed")
		return
	}

	failed := 0
	for _, id := range ids {
		acted, err := s.payments.FailExpiredPayment(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("payment_id", id).Error("failed to time out payment")
			continue
		}
		if acted {
			failed++
		}
	}
	if failed > 0 {
		s.log.WithField("count", failed).Info("timed out pending payments")
	}
}

// sweepOverdueParticipants cancels participants whose payment stayed
// open past the campaign's auto-cancel window.
func (s *Sweeper) sweepOverdueParticipants(ctx context.Context) {
	campaigns, err := s.store.ListAutoCancelCampaigns(ctx)
	if err != nil {
		s.log.WithError(err).Error("auto-cancel campaign scan failed")
		return
	}

	for _, c := range campaigns {
		cutoff := s.now().Add(-time.Duration(c.AutoCancelHours) * time.Hour)
		ids, err := s.store.ListOverduePendingParticipantIDs(ctx, c.ID, cutoff)
		if err != nil {
			s.log.WithError(err).WithField("campaign_id", c.ID).Error("overdue-participant scan failed")
			continue
		}

		cancelled := 0
		for _, id := range ids {
			acted, err := s.groups.AutoCancelParticipant(ctx, id, cutoff, c.AutoCancelSendEmail)
			if err != nil {
				s.log.WithError(err).WithField("participant_id", id).Error("auto-cancel failed")
				continue
			}
			if acted {
				cancelled++
			}
		}
		if cancelled > 0 {
			s.log.WithFields(map[string]interface{}{
				"campaign_id": c.ID,
				"count":       cancelled,
			}).Info("auto-cancelled overdue participants")
		}
	}
}

// sweepExpiredGroups settles active groups whose wait window elapsed.
func (s *Sweeper) sweepExpiredGroups(ctx context.Context) {
	ids, err := s.store.ListExpiredActiveGroupIDs(ctx, s.now())
	if err != nil {
		s.log.WithError(err).Error("expired-group scan failed")
		return
	}

	for _, id := range ids {
		outcome, err := s.groups.ResolveExpiredGroup(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("group_id", id).Error("failed to resolve expired group")
			continue
		}
		if outcome != "" {
			s.log.WithFields(map[string]interface{}{
				"group_id": id,
				"outcome":  string(outcome),
			}).Info("resolved expired group")
		}
	}
}

// sweepRefundableGroups catches paid participants left on terminal
// groups by an interrupted transition.
func (s *Sweeper) sweepRefundableGroups(ctx context.Context) {
	ids, err := s.store.ListRefundableGroupIDs(ctx)
	if err != nil {
		s.log.WithError(err).Error("refundable-group scan failed")
		return
	}

	for _, id := range ids {
		if err := s.groups.RefundGroupPayments(ctx, id); err != nil {
			s.log.WithError(err).WithField("group_id", id).Error("refund pass failed")
		}
	}
}
