package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"groupbuy-be/internal/domain"
)

// MemStore is an in-memory Store for tests and local development. A
// single mutex stands in for the database's row locks: WithTx holds it
// for the whole transaction, so the pessimistic-locking semantics the
// services rely on are preserved, though without rollback of partial
// writes on error.
type MemStore struct {
	mu sync.Mutex

	campaigns    map[int64]*domain.Campaign
	groups       map[int64]*domain.Group
	participants map[int64]*domain.Participant
	payments     map[int64]*domain.Payment

	nextCampaignID    int64
	nextGroupID       int64
	nextParticipantID int64
	nextPaymentID     int64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		campaigns:         make(map[int64]*domain.Campaign),
		groups:            make(map[int64]*domain.Group),
		participants:      make(map[int64]*domain.Participant),
		payments:          make(map[int64]*domain.Payment),
		nextCampaignID:    1,
		nextGroupID:       1,
		nextParticipantID: 1,
		nextPaymentID:     1,
	}
}

// memTx implements Tx against the MemStore while the store mutex is held.
type memTx struct {
	s *MemStore
}

// WithTx serializes the transaction under the store mutex.
func (s *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &memTx{s: s})
}

// Seed inserts rows directly, assigning ids. Intended for test setup.
func (s *MemStore) Seed(campaigns []*domain.Campaign, groups []*domain.Group, participants []*domain.Participant, payments []*domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range campaigns {
		if c.ID == 0 {
			c.ID = s.nextCampaignID
		}
		if c.ID >= s.nextCampaignID {
			s.nextCampaignID = c.ID + 1
		}
		s.campaigns[c.ID] = c
	}
	for _, g := range groups {
		if g.ID == 0 {
			g.ID = s.nextGroupID
		}
		if g.ID >= s.nextGroupID {
			s.nextGroupID = g.ID + 1
		}
		s.groups[g.ID] = g
	}
	for _, p := range participants {
		if p.ID == 0 {
			p.ID = s.nextParticipantID
		}
		if p.ID >= s.nextParticipantID {
			s.nextParticipantID = p.ID + 1
		}
		s.participants[p.ID] = p
	}
	for _, p := range payments {
		if p.ID == 0 {
			p.ID = s.nextPaymentID
		}
		if p.ID >= s.nextPaymentID {
			s.nextPaymentID = p.ID + 1
		}
		s.payments[p.ID] = p
	}
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	if c == nil {
		return nil
	}
	cp := *c
	if c.TotalSlots != nil {
		v := *c.TotalSlots
		cp.TotalSlots = &v
	}
	if c.AvailableSlots != nil {
		v := *c.AvailableSlots
		cp.AvailableSlots = &v
	}
	if c.MaxPax != nil {
		v := *c.MaxPax
		cp.MaxPax = &v
	}
	if c.MaxParticipants != nil {
		v := *c.MaxParticipants
		cp.MaxParticipants = &v
	}
	if c.PartialPaymentValue != nil {
		v := *c.PartialPaymentValue
		cp.PartialPaymentValue = &v
	}
	cp.SpecialBookerCodes = append([]string(nil), c.SpecialBookerCodes...)
	return &cp
}

func copyGroup(g *domain.Group) *domain.Group {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}

func copyParticipant(p *domain.Participant) *domain.Participant {
	if p == nil {
		return nil
	}
	cp := *p
	if p.PaymentID != nil {
		v := *p.PaymentID
		cp.PaymentID = &v
	}
	return &cp
}

func copyPayment(p *domain.Payment) *domain.Payment {
	if p == nil {
		return nil
	}
	cp := *p
	if p.RefundAmount != nil {
		v := *p.RefundAmount
		cp.RefundAmount = &v
	}
	return &cp
}

// Store reads. Each takes the mutex briefly and returns a copy.

func (s *MemStore) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCampaign(s.campaigns[id]), nil
}

func (s *MemStore) GetGroupByID(ctx context.Context, id int64) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyGroup(s.groups[id]), nil
}

func (s *MemStore) GetGroupByCode(ctx context.Context, codeOrToken string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyGroup(s.findGroupByCode(codeOrToken)), nil
}

func (s *MemStore) findGroupByCode(codeOrToken string) *domain.Group {
	for _, g := range s.groups {
		if g.GroupCode == codeOrToken || g.ShareToken == codeOrToken {
			return g
		}
	}
	return nil
}

func (s *MemStore) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyParticipant(s.participants[id]), nil
}

func (s *MemStore) ListGroupParticipants(ctx context.Context, groupID int64, status domain.ParticipantStatus) ([]*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listParticipants(groupID, func(p *domain.Participant) bool {
		return status == "" || p.Status == status
	}), nil
}

func (s *MemStore) listParticipants(groupID int64, keep func(*domain.Participant) bool) []*domain.Participant {
	var out []*domain.Participant
	for _, p := range s.participants {
		if p.GroupID == groupID && keep(p) {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinOrder < out[j].JoinOrder })
	return out
}

func (s *MemStore) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPayment(s.payments[id]), nil
}

func (s *MemStore) GetPaymentByParticipant(ctx context.Context, participantID int64) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Payment
	for _, p := range s.payments {
		if p.ParticipantID == participantID && (latest == nil || p.ID > latest.ID) {
			latest = p
		}
	}
	return copyPayment(latest), nil
}

func (s *MemStore) ListExpiredPendingPaymentIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, p := range s.payments {
		if p.Status == domain.PaymentStatusPending && p.PaymentTimeout.Before(now) {
			ids = append(ids, p.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemStore) ListAutoCancelCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range s.campaigns {
		if c.AutoCancelEnabled {
			out = append(out, copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListOverduePendingParticipantIDs(ctx context.Context, campaignID int64, cutoff time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, p := range s.participants {
		if p.CampaignID == campaignID && p.Status == domain.ParticipantStatusActive &&
			p.PaymentStatus == domain.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			ids = append(ids, p.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemStore) ListExpiredActiveGroupIDs(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, g := range s.groups {
		if g.Status == domain.GroupStatusActive && !now.Before(g.ExpiresAt) {
			ids = append(ids, g.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemStore) ListRefundableGroupIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, g := range s.groups {
		if g.Status != domain.GroupStatusFailed && g.Status != domain.GroupStatusCancelled {
			continue
		}
		for _, p := range s.participants {
			if p.GroupID == g.ID && p.PaymentStatus == domain.PaymentStatusPaid {
				ids = append(ids, g.ID)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Tx methods. The store mutex is already held.

func (t *memTx) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.ID = t.s.nextCampaignID
	t.s.nextCampaignID++
	t.s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (t *memTx) GetCampaignForUpdate(ctx context.Context, id int64) (*domain.Campaign, error) {
	return copyCampaign(t.s.campaigns[id]), nil
}

func (t *memTx) UpdateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	t.s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (t *memTx) PaxUsed(ctx context.Context, campaignID int64) (int, error) {
	used := 0
	for _, p := range t.s.participants {
		if p.CampaignID != campaignID || p.Status != domain.ParticipantStatusActive {
			continue
		}
		g := t.s.groups[p.GroupID]
		if g == nil {
			continue
		}
		if g.Status == domain.GroupStatusActive || g.Status == domain.GroupStatusSuccess {
			used += p.PaxCount
		}
	}
	return used, nil
}

func (t *memTx) HasActiveParticipantEmail(ctx context.Context, campaignID int64, email string) (bool, error) {
	for _, p := range t.s.participants {
		if p.CampaignID == campaignID && p.Status == domain.ParticipantStatusActive &&
			strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateGroup(ctx context.Context, g *domain.Group) error {
	g.ID = t.s.nextGroupID
	t.s.nextGroupID++
	t.s.groups[g.ID] = copyGroup(g)
	return nil
}

func (t *memTx) GetGroupForUpdate(ctx context.Context, id int64) (*domain.Group, error) {
	return copyGroup(t.s.groups[id]), nil
}

func (t *memTx) GetGroupByCodeForUpdate(ctx context.Context, codeOrToken string) (*domain.Group, error) {
	return copyGroup(t.s.findGroupByCode(codeOrToken)), nil
}

func (t *memTx) UpdateGroup(ctx context.Context, g *domain.Group) error {
	t.s.groups[g.ID] = copyGroup(g)
	return nil
}

func (t *memTx) GroupCodeExists(ctx context.Context, code string) (bool, error) {
	for _, g := range t.s.groups {
		if g.GroupCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ShareTokenExists(ctx context.Context, token string) (bool, error) {
	for _, g := range t.s.groups {
		if g.ShareToken == token {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	p.ID = t.s.nextParticipantID
	t.s.nextParticipantID++
	t.s.participants[p.ID] = copyParticipant(p)
	return nil
}

func (t *memTx) GetParticipantForUpdate(ctx context.Context, id int64) (*domain.Participant, error) {
	return copyParticipant(t.s.participants[id]), nil
}

func (t *memTx) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	t.s.participants[p.ID] = copyParticipant(p)
	return nil
}

func (t *memTx) ListActiveParticipants(ctx context.Context, groupID int64) ([]*domain.Participant, error) {
	return t.s.listParticipants(groupID, func(p *domain.Participant) bool {
		return p.Status == domain.ParticipantStatusActive
	}), nil
}

func (t *memTx) ListPaidParticipants(ctx context.Context, groupID int64) ([]*domain.Participant, error) {
	return t.s.listParticipants(groupID, func(p *domain.Participant) bool {
		return p.PaymentStatus == domain.PaymentStatusPaid
	}), nil
}

func (t *memTx) NextJoinOrder(ctx context.Context, groupID int64) (int, error) {
	max := 0
	for _, p := range t.s.participants {
		if p.GroupID == groupID && p.JoinOrder > max {
			max = p.JoinOrder
		}
	}
	return max + 1, nil
}

func (t *memTx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	p.ID = t.s.nextPaymentID
	t.s.nextPaymentID++
	t.s.payments[p.ID] = copyPayment(p)
	return nil
}

func (t *memTx) GetPaymentForUpdate(ctx context.Context, id int64) (*domain.Payment, error) {
	return copyPayment(t.s.payments[id]), nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	p.UpdatedAt = time.Now().UTC()
	t.s.payments[p.ID] = copyPayment(p)
	return nil
}
