package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"groupbuy-be/internal/domain"
)

const campaignColumns = `
	id, name, product_type,
	regular_price::text, group_price::text,
	min_participants, max_participants,
	campaign_start_date, campaign_end_date, duration_hours,
	total_slots, available_slots, max_pax,
	allow_partial_payment, partial_payment_type, partial_payment_value::text,
	auto_cancel_enabled, auto_cancel_hours, auto_cancel_send_email,
	special_booker_codes, status, is_active, created_at, updated_at`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c            domain.Campaign
		regularPrice string
		groupPrice   string
		partialType  string
		partialValue *string
		status       string
	)

	err := row.Scan(
		&c.ID, &c.Name, &c.ProductType,
		&regularPrice, &groupPrice,
		&c.MinParticipants, &c.MaxParticipants,
		&c.CampaignStartDate, &c.CampaignEndDate, &c.DurationHours,
		&c.TotalSlots, &c.AvailableSlots, &c.MaxPax,
		&c.AllowPartialPayment, &partialType, &partialValue,
		&c.AutoCancelEnabled, &c.AutoCancelHours, &c.AutoCancelSendEmail,
		&c.SpecialBookerCodes, &status, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.RegularPrice, err = decimal.NewFromString(regularPrice); err != nil {
		return nil, fmt.Errorf("failed to parse regular_price: %w", err)
	}
	if c.GroupPrice, err = decimal.NewFromString(groupPrice); err != nil {
		return nil, fmt.Errorf("failed to parse group_price: %w", err)
	}
	if partialValue != nil {
		v, err := decimal.NewFromString(*partialValue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse partial_payment_value: %w", err)
		}
		c.PartialPaymentValue = &v
	}
	c.PartialPaymentType = domain.PartialPaymentType(partialType)
	c.Status = domain.CampaignStatus(status)

	return &c, nil
}

func getCampaign(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	c, err := scanCampaign(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func createCampaign(ctx context.Context, q querier, c *domain.Campaign) error {
	query := `
		INSERT INTO campaigns (
			name, product_type, regular_price, group_price,
			min_participants, max_participants,
			campaign_start_date, campaign_end_date, duration_hours,
			total_slots, available_slots, max_pax,
			allow_partial_payment, partial_payment_type, partial_payment_value,
			auto_cancel_enabled, auto_cancel_hours, auto_cancel_send_email,
			special_booker_codes, status, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id
	`

	var partialValue *string
	if c.PartialPaymentValue != nil {
		s := c.PartialPaymentValue.StringFixedBank(2)
		partialValue = &s
	}

	err := q.QueryRow(ctx, query,
		c.Name, c.ProductType,
		c.RegularPrice.StringFixedBank(2), c.GroupPrice.StringFixedBank(2),
		c.MinParticipants, c.MaxParticipants,
		c.CampaignStartDate, c.CampaignEndDate, c.DurationHours,
		c.TotalSlots, c.AvailableSlots, c.MaxPax,
		c.AllowPartialPayment, string(c.PartialPaymentType), partialValue,
		c.AutoCancelEnabled, c.AutoCancelHours, c.AutoCancelSendEmail,
		c.SpecialBookerCodes, string(c.Status), c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// updateCampaign persists the mutable slice of the campaign row: slot
// counters, lifecycle status and activation flag.
func updateCampaign(ctx context.Context, q querier, c *domain.Campaign) error {
	query := `
		UPDATE campaigns
		SET available_slots = $2, status = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	c.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx, query, c.ID, c.AvailableSlots, string(c.Status), c.IsActive, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %d not found", c.ID)
	}
	return nil
}

// paxUsed aggregates pax over active participants of live groups.
func paxUsed(ctx context.Context, q querier, campaignID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(p.pax_count), 0)
		FROM participants p
		JOIN groups g ON g.id = p.group_id
		WHERE p.campaign_id = $1
		  AND p.status = 'active'
		  AND g.status IN ('active', 'success')
	`

	var used int
	if err := q.QueryRow(ctx, query, campaignID).Scan(&used); err != nil {
		return 0, fmt.Errorf("failed to sum pax: %w", err)
	}
	return used, nil
}

func hasActiveParticipantEmail(ctx context.Context, q querier, campaignID int64, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM participants
			WHERE campaign_id = $1 AND lower(participant_email) = lower($2) AND status = 'active'
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, campaignID, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check participant email: %w", err)
	}
	return exists, nil
}

func listAutoCancelCampaigns(ctx context.Context, q querier) ([]*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE auto_cancel_enabled = true`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-cancel campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}
