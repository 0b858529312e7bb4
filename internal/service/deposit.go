package service

import (
	"github.com/shopspring/decimal"

	"groupbuy-be/internal/domain"
	"groupbuy-be/pkg/errors"
)

// DepositPolicy computes the amount due at join time. It is a tagged
// variant constructed from the campaign row; unknown tags and missing
// values are rejected at construction, not at computation.
type DepositPolicy struct {
	kind       domain.PartialPaymentType
	groupPrice decimal.Decimal
	value      decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// PolicyFromCampaign builds the deposit policy for a campaign. When
// partial payment is disabled the policy is full price per pax.
func PolicyFromCampaign(c *domain.Campaign) (DepositPolicy, error) {
	if !c.AllowPartialPayment {
		return DepositPolicy{kind: domain.PartialPaymentFull, groupPrice: c.GroupPrice}, nil
	}

	switch c.PartialPaymentType {
	case domain.PartialPaymentFull:
		return DepositPolicy{kind: domain.PartialPaymentFull, groupPrice: c.GroupPrice}, nil
	case domain.PartialPaymentFixed, domain.PartialPaymentPercentage:
		if c.PartialPaymentValue == nil {
			return DepositPolicy{}, errors.NewInvalidConfig("partial_payment_value is required for partial payment")
		}
		return DepositPolicy{
			kind:       c.PartialPaymentType,
			groupPrice: c.GroupPrice,
			value:      *c.PartialPaymentValue,
		}, nil
	default:
		return DepositPolicy{}, errors.NewInvalidConfig("unknown partial_payment_type: " + string(c.PartialPaymentType))
	}
}

// DepositFor returns the deposit for a party of paxCount, banker's
// rounded to two places.
func (p DepositPolicy) DepositFor(paxCount int) decimal.Decimal {
	pax := decimal.NewFromInt(int64(paxCount))

	switch p.kind {
	case domain.PartialPaymentFixed:
		// Per-person fixed deposit.
		return p.value.Mul(pax).RoundBank(2)
	case domain.PartialPaymentPercentage:
		return p.groupPrice.Mul(pax).Mul(p.value.Div(oneHundred)).RoundBank(2)
	default:
		return p.groupPrice.Mul(pax).RoundBank(2)
	}
}
