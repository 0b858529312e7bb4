package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbuy-be/internal/domain"
	"groupbuy-be/pkg/errors"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestDepositFor(t *testing.T) {
	tests := []struct {
		name     string
		campaign domain.Campaign
		paxCount int
		want     string
	}{
		{
			name: "fixed deposit per pax",
			campaign: domain.Campaign{
				GroupPrice:          dec("14900.00"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentFixed,
				PartialPaymentValue: decPtr("2000.00"),
			},
			paxCount: 3,
			want:     "6000.00",
		},
		{
			name: "percentage of group price",
			campaign: domain.Campaign{
				GroupPrice:          dec("14900.00"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentPercentage,
				PartialPaymentValue: decPtr("20.00"),
			},
			paxCount: 2,
			want:     "5960.00",
		},
		{
			name: "full price when partial disabled",
			campaign: domain.Campaign{
				GroupPrice: dec("14900.00"),
			},
			paxCount: 2,
			want:     "29800.00",
		},
		{
			name: "full tag behaves like disabled",
			campaign: domain.Campaign{
				GroupPrice:          dec("999.99"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentFull,
			},
			paxCount: 1,
			want:     "999.99",
		},
		{
			name: "percentage rounds banker's to two places",
			campaign: domain.Campaign{
				GroupPrice:          dec("333.33"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentPercentage,
				PartialPaymentValue: decPtr("12.50"),
			},
			paxCount: 1,
			// 333.33 * 0.125 = 41.66625 -> 41.67
			want: "41.67",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := PolicyFromCampaign(&tt.campaign)
			require.NoError(t, err)
			got := policy.DepositFor(tt.paxCount)
			assert.Equal(t, tt.want, got.StringFixedBank(2))
		})
	}
}

func TestDepositScalesLinearlyWithPax(t *testing.T) {
	campaign := domain.Campaign{
		GroupPrice:          dec("1250.00"),
		AllowPartialPayment: true,
		PartialPaymentType:  domain.PartialPaymentPercentage,
		PartialPaymentValue: decPtr("30.00"),
	}
	policy, err := PolicyFromCampaign(&campaign)
	require.NoError(t, err)

	one := policy.DepositFor(1)
	for pax := 2; pax <= 8; pax++ {
		got := policy.DepositFor(pax)
		want := one.Mul(decimal.NewFromInt(int64(pax)))
		assert.True(t, got.Equal(want), "pax=%d: got %s want %s", pax, got, want)
	}
}

func TestPolicyFromCampaignRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name     string
		campaign domain.Campaign
	}{
		{
			name: "fixed without value",
			campaign: domain.Campaign{
				GroupPrice:          dec("100.00"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentFixed,
			},
		},
		{
			name: "percentage without value",
			campaign: domain.Campaign{
				GroupPrice:          dec("100.00"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentPercentage,
			},
		},
		{
			name: "unknown tag",
			campaign: domain.Campaign{
				GroupPrice:          dec("100.00"),
				AllowPartialPayment: true,
				PartialPaymentType:  domain.PartialPaymentType("instalment"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PolicyFromCampaign(&tt.campaign)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))
		})
	}
}
