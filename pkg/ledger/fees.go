package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// maxInstantFeeRate keeps the net amount of a one-cent payout positive.
var maxInstantFeeRate = decimal.RequireFromString("0.5")

// FeeRate is the fraction of the gross amount retained on instant payouts.
type FeeRate struct {
	value decimal.Decimal
}

// NewFeeRate validates a rate in [0, 0.5).
func NewFeeRate(rate decimal.Decimal) (FeeRate, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(maxInstantFeeRate) {
		return FeeRate{}, fmt.Errorf("%w: %s must be in [0, %s)", ErrInvalidFeeRate, rate.String(), maxInstantFeeRate.String())
	}
	return FeeRate{value: rate}, nil
}

// ParseFeeRate parses a decimal string such as "0.025".
func ParseFeeRate(raw string) (FeeRate, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return FeeRate{}, fmt.Errorf("%w: %v", ErrInvalidFeeRate, err)
	}
	return NewFeeRate(rate)
}

// DefaultInstantFeeRate is the 2.5% instant payout rate.
func DefaultInstantFeeRate() FeeRate {
	return FeeRate{value: decimal.RequireFromString(defaultInstantFeeRate)}
}

// Decimal returns the rate as a fraction.
func (rate FeeRate) Decimal() decimal.Decimal {
	return rate.value
}

// FeeBreakdown splits a gross amount into fee and net. Fee plus net always
// equals gross.
type FeeBreakdown struct {
	Gross PositiveAmountCents
	Fee   AmountCents
	Net   PositiveAmountCents
}

// ComputeFee returns the fee and net amount for a payout speed. The fee is
// rounded half-up to the cent once, and net is gross minus that fee.
func ComputeFee(amount PositiveAmountCents, speed PayoutSpeed, rate FeeRate) (FeeBreakdown, error) {
	if amount <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	switch speed {
	case SpeedStandard:
		return FeeBreakdown{Gross: amount, Fee: 0, Net: amount}, nil
	case SpeedInstant:
		feeCents := decimal.NewFromInt(amount.Int64()).Mul(rate.value).Round(0).IntPart()
		net, err := NewPositiveAmountCents(amount.Int64() - feeCents)
		if err != nil {
			return FeeBreakdown{}, err
		}
		return FeeBreakdown{Gross: amount, Fee: AmountCents(feeCents), Net: net}, nil
	default:
		return FeeBreakdown{}, fmt.Errorf("%w: %q", ErrInvalidPayoutSpeed, speed)
	}
}
