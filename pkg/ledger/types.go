package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountCents is a non-negative currency amount in cents.
type AmountCents int64

// PositiveAmountCents is a strictly positive currency amount in cents.
type PositiveAmountCents int64

// SignedAmountCents is a currency amount in cents that may be negative.
type SignedAmountCents int64

// NewAmountCents validates that an amount is not negative.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in currency units.
func (amount AmountCents) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -centsExponent)
}

// String renders the amount with two decimal places.
func (amount AmountCents) String() string {
	return amount.Decimal().StringFixed(centsExponent)
}

// NewPositiveAmountCents validates an amount and ensures it is strictly positive.
func NewPositiveAmountCents(raw int64) (PositiveAmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmountCents(raw), nil
}

// ParsePositiveAmount converts a currency-unit decimal into cents. Values with
// more than two fractional digits are rejected rather than rounded.
func ParsePositiveAmount(value decimal.Decimal) (PositiveAmountCents, error) {
	cents := value.Shift(centsExponent)
	if !cents.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	// Bound the exponent before any expansion; 1e50000000 would otherwise
	// be materialized digit by digit.
	if cents.Exponent() < -maxAmountDigits || cents.Exponent()+int32(cents.NumDigits()) > maxAmountDigits {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return PositiveAmountCents(cents.IntPart()), nil
}

// Int64 returns the raw cents value.
func (amount PositiveAmountCents) Int64() int64 {
	return int64(amount)
}

// ToAmountCents widens the amount to the non-negative domain.
func (amount PositiveAmountCents) ToAmountCents() AmountCents {
	return AmountCents(amount)
}

// String renders the amount with two decimal places.
func (amount PositiveAmountCents) String() string {
	return amount.ToAmountCents().String()
}

// Int64 returns the raw cents value.
func (amount SignedAmountCents) Int64() int64 {
	return int64(amount)
}

// String renders the amount with two decimal places.
func (amount SignedAmountCents) String() string {
	return decimal.New(int64(amount), -centsExponent).StringFixed(centsExponent)
}

// LeagueID identifies a league.
type LeagueID struct {
	value string
}

// UserID identifies a league member.
type UserID struct {
	value string
}

// WalletID identifies a wallet.
type WalletID struct {
	value string
}

// NewLeagueID validates and normalizes a league id.
func NewLeagueID(raw string) (LeagueID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LeagueID{}, fmt.Errorf("%w: empty value", ErrInvalidLeagueID)
	}
	return LeagueID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id LeagueID) String() string {
	return id.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewWalletID validates and normalizes a wallet id.
func NewWalletID(raw string) (WalletID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WalletID{}, fmt.Errorf("%w: empty value", ErrInvalidWalletID)
	}
	return WalletID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id WalletID) String() string {
	return id.value
}

// Week is a scoring week number within a season.
type Week int

// NewWeek validates a week number.
func NewWeek(raw int) (Week, error) {
	if raw < 1 || raw > maxWeek {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidWeek, maxWeek)
	}
	return Week(raw), nil
}

// Int returns the raw week number.
func (week Week) Int() int {
	return int(week)
}

// Direction is the sign of a wallet transaction.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// SourceType names what produced a wallet transaction.
type SourceType string

const (
	SourcePayout     SourceType = "payout"
	SourceWithdrawal SourceType = "withdrawal"
	SourceManual     SourceType = "manual"
)

// PayoutReason is the reason a league owner credits a member.
type PayoutReason string

const (
	ReasonFirstPlace      PayoutReason = "first_place"
	ReasonSecondPlace     PayoutReason = "second_place"
	ReasonThirdPlace      PayoutReason = "third_place"
	ReasonWeeklyHighScore PayoutReason = "weekly_high_score"
	ReasonRefund          PayoutReason = "refund"
	ReasonOther           PayoutReason = "other"
)

// PayoutSpeed selects the settlement tier of a payout or withdrawal.
type PayoutSpeed string

const (
	SpeedStandard PayoutSpeed = "standard"
	SpeedInstant  PayoutSpeed = "instant"
)

// PayoutStatus tracks payout settlement.
type PayoutStatus string

const (
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusPaid     PayoutStatus = "paid"
)

// PlatformFeeStatus tracks the operator fee transfer.
type PlatformFeeStatus string

const (
	PlatformFeeStatusPending     PlatformFeeStatus = "pending"
	PlatformFeeStatusTransferred PlatformFeeStatus = "transferred"
)

// WithdrawalStatus defines the withdrawal lifecycle.
type WithdrawalStatus string

const (
	WithdrawalStatusRequested  WithdrawalStatus = "requested"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

// FeeRequestStatus tracks whether a standing fee has been paid.
type FeeRequestStatus string

const (
	FeeRequestStatusUnpaid FeeRequestStatus = "unpaid"
	FeeRequestStatusPaid   FeeRequestStatus = "paid"
)

// ParseDirection validates a direction string.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.TrimSpace(raw)) {
	case DirectionCredit:
		return DirectionCredit, nil
	case DirectionDebit:
		return DirectionDebit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}

// String returns the stored representation.
func (direction Direction) String() string {
	return string(direction)
}

// ParseSourceType validates a source type string.
func ParseSourceType(raw string) (SourceType, error) {
	switch SourceType(strings.TrimSpace(raw)) {
	case SourcePayout:
		return SourcePayout, nil
	case SourceWithdrawal:
		return SourceWithdrawal, nil
	case SourceManual:
		return SourceManual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceType, raw)
	}
}

// String returns the stored representation.
func (sourceType SourceType) String() string {
	return string(sourceType)
}

// ParsePayoutReason validates a payout reason string.
func ParsePayoutReason(raw string) (PayoutReason, error) {
	reason := PayoutReason(strings.TrimSpace(raw))
	switch reason {
	case ReasonFirstPlace, ReasonSecondPlace, ReasonThirdPlace, ReasonWeeklyHighScore, ReasonRefund, ReasonOther:
		return reason, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPayoutReason, raw)
	}
}

// String returns the stored representation.
func (reason PayoutReason) String() string {
	return string(reason)
}

// ParsePayoutSpeed validates a speed string. An empty value means standard.
func ParsePayoutSpeed(raw string) (PayoutSpeed, error) {
	switch PayoutSpeed(strings.TrimSpace(raw)) {
	case SpeedStandard, "":
		return SpeedStandard, nil
	case SpeedInstant:
		return SpeedInstant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPayoutSpeed, raw)
	}
}

// String returns the stored representation.
func (speed PayoutSpeed) String() string {
	return string(speed)
}

// ParsePayoutStatus validates a payout status string.
func ParsePayoutStatus(raw string) (PayoutStatus, error) {
	switch PayoutStatus(strings.TrimSpace(raw)) {
	case PayoutStatusApproved:
		return PayoutStatusApproved, nil
	case PayoutStatusPaid:
		return PayoutStatusPaid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPayoutStatus, raw)
	}
}

// String returns the stored representation.
func (status PayoutStatus) String() string {
	return string(status)
}

// String returns the stored representation.
func (status PlatformFeeStatus) String() string {
	return string(status)
}

// ParseWithdrawalStatus validates a withdrawal status string.
func ParseWithdrawalStatus(raw string) (WithdrawalStatus, error) {
	status := WithdrawalStatus(strings.TrimSpace(raw))
	switch status {
	case WithdrawalStatusRequested, WithdrawalStatusProcessing, WithdrawalStatusCompleted, WithdrawalStatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
	}
}

// String returns the stored representation.
func (status WithdrawalStatus) String() string {
	return string(status)
}

// Terminal reports whether no further transition is allowed.
func (status WithdrawalStatus) Terminal() bool {
	return status == WithdrawalStatusCompleted || status == WithdrawalStatusFailed
}

// ParseFeeRequestStatus validates a fee request status string.
func ParseFeeRequestStatus(raw string) (FeeRequestStatus, error) {
	switch FeeRequestStatus(strings.TrimSpace(raw)) {
	case FeeRequestStatusUnpaid:
		return FeeRequestStatusUnpaid, nil
	case FeeRequestStatusPaid:
		return FeeRequestStatusPaid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFeeRequestStatus, raw)
	}
}

// String returns the stored representation.
func (status FeeRequestStatus) String() string {
	return string(status)
}
