package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a member's running balance inside one league.
type Wallet struct {
	WalletID         WalletID
	LeagueID         LeagueID
	UserID           UserID
	AvailableBalance AmountCents
	TotalEarnings    AmountCents
	TotalWithdrawn   AmountCents
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Balanced reports whether available equals earnings minus withdrawals.
func (wallet Wallet) Balanced() bool {
	return wallet.AvailableBalance.Int64() == wallet.TotalEarnings.Int64()-wallet.TotalWithdrawn.Int64()
}

// WalletTransaction is an immutable line in a wallet's log.
type WalletTransaction struct {
	TransactionID string
	WalletID      WalletID
	Direction     Direction
	Amount        PositiveAmountCents
	SourceType    SourceType
	SourceID      string
	Description   string
	BalanceAfter  AmountCents
	CreatedAt     time.Time
}

// SignedAmount returns the amount with the direction's sign applied.
func (transaction WalletTransaction) SignedAmount() SignedAmountCents {
	if transaction.Direction == DirectionDebit {
		return SignedAmountCents(-transaction.Amount.Int64())
	}
	return SignedAmountCents(transaction.Amount.Int64())
}

// Payout is a credit issued by the league owner to a member.
type Payout struct {
	PayoutID  string
	LeagueID  LeagueID
	UserID    UserID
	Amount    PositiveAmountCents
	FeeAmount AmountCents
	Reason    PayoutReason
	Week      *Week
	Speed     PayoutSpeed
	Status    PayoutStatus
	CreatedAt time.Time
	// PaidAt is set once the processor confirms the transfer.
	PaidAt *time.Time
}

// PlatformFee is the amount retained by the operator on an instant payout.
type PlatformFee struct {
	FeeID     string
	PayoutID  string
	LeagueID  LeagueID
	Amount    PositiveAmountCents
	Status    PlatformFeeStatus
	CreatedAt time.Time
}

// WithdrawalRequest is a member-initiated cash-out.
type WithdrawalRequest struct {
	WithdrawalID      string
	WalletID          WalletID
	LeagueID          LeagueID
	UserID            UserID
	Amount            PositiveAmountCents
	Speed             PayoutSpeed
	FeeAmount         AmountCents
	NetAmount         AmountCents
	Status            WithdrawalStatus
	RequestedAt       time.Time
	ProcessedAt       *time.Time
	TransferReference string
	FailureReason     string
}

// EstimatedArrival is when the member should expect the funds.
func (withdrawal WithdrawalRequest) EstimatedArrival() time.Time {
	if withdrawal.Speed == SpeedInstant {
		return withdrawal.RequestedAt
	}
	return withdrawal.RequestedAt.Add(standardWithdrawalSettlement)
}

// WithdrawalTransition describes a status change applied by the store.
type WithdrawalTransition struct {
	To                WithdrawalStatus
	ProcessedAt       *time.Time
	TransferReference string
	FailureReason     string
}

// Score is one member's fantasy points for a week.
type Score struct {
	UserID UserID
	Points decimal.Decimal
}

// WeeklyAwardEvent guards settlement of one league week.
// Prize and fee amounts are snapshotted at creation.
type WeeklyAwardEvent struct {
	EventID            string
	LeagueID           LeagueID
	Week               Week
	HighScoreUserID    UserID
	LowScoreUserID     UserID
	HighScorePrize     AmountCents
	LowScoreFee        AmountCents
	LowScoreFeeEnabled bool
	HighScoreCredited  bool
	LowScoreNotified   bool
	Scores             []Score
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HighScorePending reports whether the prize credit still has to happen.
func (event WeeklyAwardEvent) HighScorePending() bool {
	return !event.HighScoreCredited && event.HighScorePrize > 0
}

// LowScorePending reports whether the fee notification still has to happen.
func (event WeeklyAwardEvent) LowScorePending() bool {
	return !event.LowScoreNotified && event.LowScoreFeeEnabled && event.LowScoreFee > 0
}

// Complete reports whether no settlement step remains.
func (event WeeklyAwardEvent) Complete() bool {
	return !event.HighScorePending() && !event.LowScorePending()
}

// FeeRequest is a standing amount owed by a member.
type FeeRequest struct {
	FeeRequestID string
	LeagueID     LeagueID
	UserID       UserID
	Week         Week
	Amount       PositiveAmountCents
	Status       FeeRequestStatus
	EventID      string
	CreatedAt    time.Time
}

// LeagueSettings holds owner and weekly award configuration.
type LeagueSettings struct {
	LeagueID           LeagueID
	OwnerUserID        UserID
	HighScorePrize     AmountCents
	LowScoreFee        AmountCents
	LowScoreFeeEnabled bool
}

// Member is a league participant as known to the directory.
type Member struct {
	LeagueID    LeagueID
	UserID      UserID
	DisplayName string
	PhoneNumber string
}
