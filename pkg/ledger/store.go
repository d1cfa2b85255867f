package ledger

import (
	"context"
	"time"
)

// Store is the persistence contract used by Service.
// Balance mutations must be atomic at the storage layer.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetOrCreateWallet(ctx context.Context, leagueID LeagueID, userID UserID) (Wallet, error)
	GetWallet(ctx context.Context, walletID WalletID) (Wallet, error)
	ListWallets(ctx context.Context, leagueID LeagueID) ([]Wallet, error)
	// ApplyCredit adds amount to available balance and total earnings.
	ApplyCredit(ctx context.Context, walletID WalletID, amount PositiveAmountCents, at time.Time) (Wallet, error)
	// ApplyDebit subtracts amount from available balance and adds it to
	// total withdrawn, failing with ErrInsufficientBalance when it would go negative.
	ApplyDebit(ctx context.Context, walletID WalletID, amount PositiveAmountCents, at time.Time) (Wallet, error)
	InsertTransaction(ctx context.Context, transaction WalletTransaction) error
	// ListTransactions returns transactions newest first.
	ListTransactions(ctx context.Context, walletID WalletID) ([]WalletTransaction, error)

	InsertPayout(ctx context.Context, payout Payout) error
	GetPayout(ctx context.Context, payoutID string) (Payout, error)
	// MarkPayoutPaid moves an approved payout to paid, failing with
	// ErrPayoutClosed when it is already paid.
	MarkPayoutPaid(ctx context.Context, payoutID string, at time.Time) error
	SumPaidPayouts(ctx context.Context, leagueID LeagueID) (AmountCents, error)
	InsertPlatformFee(ctx context.Context, fee PlatformFee) error
	UpdatePlatformFeeStatus(ctx context.Context, feeID string, from, to PlatformFeeStatus) error

	InsertWithdrawal(ctx context.Context, withdrawal WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, withdrawalID string) (WithdrawalRequest, error)
	// TransitionWithdrawal applies the transition only while status equals from.
	TransitionWithdrawal(ctx context.Context, withdrawalID string, from WithdrawalStatus, transition WithdrawalTransition) error
	ListWithdrawalsByUser(ctx context.Context, userID UserID) ([]WithdrawalRequest, error)

	// InsertWeeklyAwardEventIfAbsent returns the stored event for the
	// league week and whether this call created it.
	InsertWeeklyAwardEventIfAbsent(ctx context.Context, event WeeklyAwardEvent) (WeeklyAwardEvent, bool, error)
	GetWeeklyAwardEvent(ctx context.Context, leagueID LeagueID, week Week) (WeeklyAwardEvent, error)
	// MarkHighScoreCredited and MarkLowScoreNotified fail with
	// ErrAlreadyProcessed when the flag is already set.
	MarkHighScoreCredited(ctx context.Context, eventID string, at time.Time) error
	MarkLowScoreNotified(ctx context.Context, eventID string, at time.Time) error
	ListIncompleteWeeklyAwardEvents(ctx context.Context) ([]WeeklyAwardEvent, error)
	InsertFeeRequestIfAbsent(ctx context.Context, request FeeRequest) (FeeRequest, bool, error)
}

// ScoreSource supplies imported weekly scores.
type ScoreSource interface {
	GetScores(ctx context.Context, leagueID LeagueID, week Week) ([]Score, error)
}

// LeagueDirectory exposes league and member data owned outside the ledger.
type LeagueDirectory interface {
	GetLeagueSettings(ctx context.Context, leagueID LeagueID) (LeagueSettings, error)
	GetMember(ctx context.Context, leagueID LeagueID, userID UserID) (Member, error)
	ListMembers(ctx context.Context, leagueID LeagueID) ([]Member, error)
}

// PaymentSource reports money collected through the payment processor.
type PaymentSource interface {
	SumCompletedPayments(ctx context.Context, leagueID LeagueID) (AmountCents, error)
}

// NotificationReceipt is returned by a successful send.
type NotificationReceipt struct {
	MessageID string
}

// Notifier delivers a message to a destination such as a phone number.
type Notifier interface {
	Send(ctx context.Context, destination string, message string) (NotificationReceipt, error)
}
