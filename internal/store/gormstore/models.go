package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet represents the member_wallets table.
type Wallet struct {
	WalletID            string    `gorm:"type:uuid;primaryKey"`
	LeagueID            string    `gorm:"not null;index:idx_wallets_league_user,unique,priority:1"`
	UserID              string    `gorm:"not null;index:idx_wallets_league_user,unique,priority:2"`
	AvailableCents      int64     `gorm:"not null;default:0"`
	TotalEarningsCents  int64     `gorm:"not null;default:0"`
	TotalWithdrawnCents int64     `gorm:"not null;default:0"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "member_wallets" }

func (wallet *Wallet) BeforeCreate(tx *gorm.DB) error {
	if wallet.WalletID == "" {
		wallet.WalletID = uuid.NewString()
	}
	return nil
}

// WalletTransaction mirrors the wallet_transactions table. Sequence orders
// rows by insertion since several rows can share a timestamp.
type WalletTransaction struct {
	Sequence          int64     `gorm:"primaryKey;autoIncrement"`
	TransactionID     string    `gorm:"not null;uniqueIndex"`
	WalletID          string    `gorm:"type:uuid;not null;index:idx_transactions_wallet_sequence,priority:1"`
	Direction         string    `gorm:"not null"`
	AmountCents       int64     `gorm:"not null"`
	SourceType        string    `gorm:"not null"`
	SourceID          string    `gorm:"not null;default:''"`
	Description       string    `gorm:"not null;default:''"`
	BalanceAfterCents int64     `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// Payout mirrors the payouts table. AmountCents is the net credit.
type Payout struct {
	PayoutID    string    `gorm:"primaryKey"`
	LeagueID    string    `gorm:"not null;index:idx_payouts_league_status,priority:1"`
	UserID      string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	FeeCents    int64     `gorm:"not null;default:0"`
	Reason      string    `gorm:"not null"`
	Week        *int      `gorm:""`
	Speed       string    `gorm:"not null"`
	Status      string    `gorm:"not null;index:idx_payouts_league_status,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
	PaidAt      *time.Time
}

func (Payout) TableName() string { return "payouts" }

// PlatformFee mirrors the platform_fees table.
type PlatformFee struct {
	FeeID       string    `gorm:"primaryKey"`
	PayoutID    string    `gorm:"not null;uniqueIndex"`
	LeagueID    string    `gorm:"not null;index"`
	AmountCents int64     `gorm:"not null"`
	Status      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (PlatformFee) TableName() string { return "platform_fees" }

// Withdrawal mirrors the withdrawal_requests table.
type Withdrawal struct {
	WithdrawalID      string     `gorm:"primaryKey"`
	WalletID          string     `gorm:"type:uuid;not null;index"`
	LeagueID          string     `gorm:"not null"`
	UserID            string     `gorm:"not null;index:idx_withdrawals_user_requested,priority:1"`
	AmountCents       int64      `gorm:"not null"`
	Speed             string     `gorm:"not null"`
	FeeCents          int64      `gorm:"not null;default:0"`
	NetCents          int64      `gorm:"not null"`
	Status            string     `gorm:"not null;index"`
	RequestedAt       time.Time  `gorm:"not null;index:idx_withdrawals_user_requested,priority:2"`
	ProcessedAt       *time.Time `gorm:""`
	TransferReference string     `gorm:"not null;default:''"`
	FailureReason     string     `gorm:"not null;default:''"`
}

func (Withdrawal) TableName() string { return "withdrawal_requests" }

// WeeklyAwardEvent mirrors the weekly_award_events table. The unique
// (league_id, week) index is the settlement guard.
type WeeklyAwardEvent struct {
	EventID             string         `gorm:"primaryKey"`
	LeagueID            string         `gorm:"not null;index:idx_award_events_league_week,unique,priority:1"`
	Week                int            `gorm:"not null;index:idx_award_events_league_week,unique,priority:2"`
	HighScoreUserID     string         `gorm:"not null"`
	LowScoreUserID      string         `gorm:"not null"`
	HighScorePrizeCents int64          `gorm:"not null"`
	LowScoreFeeCents    int64          `gorm:"not null"`
	LowScoreFeeEnabled  bool           `gorm:"not null"`
	HighScoreCredited   bool           `gorm:"not null;default:false"`
	LowScoreNotified    bool           `gorm:"not null;default:false"`
	Scores              datatypes.JSON `gorm:"not null"`
	CreatedAt           time.Time      `gorm:"not null"`
	UpdatedAt           time.Time      `gorm:"not null"`
}

func (WeeklyAwardEvent) TableName() string { return "weekly_award_events" }

// FeeRequest mirrors the fee_requests table.
type FeeRequest struct {
	FeeRequestID string    `gorm:"primaryKey"`
	LeagueID     string    `gorm:"not null;index:idx_fee_requests_league_week_user,unique,priority:1"`
	Week         int       `gorm:"not null;index:idx_fee_requests_league_week_user,unique,priority:2"`
	UserID       string    `gorm:"not null;index:idx_fee_requests_league_week_user,unique,priority:3"`
	AmountCents  int64     `gorm:"not null"`
	Status       string    `gorm:"not null"`
	EventID      string    `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (FeeRequest) TableName() string { return "fee_requests" }

// LeagueSettings mirrors the league_settings table.
type LeagueSettings struct {
	LeagueID            string `gorm:"primaryKey"`
	OwnerUserID         string `gorm:"not null"`
	HighScorePrizeCents int64  `gorm:"not null;default:0"`
	LowScoreFeeCents    int64  `gorm:"not null;default:0"`
	LowScoreFeeEnabled  bool   `gorm:"not null;default:false"`
	UpdatedAt           time.Time
}

func (LeagueSettings) TableName() string { return "league_settings" }

// LeagueMember mirrors the league_members table.
type LeagueMember struct {
	LeagueID    string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
	DisplayName string `gorm:"not null;default:''"`
	PhoneNumber string `gorm:"not null;default:''"`
}

func (LeagueMember) TableName() string { return "league_members" }

// WeeklyScore mirrors the weekly_scores table.
type WeeklyScore struct {
	LeagueID string          `gorm:"primaryKey"`
	Week     int             `gorm:"primaryKey"`
	UserID   string          `gorm:"primaryKey"`
	Points   decimal.Decimal `gorm:"type:numeric(10,2);not null"`
}

func (WeeklyScore) TableName() string { return "weekly_scores" }

// LeaguePayment mirrors the league_payments table of dues collected.
type LeaguePayment struct {
	PaymentID   string    `gorm:"primaryKey"`
	LeagueID    string    `gorm:"not null;index:idx_payments_league_status,priority:1"`
	UserID      string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	Status      string    `gorm:"not null;index:idx_payments_league_status,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (LeaguePayment) TableName() string { return "league_payments" }

func (payment *LeaguePayment) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Wallet{},
		&WalletTransaction{},
		&Payout{},
		&PlatformFee{},
		&Withdrawal{},
		&WeeklyAwardEvent{},
		&FeeRequest{},
		&LeagueSettings{},
		&LeagueMember{},
		&WeeklyScore{},
		&LeaguePayment{},
	}
}
