package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19
	paymentStatusCompleted   = "completed"
	errorOperationStore      = "store"
	errorSubjectWallet       = "wallet"
	errorSubjectTransaction  = "transaction"
	errorSubjectPayout       = "payout"
	errorSubjectPlatformFee  = "platform_fee"
	errorSubjectWithdrawal   = "withdrawal"
	errorSubjectAwardEvent   = "award_event"
	errorSubjectFeeRequest   = "fee_request"
	errorSubjectLeague       = "league"
	errorSubjectMember       = "member"
	errorSubjectScore        = "score"
	errorSubjectPayment      = "payment"
	errorCodeCreate          = "create"
	errorCodeCredit          = "credit"
	errorCodeDebit           = "debit"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLookup          = "lookup"
	errorCodeMark            = "mark"
	errorCodeSum             = "sum"
	errorCodeUpdateStatus    = "update_status"
	errorCodeUpsert          = "upsert"
	columnPaidAt             = "paid_at"
	columnStatus             = "status"
	columnAvailableCents     = "available_cents"
	columnTotalEarnings      = "total_earnings_cents"
	columnTotalWithdrawn     = "total_withdrawn_cents"
	columnUpdatedAt          = "updated_at"
	columnHighScoreCredited  = "high_score_credited"
	columnLowScoreNotified   = "low_score_notified"
	queryWalletByID          = "wallet_id = ?"
	queryWalletByLeagueUser  = "league_id = ? AND user_id = ?"
	queryEventByID           = "event_id = ?"
	queryEventByLeagueWeek   = "league_id = ? AND week = ?"
	queryWithdrawalByID      = "withdrawal_id = ?"
	queryPayoutByID          = "payout_id = ?"
	queryIncompleteEvents    = "(high_score_credited = ? AND high_score_prize_cents > 0) OR (low_score_notified = ? AND low_score_fee_enabled = ? AND low_score_fee_cents > 0)"
	queryFeeRequestByLeagueW = "league_id = ? AND week = ? AND user_id = ?"
)

// Store implements ledger.Store, ledger.ScoreSource, ledger.LeagueDirectory
// and ledger.PaymentSource using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetOrCreateWallet(ctx context.Context, leagueID ledger.LeagueID, userID ledger.UserID) (ledger.Wallet, error) {
	now := time.Now().UTC()
	candidate := Wallet{LeagueID: leagueID.String(), UserID: userID.String(), CreatedAt: now, UpdatedAt: now}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&candidate).Error
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}
	var model Wallet
	if err := store.db.WithContext(ctx).Where(queryWalletByLeagueUser, leagueID.String(), userID.String()).Take(&model).Error; err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeLookup, err)
	}
	return mapWallet(model)
}

// GetWallet locks the wallet row for the rest of the transaction.
func (store *Store) GetWallet(ctx context.Context, walletID ledger.WalletID) (ledger.Wallet, error) {
	// Wallet ids are uuid columns; Postgres rejects anything else with 22P02.
	if _, err := uuid.Parse(walletID.String()); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrUnknownWallet)
	}
	var model Wallet
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryWalletByID, walletID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrUnknownWallet)
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(model)
}

func (store *Store) ListWallets(ctx context.Context, leagueID ledger.LeagueID) ([]ledger.Wallet, error) {
	var rows []Wallet
	err := store.db.WithContext(ctx).
		Where("league_id = ?", leagueID.String()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWallet, errorCodeList, err)
	}
	wallets := make([]ledger.Wallet, 0, len(rows))
	for _, row := range rows {
		wallet, err := mapWallet(row)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, nil
}

// ApplyCredit increments the balance columns in a single UPDATE.
func (store *Store) ApplyCredit(ctx context.Context, walletID ledger.WalletID, amount ledger.PositiveAmountCents, at time.Time) (ledger.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where(queryWalletByID, walletID.String()).
		Updates(map[string]any{
			columnAvailableCents: gorm.Expr(columnAvailableCents+" + ?", amount.Int64()),
			columnTotalEarnings:  gorm.Expr(columnTotalEarnings+" + ?", amount.Int64()),
			columnUpdatedAt:      at.UTC(),
		})
	if result.Error != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCredit, result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCredit, ledger.ErrUnknownWallet)
	}
	return store.GetWallet(ctx, walletID)
}

// ApplyDebit decrements the balance only while it covers the amount, so
// concurrent debits cannot overdraw the wallet.
func (store *Store) ApplyDebit(ctx context.Context, walletID ledger.WalletID, amount ledger.PositiveAmountCents, at time.Time) (ledger.Wallet, error) {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where(queryWalletByID+" AND "+columnAvailableCents+" >= ?", walletID.String(), amount.Int64()).
		Updates(map[string]any{
			columnAvailableCents: gorm.Expr(columnAvailableCents+" - ?", amount.Int64()),
			columnTotalWithdrawn: gorm.Expr(columnTotalWithdrawn+" + ?", amount.Int64()),
			columnUpdatedAt:      at.UTC(),
		})
	if result.Error != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeDebit, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetWallet(ctx, walletID); err != nil {
			return ledger.Wallet{}, err
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeDebit, ledger.ErrInsufficientBalance)
	}
	return store.GetWallet(ctx, walletID)
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.WalletTransaction) error {
	model := WalletTransaction{
		TransactionID:     transaction.TransactionID,
		WalletID:          transaction.WalletID.String(),
		Direction:         transaction.Direction.String(),
		AmountCents:       transaction.Amount.Int64(),
		SourceType:        transaction.SourceType.String(),
		SourceID:          transaction.SourceID,
		Description:       transaction.Description,
		BalanceAfterCents: transaction.BalanceAfter.Int64(),
		CreatedAt:         utcOrNow(transaction.CreatedAt),
	}
	return insertRow(store.db.WithContext(ctx), errorSubjectTransaction, &model)
}

func (store *Store) ListTransactions(ctx context.Context, walletID ledger.WalletID) ([]ledger.WalletTransaction, error) {
	if _, err := uuid.Parse(walletID.String()); err != nil {
		return []ledger.WalletTransaction{}, nil
	}
	var rows []WalletTransaction
	err := store.db.WithContext(ctx).
		Where(queryWalletByID, walletID.String()).
		Order("sequence DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.WalletTransaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) InsertPayout(ctx context.Context, payout ledger.Payout) error {
	var week *int
	if payout.Week != nil {
		value := payout.Week.Int()
		week = &value
	}
	model := Payout{
		PayoutID:    payout.PayoutID,
		LeagueID:    payout.LeagueID.String(),
		UserID:      payout.UserID.String(),
		AmountCents: payout.Amount.Int64(),
		FeeCents:    payout.FeeAmount.Int64(),
		Reason:      payout.Reason.String(),
		Week:        week,
		Speed:       payout.Speed.String(),
		Status:      payout.Status.String(),
		CreatedAt:   utcOrNow(payout.CreatedAt),
		PaidAt:      utcPointer(payout.PaidAt),
	}
	return insertRow(store.db.WithContext(ctx), errorSubjectPayout, &model)
}

// GetPayout locks the payout row for the rest of the transaction.
func (store *Store) GetPayout(ctx context.Context, payoutID string) (ledger.Payout, error) {
	var model Payout
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryPayoutByID, payoutID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Payout{}, wrapStoreError(errorSubjectPayout, errorCodeGet, ledger.ErrUnknownPayout)
		}
		return ledger.Payout{}, wrapStoreError(errorSubjectPayout, errorCodeGet, err)
	}
	payout, err := mapPayout(model)
	if err != nil {
		return ledger.Payout{}, wrapStoreError(errorSubjectPayout, errorCodeInvalid, err)
	}
	return payout, nil
}

func (store *Store) MarkPayoutPaid(ctx context.Context, payoutID string, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Payout{}).
		Where(queryPayoutByID+" AND status = ?", payoutID, ledger.PayoutStatusApproved.String()).
		Updates(map[string]any{columnStatus: ledger.PayoutStatusPaid.String(), columnPaidAt: at.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetPayout(ctx, payoutID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, ledger.ErrPayoutClosed)
	}
	return nil
}

func (store *Store) SumPaidPayouts(ctx context.Context, leagueID ledger.LeagueID) (ledger.AmountCents, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Payout{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("league_id = ? AND status = ?", leagueID.String(), ledger.PayoutStatusPaid.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectPayout, errorCodeSum, err)
	}
	total, err := ledger.NewAmountCents(sum.Total)
	if err != nil {
		return 0, wrapStoreError(errorSubjectPayout, errorCodeInvalid, err)
	}
	return total, nil
}

func (store *Store) InsertPlatformFee(ctx context.Context, fee ledger.PlatformFee) error {
	model := PlatformFee{
		FeeID:       fee.FeeID,
		PayoutID:    fee.PayoutID,
		LeagueID:    fee.LeagueID.String(),
		AmountCents: fee.Amount.Int64(),
		Status:      fee.Status.String(),
		CreatedAt:   utcOrNow(fee.CreatedAt),
	}
	return insertRow(store.db.WithContext(ctx), errorSubjectPlatformFee, &model)
}

func (store *Store) UpdatePlatformFeeStatus(ctx context.Context, feeID string, from, to ledger.PlatformFeeStatus) error {
	result := store.db.WithContext(ctx).
		Model(&PlatformFee{}).
		Where("fee_id = ? AND status = ?", feeID, from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectPlatformFee, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPlatformFee, errorCodeUpdateStatus, ledger.ErrPlatformFeeClosed)
	}
	return nil
}

func (store *Store) InsertWithdrawal(ctx context.Context, withdrawal ledger.WithdrawalRequest) error {
	model := Withdrawal{
		WithdrawalID:      withdrawal.WithdrawalID,
		WalletID:          withdrawal.WalletID.String(),
		LeagueID:          withdrawal.LeagueID.String(),
		UserID:            withdrawal.UserID.String(),
		AmountCents:       withdrawal.Amount.Int64(),
		Speed:             withdrawal.Speed.String(),
		FeeCents:          withdrawal.FeeAmount.Int64(),
		NetCents:          withdrawal.NetAmount.Int64(),
		Status:            withdrawal.Status.String(),
		RequestedAt:       utcOrNow(withdrawal.RequestedAt),
		ProcessedAt:       withdrawal.ProcessedAt,
		TransferReference: withdrawal.TransferReference,
		FailureReason:     withdrawal.FailureReason,
	}
	return insertRow(store.db.WithContext(ctx), errorSubjectWithdrawal, &model)
}

// GetWithdrawal locks the withdrawal row for the rest of the transaction.
func (store *Store) GetWithdrawal(ctx context.Context, withdrawalID string) (ledger.WithdrawalRequest, error) {
	var model Withdrawal
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryWithdrawalByID, withdrawalID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, ledger.ErrUnknownWithdrawal)
		}
		return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	withdrawal, err := mapWithdrawal(model)
	if err != nil {
		return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	return withdrawal, nil
}

func (store *Store) TransitionWithdrawal(ctx context.Context, withdrawalID string, from ledger.WithdrawalStatus, transition ledger.WithdrawalTransition) error {
	updates := map[string]any{"status": transition.To.String()}
	if transition.ProcessedAt != nil {
		updates["processed_at"] = transition.ProcessedAt.UTC()
	}
	if transition.TransferReference != "" {
		updates["transfer_reference"] = transition.TransferReference
	}
	if transition.FailureReason != "" {
		updates["failure_reason"] = transition.FailureReason
	}
	result := store.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Where(queryWithdrawalByID+" AND status = ?", withdrawalID, from.String()).
		Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetWithdrawal(ctx, withdrawalID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, ledger.ErrWithdrawalClosed)
	}
	return nil
}

func (store *Store) ListWithdrawalsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.WithdrawalRequest, error) {
	var rows []Withdrawal
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("requested_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeList, err)
	}
	withdrawals := make([]ledger.WithdrawalRequest, 0, len(rows))
	for _, row := range rows {
		withdrawal, err := mapWithdrawal(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
		}
		withdrawals = append(withdrawals, withdrawal)
	}
	return withdrawals, nil
}

// InsertWeeklyAwardEventIfAbsent relies on the unique (league_id, week)
// index so only one concurrent caller creates the event.
func (store *Store) InsertWeeklyAwardEventIfAbsent(ctx context.Context, event ledger.WeeklyAwardEvent) (ledger.WeeklyAwardEvent, bool, error) {
	scores, err := encodeScores(event.Scores)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, false, wrapStoreError(errorSubjectAwardEvent, errorCodeInvalid, err)
	}
	model := WeeklyAwardEvent{
		EventID:             event.EventID,
		LeagueID:            event.LeagueID.String(),
		Week:                event.Week.Int(),
		HighScoreUserID:     event.HighScoreUserID.String(),
		LowScoreUserID:      event.LowScoreUserID.String(),
		HighScorePrizeCents: event.HighScorePrize.Int64(),
		LowScoreFeeCents:    event.LowScoreFee.Int64(),
		LowScoreFeeEnabled:  event.LowScoreFeeEnabled,
		HighScoreCredited:   event.HighScoreCredited,
		LowScoreNotified:    event.LowScoreNotified,
		Scores:              scores,
		CreatedAt:           utcOrNow(event.CreatedAt),
		UpdatedAt:           utcOrNow(event.UpdatedAt),
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league_id"}, {Name: "week"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return ledger.WeeklyAwardEvent{}, false, wrapStoreError(errorSubjectAwardEvent, errorCodeInsert, result.Error)
	}
	stored, err := store.GetWeeklyAwardEvent(ctx, event.LeagueID, event.Week)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, false, err
	}
	return stored, result.RowsAffected == 1 && stored.EventID == event.EventID, nil
}

func (store *Store) GetWeeklyAwardEvent(ctx context.Context, leagueID ledger.LeagueID, week ledger.Week) (ledger.WeeklyAwardEvent, error) {
	// A missing event is the normal first-settlement path, so Find is used
	// instead of Take to keep it out of the error log.
	var model WeeklyAwardEvent
	result := store.db.WithContext(ctx).
		Where(queryEventByLeagueWeek, leagueID.String(), week.Int()).
		Limit(1).
		Find(&model)
	if result.Error != nil {
		return ledger.WeeklyAwardEvent{}, wrapStoreError(errorSubjectAwardEvent, errorCodeGet, result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.WeeklyAwardEvent{}, wrapStoreError(errorSubjectAwardEvent, errorCodeGet, ledger.ErrUnknownWeeklyAwardEvent)
	}
	event, err := mapAwardEvent(model)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, wrapStoreError(errorSubjectAwardEvent, errorCodeInvalid, err)
	}
	return event, nil
}

func (store *Store) MarkHighScoreCredited(ctx context.Context, eventID string, at time.Time) error {
	return store.markEventFlag(ctx, eventID, columnHighScoreCredited, at)
}

func (store *Store) MarkLowScoreNotified(ctx context.Context, eventID string, at time.Time) error {
	return store.markEventFlag(ctx, eventID, columnLowScoreNotified, at)
}

// markEventFlag flips a false flag to true. A zero-row update means another
// run got there first, or the event does not exist.
func (store *Store) markEventFlag(ctx context.Context, eventID string, column string, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&WeeklyAwardEvent{}).
		Where(queryEventByID+" AND "+column+" = ?", eventID, false).
		Updates(map[string]any{column: true, columnUpdatedAt: at.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAwardEvent, errorCodeMark, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&WeeklyAwardEvent{}).Where(queryEventByID, eventID).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectAwardEvent, errorCodeMark, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectAwardEvent, errorCodeMark, ledger.ErrUnknownWeeklyAwardEvent)
	}
	return wrapStoreError(errorSubjectAwardEvent, errorCodeMark, ledger.ErrAlreadyProcessed)
}

func (store *Store) ListIncompleteWeeklyAwardEvents(ctx context.Context) ([]ledger.WeeklyAwardEvent, error) {
	var rows []WeeklyAwardEvent
	err := store.db.WithContext(ctx).
		Where(queryIncompleteEvents, false, false, true).
		Order("league_id ASC, week ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAwardEvent, errorCodeList, err)
	}
	events := make([]ledger.WeeklyAwardEvent, 0, len(rows))
	for _, row := range rows {
		event, err := mapAwardEvent(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAwardEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (store *Store) InsertFeeRequestIfAbsent(ctx context.Context, request ledger.FeeRequest) (ledger.FeeRequest, bool, error) {
	model := FeeRequest{
		FeeRequestID: request.FeeRequestID,
		LeagueID:     request.LeagueID.String(),
		Week:         request.Week.Int(),
		UserID:       request.UserID.String(),
		AmountCents:  request.Amount.Int64(),
		Status:       request.Status.String(),
		EventID:      request.EventID,
		CreatedAt:    utcOrNow(request.CreatedAt),
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league_id"}, {Name: "week"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return ledger.FeeRequest{}, false, wrapStoreError(errorSubjectFeeRequest, errorCodeInsert, result.Error)
	}
	var stored FeeRequest
	err := store.db.WithContext(ctx).
		Where(queryFeeRequestByLeagueW, request.LeagueID.String(), request.Week.Int(), request.UserID.String()).
		Take(&stored).Error
	if err != nil {
		return ledger.FeeRequest{}, false, wrapStoreError(errorSubjectFeeRequest, errorCodeLookup, err)
	}
	feeRequest, err := mapFeeRequest(stored)
	if err != nil {
		return ledger.FeeRequest{}, false, wrapStoreError(errorSubjectFeeRequest, errorCodeInvalid, err)
	}
	return feeRequest, result.RowsAffected == 1 && stored.FeeRequestID == request.FeeRequestID, nil
}

// GetScores returns the imported scores for a league week ordered by user id.
func (store *Store) GetScores(ctx context.Context, leagueID ledger.LeagueID, week ledger.Week) ([]ledger.Score, error) {
	var rows []WeeklyScore
	err := store.db.WithContext(ctx).
		Where(queryEventByLeagueWeek, leagueID.String(), week.Int()).
		Order("user_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectScore, errorCodeList, err)
	}
	scores := make([]ledger.Score, 0, len(rows))
	for _, row := range rows {
		userID, err := ledger.NewUserID(row.UserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectScore, errorCodeInvalid, err)
		}
		scores = append(scores, ledger.Score{UserID: userID, Points: row.Points})
	}
	return scores, nil
}

func (store *Store) GetLeagueSettings(ctx context.Context, leagueID ledger.LeagueID) (ledger.LeagueSettings, error) {
	var model LeagueSettings
	err := store.db.WithContext(ctx).Where("league_id = ?", leagueID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.LeagueSettings{}, wrapStoreError(errorSubjectLeague, errorCodeGet, ledger.ErrUnknownLeague)
		}
		return ledger.LeagueSettings{}, wrapStoreError(errorSubjectLeague, errorCodeGet, err)
	}
	settings, err := mapLeagueSettings(model)
	if err != nil {
		return ledger.LeagueSettings{}, wrapStoreError(errorSubjectLeague, errorCodeInvalid, err)
	}
	return settings, nil
}

func (store *Store) GetMember(ctx context.Context, leagueID ledger.LeagueID, userID ledger.UserID) (ledger.Member, error) {
	var model LeagueMember
	err := store.db.WithContext(ctx).Where(queryWalletByLeagueUser, leagueID.String(), userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Member{}, wrapStoreError(errorSubjectMember, errorCodeGet, ledger.ErrUnknownMember)
		}
		return ledger.Member{}, wrapStoreError(errorSubjectMember, errorCodeGet, err)
	}
	return ledger.Member{LeagueID: leagueID, UserID: userID, DisplayName: model.DisplayName, PhoneNumber: model.PhoneNumber}, nil
}

func (store *Store) ListMembers(ctx context.Context, leagueID ledger.LeagueID) ([]ledger.Member, error) {
	var rows []LeagueMember
	err := store.db.WithContext(ctx).
		Where("league_id = ?", leagueID.String()).
		Order("display_name ASC, user_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMember, errorCodeList, err)
	}
	members := make([]ledger.Member, 0, len(rows))
	for _, row := range rows {
		userID, err := ledger.NewUserID(row.UserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectMember, errorCodeInvalid, err)
		}
		members = append(members, ledger.Member{LeagueID: leagueID, UserID: userID, DisplayName: row.DisplayName, PhoneNumber: row.PhoneNumber})
	}
	return members, nil
}

// SumCompletedPayments totals dues the payment processor reported as completed.
func (store *Store) SumCompletedPayments(ctx context.Context, leagueID ledger.LeagueID) (ledger.AmountCents, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LeaguePayment{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("league_id = ? AND status = ?", leagueID.String(), paymentStatusCompleted).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectPayment, errorCodeSum, err)
	}
	total, err := ledger.NewAmountCents(sum.Total)
	if err != nil {
		return 0, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return total, nil
}

// SaveLeagueSettings upserts the award configuration of a league.
func (store *Store) SaveLeagueSettings(ctx context.Context, settings ledger.LeagueSettings) error {
	model := LeagueSettings{
		LeagueID:            settings.LeagueID.String(),
		OwnerUserID:         settings.OwnerUserID.String(),
		HighScorePrizeCents: settings.HighScorePrize.Int64(),
		LowScoreFeeCents:    settings.LowScoreFee.Int64(),
		LowScoreFeeEnabled:  settings.LowScoreFeeEnabled,
		UpdatedAt:           time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner_user_id", "high_score_prize_cents", "low_score_fee_cents", "low_score_fee_enabled", columnUpdatedAt}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectLeague, errorCodeUpsert, err)
	}
	return nil
}

// SaveMember upserts a member's display name and phone number.
func (store *Store) SaveMember(ctx context.Context, member ledger.Member) error {
	model := LeagueMember{
		LeagueID:    member.LeagueID.String(),
		UserID:      member.UserID.String(),
		DisplayName: member.DisplayName,
		PhoneNumber: member.PhoneNumber,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "phone_number"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectMember, errorCodeUpsert, err)
	}
	return nil
}

// RecordScores replaces the imported points of the given members for a week.
func (store *Store) RecordScores(ctx context.Context, leagueID ledger.LeagueID, week ledger.Week, scores []ledger.Score) error {
	if len(scores) == 0 {
		return nil
	}
	rows := make([]WeeklyScore, 0, len(scores))
	for _, score := range scores {
		rows = append(rows, WeeklyScore{LeagueID: leagueID.String(), Week: week.Int(), UserID: score.UserID.String(), Points: score.Points})
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "league_id"}, {Name: "week"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"points"}),
		}).
		Create(&rows).Error
	if err != nil {
		return wrapStoreError(errorSubjectScore, errorCodeUpsert, err)
	}
	return nil
}

// RecordCompletedPayment stores a dues payment confirmed by the processor.
func (store *Store) RecordCompletedPayment(ctx context.Context, leagueID ledger.LeagueID, userID ledger.UserID, amount ledger.PositiveAmountCents) error {
	model := LeaguePayment{
		LeagueID:    leagueID.String(),
		UserID:      userID.String(),
		AmountCents: amount.Int64(),
		Status:      paymentStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	return insertRow(store.db.WithContext(ctx), errorSubjectPayment, &model)
}

func insertRow(db *gorm.DB, subject string, model any) error {
	err := db.Create(model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(subject, errorCodeDuplicate, ledger.ErrAlreadyProcessed)
	}
	if err != nil {
		return wrapStoreError(subject, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

type scoreSnapshot struct {
	UserID string `json:"user_id"`
	Points string `json:"points"`
}

func encodeScores(scores []ledger.Score) (datatypes.JSON, error) {
	snapshots := make([]scoreSnapshot, 0, len(scores))
	for _, score := range scores {
		snapshots = append(snapshots, scoreSnapshot{UserID: score.UserID.String(), Points: score.Points.String()})
	}
	raw, err := json.Marshal(snapshots)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeScores(raw datatypes.JSON) ([]ledger.Score, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var snapshots []scoreSnapshot
	if err := json.Unmarshal(raw, &snapshots); err != nil {
		return nil, err
	}
	scores := make([]ledger.Score, 0, len(snapshots))
	for _, snapshot := range snapshots {
		userID, err := ledger.NewUserID(snapshot.UserID)
		if err != nil {
			return nil, err
		}
		points, err := decimal.NewFromString(snapshot.Points)
		if err != nil {
			return nil, err
		}
		scores = append(scores, ledger.Score{UserID: userID, Points: points})
	}
	return scores, nil
}

func mapWallet(row Wallet) (ledger.Wallet, error) {
	walletID, err := ledger.NewWalletID(row.WalletID)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	leagueID, err := ledger.NewLeagueID(row.LeagueID)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	available, err := ledger.NewAmountCents(row.AvailableCents)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	earnings, err := ledger.NewAmountCents(row.TotalEarningsCents)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	withdrawn, err := ledger.NewAmountCents(row.TotalWithdrawnCents)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return ledger.Wallet{
		WalletID:         walletID,
		LeagueID:         leagueID,
		UserID:           userID,
		AvailableBalance: available,
		TotalEarnings:    earnings,
		TotalWithdrawn:   withdrawn,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

func mapTransaction(row WalletTransaction) (ledger.WalletTransaction, error) {
	walletID, err := ledger.NewWalletID(row.WalletID)
	if err != nil {
		return ledger.WalletTransaction{}, err
	}
	direction, err := ledger.ParseDirection(row.Direction)
	if err != nil {
		return ledger.WalletTransaction{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.AmountCents)
	if err != nil {
		return ledger.WalletTransaction{}, err
	}
	sourceType, err := ledger.ParseSourceType(row.SourceType)
	if err != nil {
		return ledger.WalletTransaction{}, err
	}
	balanceAfter, err := ledger.NewAmountCents(row.BalanceAfterCents)
	if err != nil {
		return ledger.WalletTransaction{}, err
	}
	return ledger.WalletTransaction{
		TransactionID: row.TransactionID,
		WalletID:      walletID,
		Direction:     direction,
		Amount:        amount,
		SourceType:    sourceType,
		SourceID:      row.SourceID,
		Description:   row.Description,
		BalanceAfter:  balanceAfter,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapWithdrawal(row Withdrawal) (ledger.WithdrawalRequest, error) {
	walletID, err := ledger.NewWalletID(row.WalletID)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	leagueID, err := ledger.NewLeagueID(row.LeagueID)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.AmountCents)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	speed, err := ledger.ParsePayoutSpeed(row.Speed)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	fee, err := ledger.NewAmountCents(row.FeeCents)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	net, err := ledger.NewAmountCents(row.NetCents)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	status, err := ledger.ParseWithdrawalStatus(row.Status)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	return ledger.WithdrawalRequest{
		WithdrawalID:      row.WithdrawalID,
		WalletID:          walletID,
		LeagueID:          leagueID,
		UserID:            userID,
		Amount:            amount,
		Speed:             speed,
		FeeAmount:         fee,
		NetAmount:         net,
		Status:            status,
		RequestedAt:       row.RequestedAt.UTC(),
		ProcessedAt:       utcPointer(row.ProcessedAt),
		TransferReference: row.TransferReference,
		FailureReason:     row.FailureReason,
	}, nil
}

func mapPayout(row Payout) (ledger.Payout, error) {
	leagueID, err := ledger.NewLeagueID(row.LeagueID)
	if err != nil {
		return ledger.Payout{}, err
	}
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Payout{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.AmountCents)
	if err != nil {
		return ledger.Payout{}, err
	}
	fee, err := ledger.NewAmountCents(row.FeeCents)
	if err != nil {
		return ledger.Payout{}, err
	}
	reason, err := ledger.ParsePayoutReason(row.Reason)
	if err != nil {
		return ledger.Payout{}, err
	}
	speed, err := ledger.ParsePayoutSpeed(row.Speed)
	if err != nil {
		return ledger.Payout{}, err
	}
	status, err := ledger.ParsePayoutStatus(row.Status)
	if err != nil {
		return ledger.Payout{}, err
	}
	var week *ledger.Week
	if row.Week != nil {
		parsed, err := ledger.NewWeek(*row.Week)
		if err != nil {
			return ledger.Payout{}, err
		}
		week = &parsed
	}
	return ledger.Payout{
		PayoutID:  row.PayoutID,
		LeagueID:  leagueID,
		UserID:    userID,
		Amount:    amount,
		FeeAmount: fee,
		Reason:    reason,
		Week:      week,
		Speed:     speed,
		Status:    status,
		CreatedAt: row.CreatedAt.UTC(),
		PaidAt:    utcPointer(row.PaidAt),
	}, nil
}

func mapAwardEvent(row WeeklyAwardEvent) (ledger.WeeklyAwardEvent, error) {
	leagueID, err := ledger.NewLeagueID(row.LeagueID)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	week, err := ledger.NewWeek(row.Week)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	highScorer, err := ledger.NewUserID(row.HighScoreUserID)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	lowScorer, err := ledger.NewUserID(row.LowScoreUserID)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	prize, err := ledger.NewAmountCents(row.HighScorePrizeCents)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	fee, err := ledger.NewAmountCents(row.LowScoreFeeCents)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	scores, err := decodeScores(row.Scores)
	if err != nil {
		return ledger.WeeklyAwardEvent{}, err
	}
	return ledger.WeeklyAwardEvent{
		EventID:            row.EventID,
		LeagueID:           leagueID,
		Week:               week,
		HighScoreUserID:    highScorer,
		LowScoreUserID:     lowScorer,
		HighScorePrize:     prize,
		LowScoreFee:        fee,
		LowScoreFeeEnabled: row.LowScoreFeeEnabled,
		HighScoreCredited:  row.HighScoreCredited,
		LowScoreNotified:   row.LowScoreNotified,
		Scores:             scores,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, nil
}

func mapFeeRequest(row FeeRequest) (ledger.FeeRequest, error) {
	leagueID, err := ledger.NewLeagueID(row.LeagueID)
	if err != nil {
		return ledger.FeeRequest{}, err
	}
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.FeeRequest{}, err
	}
	week, err := ledger.NewWeek(row.Week)
	if err != nil {
		return ledger.FeeRequest{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.AmountCents)
	if err != nil {
		return ledger.FeeRequest{}, err
	}
	status, err := ledger.ParseFeeRequestStatus(row.Status)
	if err != nil {
		return ledger.FeeRequest{}, err
	}
	return ledger.FeeRequest{
		FeeRequestID: row.FeeRequestID,
		LeagueID:     leagueID,
		UserID:       userID,
		Week:         week,
		Amount:       amount,
		Status:       status,
		EventID:      row.EventID,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}

func mapLeagueSettings(row LeagueSettings) (ledger.LeagueSettings, error) {
	leagueID, err := ledger.NewLeagueID(row.LeagueID)
	if err != nil {
		return ledger.LeagueSettings{}, err
	}
	var owner ledger.UserID
	if row.OwnerUserID != "" {
		owner, err = ledger.NewUserID(row.OwnerUserID)
		if err != nil {
			return ledger.LeagueSettings{}, err
		}
	}
	prize, err := ledger.NewAmountCents(row.HighScorePrizeCents)
	if err != nil {
		return ledger.LeagueSettings{}, err
	}
	fee, err := ledger.NewAmountCents(row.LowScoreFeeCents)
	if err != nil {
		return ledger.LeagueSettings{}, err
	}
	return ledger.LeagueSettings{
		LeagueID:           leagueID,
		OwnerUserID:        owner,
		HighScorePrize:     prize,
		LowScoreFee:        fee,
		LowScoreFeeEnabled: row.LowScoreFeeEnabled,
	}, nil
}

func utcOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
