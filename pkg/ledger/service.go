package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service contains the wallet, payout and withdrawal logic over a Store.
type Service struct {
	store          Store
	nowFn          func() time.Time
	logger         OperationLogger
	instantFeeRate FeeRate
	newID          func() string
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:          store,
		nowFn:          now,
		instantFeeRate: DefaultInstantFeeRate(),
		newID:          uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// InstantFeeRate returns the configured instant payout rate.
func (service *Service) InstantFeeRate() FeeRate {
	return service.instantFeeRate
}

// GetOrCreateWallet returns the member's wallet in a league, creating it on first use.
func (service *Service) GetOrCreateWallet(ctx context.Context, leagueID LeagueID, userID UserID) (Wallet, error) {
	return service.store.GetOrCreateWallet(ctx, leagueID, userID)
}

// GetWallet returns a wallet by id.
func (service *Service) GetWallet(ctx context.Context, walletID WalletID) (Wallet, error) {
	return service.store.GetWallet(ctx, walletID)
}

// ListTransactions returns a wallet's transactions newest first.
func (service *Service) ListTransactions(ctx context.Context, walletID WalletID) ([]WalletTransaction, error) {
	return service.store.ListTransactions(ctx, walletID)
}

// Credit increases a wallet's balance and appends a credit transaction.
func (service *Service) Credit(ctx context.Context, walletID WalletID, amount PositiveAmountCents, sourceType SourceType, sourceID string, description string) (WalletTransaction, error) {
	var transaction WalletTransaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		transaction, err = service.credit(ctx, transactionStore, walletID, amount, sourceType, sourceID, description)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		WalletID:  walletID,
		Reference: sourceID,
		Amount:    AmountCents(amount),
		Error:     operationError,
	})
	return transaction, operationError
}

// Debit decreases a wallet's balance and appends a debit transaction.
func (service *Service) Debit(ctx context.Context, walletID WalletID, amount PositiveAmountCents, sourceType SourceType, sourceID string, description string) (WalletTransaction, error) {
	var transaction WalletTransaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		transaction, err = service.debit(ctx, transactionStore, walletID, amount, sourceType, sourceID, description)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDebit,
		WalletID:  walletID,
		Reference: sourceID,
		Amount:    AmountCents(amount),
		Error:     operationError,
	})
	return transaction, operationError
}

func (service *Service) credit(ctx context.Context, store Store, walletID WalletID, amount PositiveAmountCents, sourceType SourceType, sourceID string, description string) (WalletTransaction, error) {
	if amount <= 0 {
		return WalletTransaction{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if _, err := ParseSourceType(sourceType.String()); err != nil {
		return WalletTransaction{}, err
	}
	now := service.nowFn()
	wallet, err := store.ApplyCredit(ctx, walletID, amount, now)
	if err != nil {
		return WalletTransaction{}, err
	}
	return service.appendTransaction(ctx, store, wallet, DirectionCredit, amount, sourceType, sourceID, description, now)
}

func (service *Service) debit(ctx context.Context, store Store, walletID WalletID, amount PositiveAmountCents, sourceType SourceType, sourceID string, description string) (WalletTransaction, error) {
	if amount <= 0 {
		return WalletTransaction{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if _, err := ParseSourceType(sourceType.String()); err != nil {
		return WalletTransaction{}, err
	}
	now := service.nowFn()
	wallet, err := store.ApplyDebit(ctx, walletID, amount, now)
	if err != nil {
		return WalletTransaction{}, err
	}
	return service.appendTransaction(ctx, store, wallet, DirectionDebit, amount, sourceType, sourceID, description, now)
}

func (service *Service) appendTransaction(ctx context.Context, store Store, wallet Wallet, direction Direction, amount PositiveAmountCents, sourceType SourceType, sourceID string, description string, at time.Time) (WalletTransaction, error) {
	if !wallet.Balanced() {
		return WalletTransaction{}, WrapError("service", "wallet", "unbalanced", fmt.Errorf("wallet %s: available %s, earnings %s, withdrawn %s", wallet.WalletID.String(), wallet.AvailableBalance, wallet.TotalEarnings, wallet.TotalWithdrawn))
	}
	transaction := WalletTransaction{
		TransactionID: service.newID(),
		WalletID:      wallet.WalletID,
		Direction:     direction,
		Amount:        amount,
		SourceType:    sourceType,
		SourceID:      sourceID,
		Description:   description,
		BalanceAfter:  wallet.AvailableBalance,
		CreatedAt:     at,
	}
	if err := store.InsertTransaction(ctx, transaction); err != nil {
		return WalletTransaction{}, err
	}
	return transaction, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
