package ledger

import (
	"context"
	"fmt"
	"strings"
)

// RequestWithdrawal records a cash-out and debits the gross amount from the
// wallet in the same store transaction. Instant withdrawals complete
// immediately; standard withdrawals wait in processing for the processor.
func (service *Service) RequestWithdrawal(ctx context.Context, walletID WalletID, amount PositiveAmountCents, speed PayoutSpeed) (WithdrawalRequest, error) {
	var withdrawal WithdrawalRequest
	var wallet Wallet
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		wallet, err = transactionStore.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if amount.ToAmountCents() > wallet.AvailableBalance {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, amount, wallet.AvailableBalance)
		}
		breakdown, err := ComputeFee(amount, speed, service.instantFeeRate)
		if err != nil {
			return err
		}
		now := service.nowFn()
		withdrawal = WithdrawalRequest{
			WithdrawalID: service.newID(),
			WalletID:     wallet.WalletID,
			LeagueID:     wallet.LeagueID,
			UserID:       wallet.UserID,
			Amount:       amount,
			Speed:        speed,
			FeeAmount:    breakdown.Fee,
			NetAmount:    breakdown.Net.ToAmountCents(),
			Status:       WithdrawalStatusRequested,
			RequestedAt:  now,
		}
		if err := transactionStore.InsertWithdrawal(ctx, withdrawal); err != nil {
			return err
		}
		if _, err := service.debit(ctx, transactionStore, wallet.WalletID, amount, SourceWithdrawal, withdrawal.WithdrawalID, describeWithdrawal(speed)); err != nil {
			return err
		}
		transition := WithdrawalTransition{To: WithdrawalStatusProcessing}
		if speed == SpeedInstant {
			transition = WithdrawalTransition{
				To:                WithdrawalStatusCompleted,
				ProcessedAt:       &now,
				TransferReference: simulatedTransferPrefix + service.newID(),
			}
		}
		if err := transactionStore.TransitionWithdrawal(ctx, withdrawal.WithdrawalID, WithdrawalStatusRequested, transition); err != nil {
			return err
		}
		applyTransition(&withdrawal, transition)
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRequestWithdrawal,
		LeagueID:  wallet.LeagueID,
		UserID:    wallet.UserID,
		WalletID:  walletID,
		Reference: withdrawal.WithdrawalID,
		Amount:    AmountCents(amount),
		Error:     operationError,
	})
	if operationError != nil {
		return WithdrawalRequest{}, operationError
	}
	return withdrawal, nil
}

// CompleteWithdrawal records the processor's successful transfer.
func (service *Service) CompleteWithdrawal(ctx context.Context, withdrawalID string, transferReference string) (WithdrawalRequest, error) {
	now := service.nowFn()
	transition := WithdrawalTransition{
		To:                WithdrawalStatusCompleted,
		ProcessedAt:       &now,
		TransferReference: strings.TrimSpace(transferReference),
	}
	return service.settleWithdrawal(ctx, operationCompleteWithdrawal, withdrawalID, transition)
}

// FailWithdrawal records a failed transfer. The debit is not reversed;
// reconciliation happens outside the ledger.
func (service *Service) FailWithdrawal(ctx context.Context, withdrawalID string, reason string) (WithdrawalRequest, error) {
	now := service.nowFn()
	trimmedReason := strings.TrimSpace(reason)
	if trimmedReason == "" {
		trimmedReason = ErrExternalSettlementFailed.Error()
	}
	transition := WithdrawalTransition{
		To:            WithdrawalStatusFailed,
		ProcessedAt:   &now,
		FailureReason: trimmedReason,
	}
	return service.settleWithdrawal(ctx, operationFailWithdrawal, withdrawalID, transition)
}

// GetWithdrawal returns a withdrawal by id.
func (service *Service) GetWithdrawal(ctx context.Context, withdrawalID string) (WithdrawalRequest, error) {
	return service.store.GetWithdrawal(ctx, withdrawalID)
}

// ListWithdrawals returns the user's withdrawals newest first.
func (service *Service) ListWithdrawals(ctx context.Context, userID UserID) ([]WithdrawalRequest, error) {
	return service.store.ListWithdrawalsByUser(ctx, userID)
}

func (service *Service) settleWithdrawal(ctx context.Context, operation string, withdrawalID string, transition WithdrawalTransition) (WithdrawalRequest, error) {
	var withdrawal WithdrawalRequest
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		withdrawal, err = transactionStore.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal.Status.Terminal() {
			return fmt.Errorf("%w: already %s", ErrWithdrawalClosed, withdrawal.Status)
		}
		if withdrawal.Status != WithdrawalStatusProcessing {
			return fmt.Errorf("%w: not yet processing", ErrWithdrawalClosed)
		}
		if err := transactionStore.TransitionWithdrawal(ctx, withdrawalID, WithdrawalStatusProcessing, transition); err != nil {
			return err
		}
		applyTransition(&withdrawal, transition)
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		LeagueID:  withdrawal.LeagueID,
		UserID:    withdrawal.UserID,
		WalletID:  withdrawal.WalletID,
		Reference: withdrawalID,
		Amount:    AmountCents(withdrawal.Amount),
		Error:     operationError,
	})
	if operationError != nil {
		return WithdrawalRequest{}, operationError
	}
	return withdrawal, nil
}

func applyTransition(withdrawal *WithdrawalRequest, transition WithdrawalTransition) {
	withdrawal.Status = transition.To
	if transition.ProcessedAt != nil {
		processedAt := *transition.ProcessedAt
		withdrawal.ProcessedAt = &processedAt
	}
	if transition.TransferReference != "" {
		withdrawal.TransferReference = transition.TransferReference
	}
	if transition.FailureReason != "" {
		withdrawal.FailureReason = transition.FailureReason
	}
}

func describeWithdrawal(speed PayoutSpeed) string {
	if speed == SpeedInstant {
		return "Instant withdrawal"
	}
	return "Standard withdrawal"
}
