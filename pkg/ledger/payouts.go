package ledger

import (
	"context"
	"fmt"
	"time"
)

// PayoutRequest is a league owner's instruction to credit a member.
// Amount is the gross amount before any instant fee.
type PayoutRequest struct {
	LeagueID        LeagueID
	RecipientUserID UserID
	Amount          PositiveAmountCents
	Reason          PayoutReason
	Week            *Week
	Speed           PayoutSpeed
}

// IssuePayout credits the recipient's wallet with the net payout amount.
// Callers must already have verified that the actor owns the league.
func (service *Service) IssuePayout(ctx context.Context, request PayoutRequest) (Payout, error) {
	var payout Payout
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		payout, err = service.issuePayout(ctx, transactionStore, request)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationIssuePayout,
		LeagueID:  request.LeagueID,
		UserID:    request.RecipientUserID,
		Reference: payout.PayoutID,
		Amount:    AmountCents(request.Amount),
		Error:     operationError,
	})
	return payout, operationError
}

func (service *Service) issuePayout(ctx context.Context, store Store, request PayoutRequest) (Payout, error) {
	if _, err := ParsePayoutReason(request.Reason.String()); err != nil {
		return Payout{}, err
	}
	breakdown, err := ComputeFee(request.Amount, request.Speed, service.instantFeeRate)
	if err != nil {
		return Payout{}, err
	}
	status := PayoutStatusApproved
	if request.Speed == SpeedInstant {
		status = PayoutStatusPaid
	}
	now := service.nowFn()
	var paidAt *time.Time
	if status == PayoutStatusPaid {
		paidAt = &now
	}
	payout := Payout{
		PayoutID:  service.newID(),
		LeagueID:  request.LeagueID,
		UserID:    request.RecipientUserID,
		Amount:    breakdown.Net,
		FeeAmount: breakdown.Fee,
		Reason:    request.Reason,
		Week:      request.Week,
		Speed:     request.Speed,
		Status:    status,
		CreatedAt: now,
		PaidAt:    paidAt,
	}
	if err := store.InsertPayout(ctx, payout); err != nil {
		return Payout{}, err
	}
	wallet, err := store.GetOrCreateWallet(ctx, request.LeagueID, request.RecipientUserID)
	if err != nil {
		return Payout{}, err
	}
	if _, err := service.credit(ctx, store, wallet.WalletID, breakdown.Net, SourcePayout, payout.PayoutID, describePayout(request.Reason, request.Week)); err != nil {
		return Payout{}, err
	}
	if request.Speed == SpeedInstant && breakdown.Fee > 0 {
		fee := PlatformFee{
			FeeID:     service.newID(),
			PayoutID:  payout.PayoutID,
			LeagueID:  request.LeagueID,
			Amount:    PositiveAmountCents(breakdown.Fee),
			Status:    PlatformFeeStatusPending,
			CreatedAt: now,
		}
		if err := store.InsertPlatformFee(ctx, fee); err != nil {
			return Payout{}, err
		}
		// Transfers to the operator are delegated to the processor and settle immediately.
		if err := store.UpdatePlatformFeeStatus(ctx, fee.FeeID, PlatformFeeStatusPending, PlatformFeeStatusTransferred); err != nil {
			return Payout{}, err
		}
	}
	return payout, nil
}

// MarkPayoutPaid records the processor's confirmation that an approved
// standard payout reached the member's bank.
func (service *Service) MarkPayoutPaid(ctx context.Context, payoutID string) (Payout, error) {
	var payout Payout
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		payout, err = transactionStore.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != PayoutStatusApproved {
			return fmt.Errorf("%w: status %s", ErrPayoutClosed, payout.Status)
		}
		now := service.nowFn()
		if err := transactionStore.MarkPayoutPaid(ctx, payoutID, now); err != nil {
			return err
		}
		payout.Status = PayoutStatusPaid
		payout.PaidAt = &now
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationMarkPayoutPaid,
		LeagueID:  payout.LeagueID,
		UserID:    payout.UserID,
		Reference: payoutID,
		Amount:    payout.Amount.ToAmountCents(),
		Error:     operationError,
	})
	if operationError != nil {
		return Payout{}, operationError
	}
	return payout, nil
}

func describePayout(reason PayoutReason, week *Week) string {
	var label string
	switch reason {
	case ReasonFirstPlace:
		label = "1st place prize"
	case ReasonSecondPlace:
		label = "2nd place prize"
	case ReasonThirdPlace:
		label = "3rd place prize"
	case ReasonWeeklyHighScore:
		label = "Weekly high score prize"
	case ReasonRefund:
		label = "Refund"
	default:
		label = "Payout"
	}
	if week != nil {
		return fmt.Sprintf("%s (week %d)", label, week.Int())
	}
	return label
}
