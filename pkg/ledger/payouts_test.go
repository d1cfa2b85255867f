package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestIssuePayout(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name        string
		speed       PayoutSpeed
		gross       int64
		wantNet     PositiveAmountCents
		wantFee     AmountCents
		wantStatus  PayoutStatus
		wantFeeRows int
	}{
		{name: "standard", speed: SpeedStandard, gross: 10000, wantNet: 10000, wantFee: 0, wantStatus: PayoutStatusApproved},
		{name: "instant", speed: SpeedInstant, gross: 10000, wantNet: 9750, wantFee: 250, wantStatus: PayoutStatusPaid, wantFeeRows: 1},
		{name: "instant below a cent of fee", speed: SpeedInstant, gross: 10, wantNet: 10, wantFee: 0, wantStatus: PayoutStatusPaid},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			service := mustNewService(test, store)
			ctx := context.Background()
			leagueID := mustLeagueID(test, "league-1")
			recipient := mustUserID(test, "user-1")
			week := mustWeek(test, 3)

			payout, err := service.IssuePayout(ctx, PayoutRequest{
				LeagueID:        leagueID,
				RecipientUserID: recipient,
				Amount:          mustPositiveAmount(test, testCase.gross),
				Reason:          ReasonFirstPlace,
				Week:            &week,
				Speed:           testCase.speed,
			})
			if err != nil {
				test.Fatalf("issue payout: %v", err)
			}
			if payout.Amount != testCase.wantNet || payout.FeeAmount != testCase.wantFee || payout.Status != testCase.wantStatus {
				test.Fatalf("unexpected payout: %+v", payout)
			}

			wallet := mustWallet(test, store, leagueID, recipient)
			if wallet.AvailableBalance != testCase.wantNet.ToAmountCents() || wallet.TotalEarnings != testCase.wantNet.ToAmountCents() {
				test.Fatalf("unexpected wallet: %+v", wallet)
			}
			transactions, err := service.ListTransactions(ctx, wallet.WalletID)
			if err != nil {
				test.Fatalf("list transactions: %v", err)
			}
			if len(transactions) != 1 || transactions[0].SourceType != SourcePayout || transactions[0].SourceID != payout.PayoutID {
				test.Fatalf("unexpected transactions: %+v", transactions)
			}
			if transactions[0].Description != "1st place prize (week 3)" {
				test.Fatalf("unexpected description %q", transactions[0].Description)
			}

			state := store.snapshot()
			if len(state.platformFees) != testCase.wantFeeRows {
				test.Fatalf("expected %d platform fees, got %d", testCase.wantFeeRows, len(state.platformFees))
			}
			for _, fee := range state.platformFees {
				if fee.PayoutID != payout.PayoutID || fee.Amount.ToAmountCents() != testCase.wantFee || fee.Status != PlatformFeeStatusTransferred {
					test.Fatalf("unexpected platform fee: %+v", fee)
				}
			}
			assertLedgerInvariants(test, store, wallet.WalletID)
		})
	}
}

func TestIssuePayoutHonorsConfiguredRate(test *testing.T) {
	test.Parallel()
	rate, err := ParseFeeRate("0.03")
	if err != nil {
		test.Fatalf("parse rate: %v", err)
	}
	store := newStubStore(test)
	service := mustNewService(test, store, WithInstantFeeRate(rate))
	payout, err := service.IssuePayout(context.Background(), PayoutRequest{
		LeagueID:        mustLeagueID(test, "league-1"),
		RecipientUserID: mustUserID(test, "user-1"),
		Amount:          mustPositiveAmount(test, 10000),
		Reason:          ReasonOther,
		Speed:           SpeedInstant,
	})
	if err != nil {
		test.Fatalf("issue payout: %v", err)
	}
	if payout.FeeAmount != 300 || payout.Amount != 9700 {
		test.Fatalf("unexpected payout: %+v", payout)
	}
}

func TestIssuePayoutRejectsInvalidRequest(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	ctx := context.Background()
	base := PayoutRequest{
		LeagueID:        mustLeagueID(test, "league-1"),
		RecipientUserID: mustUserID(test, "user-1"),
		Amount:          mustPositiveAmount(test, 100),
		Reason:          ReasonRefund,
		Speed:           SpeedStandard,
	}
	zeroAmount := base
	zeroAmount.Amount = 0
	badReason := base
	badReason.Reason = PayoutReason("bonus")
	badSpeed := base
	badSpeed.Speed = PayoutSpeed("overnight")

	testCases := []struct {
		name    string
		request PayoutRequest
		wantErr error
	}{
		{name: "zero amount", request: zeroAmount, wantErr: ErrInvalidAmount},
		{name: "unknown reason", request: badReason, wantErr: ErrInvalidPayoutReason},
		{name: "unknown speed", request: badSpeed, wantErr: ErrInvalidPayoutSpeed},
	}
	for _, testCase := range testCases {
		if _, err := service.IssuePayout(ctx, testCase.request); !errors.Is(err, testCase.wantErr) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.wantErr, err)
		}
	}
	if state := store.snapshot(); len(state.payouts) != 0 || len(state.wallets) != 0 {
		test.Fatalf("rejected payouts left records behind")
	}
}

func TestIssuePayoutRollsBackWhenCreditFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	store.failOn(faultApplyCredit, errors.New("deadlock detected"))
	_, err := service.IssuePayout(context.Background(), PayoutRequest{
		LeagueID:        mustLeagueID(test, "league-1"),
		RecipientUserID: mustUserID(test, "user-1"),
		Amount:          mustPositiveAmount(test, 100),
		Reason:          ReasonFirstPlace,
		Speed:           SpeedInstant,
	})
	if err == nil {
		test.Fatalf("expected payout to fail")
	}
	if state := store.snapshot(); len(state.payouts) != 0 || len(state.platformFees) != 0 {
		test.Fatalf("payout rows survived a failed credit")
	}
}

func TestMarkPayoutPaid(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	aggregator, err := NewTreasuryAggregator(store, store, store)
	if err != nil {
		test.Fatalf("new aggregator: %v", err)
	}
	ctx := context.Background()
	leagueID := mustLeagueID(test, "league-1")

	standard, err := service.IssuePayout(ctx, PayoutRequest{
		LeagueID:        leagueID,
		RecipientUserID: mustUserID(test, "user-1"),
		Amount:          mustPositiveAmount(test, 10000),
		Reason:          ReasonWeeklyHighScore,
		Speed:           SpeedStandard,
	})
	if err != nil {
		test.Fatalf("issue standard payout: %v", err)
	}
	if standard.PaidAt != nil {
		test.Fatalf("standard payout should not be paid on issue")
	}
	instant, err := service.IssuePayout(ctx, PayoutRequest{
		LeagueID:        leagueID,
		RecipientUserID: mustUserID(test, "user-2"),
		Amount:          mustPositiveAmount(test, 1000),
		Reason:          ReasonRefund,
		Speed:           SpeedInstant,
	})
	if err != nil {
		test.Fatalf("issue instant payout: %v", err)
	}
	if instant.PaidAt == nil {
		test.Fatalf("instant payout should be paid on issue")
	}

	treasury, err := aggregator.Treasury(ctx, leagueID)
	if err != nil {
		test.Fatalf("treasury: %v", err)
	}
	if treasury.TotalOutflow != 975 {
		test.Fatalf("expected only the instant payout counted, got %d", treasury.TotalOutflow)
	}

	paid, err := service.MarkPayoutPaid(ctx, standard.PayoutID)
	if err != nil {
		test.Fatalf("mark paid: %v", err)
	}
	if paid.Status != PayoutStatusPaid || paid.PaidAt == nil {
		test.Fatalf("unexpected payout after mark: %+v", paid)
	}
	treasury, err = aggregator.Treasury(ctx, leagueID)
	if err != nil {
		test.Fatalf("treasury: %v", err)
	}
	if treasury.TotalOutflow != 10975 {
		test.Fatalf("expected settled payout in outflow, got %d", treasury.TotalOutflow)
	}

	if _, err := service.MarkPayoutPaid(ctx, standard.PayoutID); !errors.Is(err, ErrPayoutClosed) {
		test.Fatalf("expected ErrPayoutClosed on repeat, got %v", err)
	}
	if _, err := service.MarkPayoutPaid(ctx, instant.PayoutID); !errors.Is(err, ErrPayoutClosed) {
		test.Fatalf("expected ErrPayoutClosed for instant payout, got %v", err)
	}
	if _, err := service.MarkPayoutPaid(ctx, "missing"); !errors.Is(err, ErrUnknownPayout) {
		test.Fatalf("expected ErrUnknownPayout, got %v", err)
	}
}
