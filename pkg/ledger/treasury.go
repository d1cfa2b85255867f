package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Treasury is the league-wide money in versus money out.
type Treasury struct {
	LeagueID         LeagueID
	TotalInflow      AmountCents
	TotalOutflow     AmountCents
	AvailableBalance SignedAmountCents
	MemberWallets    []MemberWallet
}

// MemberWallet is a wallet enriched with the member's display name.
type MemberWallet struct {
	Wallet      Wallet
	DisplayName string
}

// TreasuryAggregator builds read-only treasury reports.
type TreasuryAggregator struct {
	store     Store
	directory LeagueDirectory
	payments  PaymentSource
}

// NewTreasuryAggregator wires a TreasuryAggregator.
func NewTreasuryAggregator(store Store, directory LeagueDirectory, payments PaymentSource) (*TreasuryAggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: league directory dependency is nil", ErrInvalidServiceConfig)
	}
	if payments == nil {
		return nil, fmt.Errorf("%w: payment source dependency is nil", ErrInvalidServiceConfig)
	}
	return &TreasuryAggregator{store: store, directory: directory, payments: payments}, nil
}

// Treasury sums completed inflows and paid outflows and lists member wallets
// ordered by display name.
func (aggregator *TreasuryAggregator) Treasury(ctx context.Context, leagueID LeagueID) (Treasury, error) {
	inflow, err := aggregator.payments.SumCompletedPayments(ctx, leagueID)
	if err != nil {
		return Treasury{}, err
	}
	outflow, err := aggregator.store.SumPaidPayouts(ctx, leagueID)
	if err != nil {
		return Treasury{}, err
	}
	memberWallets, err := aggregator.MemberWallets(ctx, leagueID)
	if err != nil {
		return Treasury{}, err
	}
	return Treasury{
		LeagueID:         leagueID,
		TotalInflow:      inflow,
		TotalOutflow:     outflow,
		AvailableBalance: SignedAmountCents(inflow.Int64() - outflow.Int64()),
		MemberWallets:    memberWallets,
	}, nil
}

// MemberWallets joins the league's wallets with directory display names.
// Wallets of users missing from the directory fall back to the user id.
func (aggregator *TreasuryAggregator) MemberWallets(ctx context.Context, leagueID LeagueID) ([]MemberWallet, error) {
	wallets, err := aggregator.store.ListWallets(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	members, err := aggregator.directory.ListMembers(ctx, leagueID)
	if err != nil && !errors.Is(err, ErrUnknownLeague) {
		return nil, err
	}
	names := make(map[string]string, len(members))
	for _, member := range members {
		names[member.UserID.String()] = member.DisplayName
	}
	memberWallets := make([]MemberWallet, 0, len(wallets))
	for _, wallet := range wallets {
		displayName := names[wallet.UserID.String()]
		if displayName == "" {
			displayName = wallet.UserID.String()
		}
		memberWallets = append(memberWallets, MemberWallet{Wallet: wallet, DisplayName: displayName})
	}
	sort.SliceStable(memberWallets, func(left, right int) bool {
		if memberWallets[left].DisplayName != memberWallets[right].DisplayName {
			return memberWallets[left].DisplayName < memberWallets[right].DisplayName
		}
		return memberWallets[left].Wallet.UserID.String() < memberWallets[right].Wallet.UserID.String()
	})
	return memberWallets, nil
}
