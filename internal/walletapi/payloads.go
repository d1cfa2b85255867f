package walletapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/shopspring/decimal"
)

// Money values are rendered as decimal strings with two places, e.g. "97.50".
// Request amounts may be JSON numbers or strings.

type withdrawRequest struct {
	Amount     json.RawMessage `json:"amount"`
	PayoutType string          `json:"payoutType"`
}

type payoutRequest struct {
	LeagueID   string          `json:"leagueId"`
	UserID     string          `json:"userId"`
	Amount     json.RawMessage `json:"amount"`
	Reason     string          `json:"reason"`
	Week       *int            `json:"week"`
	PayoutType string          `json:"payoutType"`
}

// parseAmount decodes a request amount so malformed values report
// ErrInvalidAmount rather than a generic payload error.
func parseAmount(raw json.RawMessage) (ledger.PositiveAmountCents, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: amount is required", ledger.ErrInvalidAmount)
	}
	var value decimal.Decimal
	if err := value.UnmarshalJSON(raw); err != nil {
		return 0, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return ledger.ParsePositiveAmount(value)
}

func (request payoutRequest) toDomain() (ledger.PayoutRequest, error) {
	leagueID, err := ledger.NewLeagueID(request.LeagueID)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}
	amount, err := parseAmount(request.Amount)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}
	reason, err := ledger.ParsePayoutReason(request.Reason)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}
	speed, err := parseSpeed(request.PayoutType)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}
	var week *ledger.Week
	if request.Week != nil {
		parsed, err := ledger.NewWeek(*request.Week)
		if err != nil {
			return ledger.PayoutRequest{}, err
		}
		week = &parsed
	}
	return ledger.PayoutRequest{
		LeagueID:        leagueID,
		RecipientUserID: userID,
		Amount:          amount,
		Reason:          reason,
		Week:            week,
		Speed:           speed,
	}, nil
}

type settleWeekRequest struct {
	Week int `json:"week"`
}

type completeWithdrawalRequest struct {
	TransferReference string `json:"transferReference"`
}

type failWithdrawalRequest struct {
	Reason string `json:"reason"`
}

type walletPayload struct {
	WalletID         string    `json:"walletId"`
	LeagueID         string    `json:"leagueId"`
	UserID           string    `json:"userId"`
	AvailableBalance string    `json:"availableBalance"`
	TotalEarnings    string    `json:"totalEarnings"`
	TotalWithdrawn   string    `json:"totalWithdrawn"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func newWalletPayload(wallet ledger.Wallet) walletPayload {
	return walletPayload{
		WalletID:         wallet.WalletID.String(),
		LeagueID:         wallet.LeagueID.String(),
		UserID:           wallet.UserID.String(),
		AvailableBalance: wallet.AvailableBalance.String(),
		TotalEarnings:    wallet.TotalEarnings.String(),
		TotalWithdrawn:   wallet.TotalWithdrawn.String(),
		UpdatedAt:        wallet.UpdatedAt,
	}
}

type transactionPayload struct {
	TransactionID string    `json:"transactionId"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	SourceType    string    `json:"sourceType"`
	SourceID      string    `json:"sourceId"`
	Description   string    `json:"description"`
	BalanceAfter  string    `json:"balanceAfter"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newTransactionPayloads(transactions []ledger.WalletTransaction) []transactionPayload {
	payloads := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, transactionPayload{
			TransactionID: transaction.TransactionID,
			Type:          transaction.Direction.String(),
			Amount:        transaction.Amount.String(),
			SourceType:    transaction.SourceType.String(),
			SourceID:      transaction.SourceID,
			Description:   transaction.Description,
			BalanceAfter:  transaction.BalanceAfter.String(),
			CreatedAt:     transaction.CreatedAt,
		})
	}
	return payloads
}

type withdrawalPayload struct {
	WithdrawalID      string     `json:"id"`
	WalletID          string     `json:"walletId"`
	LeagueID          string     `json:"leagueId"`
	UserID            string     `json:"userId"`
	Amount            string     `json:"amount"`
	PayoutType        string     `json:"payoutType"`
	FeeAmount         string     `json:"feeAmount"`
	NetAmount         string     `json:"netAmount"`
	Status            string     `json:"status"`
	RequestedAt       time.Time  `json:"requestedAt"`
	ProcessedAt       *time.Time `json:"processedAt,omitempty"`
	EstimatedArrival  time.Time  `json:"estimatedArrival"`
	TransferReference string     `json:"transferReference,omitempty"`
	FailureReason     string     `json:"failureReason,omitempty"`
}

func newWithdrawalPayload(withdrawal ledger.WithdrawalRequest) withdrawalPayload {
	return withdrawalPayload{
		WithdrawalID:      withdrawal.WithdrawalID,
		WalletID:          withdrawal.WalletID.String(),
		LeagueID:          withdrawal.LeagueID.String(),
		UserID:            withdrawal.UserID.String(),
		Amount:            withdrawal.Amount.String(),
		PayoutType:        withdrawal.Speed.String(),
		FeeAmount:         withdrawal.FeeAmount.String(),
		NetAmount:         withdrawal.NetAmount.String(),
		Status:            withdrawal.Status.String(),
		RequestedAt:       withdrawal.RequestedAt,
		ProcessedAt:       withdrawal.ProcessedAt,
		EstimatedArrival:  withdrawal.EstimatedArrival(),
		TransferReference: withdrawal.TransferReference,
		FailureReason:     withdrawal.FailureReason,
	}
}

type payoutPayload struct {
	PayoutID   string    `json:"id"`
	LeagueID   string    `json:"leagueId"`
	UserID     string    `json:"userId"`
	Amount     string    `json:"amount"`
	FeeAmount  string    `json:"feeAmount"`
	Reason     string    `json:"reason"`
	Week       *int      `json:"week,omitempty"`
	PayoutType string    `json:"payoutType"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}

func newPayoutPayload(payout ledger.Payout) payoutPayload {
	payload := payoutPayload{
		PayoutID:   payout.PayoutID,
		LeagueID:   payout.LeagueID.String(),
		UserID:     payout.UserID.String(),
		Amount:     payout.Amount.String(),
		FeeAmount:  payout.FeeAmount.String(),
		Reason:     payout.Reason.String(),
		PayoutType: payout.Speed.String(),
		Status:     payout.Status.String(),
		CreatedAt:  payout.CreatedAt,
		PaidAt:     payout.PaidAt,
	}
	if payout.Week != nil {
		week := payout.Week.Int()
		payload.Week = &week
	}
	return payload
}

type memberWalletPayload struct {
	walletPayload
	DisplayName string `json:"displayName"`
}

type treasuryPayload struct {
	LeagueID         string                `json:"leagueId"`
	TotalInflow      string                `json:"totalInflow"`
	TotalOutflow     string                `json:"totalOutflow"`
	AvailableBalance string                `json:"availableBalance"`
	MemberWallets    []memberWalletPayload `json:"memberWallets"`
}

func newTreasuryPayload(treasury ledger.Treasury) treasuryPayload {
	wallets := make([]memberWalletPayload, 0, len(treasury.MemberWallets))
	for _, memberWallet := range treasury.MemberWallets {
		wallets = append(wallets, memberWalletPayload{
			walletPayload: newWalletPayload(memberWallet.Wallet),
			DisplayName:   memberWallet.DisplayName,
		})
	}
	return treasuryPayload{
		LeagueID:         treasury.LeagueID.String(),
		TotalInflow:      treasury.TotalInflow.String(),
		TotalOutflow:     treasury.TotalOutflow.String(),
		AvailableBalance: treasury.AvailableBalance.String(),
		MemberWallets:    wallets,
	}
}

type scorerPayload struct {
	UserID string `json:"userId"`
	Points string `json:"points"`
}

type settlementPayload struct {
	EventID             string        `json:"eventId"`
	Week                int           `json:"week"`
	HPSWalletCredited   bool          `json:"hpsWalletCredited"`
	LPSNotificationSent bool          `json:"lpsNotificationSent"`
	AlreadyProcessed    bool          `json:"alreadyProcessed"`
	HighScorer          scorerPayload `json:"highScorer"`
	LowScorer           scorerPayload `json:"lowScorer"`
	NotificationError   string        `json:"notificationError,omitempty"`
}

func newSettlementPayload(result ledger.SettlementResult) settlementPayload {
	payload := settlementPayload{
		EventID:             result.Event.EventID,
		Week:                result.Event.Week.Int(),
		HPSWalletCredited:   result.HighScoreCredited,
		LPSNotificationSent: result.LowScoreNotified,
		AlreadyProcessed:    result.AlreadyProcessed,
		HighScorer:          newScorerPayload(result.Event, result.Event.HighScoreUserID),
		LowScorer:           newScorerPayload(result.Event, result.Event.LowScoreUserID),
	}
	if result.NotificationError != nil {
		payload.NotificationError = result.NotificationError.Error()
	}
	return payload
}

func newScorerPayload(event ledger.WeeklyAwardEvent, userID ledger.UserID) scorerPayload {
	payload := scorerPayload{UserID: userID.String()}
	for _, score := range event.Scores {
		if score.UserID == userID {
			payload.Points = score.Points.StringFixed(2)
			break
		}
	}
	return payload
}
