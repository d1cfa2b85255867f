package walletapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	actor, err := actorID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	leagueID, err := ledger.NewLeagueID(ctx.Param("leagueId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.authorizeMember(requestCtx, leagueID, actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	wallet, err := handler.deps.Service.GetOrCreateWallet(requestCtx, leagueID, actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	transactions, err := handler.deps.Service.ListTransactions(requestCtx, wallet.WalletID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"wallet":       newWalletPayload(wallet),
		"transactions": newTransactionPayloads(transactions),
	})
}

func (handler *httpHandler) handleWithdraw(ctx *gin.Context) {
	actor, err := actorID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	walletID, err := ledger.NewWalletID(ctx.Param("walletId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request withdrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondError(ctx, errInvalidPayload)
		return
	}
	amount, err := parseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	speed, err := parseSpeed(request.PayoutType)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	wallet, err := handler.deps.Service.GetWallet(requestCtx, walletID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if wallet.UserID != actor {
		handler.respondError(ctx, errForbidden)
		return
	}
	withdrawal, err := handler.deps.Service.RequestWithdrawal(requestCtx, walletID, amount, speed)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := newWithdrawalPayload(withdrawal)
	ctx.JSON(http.StatusCreated, gin.H{
		"withdrawalRequest": payload,
		"feeAmount":         payload.FeeAmount,
		"netAmount":         payload.NetAmount,
		"estimatedArrival":  payload.EstimatedArrival,
	})
}

func (handler *httpHandler) handleMyWithdrawals(ctx *gin.Context) {
	actor, err := actorID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	withdrawals, err := handler.deps.Service.ListWithdrawals(requestCtx, actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]withdrawalPayload, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		payloads = append(payloads, newWithdrawalPayload(withdrawal))
	}
	ctx.JSON(http.StatusOK, gin.H{"withdrawals": payloads})
}

func (handler *httpHandler) handlePayout(ctx *gin.Context) {
	actor, err := actorID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request payoutRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondError(ctx, errInvalidPayload)
		return
	}
	payout, err := request.toDomain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.authorizeOwner(requestCtx, payout.LeagueID, actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	issued, err := handler.deps.Service.IssuePayout(requestCtx, payout)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, newPayoutPayload(issued))
}

func (handler *httpHandler) handleTreasury(ctx *gin.Context) {
	actor, err := actorID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	leagueID, err := ledger.NewLeagueID(ctx.Param("leagueId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.authorizeMember(requestCtx, leagueID, actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	treasury, err := handler.deps.Treasury.Treasury(requestCtx, leagueID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newTreasuryPayload(treasury))
}

func (handler *httpHandler) handleSettleWeek(ctx *gin.Context) {
	actor, err := actorID(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	leagueID, err := ledger.NewLeagueID(ctx.Param("leagueId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request settleWeekRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		handler.respondError(ctx, errInvalidPayload)
		return
	}
	week, err := ledger.NewWeek(request.Week)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.authorizeOwner(requestCtx, leagueID, actor); err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.deps.Settlement.SettleWeek(requestCtx, leagueID, week)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newSettlementPayload(result))
}

func (handler *httpHandler) handleCompleteWithdrawal(ctx *gin.Context) {
	var request completeWithdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		handler.respondError(ctx, errInvalidPayload)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	withdrawal, err := handler.deps.Service.CompleteWithdrawal(requestCtx, ctx.Param("withdrawalId"), request.TransferReference)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"withdrawalRequest": newWithdrawalPayload(withdrawal)})
}

func (handler *httpHandler) handleFailWithdrawal(ctx *gin.Context) {
	var request failWithdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		handler.respondError(ctx, errInvalidPayload)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	withdrawal, err := handler.deps.Service.FailWithdrawal(requestCtx, ctx.Param("withdrawalId"), request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"withdrawalRequest": newWithdrawalPayload(withdrawal)})
}

func (handler *httpHandler) handlePayoutPaid(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	payout, err := handler.deps.Service.MarkPayoutPaid(requestCtx, ctx.Param("payoutId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"payout": newPayoutPayload(payout)})
}

// parseSpeed defaults to the standard tier when the type is omitted.
func parseSpeed(raw string) (ledger.PayoutSpeed, error) {
	if raw == "" {
		return ledger.SpeedStandard, nil
	}
	return ledger.ParsePayoutSpeed(raw)
}
