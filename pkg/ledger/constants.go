package ledger

import "time"

const (
	operationCredit             = "credit"
	operationDebit              = "debit"
	operationIssuePayout        = "issue_payout"
	operationRequestWithdrawal  = "request_withdrawal"
	operationCompleteWithdrawal = "complete_withdrawal"
	operationFailWithdrawal     = "fail_withdrawal"
	operationMarkPayoutPaid     = "mark_payout_paid"
	operationSettleWeek         = "settle_week"
	operationNotifyLowScore     = "notify_low_score"

	operationStatusOK                 = "ok"
	operationStatusError              = "error"
	operationStatusAlreadyProcessed   = "already_processed"
	operationStatusNotificationFailed = "notification_failed"

	centsExponent                = 2
	maxAmountDigits              = 18
	maxWeek                      = 53
	defaultInstantFeeRate        = "0.025"
	standardWithdrawalSettlement = 72 * time.Hour
	simulatedTransferPrefix      = "sim_"
)
