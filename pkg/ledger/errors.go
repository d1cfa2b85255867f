package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrNoScoresRecorded          = errors.New("no scores recorded")
	ErrAlreadyProcessed          = errors.New("already processed")
	ErrNotificationFailed        = errors.New("notification failed")
	ErrNotificationTargetMissing = errors.New("notification target missing")
	ErrExternalSettlementFailed  = errors.New("external settlement failed")
	ErrUnknownWallet             = errors.New("unknown wallet")
	ErrUnknownWithdrawal         = errors.New("unknown withdrawal")
	ErrUnknownWeeklyAwardEvent   = errors.New("unknown weekly award event")
	ErrUnknownLeague             = errors.New("unknown league")
	ErrUnknownMember             = errors.New("unknown member")
	ErrUnknownPayout             = errors.New("unknown payout")
	ErrWithdrawalClosed          = errors.New("withdrawal closed")
	ErrPayoutClosed              = errors.New("payout closed")
	ErrPlatformFeeClosed         = errors.New("platform fee closed")
	ErrInvalidLeagueID           = errors.New("invalid league id")
	ErrInvalidUserID             = errors.New("invalid user id")
	ErrInvalidWalletID           = errors.New("invalid wallet id")
	ErrInvalidWeek               = errors.New("invalid week")
	ErrInvalidDirection          = errors.New("invalid direction")
	ErrInvalidSourceType         = errors.New("invalid source type")
	ErrInvalidPayoutReason       = errors.New("invalid payout reason")
	ErrInvalidPayoutSpeed        = errors.New("invalid payout speed")
	ErrInvalidPayoutStatus       = errors.New("invalid payout status")
	ErrInvalidWithdrawalStatus   = errors.New("invalid withdrawal status")
	ErrInvalidFeeRequestStatus   = errors.New("invalid fee request status")
	ErrInvalidFeeRate            = errors.New("invalid fee rate")
	ErrInvalidServiceConfig      = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
