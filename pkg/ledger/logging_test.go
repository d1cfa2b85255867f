package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) byOperation(operation string) []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matched = append(matched, entry)
		}
	}
	return matched
}

func TestServiceLogsCreditOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	wallet := mustWallet(test, store, mustLeagueID(test, "league-1"), mustUserID(test, "user-1"))
	amount := mustPositiveAmount(test, 100)
	if _, err := service.Credit(context.Background(), wallet.WalletID, amount, SourceManual, "adjust-1", "adjustment"); err != nil {
		test.Fatalf("credit failed: %v", err)
	}
	entries := logger.byOperation(operationCredit)
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.WalletID != wallet.WalletID || entry.Amount != amount.ToAmountCents() || entry.Reference != "adjust-1" {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.failOn(faultApplyCredit, errors.New("boom"))
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	wallet := mustWallet(test, store, mustLeagueID(test, "league-1"), mustUserID(test, "user-1"))
	if _, err := service.Credit(context.Background(), wallet.WalletID, mustPositiveAmount(test, 100), SourceManual, "", "adjustment"); err == nil {
		test.Fatalf("expected error")
	}
	entries := logger.byOperation(operationCredit)
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].Status != operationStatusError || entries[0].Error == nil {
		test.Fatalf("expected error log entry, got %+v", entries[0])
	}
}

func TestServiceWithoutLoggerIsSilent(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, WithOperationLogger(nil))
	wallet := mustWallet(test, store, mustLeagueID(test, "league-1"), mustUserID(test, "user-1"))
	if _, err := service.Credit(context.Background(), wallet.WalletID, mustPositiveAmount(test, 100), SourceManual, "", "adjustment"); err != nil {
		test.Fatalf("credit failed: %v", err)
	}
}
