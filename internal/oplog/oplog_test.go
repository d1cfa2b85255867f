package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLogOperation(test *testing.T) {
	test.Parallel()
	leagueID, err := ledger.NewLeagueID("league-1")
	if err != nil {
		test.Fatalf("league id: %v", err)
	}
	userID, err := ledger.NewUserID("user-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}

	testCases := []struct {
		name          string
		entry         ledger.OperationLog
		expectedLevel zapcore.Level
		expectError   bool
	}{
		{
			name: "ok operation",
			entry: ledger.OperationLog{
				Operation: "credit",
				LeagueID:  leagueID,
				UserID:    userID,
				Reference: "tx-1",
				Amount:    ledger.AmountCents(5000),
				Status:    "ok",
			},
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name: "failed operation",
			entry: ledger.OperationLog{
				Operation: "debit",
				LeagueID:  leagueID,
				Amount:    ledger.AmountCents(900),
				Status:    "error",
				Error:     ledger.ErrInsufficientBalance,
			},
			expectedLevel: zapcore.WarnLevel,
			expectError:   true,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			core, logs := observer.New(zap.DebugLevel)
			New(zap.New(core)).LogOperation(context.Background(), testCase.entry)

			entries := logs.All()
			if len(entries) != 1 {
				test.Fatalf("expected 1 entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry.Level != testCase.expectedLevel {
				test.Fatalf("expected level %s, got %s", testCase.expectedLevel, entry.Level)
			}
			fields := entry.ContextMap()
			if fields["operation"] != testCase.entry.Operation || fields["league_id"] != "league-1" {
				test.Fatalf("unexpected fields %v", fields)
			}
			if fields["amount_cents"] != testCase.entry.Amount.Int64() {
				test.Fatalf("unexpected amount field %v", fields["amount_cents"])
			}
			_, hasError := fields["error"]
			if hasError != testCase.expectError {
				test.Fatalf("error field presence %v, expected %v", hasError, testCase.expectError)
			}
			if _, hasWallet := fields["wallet_id"]; hasWallet {
				test.Fatalf("empty wallet id should be omitted")
			}
		})
	}
}

func TestNilLoggerDiscards(test *testing.T) {
	test.Parallel()
	var operationLogger ledger.OperationLogger = New(nil)
	operationLogger.LogOperation(context.Background(), ledger.OperationLog{Operation: "credit", Error: errors.New("boom")})
}
