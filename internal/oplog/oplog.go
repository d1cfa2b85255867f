// Package oplog writes ledger operation callbacks to a zap logger.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"go.uber.org/zap"
)

const messageOperation = "ledger operation"

// Logger adapts zap to ledger.OperationLogger. Failed operations log at warn.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger; a nil logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation implements ledger.OperationLogger.
func (operationLogger *Logger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.Int64("amount_cents", entry.Amount.Int64()),
	}
	if value := entry.LeagueID.String(); value != "" {
		fields = append(fields, zap.String("league_id", value))
	}
	if value := entry.UserID.String(); value != "" {
		fields = append(fields, zap.String("user_id", value))
	}
	if value := entry.WalletID.String(); value != "" {
		fields = append(fields, zap.String("wallet_id", value))
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String("reference", entry.Reference))
	}
	if entry.Error != nil {
		operationLogger.logger.Warn(messageOperation, append(fields, zap.Error(entry.Error))...)
		return
	}
	operationLogger.logger.Info(messageOperation, fields...)
}
