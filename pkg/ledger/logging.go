package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation string
	LeagueID  LeagueID
	UserID    UserID
	WalletID  WalletID
	Reference string
	Amount    AmountCents
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithInstantFeeRate overrides the fraction retained on instant payouts.
func WithInstantFeeRate(rate FeeRate) ServiceOption {
	return func(service *Service) {
		service.instantFeeRate = rate
	}
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(generator func() string) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.newID = generator
		}
	}
}
