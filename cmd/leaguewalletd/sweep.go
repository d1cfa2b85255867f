package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/leaguewallet/pkg/ledger"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type pendingResumer interface {
	ResumePending(ctx context.Context) ([]ledger.SettlementResult, error)
}

// startResumeSweep retries unfinished settlements every interval until the
// scheduler is shut down. Runs never overlap.
func startResumeSweep(ctx context.Context, resumer pendingResumer, interval time.Duration, logger *zap.Logger) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler init: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { runResumeSweep(ctx, resumer, logger) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule resume sweep: %w", err)
	}
	scheduler.Start()
	logger.Info("resume sweep scheduled", zap.Duration("interval", interval))
	return scheduler, nil
}

func runResumeSweep(ctx context.Context, resumer pendingResumer, logger *zap.Logger) int {
	if ctx.Err() != nil {
		return 0
	}
	results, err := resumer.ResumePending(ctx)
	if err != nil {
		logger.Warn("resume sweep incomplete", zap.Error(err))
	}
	settled := 0
	for _, result := range results {
		if result.Event.Complete() {
			settled++
		}
	}
	if len(results) > 0 {
		logger.Info("resume sweep finished", zap.Int("events", len(results)), zap.Int("settled", settled))
	}
	return settled
}
