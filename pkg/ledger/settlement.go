package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// SettlementEngine credits the weekly high scorer and bills the weekly low
// scorer exactly once per league week. Each step is flagged on the
// WeeklyAwardEvent as soon as it succeeds, so a rerun resumes where the
// previous one stopped.
type SettlementEngine struct {
	service   *Service
	scores    ScoreSource
	directory LeagueDirectory
	notifier  Notifier
}

// SettlementResult reports the state of a league week after a settlement run.
type SettlementResult struct {
	Event             WeeklyAwardEvent
	AlreadyProcessed  bool
	HighScoreCredited bool
	LowScoreNotified  bool
	HighScorePayout   *Payout
	FeeRequest        *FeeRequest
	NotificationError error
}

// NewSettlementEngine wires a SettlementEngine.
func NewSettlementEngine(service *Service, scores ScoreSource, directory LeagueDirectory, notifier Notifier) (*SettlementEngine, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", ErrInvalidServiceConfig)
	}
	if scores == nil {
		return nil, fmt.Errorf("%w: score source dependency is nil", ErrInvalidServiceConfig)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: league directory dependency is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier dependency is nil", ErrInvalidServiceConfig)
	}
	return &SettlementEngine{service: service, scores: scores, directory: directory, notifier: notifier}, nil
}

// SettleWeek runs the weekly award settlement for a league week. A week that
// is already fully settled returns AlreadyProcessed without side effects.
func (engine *SettlementEngine) SettleWeek(ctx context.Context, leagueID LeagueID, week Week) (SettlementResult, error) {
	result, err := engine.settleWeek(ctx, leagueID, week)
	status := ""
	if err == nil && result.AlreadyProcessed {
		status = operationStatusAlreadyProcessed
	}
	engine.service.logOperation(ctx, OperationLog{
		Operation: operationSettleWeek,
		LeagueID:  leagueID,
		Reference: result.Event.EventID,
		Amount:    result.Event.HighScorePrize,
		Status:    status,
		Error:     err,
	})
	return result, err
}

// ResumePending reruns settlement for every week with an unfinished step.
// Failures for one week do not stop the others.
func (engine *SettlementEngine) ResumePending(ctx context.Context) ([]SettlementResult, error) {
	events, err := engine.service.store.ListIncompleteWeeklyAwardEvents(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]SettlementResult, 0, len(events))
	var errs []error
	for _, event := range events {
		result, settleErr := engine.SettleWeek(ctx, event.LeagueID, event.Week)
		if settleErr != nil {
			errs = append(errs, fmt.Errorf("league %s week %d: %w", event.LeagueID.String(), event.Week.Int(), settleErr))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func (engine *SettlementEngine) settleWeek(ctx context.Context, leagueID LeagueID, week Week) (SettlementResult, error) {
	store := engine.service.store
	event, err := store.GetWeeklyAwardEvent(ctx, leagueID, week)
	switch {
	case err == nil:
		if event.Complete() {
			return alreadyProcessed(event), nil
		}
	case errors.Is(err, ErrUnknownWeeklyAwardEvent):
		event, err = engine.openEvent(ctx, leagueID, week)
		if err != nil {
			return SettlementResult{}, err
		}
		if event.Complete() {
			return alreadyProcessed(event), nil
		}
	default:
		return SettlementResult{}, err
	}

	result := SettlementResult{Event: event}
	if event.HighScorePending() {
		payout, err := engine.creditHighScorer(ctx, event)
		if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
			return result, err
		}
		result.HighScorePayout = payout
		result.Event.HighScoreCredited = true
	}
	if event.LowScorePending() {
		outcome, err := engine.billLowScorer(ctx, event)
		if err != nil {
			return result, err
		}
		result.FeeRequest = &outcome.feeRequest
		result.NotificationError = outcome.notificationErr
		result.Event.LowScoreNotified = outcome.notified
	}
	result.HighScoreCredited = result.Event.HighScoreCredited
	result.LowScoreNotified = result.Event.LowScoreNotified
	return result, nil
}

// openEvent snapshots scorers and award amounts into a new event, or returns
// the event a concurrent run stored first.
func (engine *SettlementEngine) openEvent(ctx context.Context, leagueID LeagueID, week Week) (WeeklyAwardEvent, error) {
	scores, err := engine.scores.GetScores(ctx, leagueID, week)
	if err != nil {
		return WeeklyAwardEvent{}, err
	}
	high, low, err := SelectScorers(scores)
	if err != nil {
		return WeeklyAwardEvent{}, err
	}
	settings, err := engine.directory.GetLeagueSettings(ctx, leagueID)
	if err != nil {
		return WeeklyAwardEvent{}, err
	}
	now := engine.service.nowFn()
	candidate := WeeklyAwardEvent{
		EventID:            engine.service.newID(),
		LeagueID:           leagueID,
		Week:               week,
		HighScoreUserID:    high.UserID,
		LowScoreUserID:     low.UserID,
		HighScorePrize:     settings.HighScorePrize,
		LowScoreFee:        settings.LowScoreFee,
		LowScoreFeeEnabled: settings.LowScoreFeeEnabled,
		Scores:             scores,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	event, _, err := engine.service.store.InsertWeeklyAwardEventIfAbsent(ctx, candidate)
	return event, err
}

// creditHighScorer issues the prize payout and flips the flag in one store
// transaction. ErrAlreadyProcessed means another run credited first.
func (engine *SettlementEngine) creditHighScorer(ctx context.Context, event WeeklyAwardEvent) (*Payout, error) {
	prize, err := NewPositiveAmountCents(event.HighScorePrize.Int64())
	if err != nil {
		return nil, err
	}
	week := event.Week
	request := PayoutRequest{
		LeagueID:        event.LeagueID,
		RecipientUserID: event.HighScoreUserID,
		Amount:          prize,
		Reason:          ReasonWeeklyHighScore,
		Week:            &week,
		Speed:           SpeedStandard,
	}
	var payout Payout
	operationError := engine.service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		payout, err = engine.service.issuePayout(ctx, transactionStore, request)
		if err != nil {
			return err
		}
		return transactionStore.MarkHighScoreCredited(ctx, event.EventID, engine.service.nowFn())
	})
	engine.service.logOperation(ctx, OperationLog{
		Operation: operationIssuePayout,
		LeagueID:  event.LeagueID,
		UserID:    event.HighScoreUserID,
		Reference: payout.PayoutID,
		Amount:    event.HighScorePrize,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return &payout, nil
}

type lowScoreOutcome struct {
	feeRequest      FeeRequest
	notified        bool
	notificationErr error
}

// billLowScorer records the fee request and tries to notify the member. A
// missing phone number or a failed send leaves the flag unset for a later
// retry and is reported in the outcome; only storage failures are returned.
func (engine *SettlementEngine) billLowScorer(ctx context.Context, event WeeklyAwardEvent) (lowScoreOutcome, error) {
	store := engine.service.store
	fee, err := NewPositiveAmountCents(event.LowScoreFee.Int64())
	if err != nil {
		return lowScoreOutcome{}, err
	}
	feeRequest, _, err := store.InsertFeeRequestIfAbsent(ctx, FeeRequest{
		FeeRequestID: engine.service.newID(),
		LeagueID:     event.LeagueID,
		UserID:       event.LowScoreUserID,
		Week:         event.Week,
		Amount:       fee,
		Status:       FeeRequestStatusUnpaid,
		EventID:      event.EventID,
		CreatedAt:    engine.service.nowFn(),
	})
	if err != nil {
		return lowScoreOutcome{}, err
	}
	outcome := lowScoreOutcome{feeRequest: feeRequest}

	phoneNumber, err := engine.lookupPhoneNumber(ctx, event.LeagueID, event.LowScoreUserID)
	if err != nil {
		return outcome, err
	}
	outcome.notificationErr = engine.notifyLowScorer(ctx, phoneNumber, event, feeRequest)
	notifyLog := OperationLog{
		Operation: operationNotifyLowScore,
		LeagueID:  event.LeagueID,
		UserID:    event.LowScoreUserID,
		Reference: feeRequest.FeeRequestID,
		Amount:    feeRequest.Amount.ToAmountCents(),
		Error:     outcome.notificationErr,
	}
	if outcome.notificationErr != nil {
		notifyLog.Status = operationStatusNotificationFailed
	}
	engine.service.logOperation(ctx, notifyLog)
	if outcome.notificationErr != nil {
		return outcome, nil
	}
	if err := store.MarkLowScoreNotified(ctx, event.EventID, engine.service.nowFn()); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		return outcome, err
	}
	outcome.notified = true
	return outcome, nil
}

// lookupPhoneNumber returns an empty number for members the directory does not know.
func (engine *SettlementEngine) lookupPhoneNumber(ctx context.Context, leagueID LeagueID, userID UserID) (string, error) {
	member, err := engine.directory.GetMember(ctx, leagueID, userID)
	if errors.Is(err, ErrUnknownMember) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return member.PhoneNumber, nil
}

func (engine *SettlementEngine) notifyLowScorer(ctx context.Context, phoneNumber string, event WeeklyAwardEvent, feeRequest FeeRequest) error {
	if phoneNumber == "" {
		return fmt.Errorf("%w: no phone number for user %s", ErrNotificationTargetMissing, event.LowScoreUserID.String())
	}
	message := fmt.Sprintf("You had the lowest score in week %d. A fee of $%s has been added to your league balance.", event.Week.Int(), feeRequest.Amount)
	if _, err := engine.notifier.Send(ctx, phoneNumber, message); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

func alreadyProcessed(event WeeklyAwardEvent) SettlementResult {
	return SettlementResult{
		Event:             event,
		AlreadyProcessed:  true,
		HighScoreCredited: event.HighScoreCredited,
		LowScoreNotified:  event.LowScoreNotified,
	}
}

// SelectScorers picks the highest and lowest scorer. Ties on either
// extreme go to the lexicographically smallest user id.
func SelectScorers(scores []Score) (Score, Score, error) {
	if len(scores) == 0 {
		return Score{}, Score{}, ErrNoScoresRecorded
	}
	ordered := append([]Score(nil), scores...)
	sort.SliceStable(ordered, func(left, right int) bool {
		return ordered[left].UserID.String() < ordered[right].UserID.String()
	})
	high := ordered[0]
	low := ordered[0]
	for _, score := range ordered[1:] {
		if score.Points.GreaterThan(high.Points) {
			high = score
		}
		if score.Points.LessThan(low.Points) {
			low = score
		}
	}
	return high, low, nil
}
