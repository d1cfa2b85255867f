package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	faultApplyCredit       = "ApplyCredit"
	faultApplyDebit        = "ApplyDebit"
	faultInsertTransaction = "InsertTransaction"
	faultInsertPayout      = "InsertPayout"
	faultInsertWithdrawal  = "InsertWithdrawal"
	faultMarkHighScore     = "MarkHighScoreCredited"
	faultInsertFeeRequest  = "InsertFeeRequestIfAbsent"
	faultGetMember         = "GetMember"
	faultSumPayments       = "SumCompletedPayments"
)

type stubState struct {
	wallets         map[string]Wallet
	walletKeys      map[string]string
	walletOrder     []string
	transactions    []WalletTransaction
	payouts         []Payout
	platformFees    map[string]PlatformFee
	withdrawals     map[string]WithdrawalRequest
	withdrawalOrder []string
	events          map[string]WeeklyAwardEvent
	feeRequests     map[string]FeeRequest
}

func newStubState() *stubState {
	return &stubState{
		wallets:      map[string]Wallet{},
		walletKeys:   map[string]string{},
		platformFees: map[string]PlatformFee{},
		withdrawals:  map[string]WithdrawalRequest{},
		events:       map[string]WeeklyAwardEvent{},
		feeRequests:  map[string]FeeRequest{},
	}
}

func (state *stubState) clone() *stubState {
	copied := newStubState()
	for key, value := range state.wallets {
		copied.wallets[key] = value
	}
	for key, value := range state.walletKeys {
		copied.walletKeys[key] = value
	}
	copied.walletOrder = append([]string(nil), state.walletOrder...)
	copied.transactions = append([]WalletTransaction(nil), state.transactions...)
	copied.payouts = append([]Payout(nil), state.payouts...)
	for key, value := range state.platformFees {
		copied.platformFees[key] = value
	}
	for key, value := range state.withdrawals {
		copied.withdrawals[key] = value
	}
	copied.withdrawalOrder = append([]string(nil), state.withdrawalOrder...)
	for key, value := range state.events {
		copied.events[key] = value
	}
	for key, value := range state.feeRequests {
		copied.feeRequests[key] = value
	}
	return copied
}

type stubDirectory struct {
	settings map[string]LeagueSettings
	members  map[string]Member
	scores   map[string][]Score
	payments map[string]AmountCents
}

// stubStore is an in-memory Store. WithTx works on a copy of the state and
// swaps it in on success, so failed transactions leave nothing behind.
type stubStore struct {
	mu        *sync.Mutex
	state     *stubState
	directory *stubDirectory
	faults    map[string]error
	inTx      bool
	walletSeq *int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	sequence := 0
	return &stubStore{
		mu:    &sync.Mutex{},
		state: newStubState(),
		directory: &stubDirectory{
			settings: map[string]LeagueSettings{},
			members:  map[string]Member{},
			scores:   map[string][]Score{},
			payments: map[string]AmountCents{},
		},
		faults:    map[string]error{},
		walletSeq: &sequence,
	}
}

func (store *stubStore) lock() func() {
	if store.inTx {
		return func() {}
	}
	store.mu.Lock()
	return store.mu.Unlock
}

func (store *stubStore) fault(name string) error {
	return store.faults[name]
}

func (store *stubStore) failOn(name string, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.faults[name] = err
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	transactionStore := &stubStore{
		mu:        store.mu,
		state:     store.state.clone(),
		directory: store.directory,
		faults:    store.faults,
		inTx:      true,
		walletSeq: store.walletSeq,
	}
	if err := fn(ctx, transactionStore); err != nil {
		return err
	}
	store.state = transactionStore.state
	return nil
}

func walletKey(leagueID LeagueID, userID UserID) string {
	return leagueID.String() + "|" + userID.String()
}

func (store *stubStore) GetOrCreateWallet(ctx context.Context, leagueID LeagueID, userID UserID) (Wallet, error) {
	defer store.lock()()
	if walletID, ok := store.state.walletKeys[walletKey(leagueID, userID)]; ok {
		return store.state.wallets[walletID], nil
	}
	*store.walletSeq++
	wallet := Wallet{
		WalletID:  WalletID{value: "wallet-" + strconv.Itoa(*store.walletSeq)},
		LeagueID:  leagueID,
		UserID:    userID,
		CreatedAt: time.Unix(100, 0).UTC(),
		UpdatedAt: time.Unix(100, 0).UTC(),
	}
	store.state.wallets[wallet.WalletID.String()] = wallet
	store.state.walletKeys[walletKey(leagueID, userID)] = wallet.WalletID.String()
	store.state.walletOrder = append(store.state.walletOrder, wallet.WalletID.String())
	return wallet, nil
}

func (store *stubStore) GetWallet(ctx context.Context, walletID WalletID) (Wallet, error) {
	defer store.lock()()
	wallet, ok := store.state.wallets[walletID.String()]
	if !ok {
		return Wallet{}, ErrUnknownWallet
	}
	return wallet, nil
}

func (store *stubStore) ListWallets(ctx context.Context, leagueID LeagueID) ([]Wallet, error) {
	defer store.lock()()
	var wallets []Wallet
	for _, walletID := range store.state.walletOrder {
		wallet := store.state.wallets[walletID]
		if wallet.LeagueID == leagueID {
			wallets = append(wallets, wallet)
		}
	}
	return wallets, nil
}

func (store *stubStore) ApplyCredit(ctx context.Context, walletID WalletID, amount PositiveAmountCents, at time.Time) (Wallet, error) {
	defer store.lock()()
	if err := store.fault(faultApplyCredit); err != nil {
		return Wallet{}, err
	}
	wallet, ok := store.state.wallets[walletID.String()]
	if !ok {
		return Wallet{}, ErrUnknownWallet
	}
	wallet.AvailableBalance += amount.ToAmountCents()
	wallet.TotalEarnings += amount.ToAmountCents()
	wallet.UpdatedAt = at
	store.state.wallets[walletID.String()] = wallet
	return wallet, nil
}

func (store *stubStore) ApplyDebit(ctx context.Context, walletID WalletID, amount PositiveAmountCents, at time.Time) (Wallet, error) {
	defer store.lock()()
	if err := store.fault(faultApplyDebit); err != nil {
		return Wallet{}, err
	}
	wallet, ok := store.state.wallets[walletID.String()]
	if !ok {
		return Wallet{}, ErrUnknownWallet
	}
	if wallet.AvailableBalance < amount.ToAmountCents() {
		return Wallet{}, ErrInsufficientBalance
	}
	wallet.AvailableBalance -= amount.ToAmountCents()
	wallet.TotalWithdrawn += amount.ToAmountCents()
	wallet.UpdatedAt = at
	store.state.wallets[walletID.String()] = wallet
	return wallet, nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, transaction WalletTransaction) error {
	defer store.lock()()
	if err := store.fault(faultInsertTransaction); err != nil {
		return err
	}
	store.state.transactions = append(store.state.transactions, transaction)
	return nil
}

func (store *stubStore) ListTransactions(ctx context.Context, walletID WalletID) ([]WalletTransaction, error) {
	defer store.lock()()
	var transactions []WalletTransaction
	for index := len(store.state.transactions) - 1; index >= 0; index-- {
		if store.state.transactions[index].WalletID == walletID {
			transactions = append(transactions, store.state.transactions[index])
		}
	}
	return transactions, nil
}

func (store *stubStore) InsertPayout(ctx context.Context, payout Payout) error {
	defer store.lock()()
	if err := store.fault(faultInsertPayout); err != nil {
		return err
	}
	store.state.payouts = append(store.state.payouts, payout)
	return nil
}

func (store *stubStore) GetPayout(ctx context.Context, payoutID string) (Payout, error) {
	defer store.lock()()
	for _, payout := range store.state.payouts {
		if payout.PayoutID == payoutID {
			return payout, nil
		}
	}
	return Payout{}, fmt.Errorf("%w: %s", ErrUnknownPayout, payoutID)
}

func (store *stubStore) MarkPayoutPaid(ctx context.Context, payoutID string, at time.Time) error {
	defer store.lock()()
	for index, payout := range store.state.payouts {
		if payout.PayoutID != payoutID {
			continue
		}
		if payout.Status != PayoutStatusApproved {
			return ErrPayoutClosed
		}
		paidAt := at
		payout.Status = PayoutStatusPaid
		payout.PaidAt = &paidAt
		store.state.payouts[index] = payout
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPayout, payoutID)
}

func (store *stubStore) SumPaidPayouts(ctx context.Context, leagueID LeagueID) (AmountCents, error) {
	defer store.lock()()
	var total AmountCents
	for _, payout := range store.state.payouts {
		if payout.LeagueID == leagueID && payout.Status == PayoutStatusPaid {
			total += payout.Amount.ToAmountCents()
		}
	}
	return total, nil
}

func (store *stubStore) InsertPlatformFee(ctx context.Context, fee PlatformFee) error {
	defer store.lock()()
	store.state.platformFees[fee.FeeID] = fee
	return nil
}

func (store *stubStore) UpdatePlatformFeeStatus(ctx context.Context, feeID string, from, to PlatformFeeStatus) error {
	defer store.lock()()
	fee, ok := store.state.platformFees[feeID]
	if !ok || fee.Status != from {
		return ErrPlatformFeeClosed
	}
	fee.Status = to
	store.state.platformFees[feeID] = fee
	return nil
}

func (store *stubStore) InsertWithdrawal(ctx context.Context, withdrawal WithdrawalRequest) error {
	defer store.lock()()
	if err := store.fault(faultInsertWithdrawal); err != nil {
		return err
	}
	store.state.withdrawals[withdrawal.WithdrawalID] = withdrawal
	store.state.withdrawalOrder = append(store.state.withdrawalOrder, withdrawal.WithdrawalID)
	return nil
}

func (store *stubStore) GetWithdrawal(ctx context.Context, withdrawalID string) (WithdrawalRequest, error) {
	defer store.lock()()
	withdrawal, ok := store.state.withdrawals[withdrawalID]
	if !ok {
		return WithdrawalRequest{}, ErrUnknownWithdrawal
	}
	return withdrawal, nil
}

func (store *stubStore) TransitionWithdrawal(ctx context.Context, withdrawalID string, from WithdrawalStatus, transition WithdrawalTransition) error {
	defer store.lock()()
	withdrawal, ok := store.state.withdrawals[withdrawalID]
	if !ok {
		return ErrUnknownWithdrawal
	}
	if withdrawal.Status != from {
		return ErrWithdrawalClosed
	}
	applyTransition(&withdrawal, transition)
	store.state.withdrawals[withdrawalID] = withdrawal
	return nil
}

func (store *stubStore) ListWithdrawalsByUser(ctx context.Context, userID UserID) ([]WithdrawalRequest, error) {
	defer store.lock()()
	var withdrawals []WithdrawalRequest
	for index := len(store.state.withdrawalOrder) - 1; index >= 0; index-- {
		withdrawal := store.state.withdrawals[store.state.withdrawalOrder[index]]
		if withdrawal.UserID == userID {
			withdrawals = append(withdrawals, withdrawal)
		}
	}
	return withdrawals, nil
}

func eventKey(leagueID LeagueID, week Week) string {
	return fmt.Sprintf("%s|%d", leagueID.String(), week.Int())
}

func (store *stubStore) InsertWeeklyAwardEventIfAbsent(ctx context.Context, event WeeklyAwardEvent) (WeeklyAwardEvent, bool, error) {
	defer store.lock()()
	if existing, ok := store.state.events[eventKey(event.LeagueID, event.Week)]; ok {
		return existing, false, nil
	}
	store.state.events[eventKey(event.LeagueID, event.Week)] = event
	return event, true, nil
}

func (store *stubStore) GetWeeklyAwardEvent(ctx context.Context, leagueID LeagueID, week Week) (WeeklyAwardEvent, error) {
	defer store.lock()()
	event, ok := store.state.events[eventKey(leagueID, week)]
	if !ok {
		return WeeklyAwardEvent{}, ErrUnknownWeeklyAwardEvent
	}
	return event, nil
}

func (store *stubStore) updateEvent(eventID string, update func(event *WeeklyAwardEvent) error) error {
	for key, event := range store.state.events {
		if event.EventID != eventID {
			continue
		}
		if err := update(&event); err != nil {
			return err
		}
		store.state.events[key] = event
		return nil
	}
	return ErrUnknownWeeklyAwardEvent
}

func (store *stubStore) MarkHighScoreCredited(ctx context.Context, eventID string, at time.Time) error {
	defer store.lock()()
	if err := store.fault(faultMarkHighScore); err != nil {
		return err
	}
	return store.updateEvent(eventID, func(event *WeeklyAwardEvent) error {
		if event.HighScoreCredited {
			return ErrAlreadyProcessed
		}
		event.HighScoreCredited = true
		event.UpdatedAt = at
		return nil
	})
}

func (store *stubStore) MarkLowScoreNotified(ctx context.Context, eventID string, at time.Time) error {
	defer store.lock()()
	return store.updateEvent(eventID, func(event *WeeklyAwardEvent) error {
		if event.LowScoreNotified {
			return ErrAlreadyProcessed
		}
		event.LowScoreNotified = true
		event.UpdatedAt = at
		return nil
	})
}

func (store *stubStore) ListIncompleteWeeklyAwardEvents(ctx context.Context) ([]WeeklyAwardEvent, error) {
	defer store.lock()()
	var events []WeeklyAwardEvent
	for _, event := range store.state.events {
		if !event.Complete() {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(left, right int) bool {
		return eventKey(events[left].LeagueID, events[left].Week) < eventKey(events[right].LeagueID, events[right].Week)
	})
	return events, nil
}

func (store *stubStore) InsertFeeRequestIfAbsent(ctx context.Context, request FeeRequest) (FeeRequest, bool, error) {
	defer store.lock()()
	if err := store.fault(faultInsertFeeRequest); err != nil {
		return FeeRequest{}, false, err
	}
	key := eventKey(request.LeagueID, request.Week) + "|" + request.UserID.String()
	if existing, ok := store.state.feeRequests[key]; ok {
		return existing, false, nil
	}
	store.state.feeRequests[key] = request
	return request, true, nil
}

func (store *stubStore) GetScores(ctx context.Context, leagueID LeagueID, week Week) ([]Score, error) {
	defer store.lock()()
	return append([]Score(nil), store.directory.scores[eventKey(leagueID, week)]...), nil
}

func (store *stubStore) GetLeagueSettings(ctx context.Context, leagueID LeagueID) (LeagueSettings, error) {
	defer store.lock()()
	settings, ok := store.directory.settings[leagueID.String()]
	if !ok {
		return LeagueSettings{}, ErrUnknownLeague
	}
	return settings, nil
}

func (store *stubStore) GetMember(ctx context.Context, leagueID LeagueID, userID UserID) (Member, error) {
	defer store.lock()()
	if err := store.fault(faultGetMember); err != nil {
		return Member{}, err
	}
	member, ok := store.directory.members[walletKey(leagueID, userID)]
	if !ok {
		return Member{}, ErrUnknownMember
	}
	return member, nil
}

func (store *stubStore) ListMembers(ctx context.Context, leagueID LeagueID) ([]Member, error) {
	defer store.lock()()
	var members []Member
	for _, member := range store.directory.members {
		if member.LeagueID == leagueID {
			members = append(members, member)
		}
	}
	return members, nil
}

func (store *stubStore) SumCompletedPayments(ctx context.Context, leagueID LeagueID) (AmountCents, error) {
	defer store.lock()()
	if err := store.fault(faultSumPayments); err != nil {
		return 0, err
	}
	return store.directory.payments[leagueID.String()], nil
}

func (store *stubStore) setScores(leagueID LeagueID, week Week, scores ...Score) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.directory.scores[eventKey(leagueID, week)] = scores
}

func (store *stubStore) setSettings(settings LeagueSettings) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.directory.settings[settings.LeagueID.String()] = settings
}

func (store *stubStore) setMember(member Member) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.directory.members[walletKey(member.LeagueID, member.UserID)] = member
}

func (store *stubStore) setPayments(leagueID LeagueID, amount AmountCents) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.directory.payments[leagueID.String()] = amount
}

func (store *stubStore) snapshot() *stubState {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.state.clone()
}

type sentMessage struct {
	destination string
	message     string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (notifier *stubNotifier) Send(ctx context.Context, destination string, message string) (NotificationReceipt, error) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.err != nil {
		return NotificationReceipt{}, notifier.err
	}
	notifier.sent = append(notifier.sent, sentMessage{destination: destination, message: message})
	return NotificationReceipt{MessageID: fmt.Sprintf("msg-%d", len(notifier.sent))}, nil
}

func (notifier *stubNotifier) count() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return len(notifier.sent)
}

var fixedNow = time.Date(2026, time.September, 14, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id-%d", next)
	}
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithIDGenerator(sequentialIDs())}, options...)
	service, err := NewService(store, func() time.Time { return fixedNow }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustLeagueID(test *testing.T, raw string) LeagueID {
	test.Helper()
	value, err := NewLeagueID(raw)
	if err != nil {
		test.Fatalf("league id: %v", err)
	}
	return value
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustWeek(test *testing.T, raw int) Week {
	test.Helper()
	value, err := NewWeek(raw)
	if err != nil {
		test.Fatalf("week: %v", err)
	}
	return value
}

func mustPositiveAmount(test *testing.T, raw int64) PositiveAmountCents {
	test.Helper()
	value, err := NewPositiveAmountCents(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}

func mustScore(test *testing.T, userID string, points string) Score {
	test.Helper()
	value, err := decimal.NewFromString(points)
	if err != nil {
		test.Fatalf("score: %v", err)
	}
	return Score{UserID: mustUserID(test, userID), Points: value}
}

func mustWallet(test *testing.T, store Store, leagueID LeagueID, userID UserID) Wallet {
	test.Helper()
	wallet, err := store.GetOrCreateWallet(context.Background(), leagueID, userID)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	return wallet
}

func mustFundWallet(test *testing.T, service *Service, wallet Wallet, amount int64) {
	test.Helper()
	if _, err := service.Credit(context.Background(), wallet.WalletID, mustPositiveAmount(test, amount), SourceManual, "", "seed"); err != nil {
		test.Fatalf("fund wallet: %v", err)
	}
}

// assertLedgerInvariants checks the balance identity and that replaying the
// transaction log from zero reproduces the available balance.
func assertLedgerInvariants(test *testing.T, store Store, walletID WalletID) {
	test.Helper()
	ctx := context.Background()
	wallet, err := store.GetWallet(ctx, walletID)
	if err != nil {
		test.Fatalf("get wallet: %v", err)
	}
	if !wallet.Balanced() {
		test.Fatalf("wallet unbalanced: %+v", wallet)
	}
	transactions, err := store.ListTransactions(ctx, walletID)
	if err != nil {
		test.Fatalf("list transactions: %v", err)
	}
	var replayed int64
	for index := len(transactions) - 1; index >= 0; index-- {
		replayed += transactions[index].SignedAmount().Int64()
		if replayed != transactions[index].BalanceAfter.Int64() {
			test.Fatalf("transaction %s balance after %d, replay %d", transactions[index].TransactionID, transactions[index].BalanceAfter, replayed)
		}
	}
	if replayed != wallet.AvailableBalance.Int64() {
		test.Fatalf("replay %d does not match available %d", replayed, wallet.AvailableBalance)
	}
}
