package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-marketplace/internal/ledger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository/memory"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CreateAccount(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) CreateTransfer(ctx context.Context, p ledger.TransferParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) CreatePaymentIntent(ctx context.Context, p ledger.PaymentIntentParams) (*ledger.PaymentIntent, error) {
	args := m.Called(ctx, p)
	pi, _ := args.Get(0).(*ledger.PaymentIntent)
	return pi, args.Error(1)
}

func (m *mockLedger) RetrieveBalance(ctx context.Context, accountID string) (*ledger.Balance, error) {
	args := m.Called(ctx, accountID)
	b, _ := args.Get(0).(*ledger.Balance)
	return b, args.Error(1)
}

func (m *mockLedger) RetrieveAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	args := m.Called(ctx, accountID)
	a, _ := args.Get(0).(*ledger.Account)
	return a, args.Error(1)
}

func (m *mockLedger) CreateAccountLink(ctx context.Context, p ledger.AccountLinkParams) (*ledger.AccountLink, error) {
	args := m.Called(ctx, p)
	l, _ := args.Get(0).(*ledger.AccountLink)
	return l, args.Error(1)
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (n *recordingNotifier) BroadcastToUser(userID uuid.UUID, event string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if event == service.EventJobSettled {
		n.users = append(n.users, userID)
	}
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store *memory.Store
	clock *clock
	jobs  *service.JobService
	bids  *service.BidService
	buyer models.Actor
}

func newHarness(t *testing.T, rate int64) *harness {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.New(memory.WithClock(c.Now))
	h := &harness{
		store: store,
		clock: c,
		jobs:  service.NewJobService(store),
		bids:  service.NewBidService(store, "usd"),
		buyer: models.Actor{UserID: uuid.New(), Role: models.RoleBuyer},
	}
	store.AddUser(models.User{ID: h.buyer.UserID, Role: models.RoleBuyer})
	if rate > 0 {
		_, err := store.Charges().Upsert(context.Background(), decimal.NewFromInt(rate))
		require.NoError(t, err)
	}
	return h
}

// completedJob проводит работу через принятие ставки и завершение покупателем.
func (h *harness) completedJob(t *testing.T, budget int64, accountID string) (jobID, freelancerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	freelancer := models.Actor{UserID: uuid.New(), Role: models.RoleFreelancer}
	h.store.AddUser(models.User{ID: freelancer.UserID, Role: models.RoleFreelancer})
	if accountID != "" {
		_, err := h.store.Accounts().SetAccountID(ctx, freelancer.UserID, accountID)
		require.NoError(t, err)
	}

	job, err := h.jobs.CreateJob(ctx, h.buyer, service.CreateJobInput{
		Title: "Бот", Description: "Телеграм бот", Category: "dev", SubCategory: "bots",
		RequestedBudget: budget, RequestedDays: 3,
	})
	require.NoError(t, err)

	bid, err := h.bids.CreateBid(ctx, freelancer, job.ID, service.CreateBidInput{Budget: budget, Days: 3, Description: "Сделаю"})
	require.NoError(t, err)
	_, err = h.bids.DecideBid(ctx, h.buyer, bid.ID, models.BidStatusAccepted)
	require.NoError(t, err)

	_, err = h.jobs.UpdateStatus(ctx, h.buyer, job.ID, service.UpdateStatusInput{Status: models.JobStatusCompleted})
	require.NoError(t, err)
	return job.ID, freelancer.UserID
}

func (h *harness) scheduler(client ledger.Client, opts ...Option) *Scheduler {
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	return NewScheduler(h.store, client, Config{Cooldown: 72 * time.Hour, TransferTimeout: time.Second}, opts...)
}

func (h *harness) transaction(t *testing.T, jobID uuid.UUID) *models.Transaction {
	t.Helper()
	txn, err := h.store.Transactions().GetByJobID(context.Background(), jobID)
	require.NoError(t, err)
	return txn
}

func TestScheduler_SettlesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	jobID, freelancerID := h.completedJob(t, 450, "acct_f")

	client := &mockLedger{}
	client.On("CreateTransfer", mock.Anything, ledger.TransferParams{
		Amount:         45,
		Currency:       "usd",
		Destination:    "acct_f",
		Group:          service.JobGroup(jobID),
		IdempotencyKey: "settle_" + jobID.String(),
	}).Return("tr_1", nil).Once()
	notifier := &recordingNotifier{}
	s := h.scheduler(client, WithNotifier(notifier))

	// До окончания периода ожидания работа не рассчитывается.
	h.clock.Advance(48 * time.Hour)
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)

	h.clock.Advance(48 * time.Hour)
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Settled: 1}, report)

	txn := h.transaction(t, jobID)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	require.NotNil(t, txn.TransferID)
	assert.Equal(t, "tr_1", *txn.TransferID)

	account, err := h.store.Accounts().GetByUserID(ctx, freelancerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.PendingBalance)
	assert.Equal(t, []uuid.UUID{freelancerID}, notifier.users)

	// Следующий прогон ничего не переводит повторно.
	h.clock.Advance(time.Hour)
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Skipped: 1}, report)
	client.AssertExpectations(t)
}

func TestScheduler_FailureDoesNotBlockOtherJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	jobX, freelancerX := h.completedJob(t, 450, "acct_x")
	jobY, _ := h.completedJob(t, 300, "acct_y")
	h.clock.Advance(96 * time.Hour)

	client := &mockLedger{}
	client.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(p ledger.TransferParams) bool {
		return p.Destination == "acct_x"
	})).Return("", &ledger.Error{StatusCode: 400, Code: "balance_insufficient"}).Once()
	client.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(p ledger.TransferParams) bool {
		return p.Destination == "acct_y"
	})).Return("tr_y", nil).Once()
	s := h.scheduler(client)

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Settled: 1, Failed: 1}, report)

	assert.Equal(t, models.TransactionStatusInProcess, h.transaction(t, jobX).Status)
	assert.Nil(t, h.transaction(t, jobX).TransferID)
	assert.Equal(t, models.TransactionStatusCompleted, h.transaction(t, jobY).Status)

	// Неудачный расчёт не списывает ожидающий баланс.
	account, err := h.store.Accounts().GetByUserID(ctx, freelancerX)
	require.NoError(t, err)
	assert.Equal(t, int64(45), account.PendingBalance)

	// Следующий прогон повторяет перевод для X.
	client.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(p ledger.TransferParams) bool {
		return p.Destination == "acct_x"
	})).Return("tr_x", nil).Once()
	h.clock.Advance(time.Hour)
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Settled: 1, Skipped: 1}, report)
	assert.Equal(t, models.TransactionStatusCompleted, h.transaction(t, jobX).Status)
	client.AssertExpectations(t)
}

func TestScheduler_MissingAccountFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	jobID, _ := h.completedJob(t, 450, "")
	h.clock.Advance(96 * time.Hour)

	client := &mockLedger{}
	report, err := h.scheduler(client).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Failed: 1}, report)
	assert.Equal(t, models.TransactionStatusInProcess, h.transaction(t, jobID).Status)
	client.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}

func TestScheduler_ZeroPayoutCompletesWithoutTransfer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	// При нулевой ставке platformCharge равен сумме, выплата нулевая.
	jobID, _ := h.completedJob(t, 450, "")
	h.clock.Advance(96 * time.Hour)

	client := &mockLedger{}
	report, err := h.scheduler(client).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Settled: 1}, report)

	txn := h.transaction(t, jobID)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	assert.Nil(t, txn.TransferID)
	client.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}

func TestScheduler_MissingTransactionIsReported(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	job := &models.Job{
		ID: uuid.New(), BuyerID: h.buyer.UserID, Title: "Сирота", Description: "Без расчёта",
		Category: "dev", SubCategory: "bots", Status: models.JobStatusCompleted, RequestedBudget: 100, RequestedDays: 1,
	}
	require.NoError(t, h.store.Jobs().Create(ctx, job))
	h.clock.Advance(96 * time.Hour)

	client := &mockLedger{}
	report, err := h.scheduler(client).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Failed: 1}, report)
}

func TestScheduler_FailedTransactionIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	job := &models.Job{
		ID: uuid.New(), BuyerID: h.buyer.UserID, Title: "Спорная", Description: "Расчёт отклонён",
		Category: "dev", SubCategory: "bots", Status: models.JobStatusCompleted, RequestedBudget: 100, RequestedDays: 1,
	}
	require.NoError(t, h.store.Jobs().Create(ctx, job))
	require.NoError(t, h.store.Transactions().Create(ctx, &models.Transaction{
		ID: uuid.New(), JobID: job.ID, Amount: 100, PlatformCharge: 90, Status: models.TransactionStatusFailed,
	}))
	h.clock.Advance(96 * time.Hour)

	client := &mockLedger{}
	report, err := h.scheduler(client).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Skipped: 1}, report)
	assert.Equal(t, models.TransactionStatusFailed, h.transaction(t, job.ID).Status)
	client.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
}

func TestScheduler_PanicInTransferIsContained(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	jobA, _ := h.completedJob(t, 450, "acct_a")
	jobB, _ := h.completedJob(t, 300, "acct_b")
	h.clock.Advance(96 * time.Hour)

	client := &mockLedger{}
	client.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(p ledger.TransferParams) bool {
		return p.Destination == "acct_a"
	})).Run(func(mock.Arguments) { panic("provider sdk bug") }).Return("", nil).Once()
	client.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(p ledger.TransferParams) bool {
		return p.Destination == "acct_b"
	})).Return("tr_b", nil).Once()

	report, err := h.scheduler(client).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Settled: 1, Failed: 1}, report)
	assert.Equal(t, models.TransactionStatusInProcess, h.transaction(t, jobA).Status)
	assert.Equal(t, models.TransactionStatusCompleted, h.transaction(t, jobB).Status)
}

// blockingLedger держит перевод, пока тест не отпустит его.
type blockingLedger struct {
	ledger.Client
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLedger) CreateTransfer(ctx context.Context, _ ledger.TransferParams) (string, error) {
	close(b.entered)
	<-b.release
	return "tr_slow", nil
}

func TestScheduler_RejectsOverlappingRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	h.completedJob(t, 450, "acct_slow")
	h.clock.Advance(96 * time.Hour)

	client := &blockingLedger{entered: make(chan struct{}), release: make(chan struct{})}
	s := h.scheduler(client)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(ctx)
		done <- err
	}()

	<-client.entered
	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(client.release)
	require.NoError(t, <-done)
}

func TestScheduler_TransferDoesNotHoldStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	jobID, freelancerID := h.completedJob(t, 450, "acct_slow")
	h.clock.Advance(96 * time.Hour)

	client := &blockingLedger{entered: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := h.scheduler(client).RunOnce(ctx)
		done <- err
	}()
	<-client.entered

	// Пока перевод висит у провайдера, хранилище доступно другим запросам.
	read := make(chan error, 1)
	go func() {
		_, err := h.store.Jobs().GetByID(ctx, jobID)
		read <- err
	}()
	select {
	case err := <-read:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("чтение работы заблокировано на время перевода")
	}

	close(client.release)
	require.NoError(t, <-done)

	txn := h.transaction(t, jobID)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	require.NotNil(t, txn.TransferID)
	assert.Equal(t, "tr_slow", *txn.TransferID)

	account, err := h.store.Accounts().GetByUserID(ctx, freelancerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.PendingBalance)
}

func TestScheduler_SkipsTransactionClosedDuringTransfer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	jobID, freelancerID := h.completedJob(t, 450, "acct_race")
	h.clock.Advance(96 * time.Hour)

	client := &blockingLedger{entered: make(chan struct{}), release: make(chan struct{})}
	done := make(chan Report, 1)
	go func() {
		report, _ := h.scheduler(client).RunOnce(ctx)
		done <- report
	}()
	<-client.entered

	other := "tr_other"
	require.NoError(t, h.store.Transactions().MarkCompleted(ctx, h.transaction(t, jobID).ID, &other))
	close(client.release)

	assert.Equal(t, Report{Scanned: 1, Skipped: 1}, <-done)
	assert.Equal(t, "tr_other", *h.transaction(t, jobID).TransferID)

	account, err := h.store.Accounts().GetByUserID(ctx, freelancerID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), account.PendingBalance)
}

type stubLocker struct {
	ok       bool
	err      error
	released bool
}

func (l *stubLocker) TryLock(context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, l.ok, l.err
	}
	return func() { l.released = true }, true, nil
}

func TestScheduler_DistributedLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)
	client := &mockLedger{}

	busy := &stubLocker{ok: false}
	_, err := h.scheduler(client, WithLocker(busy)).RunOnce(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	broken := &stubLocker{err: errors.New("redis down")}
	_, err = h.scheduler(client, WithLocker(broken)).RunOnce(ctx)
	assert.EqualError(t, err, "redis down")

	free := &stubLocker{ok: true}
	_, err = h.scheduler(client, WithLocker(free)).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, free.released)
}

func TestScheduler_StartStopsWithContext(t *testing.T) {
	h := newHarness(t, 10)
	s := NewScheduler(h.store, &mockLedger{}, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	// После остановки ручной прогон свободен.
	assert.Eventually(t, func() bool {
		_, err := s.RunOnce(context.Background())
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
