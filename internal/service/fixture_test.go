package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-marketplace/internal/ledger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository/memory"
)

// recordingNotifier запоминает доставленные события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	UserID uuid.UUID
	Event  string
}

func (n *recordingNotifier) BroadcastToUser(userID uuid.UUID, event string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Event: event})
	return nil
}

func (n *recordingNotifier) sentTo(userID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.UserID == userID {
			out = append(out, e.Event)
		}
	}
	return out
}

// mockLedger мок платёжного провайдера.
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

// fixture хранилище в памяти с тремя ролями и сервисами поверх него.
type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	jobs       *JobService
	bids       *BidService
	charges    *ChargeService
	buyer      models.Actor
	freelancer models.Actor
	admin      models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	f := &fixture{
		store:      store,
		notifier:   &recordingNotifier{},
		jobs:       NewJobService(store),
		bids:       NewBidService(store, "usd"),
		charges:    NewChargeService(store.Charges()),
		buyer:      models.Actor{UserID: uuid.New(), Role: models.RoleBuyer},
		freelancer: models.Actor{UserID: uuid.New(), Role: models.RoleFreelancer},
		admin:      models.Actor{UserID: uuid.New(), Role: models.RoleAdmin},
	}
	f.jobs.SetNotifier(f.notifier)
	f.bids.SetNotifier(f.notifier)

	for _, a := range []models.Actor{f.buyer, f.freelancer, f.admin} {
		store.AddUser(models.User{ID: a.UserID, Name: a.Role, Email: a.UserID.String() + "@example.com", Role: a.Role, CreatedAt: time.Now()})
	}
	return f
}

func (f *fixture) newFreelancer() models.Actor {
	a := models.Actor{UserID: uuid.New(), Role: models.RoleFreelancer}
	f.store.AddUser(models.User{ID: a.UserID, Role: a.Role})
	return a
}

func (f *fixture) createJob(t *testing.T, budget int64) *models.Job {
	t.Helper()
	job, err := f.jobs.CreateJob(context.Background(), f.buyer, CreateJobInput{
		Title:           "Лендинг",
		Description:     "Сверстать лендинг по макету",
		Category:        "web",
		SubCategory:     "frontend",
		RequestedBudget: budget,
		RequestedDays:   5,
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) placeBid(t *testing.T, freelancer models.Actor, jobID uuid.UUID, budget int64) *models.Bid {
	t.Helper()
	bid, err := f.bids.CreateBid(context.Background(), freelancer, jobID, CreateBidInput{
		Budget:      budget,
		Days:        3,
		Description: "Сделаю за три дня",
	})
	require.NoError(t, err)
	return bid
}

// assignedJob работа в статусе inprogress с принятой ставкой фрилансера fixture.
func (f *fixture) assignedJob(t *testing.T, budget int64) *models.Job {
	t.Helper()
	job := f.createJob(t, budget)
	bid := f.placeBid(t, f.freelancer, job.ID, budget)
	_, err := f.bids.DecideBid(context.Background(), f.buyer, bid.ID, models.BidStatusAccepted)
	require.NoError(t, err)

	job, err = f.store.Jobs().GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	return job
}

var pdf = []models.FileMeta{{Name: "result.pdf", Format: "pdf", Size: 1024}}
