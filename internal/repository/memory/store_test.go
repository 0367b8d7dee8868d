package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
)

func newJob(buyerID uuid.UUID, status string) *models.Job {
	return &models.Job{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		Title:           "Лендинг",
		Description:     "Сверстать лендинг",
		Category:        "web",
		SubCategory:     "frontend",
		Status:          status,
		RequestedBudget: 500,
		RequestedDays:   5,
	}
}

func TestStore_RunAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()
	job := newJob(uuid.New(), models.JobStatusCreated)
	require.NoError(t, store.Jobs().Create(ctx, job))

	boom := errors.New("boom")
	err := store.RunAtomic(ctx, func(tx repository.Repositories) error {
		require.NoError(t, tx.Jobs().Assign(ctx, job.ID, uuid.New(), 450, 3))
		require.NoError(t, tx.Transactions().Create(ctx, &models.Transaction{ID: uuid.New(), JobID: job.ID, Status: models.TransactionStatusInProcess}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, stored.Status)
	assert.Nil(t, stored.FreelancerID)

	_, err = store.Transactions().GetByJobID(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}

func TestStore_RunAtomicRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store := New()
	userID := uuid.New()

	assert.Panics(t, func() {
		_ = store.RunAtomic(ctx, func(tx repository.Repositories) error {
			_ = tx.Accounts().AddPendingBalance(ctx, userID, 100)
			panic("boom")
		})
	})

	_, err := store.Accounts().GetByUserID(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestStore_RunAtomicCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().RunAtomic(ctx, func(tx repository.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestJobRepo_UpdateRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	store := New()
	job := newJob(uuid.New(), models.JobStatusDraft)
	require.NoError(t, store.Jobs().Create(ctx, job))

	job.Status = models.JobStatusCreated
	require.NoError(t, store.Jobs().Update(ctx, job, models.JobStatusDraft))

	// Повторное обновление с устаревшим ожиданием не проходит.
	job.Status = models.JobStatusCancelled
	assert.ErrorIs(t, store.Jobs().Update(ctx, job, models.JobStatusDraft), repository.ErrStaleState)
}

func TestJobRepo_SoftDeleteHidesJob(t *testing.T) {
	ctx := context.Background()
	store := New()
	job := newJob(uuid.New(), models.JobStatusCreated)
	require.NoError(t, store.Jobs().Create(ctx, job))

	require.NoError(t, store.Jobs().SoftDelete(ctx, job.ID, models.JobStatusCreated))

	_, err := store.Jobs().GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrJobNotFound)

	jobs, err := store.Jobs().List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobRepo_ListFiltersAndCountsBids(t *testing.T) {
	ctx := context.Background()
	store := New()
	buyer := uuid.New()

	created := newJob(buyer, models.JobStatusCreated)
	draft := newJob(buyer, models.JobStatusDraft)
	other := newJob(uuid.New(), models.JobStatusCreated)
	for _, j := range []*models.Job{created, draft, other} {
		require.NoError(t, store.Jobs().Create(ctx, j))
	}
	require.NoError(t, store.Bids().Create(ctx, &models.Bid{ID: uuid.New(), JobID: created.ID, FreelancerID: uuid.New(), Status: models.BidStatusPending}))

	jobs, err := store.Jobs().List(ctx, repository.JobFilter{BuyerID: &buyer, Statuses: []string{models.JobStatusCreated}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, created.ID, jobs[0].ID)
	require.NotNil(t, jobs[0].BidsCount)
	assert.Equal(t, 1, *jobs[0].BidsCount)

	jobs, err = store.Jobs().List(ctx, repository.JobFilter{ExcludeStatuses: []string{models.JobStatusDraft}})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestJobRepo_ListSettleableRespectsCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	store := New(WithClock(func() time.Time { return now }))

	old := newJob(uuid.New(), models.JobStatusCompleted)
	require.NoError(t, store.Jobs().Create(ctx, old))

	now = now.Add(72 * time.Hour)
	fresh := newJob(uuid.New(), models.JobStatusCompleted)
	require.NoError(t, store.Jobs().Create(ctx, fresh))
	inprogress := newJob(uuid.New(), models.JobStatusInProgress)
	require.NoError(t, store.Jobs().Create(ctx, inprogress))

	ids, err := store.Jobs().ListSettleable(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID}, ids)
}

func TestJobRepo_AssignOnlyFromCreated(t *testing.T) {
	ctx := context.Background()
	store := New()
	job := newJob(uuid.New(), models.JobStatusCreated)
	require.NoError(t, store.Jobs().Create(ctx, job))

	freelancer := uuid.New()
	require.NoError(t, store.Jobs().Assign(ctx, job.ID, freelancer, 450, 3))
	assert.ErrorIs(t, store.Jobs().Assign(ctx, job.ID, uuid.New(), 400, 2), repository.ErrStaleState)

	stored, err := store.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, stored.Status)
	assert.True(t, stored.IsAssignedTo(freelancer))
	assert.Equal(t, int64(450), *stored.Budget)
	assert.Equal(t, 3, *stored.Days)
}

func TestBidRepo_DuplicateAndSiblings(t *testing.T) {
	ctx := context.Background()
	store := New()
	jobID, otherJobID := uuid.New(), uuid.New()
	f1, f2 := uuid.New(), uuid.New()

	winner := &models.Bid{ID: uuid.New(), JobID: jobID, FreelancerID: f1, Status: models.BidStatusPending}
	loser := &models.Bid{ID: uuid.New(), JobID: jobID, FreelancerID: f2, Status: models.BidStatusPending}
	elsewhere := &models.Bid{ID: uuid.New(), JobID: otherJobID, FreelancerID: f2, Status: models.BidStatusPending}
	for _, b := range []*models.Bid{winner, loser, elsewhere} {
		require.NoError(t, store.Bids().Create(ctx, b))
	}

	err := store.Bids().Create(ctx, &models.Bid{ID: uuid.New(), JobID: jobID, FreelancerID: f1})
	assert.ErrorIs(t, err, repository.ErrDuplicateBid)

	rejected, err := store.Bids().RejectSiblings(ctx, jobID, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f2}, rejected)

	got, err := store.Bids().GetByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusRejected, got.Status)

	got, err = store.Bids().GetByID(ctx, elsewhere.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusPending, got.Status)
}

func TestBidRepo_DeleteKeepsAccepted(t *testing.T) {
	ctx := context.Background()
	store := New()
	bid := &models.Bid{ID: uuid.New(), JobID: uuid.New(), FreelancerID: uuid.New(), Status: models.BidStatusPending}
	require.NoError(t, store.Bids().Create(ctx, bid))
	require.NoError(t, store.Bids().UpdateStatus(ctx, bid.ID, models.BidStatusPending, models.BidStatusAccepted))

	assert.ErrorIs(t, store.Bids().Delete(ctx, bid.ID), repository.ErrStaleState)
	assert.ErrorIs(t, store.Bids().UpdateStatus(ctx, bid.ID, models.BidStatusPending, models.BidStatusRejected), repository.ErrStaleState)
}

func TestTransactionRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	txn := &models.Transaction{ID: uuid.New(), JobID: uuid.New(), Amount: 450, PlatformCharge: 405, Status: models.TransactionStatusInProcess}
	require.NoError(t, store.Transactions().Create(ctx, txn))

	dup := &models.Transaction{ID: uuid.New(), JobID: txn.JobID}
	assert.ErrorIs(t, store.Transactions().Create(ctx, dup), repository.ErrDuplicateTransaction)

	require.NoError(t, store.Transactions().SetPaymentIntent(ctx, txn.ID, "pi_1"))
	assert.ErrorIs(t, store.Transactions().SetPaymentIntent(ctx, txn.ID, "pi_2"), repository.ErrStaleState)

	transferID := "tr_1"
	require.NoError(t, store.Transactions().MarkCompleted(ctx, txn.ID, &transferID))
	assert.ErrorIs(t, store.Transactions().MarkCompleted(ctx, txn.ID, &transferID), repository.ErrStaleState)

	got, err := store.Transactions().GetByJobID(ctx, txn.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, got.Status)
	assert.Equal(t, "pi_1", *got.PaymentIntentID)
	assert.Equal(t, "tr_1", *got.TransferID)

	totals, err := store.Transactions().Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(405), totals.TotalEarnings)
	assert.Equal(t, int64(450), totals.TotalTransactions)
}

func TestChargeRepo_Upsert(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Charges().Get(ctx)
	assert.ErrorIs(t, err, repository.ErrChargeNotFound)

	_, err = store.Charges().Upsert(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = store.Charges().Upsert(ctx, decimal.RequireFromString("12.5"))
	require.NoError(t, err)

	charge, err := store.Charges().Get(ctx)
	require.NoError(t, err)
	assert.True(t, charge.Rate.Equal(decimal.RequireFromString("12.5")))
}

func TestAccountRepo_SetAccountIDKeepsFirst(t *testing.T) {
	ctx := context.Background()
	store := New()
	userID := uuid.New()

	require.NoError(t, store.Accounts().AddPendingBalance(ctx, userID, 45))

	account, err := store.Accounts().SetAccountID(ctx, userID, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", *account.AccountID)
	assert.Equal(t, int64(45), account.PendingBalance)

	account, err = store.Accounts().SetAccountID(ctx, userID, "acct_2")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", *account.AccountID)
}

func TestUserRepo_Stats(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.AddUser(models.User{ID: uuid.New(), Role: models.RoleBuyer})
	store.AddUser(models.User{ID: uuid.New(), Role: models.RoleFreelancer})
	store.AddUser(models.User{ID: uuid.New(), Role: models.RoleFreelancer})
	store.AddUser(models.User{ID: uuid.New(), Role: models.RoleAdmin, IsDeleted: true})

	stats, err := store.Users().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{TotalUsers: 3, TotalFreelancers: 2, TotalBuyers: 1}, stats)
}
