// Package memory реализует хранилище сущностей в памяти процесса.
// Используется в тестах и в режиме STORE_DRIVER=memory для локальной разработки.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
)

type state struct {
	jobs         map[uuid.UUID]models.Job
	bids         map[uuid.UUID]models.Bid
	transactions map[uuid.UUID]models.Transaction
	accounts     map[uuid.UUID]models.ConnectedAccount // ключ: user_id
	users        map[uuid.UUID]models.User
	charge       *models.PlatformCharge
}

func newState() *state {
	return &state{
		jobs:         make(map[uuid.UUID]models.Job),
		bids:         make(map[uuid.UUID]models.Bid),
		transactions: make(map[uuid.UUID]models.Transaction),
		accounts:     make(map[uuid.UUID]models.ConnectedAccount),
		users:        make(map[uuid.UUID]models.User),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.jobs {
		c.jobs[k] = v
	}
	for k, v := range st.bids {
		c.bids[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	if st.charge != nil {
		charge := *st.charge
		c.charge = &charge
	}
	return c
}

// Option настройка хранилища.
type Option func(*Store)

// WithClock подменяет источник времени для created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store хранилище в памяти. Атомарные операции сериализуются мьютексом,
// при ошибке или панике состояние откатывается к снимку.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
	*repos
}

func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.repos = &repos{s: s}
	return s
}

// AddUser добавляет пользователя (профили ведутся вне этого сервиса).
func (s *Store) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.st.users[user.ID] = user
}

// RunAtomic выполняет fn, удерживая мьютекс хранилища.
// Внутри fn нельзя обращаться к репозиториям самого Store, только к tx.
func (s *Store) RunAtomic(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			*s.st = *snapshot
		}
	}()

	if err := fn(&repos{s: s, locked: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

type repos struct {
	s      *Store
	locked bool
}

// guard захватывает мьютекс, если вызов идёт вне RunAtomic.
func (r *repos) guard() func() {
	if r.locked {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *repos) Jobs() repository.JobRepository                 { return jobRepo{r} }
func (r *repos) Bids() repository.BidRepository                 { return bidRepo{r} }
func (r *repos) Transactions() repository.TransactionRepository { return transactionRepo{r} }
func (r *repos) Charges() repository.ChargeRepository           { return chargeRepo{r} }
func (r *repos) Accounts() repository.AccountRepository         { return accountRepo{r} }
func (r *repos) Users() repository.UserRepository               { return userRepo{r} }

type jobRepo struct{ *repos }

func (r jobRepo) Create(_ context.Context, job *models.Job) error {
	defer r.guard()()
	now := r.s.now()
	job.CreatedAt, job.UpdatedAt = now, now
	r.s.st.jobs[job.ID] = *job
	return nil
}

func (r jobRepo) withBids(job models.Job) *models.Job {
	count := 0
	for _, b := range r.s.st.bids {
		if b.JobID == job.ID {
			count++
		}
	}
	job.BidsCount = &count
	return &job
}

func (r jobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	defer r.guard()()
	job, ok := r.s.st.jobs[id]
	if !ok || job.IsDeleted {
		return nil, repository.ErrJobNotFound
	}
	return r.withBids(job), nil
}

func (r jobRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	defer r.guard()()
	job, ok := r.s.st.jobs[id]
	if !ok || job.IsDeleted {
		return nil, repository.ErrJobNotFound
	}
	return &job, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (r jobRepo) List(_ context.Context, f repository.JobFilter) ([]models.Job, error) {
	defer r.guard()()
	jobs := make([]models.Job, 0)
	for _, job := range r.s.st.jobs {
		switch {
		case job.IsDeleted:
			continue
		case f.BuyerID != nil && job.BuyerID != *f.BuyerID:
			continue
		case f.FreelancerID != nil && !job.IsAssignedTo(*f.FreelancerID):
			continue
		case len(f.Statuses) > 0 && !contains(f.Statuses, job.Status):
			continue
		case len(f.ExcludeStatuses) > 0 && contains(f.ExcludeStatuses, job.Status):
			continue
		case f.Category != "" && job.Category != f.Category:
			continue
		}
		jobs = append(jobs, *r.withBids(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (r jobRepo) ListSettleable(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	defer r.guard()()
	jobs := make([]models.Job, 0)
	for _, job := range r.s.st.jobs {
		if job.Status == models.JobStatusCompleted && !job.IsDeleted && !job.UpdatedAt.After(before) {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].UpdatedAt.Before(jobs[j].UpdatedAt) })

	ids := make([]uuid.UUID, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids, nil
}

func (r jobRepo) Update(_ context.Context, job *models.Job, expectedStatus string) error {
	defer r.guard()()
	current, ok := r.s.st.jobs[job.ID]
	if !ok || current.IsDeleted || current.Status != expectedStatus {
		return repository.ErrStaleState
	}
	current.Status = job.Status
	current.DeliveryFiles = job.DeliveryFiles
	current.DeliveryNote = job.DeliveryNote
	current.DeliveredAt = job.DeliveredAt
	current.ReviewRating = job.ReviewRating
	current.ReviewComment = job.ReviewComment
	current.DisputeDescription = job.DisputeDescription
	current.UpdatedAt = r.s.now()
	job.UpdatedAt = current.UpdatedAt
	r.s.st.jobs[job.ID] = current
	return nil
}

func (r jobRepo) Assign(_ context.Context, id, freelancerID uuid.UUID, budget int64, days int) error {
	defer r.guard()()
	job, ok := r.s.st.jobs[id]
	if !ok || job.IsDeleted || job.Status != models.JobStatusCreated {
		return repository.ErrStaleState
	}
	job.Status = models.JobStatusInProgress
	job.FreelancerID = &freelancerID
	job.Budget = &budget
	job.Days = &days
	job.UpdatedAt = r.s.now()
	r.s.st.jobs[id] = job
	return nil
}

func (r jobRepo) SoftDelete(_ context.Context, id uuid.UUID, expectedStatus string) error {
	defer r.guard()()
	job, ok := r.s.st.jobs[id]
	if !ok || job.IsDeleted || job.Status != expectedStatus {
		return repository.ErrStaleState
	}
	job.IsDeleted = true
	job.UpdatedAt = r.s.now()
	r.s.st.jobs[id] = job
	return nil
}

func (r jobRepo) CountForFreelancer(_ context.Context, freelancerID uuid.UUID) (models.JobCounts, error) {
	defer r.guard()()
	var counts models.JobCounts
	for _, job := range r.s.st.jobs {
		if job.IsDeleted || !job.IsAssignedTo(freelancerID) {
			continue
		}
		switch job.Status {
		case models.JobStatusCompleted:
			counts.Completed++
		case models.JobStatusInProgress:
			counts.InProgress++
		case models.JobStatusDelivered:
			counts.Delivered++
		}
	}
	return counts, nil
}

func (r jobRepo) Stats(_ context.Context) (models.JobStats, error) {
	defer r.guard()()
	var stats models.JobStats
	for _, job := range r.s.st.jobs {
		if job.IsDeleted {
			continue
		}
		stats.TotalJobs++
		switch job.Status {
		case models.JobStatusCompleted:
			stats.CompletedJobs++
		case models.JobStatusCancelled:
			stats.CancelledJobs++
		case models.JobStatusDisputed:
			stats.DisputedJobs++
		}
	}
	return stats, nil
}

type bidRepo struct{ *repos }

func (r bidRepo) Create(_ context.Context, bid *models.Bid) error {
	defer r.guard()()
	for _, b := range r.s.st.bids {
		if b.JobID == bid.JobID && b.FreelancerID == bid.FreelancerID {
			return repository.ErrDuplicateBid
		}
	}
	now := r.s.now()
	bid.CreatedAt, bid.UpdatedAt = now, now
	r.s.st.bids[bid.ID] = *bid
	return nil
}

func (r bidRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	defer r.guard()()
	bid, ok := r.s.st.bids[id]
	if !ok {
		return nil, repository.ErrBidNotFound
	}
	return &bid, nil
}

func (r bidRepo) Exists(_ context.Context, jobID, freelancerID uuid.UUID) (bool, error) {
	defer r.guard()()
	for _, b := range r.s.st.bids {
		if b.JobID == jobID && b.FreelancerID == freelancerID {
			return true, nil
		}
	}
	return false, nil
}

func (r bidRepo) list(match func(models.Bid) bool) []models.Bid {
	bids := make([]models.Bid, 0)
	for _, b := range r.s.st.bids {
		if match(b) {
			bids = append(bids, b)
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].CreatedAt.Before(bids[j].CreatedAt) })
	return bids
}

func (r bidRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]models.Bid, error) {
	defer r.guard()()
	return r.list(func(b models.Bid) bool { return b.JobID == jobID }), nil
}

func (r bidRepo) ListByFreelancer(_ context.Context, freelancerID uuid.UUID) ([]models.Bid, error) {
	defer r.guard()()
	return r.list(func(b models.Bid) bool {
		job, ok := r.s.st.jobs[b.JobID]
		return b.FreelancerID == freelancerID && ok && !job.IsDeleted
	}), nil
}

func (r bidRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	defer r.guard()()
	bid, ok := r.s.st.bids[id]
	if !ok || bid.Status != from {
		return repository.ErrStaleState
	}
	bid.Status = to
	bid.UpdatedAt = r.s.now()
	r.s.st.bids[id] = bid
	return nil
}

func (r bidRepo) RejectSiblings(_ context.Context, jobID, exceptID uuid.UUID) ([]uuid.UUID, error) {
	defer r.guard()()
	freelancers := make([]uuid.UUID, 0)
	for id, bid := range r.s.st.bids {
		if bid.JobID != jobID || id == exceptID || bid.Status != models.BidStatusPending {
			continue
		}
		bid.Status = models.BidStatusRejected
		bid.UpdatedAt = r.s.now()
		r.s.st.bids[id] = bid
		freelancers = append(freelancers, bid.FreelancerID)
	}
	return freelancers, nil
}

func (r bidRepo) Delete(_ context.Context, id uuid.UUID) error {
	defer r.guard()()
	bid, ok := r.s.st.bids[id]
	if !ok || bid.Status == models.BidStatusAccepted {
		return repository.ErrStaleState
	}
	delete(r.s.st.bids, id)
	return nil
}

type transactionRepo struct{ *repos }

func (r transactionRepo) Create(_ context.Context, txn *models.Transaction) error {
	defer r.guard()()
	for _, t := range r.s.st.transactions {
		if t.JobID == txn.JobID {
			return repository.ErrDuplicateTransaction
		}
	}
	now := r.s.now()
	txn.CreatedAt, txn.UpdatedAt = now, now
	r.s.st.transactions[txn.ID] = *txn
	return nil
}

func (r transactionRepo) byJob(jobID uuid.UUID) (*models.Transaction, error) {
	for _, t := range r.s.st.transactions {
		if t.JobID == jobID {
			return &t, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (r transactionRepo) GetByJobID(_ context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	defer r.guard()()
	return r.byJob(jobID)
}

func (r transactionRepo) GetByJobIDForUpdate(_ context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	defer r.guard()()
	return r.byJob(jobID)
}

func (r transactionRepo) MarkCompleted(_ context.Context, id uuid.UUID, transferID *string) error {
	defer r.guard()()
	txn, ok := r.s.st.transactions[id]
	if !ok || txn.Status != models.TransactionStatusInProcess {
		return repository.ErrStaleState
	}
	txn.Status = models.TransactionStatusCompleted
	txn.TransferID = transferID
	txn.UpdatedAt = r.s.now()
	r.s.st.transactions[id] = txn
	return nil
}

func (r transactionRepo) SetPaymentIntent(_ context.Context, id uuid.UUID, intentID string) error {
	defer r.guard()()
	txn, ok := r.s.st.transactions[id]
	if !ok || txn.PaymentIntentID != nil {
		return repository.ErrStaleState
	}
	txn.PaymentIntentID = &intentID
	txn.UpdatedAt = r.s.now()
	r.s.st.transactions[id] = txn
	return nil
}

func (r transactionRepo) Totals(_ context.Context) (models.PaymentStats, error) {
	defer r.guard()()
	var stats models.PaymentStats
	for _, t := range r.s.st.transactions {
		stats.TotalEarnings += t.PlatformCharge
		stats.TotalTransactions += t.Amount
	}
	return stats, nil
}

type chargeRepo struct{ *repos }

func (r chargeRepo) Get(_ context.Context) (*models.PlatformCharge, error) {
	defer r.guard()()
	if r.s.st.charge == nil {
		return nil, repository.ErrChargeNotFound
	}
	charge := *r.s.st.charge
	return &charge, nil
}

func (r chargeRepo) Upsert(_ context.Context, rate decimal.Decimal) (*models.PlatformCharge, error) {
	defer r.guard()()
	r.s.st.charge = &models.PlatformCharge{Rate: rate, UpdatedAt: r.s.now()}
	charge := *r.s.st.charge
	return &charge, nil
}

type accountRepo struct{ *repos }

func (r accountRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*models.ConnectedAccount, error) {
	defer r.guard()()
	account, ok := r.s.st.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &account, nil
}

func (r accountRepo) upsert(userID uuid.UUID, apply func(*models.ConnectedAccount)) models.ConnectedAccount {
	now := r.s.now()
	account, ok := r.s.st.accounts[userID]
	if !ok {
		account = models.ConnectedAccount{ID: uuid.New(), UserID: userID, CreatedAt: now}
	}
	apply(&account)
	account.UpdatedAt = now
	r.s.st.accounts[userID] = account
	return account
}

func (r accountRepo) SetAccountID(_ context.Context, userID uuid.UUID, accountID string) (*models.ConnectedAccount, error) {
	defer r.guard()()
	account := r.upsert(userID, func(a *models.ConnectedAccount) {
		if a.AccountID == nil {
			a.AccountID = &accountID
		}
	})
	return &account, nil
}

func (r accountRepo) AddPendingBalance(_ context.Context, userID uuid.UUID, delta int64) error {
	defer r.guard()()
	r.upsert(userID, func(a *models.ConnectedAccount) { a.PendingBalance += delta })
	return nil
}

type userRepo struct{ *repos }

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	defer r.guard()()
	user, ok := r.s.st.users[id]
	if !ok || user.IsDeleted {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (r userRepo) Stats(_ context.Context) (models.UserStats, error) {
	defer r.guard()()
	var stats models.UserStats
	for _, u := range r.s.st.users {
		if u.IsDeleted {
			continue
		}
		stats.TotalUsers++
		switch u.Role {
		case models.RoleFreelancer:
			stats.TotalFreelancers++
		case models.RoleBuyer:
			stats.TotalBuyers++
		}
	}
	return stats, nil
}
