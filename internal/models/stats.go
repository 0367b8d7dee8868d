package models

// JobStats агрегаты по работам.
type JobStats struct {
	TotalJobs     int `db:"total_jobs" json:"total_jobs"`
	CompletedJobs int `db:"completed_jobs" json:"completed_jobs"`
	CancelledJobs int `db:"cancelled_jobs" json:"cancelled_jobs"`
	DisputedJobs  int `db:"disputed_jobs" json:"disputed_jobs"`
}

// PaymentStats агрегаты по расчётам.
type PaymentStats struct {
	TotalEarnings     int64 `db:"total_earnings" json:"total_earnings"`
	TotalTransactions int64 `db:"total_transactions" json:"total_transactions"`
}

// UserStats агрегаты по пользователям.
type UserStats struct {
	TotalUsers       int `db:"total_users" json:"total_users"`
	TotalFreelancers int `db:"total_freelancers" json:"total_freelancers"`
	TotalBuyers      int `db:"total_buyers" json:"total_buyers"`
}

// Stats сводка для админ панели.
type Stats struct {
	JobStats
	PaymentStats
	UserStats
}
