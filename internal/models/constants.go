package models

// Роли пользователей
const (
	RoleBuyer      = "Buyer"
	RoleFreelancer = "Freelancer"
	RoleAdmin      = "Admin"
)

// JobStatus константы статусов работ
const (
	JobStatusDraft      = "draft"
	JobStatusCreated    = "created"
	JobStatusInProgress = "inprogress"
	JobStatusDelivered  = "delivered"
	JobStatusCompleted  = "completed"
	JobStatusDisputed   = "disputed"
	JobStatusCancelled  = "cancelled"
)

// BidStatus константы статусов ставок
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// TransactionStatus константы статусов расчётов
const (
	TransactionStatusInProcess = "inprocess"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// ValidRoles список валидных ролей
var ValidRoles = map[string]struct{}{
	RoleBuyer:      {},
	RoleFreelancer: {},
	RoleAdmin:      {},
}

// ValidJobStatuses список валидных статусов работ
var ValidJobStatuses = map[string]struct{}{
	JobStatusDraft:      {},
	JobStatusCreated:    {},
	JobStatusInProgress: {},
	JobStatusDelivered:  {},
	JobStatusCompleted:  {},
	JobStatusDisputed:   {},
	JobStatusCancelled:  {},
}

// ValidBidDecisions решения покупателя по ставке
var ValidBidDecisions = map[string]struct{}{
	BidStatusAccepted: {},
	BidStatusRejected: {},
}
