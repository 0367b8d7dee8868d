package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction финансовая запись по работе, создаётся при принятии ставки.
type Transaction struct {
	ID              uuid.UUID `db:"id" json:"id"`
	JobID           uuid.UUID `db:"job_id" json:"job_id"`
	BuyerID         uuid.UUID `db:"buyer_id" json:"buyer_id"`
	FreelancerID    uuid.UUID `db:"freelancer_id" json:"freelancer_id"`
	Amount          int64     `db:"amount" json:"amount"`
	PlatformCharge  int64     `db:"platform_charge" json:"platform_charge"`
	Currency        string    `db:"currency" json:"currency"`
	Status          string    `db:"status" json:"status"`
	TransferID      *string   `db:"transfer_id" json:"transfer_id,omitempty"`
	PaymentIntentID *string   `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Payout сумма перевода фрилансеру при расчёте.
func (t *Transaction) Payout() int64 {
	return t.Amount - t.PlatformCharge
}

// PlatformCharge единственная запись с процентом комиссии платформы.
type PlatformCharge struct {
	Rate      decimal.Decimal `db:"rate" json:"rate"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ConnectedAccount платёжный аккаунт пользователя у провайдера.
type ConnectedAccount struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	AccountID      *string   `db:"account_id" json:"account_id,omitempty"`
	PendingBalance int64     `db:"pending_balance" json:"pending_balance"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Balance баланс фрилансера: released у провайдера, clearance на стороне приложения.
type Balance struct {
	Released  int64  `json:"released"`
	Clearance int64  `json:"clearance"`
	Currency  string `json:"currency"`
}

// OnboardingLink одноразовая ссылка на анкету провайдера.
type OnboardingLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountStatus готовность подключённого аккаунта принимать выплаты.
type AccountStatus struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// PaymentIntent данные для оплаты работы покупателем.
type PaymentIntent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	IntentID      string    `json:"intent_id"`
	ClientSecret  string    `json:"client_secret"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
}
