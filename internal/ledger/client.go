package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotConfigured возвращается, когда ключ провайдера не задан.
var ErrNotConfigured = errors.New("ledger: провайдер платежей не настроен")

// Client внешний платёжный провайдер. Все суммы в минимальных единицах валюты.
type Client interface {
	CreateAccount(ctx context.Context) (string, error)
	CreateTransfer(ctx context.Context, params TransferParams) (string, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	RetrieveBalance(ctx context.Context, accountID string) (*Balance, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
	CreateAccountLink(ctx context.Context, params AccountLinkParams) (*AccountLink, error)
}

// TransferParams перевод на подключённый аккаунт.
type TransferParams struct {
	Amount         int64
	Currency       string
	Destination    string
	Group          string
	IdempotencyKey string
}

// PaymentIntentParams платёж покупателя. Destination пустой, если деньги остаются на платформе до расчёта.
type PaymentIntentParams struct {
	Amount         int64
	Currency       string
	Destination    string
	Group          string
	IdempotencyKey string
}

type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Account состояние подключённого аккаунта у провайдера.
type Account struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// AccountLinkParams ссылка на онбординг. RefreshURL открывается, если ссылка
// истекла, ReturnURL после заполнения анкеты.
type AccountLinkParams struct {
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

type AccountLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Amount сумма в одной валюте.
type Amount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Balance struct {
	Available []Amount `json:"available"`
	Pending   []Amount `json:"pending"`
}

// Total сумма доступных и ожидающих средств в одной валюте. Суммы в других
// валютах не складываются.
func (b *Balance) Total(currency string) int64 {
	var total int64
	for _, list := range [][]Amount{b.Available, b.Pending} {
		for _, a := range list {
			if strings.EqualFold(a.Currency, currency) {
				total += a.Amount
			}
		}
	}
	return total
}

// Error ответ провайдера с ошибкой.
type Error struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger: %d: %s", e.StatusCode, e.Message)
}
