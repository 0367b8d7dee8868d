package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sandbox локальный провайдер для разработки: хранит аккаунты и переводы в памяти
// и повторяет ответ на повторный ключ идемпотентности.
type Sandbox struct {
	mu        sync.Mutex
	balances  map[string]map[string]int64
	transfers map[string]string
	intents   map[string]*PaymentIntent
	onboarded map[string]bool
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		balances:  make(map[string]map[string]int64),
		transfers: make(map[string]string),
		intents:   make(map[string]*PaymentIntent),
		onboarded: make(map[string]bool),
	}
}

func (s *Sandbox) CreateAccount(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "acct_" + shortID()
	s.balances[id] = make(map[string]int64)
	return id, nil
}

func (s *Sandbox) CreateTransfer(_ context.Context, params TransferParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.transfers[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return id, nil
	}
	balance, ok := s.balances[params.Destination]
	if !ok {
		return "", missing("no such destination: " + params.Destination)
	}

	id := "tr_" + shortID()
	balance[strings.ToLower(params.Currency)] += params.Amount
	if params.IdempotencyKey != "" {
		s.transfers[params.IdempotencyKey] = id
	}
	return id, nil
}

func (s *Sandbox) CreatePaymentIntent(_ context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pi, ok := s.intents[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return pi, nil
	}

	id := "pi_" + shortID()
	pi := &PaymentIntent{ID: id, ClientSecret: id + "_secret_" + shortID()}
	if params.IdempotencyKey != "" {
		s.intents[params.IdempotencyKey] = pi
	}
	return pi, nil
}

func (s *Sandbox) RetrieveBalance(_ context.Context, accountID string) (*Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[accountID]
	if !ok {
		return nil, missing("no such account: " + accountID)
	}

	out := &Balance{Available: make([]Amount, 0, len(balance))}
	for currency, amount := range balance {
		out.Available = append(out.Available, Amount{Amount: amount, Currency: currency})
	}
	sort.Slice(out.Available, func(i, j int) bool { return out.Available[i].Currency < out.Available[j].Currency })
	return out, nil
}

// RetrieveAccount считает аккаунт готовым к выплатам после первой выданной
// ссылки на онбординг.
func (s *Sandbox) RetrieveAccount(_ context.Context, accountID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[accountID]; !ok {
		return nil, missing("no such account: " + accountID)
	}
	done := s.onboarded[accountID]
	return &Account{ID: accountID, ChargesEnabled: done, PayoutsEnabled: done, DetailsSubmitted: done}, nil
}

func (s *Sandbox) CreateAccountLink(_ context.Context, params AccountLinkParams) (*AccountLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[params.AccountID]; !ok {
		return nil, missing("no such account: " + params.AccountID)
	}
	s.onboarded[params.AccountID] = true
	return &AccountLink{
		URL:       params.ReturnURL + "?account=" + params.AccountID,
		ExpiresAt: time.Now().Add(5 * time.Minute).UTC(),
	}, nil
}

func missing(msg string) *Error {
	return &Error{StatusCode: 404, Type: "invalid_request_error", Code: "resource_missing", Message: msg}
}

func shortID() string {
	return uuid.NewString()[:8]
}
