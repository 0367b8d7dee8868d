package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
)

const DefaultBaseURL = "https://api.stripe.com"

// StripeClient реализует Client поверх stripe-go. Ретраи выключены: повтор
// делает следующий прогон расчёта с тем же ключом идемпотентности.
type StripeClient struct {
	api       *client.API
	secretKey string
}

// NewStripeClient создаёт клиента. Пустой baseURL означает DefaultBaseURL.
func NewStripeClient(baseURL, secretKey string) *StripeClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := &stripe.BackendConfig{
		URL:               stripe.String(strings.TrimSuffix(baseURL, "/")),
		HTTPClient:        &http.Client{Timeout: 60 * time.Second},
		LeveledLogger:     logger.Log,
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeClient{api: api, secretKey: secretKey}
}

// CreateAccount создаёт express аккаунт с возможностью принимать переводы.
func (c *StripeClient) CreateAccount(ctx context.Context) (string, error) {
	if c.secretKey == "" {
		return "", ErrNotConfigured
	}
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx

	account, err := c.api.Accounts.New(params)
	if err != nil {
		return "", wrapError("create account", err)
	}
	return account.ID, nil
}

func (c *StripeClient) CreateTransfer(ctx context.Context, p TransferParams) (string, error) {
	if c.secretKey == "" {
		return "", ErrNotConfigured
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(p.Amount),
		Currency:    stripe.String(p.Currency),
		Destination: stripe.String(p.Destination),
	}
	if p.Group != "" {
		params.TransferGroup = stripe.String(p.Group)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx

	transfer, err := c.api.Transfers.New(params)
	if err != nil {
		return "", wrapError("create transfer", err)
	}
	return transfer.ID, nil
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*PaymentIntent, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.Group != "" {
		params.TransferGroup = stripe.String(p.Group)
	}
	if p.Destination != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{Destination: stripe.String(p.Destination)}
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapError("create payment intent", err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// RetrieveBalance читает баланс подключённого аккаунта.
func (c *StripeClient) RetrieveBalance(ctx context.Context, accountID string) (*Balance, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}
	params := &stripe.BalanceParams{}
	params.SetStripeAccount(accountID)
	params.Context = ctx

	remote, err := c.api.Balance.Get(params)
	if err != nil {
		return nil, wrapError("retrieve balance", err)
	}
	return &Balance{Available: amounts(remote.Available), Pending: amounts(remote.Pending)}, nil
}

func (c *StripeClient) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}
	params := &stripe.AccountParams{}
	params.Context = ctx

	account, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrapError("retrieve account", err)
	}
	return &Account{
		ID:               account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}, nil
}

// CreateAccountLink выдаёт одноразовую ссылку на онбординг аккаунта.
func (c *StripeClient) CreateAccountLink(ctx context.Context, p AccountLinkParams) (*AccountLink, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(p.AccountID),
		RefreshURL: stripe.String(p.RefreshURL),
		ReturnURL:  stripe.String(p.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return nil, wrapError("create account link", err)
	}
	return &AccountLink{URL: link.URL, ExpiresAt: time.Unix(link.ExpiresAt, 0).UTC()}, nil
}

func amounts(in []*stripe.Amount) []Amount {
	out := make([]Amount, 0, len(in))
	for _, a := range in {
		out = append(out, Amount{Amount: a.Amount, Currency: string(a.Currency)})
	}
	return out
}

// wrapError приводит ошибку stripe-go к *Error, чтобы вызывающий код не
// зависел от SDK.
func wrapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &Error{
			StatusCode: stripeErr.HTTPStatusCode,
			Type:       string(stripeErr.Type),
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
		}
	}
	return fmt.Errorf("ledger: %s: %w", op, err)
}
