// Package payment adapts the Stripe API to the provider contract used by the
// payment orchestrator.
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"link2ur.backend/internal/domain/entities"
)

// StripeProvider talks to Stripe with one API client built at startup.
type StripeProvider struct {
	api            *client.API
	webhookSecret  string
	connectCountry string
}

// NewStripeProvider creates a provider for secretKey. Webhooks are verified
// with webhookSecret.
func NewStripeProvider(secretKey, webhookSecret, connectCountry string) *StripeProvider {
	return &StripeProvider{
		api:            client.New(secretKey, nil),
		webhookSecret:  webhookSecret,
		connectCountry: connectCountry,
	}
}

// CreateIntent creates a payment intent held on the platform account.
func (p *StripeProvider) CreateIntent(ctx context.Context, in entities.CreateIntentParams) (*entities.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(in.Amount),
		Currency:           stripe.String(strings.ToLower(in.Currency)),
		PaymentMethodTypes: stripe.StringSlice(in.MethodTypes),
		Metadata:           in.Metadata,
	}
	params.Context = ctx
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrap("create payment intent", err)
	}
	return toIntent(pi), nil
}

// RetrieveIntent fetches the current state of an intent.
func (p *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*entities.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrap("retrieve payment intent", err)
	}
	return toIntent(pi), nil
}

// CancelIntent cancels an intent that will be reissued.
func (p *StripeProvider) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := p.api.PaymentIntents.Cancel(id, params); err != nil {
		return wrap("cancel payment intent", err)
	}
	return nil
}

// CreateTransfer moves funds from the platform balance to a connected account.
func (p *StripeProvider) CreateTransfer(ctx context.Context, in entities.CreateTransferParams) (*entities.ProviderTransfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(in.Amount),
		Currency:    stripe.String(strings.ToLower(in.Currency)),
		Destination: stripe.String(in.Destination),
		Metadata:    in.Metadata,
	}
	params.Context = ctx
	if in.TransferGroup != "" {
		params.TransferGroup = stripe.String(in.TransferGroup)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	tr, err := p.api.Transfers.New(params)
	if err != nil {
		return nil, wrap("create transfer", err)
	}
	return &entities.ProviderTransfer{ID: tr.ID, Amount: tr.Amount}, nil
}

// CreateRefund refunds part or all of a captured intent.
func (p *StripeProvider) CreateRefund(ctx context.Context, in entities.CreateRefundParams) (*entities.ProviderRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.PaymentIntentID),
		Metadata:      in.Metadata,
	}
	params.Context = ctx
	if in.Amount > 0 {
		params.Amount = stripe.Int64(in.Amount)
	}
	if in.Reason != "" {
		params.Reason = stripe.String(in.Reason)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	rf, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, wrap("create refund", err)
	}
	return &entities.ProviderRefund{ID: rf.ID, Status: string(rf.Status)}, nil
}

// CreateAccount opens an Express connected account with transfers requested.
func (p *StripeProvider) CreateAccount(ctx context.Context, email string, metadata map[string]string) (*entities.ConnectAccount, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(p.connectCountry),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
		Metadata: metadata,
	}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return nil, wrap("create account", err)
	}
	return toAccount(acct), nil
}

// RetrieveAccount fetches a connected account's payout readiness.
func (p *StripeProvider) RetrieveAccount(ctx context.Context, id string) (*entities.ConnectAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := p.api.Accounts.GetByID(id, params)
	if err != nil {
		return nil, wrap("retrieve account", err)
	}
	return toAccount(acct), nil
}

// CreateAccountSession returns the client secret for embedded onboarding.
func (p *StripeProvider) CreateAccountSession(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountSessionParams{
		Account: stripe.String(accountID),
		Components: &stripe.AccountSessionComponentsParams{
			AccountOnboarding: &stripe.AccountSessionComponentsAccountOnboardingParams{Enabled: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	sess, err := p.api.AccountSessions.New(params)
	if err != nil {
		return "", wrap("create account session", err)
	}
	return sess.ClientSecret, nil
}

// CreateCustomer registers a paying customer for the payment sheet.
func (p *StripeProvider) CreateCustomer(ctx context.Context, userID, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{"user_id": userID},
	}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.SetIdempotencyKey("customer_" + userID)
	cus, err := p.api.Customers.New(params)
	if err != nil {
		return "", wrap("create customer", err)
	}
	return cus.ID, nil
}

// CreateEphemeralKey issues a short-lived key for customerID.
func (p *StripeProvider) CreateEphemeralKey(ctx context.Context, customerID string) (string, error) {
	params := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(stripe.APIVersion),
	}
	params.Context = ctx
	key, err := p.api.EphemeralKeys.New(params)
	if err != nil {
		return "", wrap("create ephemeral key", err)
	}
	return key.Secret, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
func (p *StripeProvider) ConstructEvent(payload []byte, signature string) (*entities.WebhookEvent, error) {
	return ParseWebhook(payload, signature, p.webhookSecret)
}

func toIntent(pi *stripe.PaymentIntent) *entities.PaymentIntent {
	return &entities.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       entities.IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func toAccount(a *stripe.Account) *entities.ConnectAccount {
	return &entities.ConnectAccount{
		ID:               a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
}

// wrap classifies a Stripe error so the orchestrator can decide on retries.
func wrap(op string, err error) error {
	pe := &entities.ProviderError{Op: op, Err: err, Retryable: true}
	var se *stripe.Error
	if errors.As(err, &se) {
		pe.Code = string(se.Code)
		pe.Retryable = se.Type == stripe.ErrorTypeAPI ||
			se.HTTPStatusCode == http.StatusTooManyRequests ||
			se.HTTPStatusCode >= http.StatusInternalServerError
	}
	return pe
}
