package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"link2ur.backend/internal/domain/entities"
)

// Fake is an in-memory provider used in tests and in local development when
// no Stripe key is configured. Idempotency keys replay the first result like
// the real API does.
type Fake struct {
	mu            sync.Mutex
	webhookSecret string
	seq           int

	intents   map[string]*entities.PaymentIntent
	accounts  map[string]*entities.ConnectAccount
	idem      map[string]any
	transfers []entities.CreateTransferParams
	refunds   []entities.CreateRefundParams
	cancelled []string

	IntentErr   error
	TransferErr error
	RefundErr   error
}

func NewFake(webhookSecret string) *Fake {
	return &Fake{
		webhookSecret: webhookSecret,
		intents:       make(map[string]*entities.PaymentIntent),
		accounts:      make(map[string]*entities.ConnectAccount),
		idem:          make(map[string]any),
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_fake_%d", prefix, f.seq)
}

func (f *Fake) CreateIntent(_ context.Context, in entities.CreateIntentParams) (*entities.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IntentErr != nil {
		return nil, f.IntentErr
	}
	if prev, ok := f.idem[in.IdempotencyKey].(*entities.PaymentIntent); ok && in.IdempotencyKey != "" {
		cp := *prev
		return &cp, nil
	}
	id := f.nextID("pi")
	meta := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	pi := &entities.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       in.Amount,
		Currency:     strings.ToUpper(in.Currency),
		Status:       entities.IntentRequiresPaymentMethod,
		Metadata:     meta,
	}
	f.intents[id] = pi
	if in.IdempotencyKey != "" {
		f.idem[in.IdempotencyKey] = pi
	}
	cp := *pi
	return &cp, nil
}

func (f *Fake) RetrieveIntent(_ context.Context, id string) (*entities.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[id]
	if !ok {
		return nil, &entities.ProviderError{Op: "retrieve payment intent", Code: "resource_missing", Err: fmt.Errorf("no such payment_intent: %s", id)}
	}
	cp := *pi
	return &cp, nil
}

func (f *Fake) CancelIntent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pi, ok := f.intents[id]; ok {
		pi.Status = entities.IntentCanceled
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

// CancelledIntents returns the intent ids passed to CancelIntent.
func (f *Fake) CancelledIntents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// SetIntentStatus simulates the customer acting on an intent.
func (f *Fake) SetIntentStatus(id string, status entities.IntentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pi, ok := f.intents[id]; ok {
		pi.Status = status
	}
}

func (f *Fake) CreateTransfer(_ context.Context, in entities.CreateTransferParams) (*entities.ProviderTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return nil, f.TransferErr
	}
	if prev, ok := f.idem[in.IdempotencyKey].(*entities.ProviderTransfer); ok && in.IdempotencyKey != "" {
		cp := *prev
		return &cp, nil
	}
	tr := &entities.ProviderTransfer{ID: f.nextID("tr"), Amount: in.Amount}
	f.transfers = append(f.transfers, in)
	if in.IdempotencyKey != "" {
		f.idem[in.IdempotencyKey] = tr
	}
	cp := *tr
	return &cp, nil
}

// Transfers returns every distinct transfer the provider executed.
func (f *Fake) Transfers() []entities.CreateTransferParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.CreateTransferParams(nil), f.transfers...)
}

func (f *Fake) CreateRefund(_ context.Context, in entities.CreateRefundParams) (*entities.ProviderRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	f.refunds = append(f.refunds, in)
	return &entities.ProviderRefund{ID: f.nextID("re"), Status: "succeeded"}, nil
}

// Refunds returns every refund the provider executed.
func (f *Fake) Refunds() []entities.CreateRefundParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.CreateRefundParams(nil), f.refunds...)
}

func (f *Fake) CreateAccount(_ context.Context, _ string, _ map[string]string) (*entities.ConnectAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := &entities.ConnectAccount{ID: f.nextID("acct")}
	f.accounts[acct.ID] = acct
	cp := *acct
	return &cp, nil
}

func (f *Fake) RetrieveAccount(_ context.Context, id string) (*entities.ConnectAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[id]
	if !ok {
		return nil, &entities.ProviderError{Op: "retrieve account", Code: "resource_missing", Err: fmt.Errorf("no such account: %s", id)}
	}
	cp := *acct
	return &cp, nil
}

// EnableAccount marks an account as fully onboarded.
func (f *Fake) EnableAccount(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[id] = &entities.ConnectAccount{ID: id, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}
}

func (f *Fake) CreateAccountSession(_ context.Context, accountID string) (string, error) {
	return "accs_secret_" + accountID, nil
}

func (f *Fake) CreateCustomer(_ context.Context, userID, _, _ string) (string, error) {
	return "cus_fake_" + userID, nil
}

func (f *Fake) CreateEphemeralKey(_ context.Context, customerID string) (string, error) {
	return "ek_secret_" + customerID, nil
}

func (f *Fake) ConstructEvent(payload []byte, signature string) (*entities.WebhookEvent, error) {
	return ParseWebhook(payload, signature, f.webhookSecret)
}

// SignEvent builds a Stripe event envelope around object and signs it with
// the fake's webhook secret. It returns the body and Stripe-Signature header.
func (f *Fake) SignEvent(eventID, eventType, account string, object map[string]any) ([]byte, string) {
	envelope := map[string]any{
		"id":      eventID,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	}
	if account != "" {
		envelope["account"] = account
	}
	payload, _ := json.Marshal(envelope)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  f.webhookSecret,
	})
	return payload, signed.Header
}

// IntentObject renders pi the way Stripe serializes payment intents in events.
func IntentObject(pi *entities.PaymentIntent) map[string]any {
	return map[string]any{
		"id":            pi.ID,
		"object":        "payment_intent",
		"amount":        pi.Amount,
		"currency":      strings.ToLower(pi.Currency),
		"status":        string(pi.Status),
		"client_secret": pi.ClientSecret,
		"metadata":      pi.Metadata,
	}
}
