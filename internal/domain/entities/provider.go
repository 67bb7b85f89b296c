package entities

// Payment provider boundary types. Amounts are in minor units.

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// IsPending reports whether the intent can still be paid.
func (s IntentStatus) IsPending() bool {
	switch s {
	case IntentRequiresPaymentMethod, IntentRequiresConfirmation, IntentRequiresAction, IntentProcessing:
		return true
	}
	return false
}

// Payment intent metadata keys.
const (
	MetaTaskID               = "task_id"
	MetaApplicationID        = "application_id"
	MetaPosterID             = "poster_id"
	MetaTakerID              = "taker_id"
	MetaTakerStripeAccountID = "taker_stripe_account_id"
	MetaApplicationFee       = "application_fee"
	MetaPaymentType          = "payment_type"
	MetaPendingApproval      = "pending_approval"
	PaymentTypeApplication   = "application_approval"
	PaymentTypeNegotiation   = "negotiation_accept"
)

var AllowedPaymentMethods = []string{"card", "wechat_pay", "alipay"}

type PaymentIntent struct {
	ID           string            `json:"payment_intent_id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       IntentStatus      `json:"status"`
	Metadata     map[string]string `json:"-"`
}

type CreateIntentParams struct {
	Amount         int64
	Currency       string
	MethodTypes    []string
	Description    string
	Metadata       map[string]string
	CustomerID     string
	IdempotencyKey string
}

type CreateTransferParams struct {
	Amount         int64
	Currency       string
	Destination    string
	TransferGroup  string
	Metadata       map[string]string
	IdempotencyKey string
}

type ProviderTransfer struct {
	ID     string
	Amount int64
}

type CreateRefundParams struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

type ProviderRefund struct {
	ID     string
	Status string
}

type ConnectAccount struct {
	ID               string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Enabled reports whether the account can receive transfers.
func (a *ConnectAccount) Enabled() bool {
	return a.ChargesEnabled && a.PayoutsEnabled
}

// Webhook event types consumed by the orchestrator.
const (
	EventIntentSucceeded     = "payment_intent.succeeded"
	EventIntentFailed        = "payment_intent.payment_failed"
	EventAccountCreated      = "account.created"
	EventAccountUpdated      = "account.updated"
	EventAccountDeauthorized = "account.application.deauthorized"
	EventCapabilityUpdated   = "capability.updated"
	EventDisputeCreated      = "charge.dispute.created"
)

// WebhookEvent is a verified provider event with its decoded object.
type WebhookEvent struct {
	ID        string
	Type      string
	AccountID string
	Intent    *PaymentIntent
	Account   *ConnectAccount
	// DisputeIntentID is the payment intent a dispute was opened against.
	DisputeIntentID string
}

// ProviderError is a failed payment provider call. Retryable marks
// transient failures (network, rate limit, provider 5xx).
type ProviderError struct {
	Op        string
	Code      string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return e.Op + ": " + e.Code + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }
