package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
)

// ParseWebhook verifies a signed Stripe payload and decodes the object the
// orchestrator needs. A bad signature yields domainerrors.ErrSignature.
func ParseWebhook(payload []byte, signature, secret string) (*entities.WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrSignature, err)
	}
	return decodeEvent(evt)
}

func decodeEvent(evt stripe.Event) (*entities.WebhookEvent, error) {
	out := &entities.WebhookEvent{
		ID:        evt.ID,
		Type:      string(evt.Type),
		AccountID: evt.Account,
	}
	if evt.Data == nil {
		return out, nil
	}
	raw := evt.Data.Raw

	switch out.Type {
	case entities.EventIntentSucceeded, entities.EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Intent = toIntent(&pi)

	case entities.EventAccountCreated, entities.EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(raw, &acct); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out.Account = toAccount(&acct)
		out.AccountID = acct.ID

	case entities.EventCapabilityUpdated:
		var capability stripe.Capability
		if err := json.Unmarshal(raw, &capability); err != nil {
			return nil, fmt.Errorf("decode capability: %w", err)
		}
		if capability.Account != nil {
			out.AccountID = capability.Account.ID
		}

	case entities.EventDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(raw, &dispute); err != nil {
			return nil, fmt.Errorf("decode dispute: %w", err)
		}
		if dispute.PaymentIntent != nil {
			out.DisputeIntentID = dispute.PaymentIntent.ID
		}
	}
	return out, nil
}
