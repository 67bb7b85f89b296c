package usecases

import (
	"context"
	"time"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/pkg/redis"
)

// PaymentProvider is the payment gateway boundary. payment.StripeProvider
// and payment.Fake implement it.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, in entities.CreateIntentParams) (*entities.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*entities.PaymentIntent, error)
	CancelIntent(ctx context.Context, id string) error
	CreateTransfer(ctx context.Context, in entities.CreateTransferParams) (*entities.ProviderTransfer, error)
	CreateRefund(ctx context.Context, in entities.CreateRefundParams) (*entities.ProviderRefund, error)
	CreateAccount(ctx context.Context, email string, metadata map[string]string) (*entities.ConnectAccount, error)
	RetrieveAccount(ctx context.Context, id string) (*entities.ConnectAccount, error)
	CreateAccountSession(ctx context.Context, accountID string) (string, error)
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (string, error)
	ConstructEvent(payload []byte, signature string) (*entities.WebhookEvent, error)
}

// FileStore holds task images and private chat attachments.
type FileStore interface {
	SignedURL(blobID string, participants []string) (string, error)
	DeleteAll(ctx context.Context, images, blobs []string) int
}

// Dispatcher delivers notifications on external channels after commit.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg entities.Dispatch) error
}

// WebhookObserver counts webhook outcomes.
type WebhookObserver interface {
	WebhookEvent(eventType, outcome string)
}

// EventDeduper claims webhook event ids.
type EventDeduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// TokenStore keeps one-shot tokens; redis.TokenStore implements it.
type TokenStore interface {
	Put(ctx context.Context, token string, value any, ttl time.Duration) error
	Peek(ctx context.Context, token string, out any) error
	Take(ctx context.Context, token string, out any) error
	Delete(ctx context.Context, tokens ...string) error
}

// RateLimiter enforces sliding windows; redis.SlidingWindowLimiter implements it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, windows ...redis.Window) (bool, error)
}

// TokenSigner signs opaque payloads; crypto.CompactSigner implements it.
type TokenSigner interface {
	Sign(v any) (string, error)
	Verify(token string, out any) error
}

type noopObserver struct{}

func (noopObserver) WebhookEvent(string, string) {}
