package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrTokenNotFound means the token expired or was already consumed.
var ErrTokenNotFound = errors.New("token not found or already used")

// TokenStore keeps short-lived one-shot tokens. Take is GETDEL, so only the
// first caller observes a token.
type TokenStore struct {
	client *Client
	prefix string
}

func NewTokenStore(client *Client, prefix string) *TokenStore {
	return &TokenStore{client: client, prefix: prefix}
}

// Put stores value (JSON encoded) under token with ttl.
func (s *TokenStore) Put(ctx context.Context, token string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+token, raw, ttl)
}

// Peek decodes the stored value without consuming it.
func (s *TokenStore) Peek(ctx context.Context, token string, out any) error {
	raw, err := s.client.Get(ctx, s.prefix+token)
	if err != nil {
		if IsNil(err) {
			return ErrTokenNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// Take atomically fetches and deletes token, decoding its value into out.
func (s *TokenStore) Take(ctx context.Context, token string, out any) error {
	raw, err := s.client.GetDel(ctx, s.prefix+token)
	if err != nil {
		if IsNil(err) {
			return ErrTokenNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// Delete drops tokens without reading them.
func (s *TokenStore) Delete(ctx context.Context, tokens ...string) error {
	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			keys = append(keys, s.prefix+t)
		}
	}
	return s.client.Del(ctx, keys...)
}
