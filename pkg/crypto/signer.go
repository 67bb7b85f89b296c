package crypto

import (
	"encoding/json"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v3"
)

var ErrInvalidSignature = errors.New("invalid signature")

// CompactSigner produces HS256 compact JWS strings over JSON payloads.
type CompactSigner struct {
	key    []byte
	signer jose.Signer
}

// NewCompactSigner derives an HMAC key from secret for purpose.
func NewCompactSigner(secret []byte, purpose string) (*CompactSigner, error) {
	key, err := DeriveKey(secret, purpose, 32)
	if err != nil {
		return nil, err
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &CompactSigner{key: key, signer: signer}, nil
}

// Sign marshals v and returns its compact serialization.
func (s *CompactSigner) Sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	obj, err := s.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return obj.CompactSerialize()
}

// Verify checks token and decodes its payload into out.
func (s *CompactSigner) Verify(token string, out any) error {
	obj, err := jose.ParseSigned(token)
	if err != nil {
		return ErrInvalidSignature
	}
	if len(obj.Signatures) != 1 || obj.Signatures[0].Header.Algorithm != string(jose.HS256) {
		return ErrInvalidSignature
	}
	payload, err := obj.Verify(s.key)
	if err != nil {
		return ErrInvalidSignature
	}
	return json.Unmarshal(payload, out)
}
