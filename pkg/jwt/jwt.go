package jwt

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNotAllowed   = errors.New("viewer is not a participant")
)

// FileClaims grants time-limited access to one private file to a fixed set
// of participants.
type FileClaims struct {
	Path         string   `json:"path"`
	Participants []string `json:"participants"`
	jwt.RegisteredClaims
}

// FileURLService signs and validates private file access tokens.
type FileURLService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

var signJWTToken = func(token *jwt.Token, secret []byte) (string, error) {
	return token.SignedString(secret)
}

// NewFileURLService creates a new signer; now defaults to time.Now.
func NewFileURLService(secret []byte, expiry time.Duration, now func() time.Time) *FileURLService {
	if now == nil {
		now = time.Now
	}
	return &FileURLService{secret: secret, expiry: expiry, now: now}
}

// Sign issues a token for path readable by participants.
func (s *FileURLService) Sign(path string, participants []string) (string, error) {
	now := s.now()
	claims := &FileClaims{
		Path:         path,
		Participants: participants,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "link2ur",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return signJWTToken(token, s.secret)
}

// Validate parses tokenString and, when viewer is non-empty, checks that the
// viewer is one of the bound participants.
func (s *FileURLService) Validate(tokenString, viewer string) (*FileClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &FileClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*FileClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if viewer != "" && !slices.Contains(claims.Participants, viewer) {
		return nil, ErrNotAllowed
	}
	return claims, nil
}
