package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret is returned by NewTokenService when no signing secret is
// configured. Startup must abort on it.
var ErrEmptySecret = errors.New("token signing secret is empty")

// tokenIssuer is stamped into and required on every token.
const tokenIssuer = "userdir"

// Status is the outcome of validating a bearer token.
type Status int

// Exactly one status applies to any token. The signature is checked before
// any claim, so a forged token reports StatusBadSignature whatever its
// claimed expiry.
const (
	StatusMalformed Status = iota
	StatusBadSignature
	StatusExpired
	StatusValid
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusBadSignature:
		return "bad_signature"
	default:
		return "malformed"
	}
}

// Outcome is the result of Validate. Subject is set only for StatusValid.
type Outcome struct {
	Status  Status
	Subject string
}

// Token is an issued bearer token and the claims it carries.
type Token struct {
	Value     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and validates HS256 tokens. The secret and lifetime
// are fixed at construction and only read afterwards, so one instance is
// safe for concurrent use without locking.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides time.Now for issuing and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a token service. A blank secret or non-positive
// lifetime is an error.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %s", ttl)
	}

	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithStrictDecoding(),
	)
	return s, nil
}

// TTL returns the fixed token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for subjectEmail valid from now until now+TTL.
// Timestamps are truncated to whole seconds, the precision JWT carries.
func (s *TokenService) Issue(subjectEmail string) (*Token, error) {
	if subjectEmail == "" {
		return nil, errors.New("token subject is empty")
	}

	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subjectEmail,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Token{
		Value:     value,
		Subject:   subjectEmail,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks a serialized token. The parser verifies the signature
// with a constant-time HMAC comparison before it looks at any claim, so
// expiry is only evaluated for authentic tokens.
func (s *TokenService) Validate(raw string) Outcome {
	claims := &jwt.RegisteredClaims{}
	token, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})

	switch {
	case err == nil && token.Valid:
		if claims.Subject == "" {
			return Outcome{Status: StatusMalformed}
		}
		return Outcome{Status: StatusValid, Subject: claims.Subject}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Outcome{Status: StatusBadSignature}
	case errors.Is(err, jwt.ErrTokenExpired):
		return Outcome{Status: StatusExpired}
	case errors.Is(err, jwt.ErrTokenMalformed) && s.signatureOnlyDamaged(raw):
		return Outcome{Status: StatusBadSignature}
	default:
		return Outcome{Status: StatusMalformed}
	}
}

// signatureOnlyDamaged reports whether header and claims of raw parse
// cleanly, meaning the structural failure sits in the signature segment.
// A signature that doesn't even decode is still a wrong signature.
func (s *TokenService) signatureOnlyDamaged(raw string) bool {
	if strings.Count(raw, ".") != 2 {
		return false
	}
	_, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(raw, &jwt.RegisteredClaims{})
	return err == nil
}
