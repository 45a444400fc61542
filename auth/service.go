// Package auth resolves request actors from signed tokens and issues the
// anti-forgery nonces that guard state-changing requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vapvarun/fymodules"
)

const (
	tokenTypeAccess = "access"
	tokenTypeNonce  = "nonce"
)

// Config configures a Service.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	NonceTTL time.Duration
}

// Service signs and verifies HS256 tokens. Access tokens carry the actor;
// nonces are short-lived tokens bound to one actor id.
type Service struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	nonceTTL time.Duration
	now      func() time.Time
}

// NewService creates a Service. The secret is required.
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 30 * time.Minute
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
		nonceTTL: cfg.NonceTTL,
		now:      time.Now,
	}, nil
}

// IssueToken signs an access token for actor and returns it with its
// expiry.
func (s *Service) IssueToken(actor fymodules.Actor) (string, time.Time, error) {
	if actor.ID == "" {
		return "", time.Time{}, fmt.Errorf("%w: actor id is required", ErrTokenInvalid)
	}
	now := s.now()
	exp := now.Add(s.tokenTTL)
	claims := s.baseClaims(tokenTypeAccess, actor.ID, now, exp)
	if actor.Name != "" {
		claims["name"] = actor.Name
	}
	if len(actor.Roles) > 0 {
		claims["roles"] = actor.Roles
	}
	if len(actor.Capabilities) > 0 {
		claims["capabilities"] = actor.Capabilities
	}

	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken verifies an access token and returns its actor.
func (s *Service) ParseToken(tokenString string) (fymodules.Actor, error) {
	claims, err := s.parse(tokenString, tokenTypeAccess)
	if err != nil {
		return fymodules.Actor{}, err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return fymodules.Actor{}, ErrTokenMalformed
	}
	name, _ := claims["name"].(string)
	return fymodules.Actor{
		ID:           sub,
		Name:         name,
		Roles:        stringList(claims["roles"]),
		Capabilities: stringList(claims["capabilities"]),
	}, nil
}

// IssueNonce signs a nonce bound to actorID.
func (s *Service) IssueNonce(actorID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.nonceTTL)
	signed, err := s.sign(s.baseClaims(tokenTypeNonce, actorID, now, exp))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyNonce checks that nonce is valid and was issued to actorID.
func (s *Service) VerifyNonce(nonce, actorID string) error {
	if nonce == "" {
		return fmt.Errorf("%w: missing", ErrNonceInvalid)
	}
	claims, err := s.parse(nonce, tokenTypeNonce)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNonceInvalid, err)
	}
	if sub, _ := claims["sub"].(string); sub != actorID {
		return fmt.Errorf("%w: issued to another actor", ErrNonceInvalid)
	}
	return nil
}

func (s *Service) baseClaims(tokenType, subject string, now, exp time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"type": tokenType,
		"sub":  subject,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
		"jti":  uuid.NewString(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	return claims
}

func (s *Service) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString, tokenType string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}
	if t, _ := claims["type"].(string); t != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, tokenType)
	}
	return claims, nil
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
