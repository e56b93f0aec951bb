// Package session mints and verifies the signed session tokens handed to
// designer clients.  The server keeps no session state: a token is valid
// exactly while its signature checks out and its expiry has not passed.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
)

// DefaultLifetime is the lifetime of a session token.
const DefaultLifetime = 24 * time.Hour

// CredentialLookup returns the access credential stored for a principal.
type CredentialLookup interface {
	Get(ctx context.Context, subjectID string) (string, error)
}

// Token is a signed session token with its validity window.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the payload of a session token.
type Claims struct {
	User model.Principal `json:"user"`
	jwt.RegisteredClaims
}

// Option configures a Service.
type Option func(*Service)

// WithLifetime overrides DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger attaches a logger for verification diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service issues and verifies HS256 session tokens.
type Service struct {
	secret   []byte
	users    CredentialLookup
	lifetime time.Duration
	now      func() time.Time
	log      *zap.Logger
	parser   *jwt.Parser
}

// NewService returns a Service signing with secret.  users may be nil when
// ResolveAccessCredential is not needed.
func NewService(secret string, users CredentialLookup, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("session: signing secret is required")
	}
	s := &Service{
		secret:   []byte(secret),
		users:    users,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrNop(s.log).With(logging.Component("session"))
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Lifetime returns the fixed lifetime of issued tokens.
func (s *Service) Lifetime() time.Duration { return s.lifetime }

// Issue signs a token for p.  ExpiresAt is always IssuedAt plus the
// configured lifetime; both are whole seconds so they survive encoding.
func (s *Service) Issue(p model.Principal) (Token, error) {
	if p.ID == "" {
		return Token{}, errors.New("session: principal id is required")
	}
	iat := s.now().UTC().Truncate(time.Second)
	exp := iat.Add(s.lifetime)
	claims := Claims{
		User: p,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("session: sign: %w", err)
	}
	return Token{Value: signed, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Verify returns the principal embedded in raw, or nil when the token is
// malformed, signed with another key or algorithm, or expired.  A token is
// expired from the instant of its exp claim onward.
func (s *Service) Verify(raw string) *model.Principal {
	if raw == "" {
		return nil
	}
	var claims Claims
	tok, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		s.log.Debug("session token rejected", zap.Error(err))
		return nil
	}
	p := claims.User
	if p.ID == "" {
		p.ID = claims.Subject
	}
	if p.ID == "" {
		return nil
	}
	return &p
}

// Authenticate verifies raw and loads the access credential stored for its
// principal.  ok is false on any failure; the cause is only logged.
func (s *Service) Authenticate(ctx context.Context, raw string) (p *model.Principal, credential string, ok bool) {
	p = s.Verify(raw)
	if p == nil || s.users == nil {
		return nil, "", false
	}
	credential, err := s.users.Get(ctx, p.ID)
	if err != nil || credential == "" {
		s.log.Debug("no credential for principal", logging.PrincipalID(p.ID), zap.Error(err))
		return nil, "", false
	}
	return p, credential, true
}

// ResolveAccessCredential verifies raw and returns the access credential of
// its principal.
func (s *Service) ResolveAccessCredential(ctx context.Context, raw string) (string, bool) {
	_, credential, ok := s.Authenticate(ctx, raw)
	return credential, ok
}
