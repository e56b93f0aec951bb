package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/designer-bridge/internal/model"
)

type fakeUsers map[string]string

func (f fakeUsers) Get(_ context.Context, id string) (string, error) {
	if v, ok := f[id]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var alice = model.Principal{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}

func newTestService(t *testing.T, c *clock, users CredentialLookup) *Service {
	t.Helper()
	s, err := NewService("test-secret", users, WithClock(c.now))
	require.NoError(t, err)
	return s
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("", nil)
	assert.Error(t, err)
}

func TestIssueSetsFixedLifetime(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 500, time.UTC)}
	s := newTestService(t, c, nil)

	tok, err := s.Issue(alice)
	require.NoError(t, err)
	assert.Equal(t, tok.IssuedAt.Add(24*time.Hour), tok.ExpiresAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), tok.IssuedAt)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(tok.Value, &claims)
	require.NoError(t, err)
	assert.Equal(t, tok.ExpiresAt.Unix(), claims.ExpiresAt.Unix())
	assert.Equal(t, tok.IssuedAt.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, alice, claims.User)
}

func TestIssueRequiresPrincipalID(t *testing.T) {
	s := newTestService(t, &clock{t: time.Now()}, nil)
	_, err := s.Issue(model.Principal{Email: "x@example.com"})
	assert.Error(t, err)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	s := newTestService(t, c, nil)
	tok, err := s.Issue(alice)
	require.NoError(t, err)

	for _, at := range []time.Time{start, start.Add(time.Hour), tok.ExpiresAt.Add(-time.Second)} {
		c.t = at
		p := s.Verify(tok.Value)
		require.NotNil(t, p, "at %s", at)
		assert.Equal(t, alice, *p)
	}
	for _, at := range []time.Time{tok.ExpiresAt, tok.ExpiresAt.Add(time.Second), tok.ExpiresAt.Add(48 * time.Hour)} {
		c.t = at
		assert.Nil(t, s.Verify(tok.Value), "at %s", at)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newTestService(t, c, nil)
	other, err := NewService("other-secret", nil, WithClock(c.now))
	require.NoError(t, err)
	foreign, err := other.Issue(alice)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		User: alice,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{User: alice}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":       "",
		"garbage":     "not-a-token",
		"wrong key":   foreign.Value,
		"alg none":    unsigned,
		"missing exp": noExp,
	} {
		assert.Nil(t, s.Verify(raw), name)
	}
}

func TestResolveAccessCredential(t *testing.T) {
	c := &clock{t: time.Now()}
	s := newTestService(t, c, fakeUsers{"u1": "wf-token"})

	tok, err := s.Issue(alice)
	require.NoError(t, err)

	cred, ok := s.ResolveAccessCredential(context.Background(), tok.Value)
	assert.True(t, ok)
	assert.Equal(t, "wf-token", cred)

	bob, err := s.Issue(model.Principal{ID: "u2"})
	require.NoError(t, err)
	_, ok = s.ResolveAccessCredential(context.Background(), bob.Value)
	assert.False(t, ok)

	c.t = tok.ExpiresAt
	_, ok = s.ResolveAccessCredential(context.Background(), tok.Value)
	assert.False(t, ok)
}
