package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
)

// ErrLoggedOut is returned by Ensure after an explicit Logout, until the
// next successful Authenticate.
var ErrLoggedOut = errors.New("logged out")

// State is the manager's position in the session lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateExchanging
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// AssertionSource obtains a fresh identity assertion from the designer and
// the target it was issued for.  It must not be called concurrently.
type AssertionSource func(ctx context.Context) (assertion, targetID string, err error)

// TokenExchanger trades an identity assertion for a session record.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context, assertion, targetID string) (SessionRecord, error)
}

// flight is one exchange in progress.  Waiters block on done.
type flight struct {
	done chan struct{}
	rec  SessionRecord
	err  error
}

// Manager hands out a valid session record, exchanging a new one when the
// stored record is missing or expired.  At most one exchange runs at a time.
type Manager struct {
	store     SessionStore
	exchanger TokenExchanger
	assertion AssertionSource
	now       func() time.Time
	log       *zap.Logger

	mu       sync.Mutex
	state    State
	inflight *flight
}

// NewManager wires a Manager.
func NewManager(store SessionStore, x TokenExchanger, src AssertionSource, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		exchanger: x,
		assertion: src,
		now:       time.Now,
		log:       logging.OrNop(logger).With(logging.Component("session_manager")),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ensure returns a valid session record.  Expiry is checked here rather
// than on a timer.  Concurrent callers share a single exchange.
func (m *Manager) Ensure(ctx context.Context) (SessionRecord, error) {
	return m.acquire(ctx, false)
}

// Authenticate runs an exchange even after Logout and, on success, clears
// the logged-out marker.  When not logged out, a valid stored record is
// returned as is.
func (m *Manager) Authenticate(ctx context.Context) (SessionRecord, error) {
	return m.acquire(ctx, true)
}

// Logout forgets the session and stops Ensure from exchanging a new one.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnauthenticated
	if err := m.store.Clear(); err != nil {
		return err
	}
	return m.store.SetLoggedOut(true)
}

// Invalidate drops a session the server rejected.  The next Ensure
// exchanges a new one.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticated {
		m.state = StateUnauthenticated
	}
	if err := m.store.Clear(); err != nil {
		m.log.Warn("clear session failed", zap.Error(err))
	}
}

func (m *Manager) acquire(ctx context.Context, explicit bool) (SessionRecord, error) {
	m.mu.Lock()
	if f := m.inflight; f != nil {
		m.mu.Unlock()
		return f.wait(ctx)
	}

	loggedOut, err := m.store.LoggedOut()
	if err != nil {
		m.mu.Unlock()
		return SessionRecord{}, err
	}
	if loggedOut && !explicit {
		m.state = StateUnauthenticated
		m.mu.Unlock()
		return SessionRecord{}, ErrLoggedOut
	}

	// after Logout only a new exchange counts, whatever is stored
	if !loggedOut {
		rec, err := m.store.Load()
		if err != nil {
			m.log.Warn("load session failed", zap.Error(err))
			rec = nil
		}
		if rec != nil && !rec.Expired(m.now()) {
			m.state = StateAuthenticated
			m.mu.Unlock()
			return *rec, nil
		}
	}

	f := &flight{done: make(chan struct{})}
	m.inflight = f
	m.state = StateExchanging
	m.mu.Unlock()

	f.rec, f.err = m.exchange(ctx, explicit)

	m.mu.Lock()
	if f.err != nil {
		m.state = StateUnauthenticated
	} else {
		m.state = StateAuthenticated
	}
	m.inflight = nil
	m.mu.Unlock()
	close(f.done)

	return f.rec, f.err
}

// exchange runs with m.mu released; the in-flight marker keeps others out.
func (m *Manager) exchange(ctx context.Context, explicit bool) (SessionRecord, error) {
	rec, err := m.establish(ctx, explicit)
	if err == nil {
		m.log.Info("session established", logging.PrincipalID(rec.Principal.ID), logging.TargetID(rec.TargetID))
		return rec, nil
	}

	// no automatic retry; the next call starts from a clean slate
	if cerr := m.store.Clear(); cerr != nil {
		m.log.Warn("clear session failed", zap.Error(cerr))
	}
	m.log.Warn("session exchange failed", zap.Error(err))
	return SessionRecord{}, fmt.Errorf("session exchange: %w", err)
}

func (m *Manager) establish(ctx context.Context, explicit bool) (SessionRecord, error) {
	assertion, target, err := m.assertion(ctx)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("identity assertion: %w", err)
	}
	rec, err := m.exchanger.ExchangeToken(ctx, assertion, target)
	if err != nil {
		return SessionRecord{}, err
	}
	if rec.TargetID == "" {
		rec.TargetID = target
	}
	if err := m.store.Save(rec); err != nil {
		return SessionRecord{}, fmt.Errorf("save session: %w", err)
	}
	if explicit {
		if err := m.store.SetLoggedOut(false); err != nil {
			return SessionRecord{}, fmt.Errorf("clear logged-out marker: %w", err)
		}
	}
	return rec, nil
}

func (f *flight) wait(ctx context.Context) (SessionRecord, error) {
	select {
	case <-f.done:
		return f.rec, f.err
	case <-ctx.Done():
		return SessionRecord{}, ctx.Err()
	}
}
