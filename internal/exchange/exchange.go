// Package exchange runs the three-party authorization exchange: it trades
// an OAuth authorization code for a platform access credential and records
// it per site, and it trades a designer identity assertion for a session
// token.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/session"
)

var (
	// ErrMissingCode is returned when the callback carries no code.
	ErrMissingCode = errors.New("no code provided")
	// ErrExchangeFailed wraps every failure after the code was received.
	ErrExchangeFailed = errors.New("authorization exchange failed")
	// ErrUnauthorized is returned for every session request that cannot
	// be authorized, whatever the cause.
	ErrUnauthorized = errors.New("unauthorized")
)

// CredentialStore is the subset of the credential repository used here.
type CredentialStore interface {
	Put(ctx context.Context, subjectID, credential string) error
	Get(ctx context.Context, subjectID string) (string, error)
}

// Upstream is the authorization provider.
type Upstream interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	ListSites(ctx context.Context, token string) ([]model.Site, error)
	Introspect(ctx context.Context, token string) (model.Authorization, error)
	ResolveIdentity(ctx context.Context, token, assertion string) (model.Principal, error)
}

// Issuer mints session tokens.
type Issuer interface {
	Issue(p model.Principal) (session.Token, error)
}

// OutcomeKind tells the callback handler how to answer.
type OutcomeKind int

const (
	// OutcomeNone means nothing to navigate to.
	OutcomeNone OutcomeKind = iota
	// OutcomePopup means the authorization ran in a popup that should
	// notify its opener and close.
	OutcomePopup
	// OutcomeRedirect means the browser should follow RedirectURL.
	OutcomeRedirect
)

// Outcome is the result of a successful code exchange.
type Outcome struct {
	Kind        OutcomeKind
	RedirectURL string
	SiteIDs     []string
}

// Config tunes where a finished authorization leads.
type Config struct {
	ClientID     string
	PopupState   string
	DashboardURL string
	DesignerURL  string // fmt pattern, %s is the site short name
	Timeout      time.Duration
}

// Service implements the authorization exchange.
type Service struct {
	upstream Upstream
	sites    CredentialStore
	users    CredentialStore
	issuer   Issuer
	cfg      Config
	log      *zap.Logger
}

// NewService wires the exchange.  sites holds credentials keyed by site id
// and users holds credentials keyed by principal id.
func NewService(up Upstream, sites, users CredentialStore, issuer Issuer, cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Service{
		upstream: up,
		sites:    sites,
		users:    users,
		issuer:   issuer,
		cfg:      cfg,
		log:      logging.OrNop(logger).With(logging.Component("exchange")),
	}
}

// AuthorizeURL returns the upstream consent URL forwarding state.
func (s *Service) AuthorizeURL(state string) string {
	return s.upstream.AuthorizeURL(state)
}

// ExchangeAuthorizationCode trades code for an access credential, stores
// it for every authorized site and decides where the browser goes next.
// Either every site credential is stored or the exchange fails.
func (s *Service) ExchangeAuthorizationCode(ctx context.Context, code, state string) (Outcome, error) {
	if strings.TrimSpace(code) == "" {
		return Outcome{}, ErrMissingCode
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	token, err := s.upstream.ExchangeCode(ctx, code)
	if err != nil {
		return Outcome{}, s.fail("exchange code", err)
	}
	sites, err := s.upstream.ListSites(ctx, token)
	if err != nil {
		return Outcome{}, s.fail("list sites", err)
	}
	if err := s.storeSiteCredentials(ctx, sites, token); err != nil {
		return Outcome{}, s.fail("store site credentials", err)
	}
	auth, err := s.upstream.Introspect(ctx, token)
	if err != nil {
		return Outcome{}, s.fail("introspect", err)
	}

	out := Outcome{SiteIDs: make([]string, 0, len(sites))}
	for _, site := range sites {
		out.SiteIDs = append(out.SiteIDs, site.ID)
	}
	s.log.Info("authorization exchanged",
		zap.Int("sites", len(sites)), zap.Int("workspaces", len(auth.WorkspaceIDs)))

	switch {
	case state != "" && state == s.cfg.PopupState:
		out.Kind = OutcomePopup
	case len(auth.WorkspaceIDs) > 0:
		out.Kind = OutcomeRedirect
		out.RedirectURL = s.dashboardURL(auth.WorkspaceIDs[0])
	case len(sites) > 0:
		out.Kind = OutcomeRedirect
		out.RedirectURL = s.designerURL(sites[0])
	default:
		out.Kind = OutcomeNone
	}
	return out, nil
}

func (s *Service) storeSiteCredentials(ctx context.Context, sites []model.Site, token string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, site := range sites {
		g.Go(func() error {
			if err := s.sites.Put(gctx, site.ID, token); err != nil {
				return fmt.Errorf("site %s: %w", site.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) fail(step string, err error) error {
	s.log.Error("authorization exchange failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s", ErrExchangeFailed, step)
}

func (s *Service) dashboardURL(workspaceID string) string {
	return s.cfg.DashboardURL + "?" + url.Values{"workspace": {workspaceID}}.Encode()
}

func (s *Service) designerURL(site model.Site) string {
	base := fmt.Sprintf(s.cfg.DesignerURL, site.ShortName)
	if s.cfg.ClientID == "" {
		return base
	}
	return base + "?" + url.Values{"app": {s.cfg.ClientID}}.Encode()
}

// IssueSession resolves a designer identity assertion with the credential
// stored for targetID, records that credential for the resolved principal
// and issues a session token.  Every authorization failure is reported as
// ErrUnauthorized; storage and signing failures are returned as is.
func (s *Service) IssueSession(ctx context.Context, assertion, targetID string) (session.Token, model.Principal, error) {
	credential, err := s.sites.Get(ctx, targetID)
	if err != nil || credential == "" {
		s.log.Info("no site credential", logging.SiteID(targetID), zap.Error(err))
		return session.Token{}, model.Principal{}, ErrUnauthorized
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	p, err := s.upstream.ResolveIdentity(rctx, credential, assertion)
	cancel()
	if err != nil {
		s.log.Warn("identity resolution failed", logging.SiteID(targetID), zap.Error(err))
		return session.Token{}, model.Principal{}, ErrUnauthorized
	}

	if err := s.users.Put(ctx, p.ID, credential); err != nil {
		return session.Token{}, model.Principal{}, fmt.Errorf("store user credential: %w", err)
	}
	tok, err := s.issuer.Issue(p)
	if err != nil {
		return session.Token{}, model.Principal{}, err
	}
	s.log.Info("session issued", logging.SiteID(targetID), logging.PrincipalID(p.ID))
	return tok, p, nil
}
