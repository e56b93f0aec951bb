// Package platform is the HTTP client for the design-tool platform: the
// OAuth authorize and code exchange endpoints plus the REST calls the bridge
// makes with a stored access credential.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
)

// maxErrorBody bounds how much of an error response is kept for logs.
const maxErrorBody = 4 << 10

// Config describes the platform's OAuth application and API location.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string
	APIBaseURL   string
	Scopes       []string
	HTTPClient   *http.Client
}

// Client calls the platform on behalf of stored access credentials.
type Client struct {
	oauth *oauth2.Config
	base  string
	hc    *http.Client
	log   *zap.Logger
}

// New builds a Client.  A nil HTTPClient uses a client with a 30s timeout.
func New(cfg Config, logger *zap.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		base: strings.TrimRight(cfg.APIBaseURL, "/"),
		hc:   hc,
		log:  logging.OrNop(logger).With(logging.Component("platform")),
	}
}

// AuthorizeURL returns the consent URL the user is sent to, carrying state
// back to the callback unchanged.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades a one-time authorization code for an access
// credential.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return "", fmt.Errorf("platform: exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("platform: exchange returned no access token")
	}
	return tok.AccessToken, nil
}

// ListSites returns every site the credential is authorized for.
func (c *Client) ListSites(ctx context.Context, token string) ([]model.Site, error) {
	var out struct {
		Sites []model.Site `json:"sites"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/v2/sites", nil, &out); err != nil {
		return nil, err
	}
	return out.Sites, nil
}

// ListPages returns the pages of a site.
func (c *Client) ListPages(ctx context.Context, token, siteID string) ([]model.Page, error) {
	var out struct {
		Pages []model.Page `json:"pages"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/v2/sites/"+url.PathEscape(siteID)+"/pages", nil, &out); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Introspect reports what the credential is authorized for.
func (c *Client) Introspect(ctx context.Context, token string) (model.Authorization, error) {
	var out struct {
		Authorization struct {
			AuthorizedTo model.Authorization `json:"authorizedTo"`
		} `json:"authorization"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/v2/token/introspect", nil, &out); err != nil {
		return model.Authorization{}, err
	}
	return out.Authorization.AuthorizedTo, nil
}

// ResolveIdentity resolves a designer identity assertion into the principal
// it was issued to.  The call is authorized by a site credential, which
// proves the assertion comes from an authorized site.
func (c *Client) ResolveIdentity(ctx context.Context, token, assertion string) (model.Principal, error) {
	var p model.Principal
	body := map[string]string{"idToken": assertion}
	if err := c.do(ctx, token, http.MethodPost, "/beta/token/resolve", body, &p); err != nil {
		return model.Principal{}, err
	}
	if p.ID == "" {
		return model.Principal{}, errors.New("platform: identity response has no user id")
	}
	return p, nil
}

// CustomCode reads the code list of a target.  A target without custom code
// is reported as KindNotFound.
func (c *Client) CustomCode(ctx context.Context, token string, t model.Target) Result[model.CodeList] {
	path, err := customCodePath(t)
	if err != nil {
		return Failed[model.CodeList](err)
	}
	var out model.CodeList
	err = c.do(ctx, token, http.MethodGet, path, nil, &out)
	return resultOf(out, err)
}

// PutCustomCode replaces the whole code list of a target.
func (c *Client) PutCustomCode(ctx context.Context, token string, t model.Target, scripts []model.ScriptRef) (model.CodeList, error) {
	path, err := customCodePath(t)
	if err != nil {
		return model.CodeList{}, err
	}
	if scripts == nil {
		scripts = []model.ScriptRef{}
	}
	var out model.CodeList
	err = c.do(ctx, token, http.MethodPut, path, model.CodeList{Scripts: scripts}, &out)
	return out, err
}

// DeleteCustomCode removes every script from a target.
func (c *Client) DeleteCustomCode(ctx context.Context, token string, t model.Target) error {
	path, err := customCodePath(t)
	if err != nil {
		return err
	}
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}

// ListRegisteredScripts returns the scripts registered on a site.
func (c *Client) ListRegisteredScripts(ctx context.Context, token, siteID string) ([]model.RegisteredScript, error) {
	var out struct {
		RegisteredScripts []model.RegisteredScript `json:"registeredScripts"`
	}
	path := "/v2/sites/" + url.PathEscape(siteID) + "/registered_scripts"
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.RegisteredScripts, nil
}

// RegisterInline registers a script whose source is stored by the platform.
func (c *Client) RegisterInline(ctx context.Context, token, siteID string, s model.RegisteredScript) (model.RegisteredScript, error) {
	return c.register(ctx, token, siteID, "inline", s)
}

// RegisterHosted registers a script served from s.HostedLocation.
// s.IntegrityHash must already be set.
func (c *Client) RegisterHosted(ctx context.Context, token, siteID string, s model.RegisteredScript) (model.RegisteredScript, error) {
	return c.register(ctx, token, siteID, "hosted", s)
}

func (c *Client) register(ctx context.Context, token, siteID, kind string, s model.RegisteredScript) (model.RegisteredScript, error) {
	var out model.RegisteredScript
	path := "/v2/sites/" + url.PathEscape(siteID) + "/registered_scripts/" + kind
	err := c.do(ctx, token, http.MethodPost, path, s, &out)
	return out, err
}

func customCodePath(t model.Target) (string, error) {
	switch t.Type {
	case model.TargetSite:
		return "/v2/sites/" + url.PathEscape(t.ID) + "/custom_code", nil
	case model.TargetPage:
		return "/v2/pages/" + url.PathEscape(t.ID) + "/custom_code", nil
	default:
		return "", fmt.Errorf("%w: type %q", model.ErrInvalidTarget, t.Type)
	}
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.hc)
}

// do sends one authenticated JSON request.  Non-2xx answers become
// *APIError.
func (c *Client) do(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("platform: encode %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := oauth2.NewClient(c.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
		if resp.StatusCode != http.StatusNotFound {
			c.log.Warn("platform call failed",
				logging.Method(method), logging.Path(path), logging.Status(resp.StatusCode),
				zap.String("body", apiErr.Body))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("platform: decode %s: %w", path, err)
	}
	return nil
}
