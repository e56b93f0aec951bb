package client

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

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/session"
)

// ErrUnauthorized is returned when the bridge rejects a session token or an
// identity assertion.
var ErrUnauthorized = errors.New("unauthorized")

// ResponseError is a non-2xx answer from the bridge.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("bridge answered %d: %s", e.StatusCode, e.Message)
}

// APIClient calls the bridge's HTTP surface.
type APIClient struct {
	base string
	hc   *http.Client
	log  *zap.Logger
}

// NewAPIClient targets the bridge at baseURL.  A nil hc uses a 30s timeout.
func NewAPIClient(baseURL string, hc *http.Client, logger *zap.Logger) *APIClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
		log:  logging.OrNop(logger).With(logging.Component("bridge_client")),
	}
}

// ExchangeToken trades an identity assertion for a session token.  The
// principal is read from the token's payload without checking the
// signature; only the server holds the key.
func (c *APIClient) ExchangeToken(ctx context.Context, assertion, targetID string) (SessionRecord, error) {
	in := map[string]string{"idToken": assertion, "siteId": targetID}
	var out struct {
		SessionToken string `json:"sessionToken"`
		Exp          int64  `json:"exp"`
	}
	if err := c.do(ctx, "", http.MethodPost, "/api/auth/token", in, &out); err != nil {
		return SessionRecord{}, err
	}

	var claims session.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(out.SessionToken, &claims); err != nil {
		return SessionRecord{}, fmt.Errorf("decode session token: %w", err)
	}
	exp := time.Unix(out.Exp, 0)
	if out.Exp == 0 && claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return SessionRecord{
		Token:     out.SessionToken,
		Principal: claims.User,
		ExpiresAt: exp,
		TargetID:  targetID,
	}, nil
}

// Status asks where scriptID is applied.  For pages, siteID may be empty.
func (c *APIClient) Status(ctx context.Context, token, scriptID string, tt model.TargetType, siteID string, ids []string) (map[string]model.StatusEntry, error) {
	q := url.Values{}
	q.Set("scriptId", scriptID)
	q.Set("targetType", string(tt))
	switch tt {
	case model.TargetSite:
		q.Set("targetId", siteID)
	default:
		q.Set("targetIds", strings.Join(ids, ","))
		if siteID != "" {
			q.Set("siteId", siteID)
		}
	}
	var out struct {
		Result map[string]model.StatusEntry `json:"result"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/api/custom-code/status?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Apply adds or replaces a script on one target.
func (c *APIClient) Apply(ctx context.Context, token string, app model.CodeApplication) (model.CodeList, error) {
	var out struct {
		Result model.CodeList `json:"result"`
	}
	err := c.do(ctx, token, http.MethodPost, "/api/custom-code/apply", app, &out)
	return out.Result, err
}

// Remove drops a script from one target.
func (c *APIClient) Remove(ctx context.Context, token string, target model.Target, scriptID string) (model.CodeList, error) {
	in := map[string]string{"targetType": string(target.Type), "targetId": target.ID, "scriptId": scriptID}
	var out struct {
		Result model.CodeList `json:"result"`
	}
	err := c.do(ctx, token, http.MethodPost, "/api/custom-code/remove", in, &out)
	return out.Result, err
}

func (c *APIClient) do(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
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

	hc := c.hc
	if token != "" {
		hc = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.hc),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&e)
		c.log.Debug("bridge call failed", logging.Method(method), logging.Path(path), logging.Status(resp.StatusCode))
		return &ResponseError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
