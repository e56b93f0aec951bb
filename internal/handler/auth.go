package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/exchange"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/session"
)

// Exchanger is the authorization exchange used by AuthHandler.
type Exchanger interface {
	AuthorizeURL(state string) string
	ExchangeAuthorizationCode(ctx context.Context, code, state string) (exchange.Outcome, error)
	IssueSession(ctx context.Context, assertion, targetID string) (session.Token, model.Principal, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Exchange Exchanger
	Log      *zap.Logger
}

func NewAuthHandler(x Exchanger, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Exchange: x, Log: log}
}

// ----- DTOs -----

// tokenReq accepts the designer's field names and the generic ones.
type tokenReq struct {
	IDToken           string `json:"idToken"`
	SiteID            string `json:"siteId"`
	IdentityAssertion string `json:"identityAssertion"`
	TargetID          string `json:"targetId"`
}

type tokenResp struct {
	SessionToken string `json:"sessionToken"`
	Exp          int64  `json:"exp"`
}

// popupPage tells the opening designer window that authorization finished
// and closes the popup.
const popupPage = `<!DOCTYPE html>
<html>
  <head>
    <title>Authorization Complete</title>
  </head>
  <body>
    <script>
      window.opener && window.opener.postMessage('authComplete', '*');
      window.close();
    </script>
  </body>
</html>`

// Authorize redirects to the platform consent page, forwarding state.
func (h *AuthHandler) Authorize(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.Exchange.AuthorizeURL(c.QueryParam("state")))
}

// Callback finishes the OAuth round trip.
func (h *AuthHandler) Callback(c echo.Context) error {
	out, err := h.Exchange.ExchangeAuthorizationCode(c.Request().Context(), c.QueryParam("code"), c.QueryParam("state"))
	switch {
	case errors.Is(err, exchange.ErrMissingCode):
		return badRequest(c, "No code provided")
	case err != nil:
		// already logged with its cause by the exchange
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Authorization failed"})
	}

	switch out.Kind {
	case exchange.OutcomePopup:
		return c.HTML(http.StatusOK, popupPage)
	case exchange.OutcomeRedirect:
		return c.Redirect(http.StatusFound, out.RedirectURL)
	default:
		return c.NoContent(http.StatusNoContent)
	}
}

// Token trades a designer identity assertion for a session token.
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	assertion := firstNonEmpty(req.IDToken, req.IdentityAssertion)
	target := firstNonEmpty(req.SiteID, req.TargetID)
	if assertion == "" || target == "" {
		return badRequest(c, "Missing required fields")
	}

	tok, _, err := h.Exchange.IssueSession(c.Request().Context(), assertion, target)
	switch {
	case errors.Is(err, exchange.ErrUnauthorized):
		return unauthorized(c)
	case err != nil:
		return internalError(c, h.Log, "issue session failed", err)
	}
	return c.JSON(http.StatusOK, tokenResp{SessionToken: tok.Value, Exp: tok.ExpiresAt.Unix()})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
