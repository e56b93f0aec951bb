package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/designer-bridge/internal/handler"
	"github.com/iliyamo/designer-bridge/internal/model"
)

type denyAll struct{}

func (denyAll) Authenticate(context.Context, string) (*model.Principal, string, bool) {
	return nil, "", false
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	e := echo.New()
	api := Protected(e, denyAll{})
	RegisterCustomCode(api, handler.NewCustomCodeHandler(nil, nil, nil, nil))
	RegisterSites(api, handler.NewSitesHandler(nil, nil), nil)

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/custom-code/status?scriptId=a&targetType=site&targetId=s1"},
		{http.MethodPost, "/api/custom-code/apply"},
		{http.MethodPost, "/api/custom-code/remove"},
		{http.MethodDelete, "/api/custom-code/site/s1"},
		{http.MethodGet, "/api/custom-code/register?siteId=s1"},
		{http.MethodPost, "/api/custom-code/register"},
		{http.MethodGet, "/api/sites"},
		{http.MethodGet, "/api/sites/s1/pages"},
	} {
		req := httptest.NewRequest(r.method, r.path, nil)
		req.Header.Set("Authorization", "Bearer whatever")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String(), r.path)
	}
}

func TestDevRoutesClosedOutsideDevelopment(t *testing.T) {
	e := echo.New()
	RegisterDev(e, handler.NewAdminHandler(nil, nil), false)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dev/clear", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
