package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/designer-bridge/internal/customcode"
	"github.com/iliyamo/designer-bridge/internal/exchange"
	"github.com/iliyamo/designer-bridge/internal/middleware"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/platform"
	"github.com/iliyamo/designer-bridge/internal/session"
	"github.com/iliyamo/designer-bridge/internal/status"
)

// fakeExchanger answers IssueSession from a fixed set of stored targets and
// accepted assertions.
type fakeExchanger struct {
	stored   map[string]bool
	accepted map[string]bool
	outcome  exchange.Outcome
	err      error
}

func (f *fakeExchanger) AuthorizeURL(state string) string {
	return "https://platform.test/oauth/authorize?state=" + state
}

func (f *fakeExchanger) ExchangeAuthorizationCode(_ context.Context, code, _ string) (exchange.Outcome, error) {
	if code == "" {
		return exchange.Outcome{}, exchange.ErrMissingCode
	}
	return f.outcome, f.err
}

func (f *fakeExchanger) IssueSession(_ context.Context, assertion, targetID string) (session.Token, model.Principal, error) {
	if !f.stored[targetID] || !f.accepted[assertion] {
		return session.Token{}, model.Principal{}, exchange.ErrUnauthorized
	}
	exp := time.Unix(1_700_086_400, 0)
	return session.Token{Value: "sess", ExpiresAt: exp}, model.Principal{ID: "u1"}, nil
}

// fakePlatform keeps code lists in memory.
type fakePlatform struct {
	mu    sync.Mutex
	lists map[string][]model.ScriptRef
	fail  map[string]bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{lists: map[string][]model.ScriptRef{}, fail: map[string]bool{}}
}

func (p *fakePlatform) CustomCode(_ context.Context, _ string, t model.Target) platform.Result[model.CodeList] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[t.ID] {
		return platform.Failed[model.CodeList](errors.New("boom"))
	}
	s, ok := p.lists[t.ID]
	if !ok {
		return platform.NotFound[model.CodeList]()
	}
	return platform.OK(model.CodeList{Scripts: append([]model.ScriptRef(nil), s...)})
}

func (p *fakePlatform) PutCustomCode(_ context.Context, _ string, t model.Target, scripts []model.ScriptRef) (model.CodeList, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists[t.ID] = scripts
	return model.CodeList{Scripts: scripts}, nil
}

func (p *fakePlatform) DeleteCustomCode(_ context.Context, _ string, t model.Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lists, t.ID)
	return nil
}

func (p *fakePlatform) ListRegisteredScripts(context.Context, string, string) ([]model.RegisteredScript, error) {
	return nil, nil
}

func (p *fakePlatform) RegisterInline(_ context.Context, _, _ string, s model.RegisteredScript) (model.RegisteredScript, error) {
	s.ID = "inline-1"
	return s, nil
}

func (p *fakePlatform) RegisterHosted(_ context.Context, _, _ string, s model.RegisteredScript) (model.RegisteredScript, error) {
	s.ID = "hosted-1"
	return s, nil
}

func (p *fakePlatform) ListSites(context.Context, string) ([]model.Site, error) {
	return []model.Site{{ID: "s1", DisplayName: "Site"}}, nil
}

func (p *fakePlatform) ListPages(context.Context, string, string) ([]model.Page, error) {
	return nil, errors.New("upstream down")
}

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, raw string) (*model.Principal, string, bool) {
	if raw != "good" {
		return nil, "", false
	}
	return &model.Principal{ID: "u1"}, "wf-token", true
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newCodeServer(p *fakePlatform) *echo.Echo {
	engine := status.NewEngine(status.NewMemoryCache(5*time.Minute), status.DefaultOptions(), nil)
	h := NewCustomCodeHandler(engine, customcode.NewService(p, engine, nil, nil), p, nil)

	e := echo.New()
	g := e.Group("/api", middleware.SessionAuth(fakeAuth{}))
	g.GET("/custom-code/status", h.Status)
	g.POST("/custom-code/apply", h.Apply)
	g.POST("/custom-code/remove", h.Remove)
	g.DELETE("/custom-code/:targetType/:targetId", h.Clear)
	g.GET("/custom-code/register", h.ListRegistered)
	g.POST("/custom-code/register", h.Register)
	return e
}

func TestToken(t *testing.T) {
	x := &fakeExchanger{
		stored:   map[string]bool{"abc123": true},
		accepted: map[string]bool{"valid-assertion": true},
	}
	e := echo.New()
	e.POST("/token", NewAuthHandler(x, nil).Token)

	cases := []struct {
		name string
		body string
		code int
		want string
	}{
		{"no stored credential", `{"identityAssertion":"valid-assertion","targetId":"zzz"}`, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"assertion rejected upstream", `{"identityAssertion":"forged","targetId":"abc123"}`, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"missing fields", `{"targetId":"abc123"}`, http.StatusBadRequest, `{"error":"Missing required fields"}`},
		{"designer field names", `{"idToken":"valid-assertion","siteId":"abc123"}`, http.StatusOK, `{"sessionToken":"sess","exp":1700086400}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/token", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestCallback(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		x        *fakeExchanger
		code     int
		location string
	}{
		{"missing code", "", &fakeExchanger{}, http.StatusBadRequest, ""},
		{"exchange failed", "?code=c", &fakeExchanger{err: exchange.ErrExchangeFailed}, http.StatusInternalServerError, ""},
		{"popup", "?code=c&state=webflow_designer", &fakeExchanger{outcome: exchange.Outcome{Kind: exchange.OutcomePopup}}, http.StatusOK, ""},
		{"redirect", "?code=c", &fakeExchanger{outcome: exchange.Outcome{Kind: exchange.OutcomeRedirect, RedirectURL: "https://dash.test/?workspace=w1"}}, http.StatusFound, "https://dash.test/?workspace=w1"},
		{"nothing to open", "?code=c", &fakeExchanger{}, http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/callback", NewAuthHandler(tc.x, nil).Callback)
			rec := do(e, http.MethodGet, "/callback"+tc.query, "")
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.location, rec.Header().Get("Location"))
		})
	}

	e := echo.New()
	e.GET("/callback", NewAuthHandler(&fakeExchanger{}, nil).Callback)
	rec := do(e, http.MethodGet, "/callback", "")
	assert.JSONEq(t, `{"error":"No code provided"}`, rec.Body.String())
}

func TestStatusPages(t *testing.T) {
	p := newFakePlatform()
	p.lists["p2"] = []model.ScriptRef{{ID: "cc1", Location: model.LocationFooter, Version: "1.0.0"}}
	e := newCodeServer(p)

	rec := do(e, http.MethodGet, "/api/custom-code/status?scriptId=cc1&targetType=page&targetIds=p1,p2,p3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":{
		"p1":{"isApplied":false},
		"p2":{"isApplied":true,"location":"footer"},
		"p3":{"isApplied":false}}}`, rec.Body.String())
}

func TestStatusValidation(t *testing.T) {
	e := newCodeServer(newFakePlatform())
	for name, q := range map[string]string{
		"no script": "?targetType=page&targetIds=p1",
		"no target": "?scriptId=cc1&targetType=page",
		"no type":   "?scriptId=cc1&targetIds=p1",
		"bad type":  "?scriptId=cc1&targetType=folder&targetId=x",
		"empty ids": "?scriptId=cc1&targetType=page&targetIds=,",
	} {
		rec := do(e, http.MethodGet, "/api/custom-code/status"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestApplyTwiceKeepsLatestLocation(t *testing.T) {
	p := newFakePlatform()
	e := newCodeServer(p)

	lookup := func() string {
		rec := do(e, http.MethodGet, "/api/custom-code/status?scriptId=cc1&targetType=site&targetId=s1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}
	apply := func(loc string) {
		rec := do(e, http.MethodPost, "/api/custom-code/apply",
			`{"scriptId":"cc1","targetType":"site","targetId":"s1","location":"`+loc+`","version":"1.0.0"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	assert.JSONEq(t, `{"result":{"s1":{"isApplied":false}}}`, lookup())
	apply("header")
	assert.JSONEq(t, `{"result":{"s1":{"isApplied":true,"location":"header"}}}`, lookup())
	apply("footer")
	assert.JSONEq(t, `{"result":{"s1":{"isApplied":true,"location":"footer"}}}`, lookup())
	assert.Len(t, p.lists["s1"], 1)

	rec := do(e, http.MethodPost, "/api/custom-code/remove", `{"targetType":"site","targetId":"s1","scriptId":"cc1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":{"s1":{"isApplied":false}}}`, lookup())
}

func TestApplyRejectsInvalidBody(t *testing.T) {
	e := newCodeServer(newFakePlatform())
	rec := do(e, http.MethodPost, "/api/custom-code/apply", `{"scriptId":"cc1","targetType":"site","targetId":"s1","location":"body","version":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyAcceptsMixedCaseEnums(t *testing.T) {
	p := newFakePlatform()
	e := newCodeServer(p)
	rec := do(e, http.MethodPost, "/api/custom-code/apply",
		`{"scriptId":"cc1","targetType":"Site","targetId":"s1","location":"HEADER","version":"1.0.0"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []model.ScriptRef{{ID: "cc1", Location: model.LocationHeader, Version: "1.0.0"}}, p.lists["s1"])
}

func TestClear(t *testing.T) {
	p := newFakePlatform()
	p.lists["p1"] = []model.ScriptRef{{ID: "a", Location: model.LocationHeader, Version: "1"}}
	e := newCodeServer(p)

	rec := do(e, http.MethodDelete, "/api/custom-code/page/p1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, p.lists, "p1")
}

func TestRegister(t *testing.T) {
	e := newCodeServer(newFakePlatform())

	rec := do(e, http.MethodPost, "/api/custom-code/register",
		`{"siteId":"s1","displayName":"Banner","version":"1.0.0","sourceCode":"console.log(1)"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"result":{"id":"inline-1","displayName":"Banner","version":"1.0.0","sourceCode":"console.log(1)","canCopy":true}}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/custom-code/register?siteId=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registeredScripts":[]}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/custom-code/register", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSites(t *testing.T) {
	h := NewSitesHandler(newFakePlatform(), nil)
	e := echo.New()
	g := e.Group("/api", middleware.SessionAuth(fakeAuth{}))
	g.GET("/sites", h.ListSites)
	g.GET("/sites/:siteId/pages", h.ListPages)

	rec := do(e, http.MethodGet, "/api/sites", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"s1"`)

	rec = do(e, http.MethodGet, "/api/sites/s1/pages", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

type clearCounter struct{ n int }

func (c *clearCounter) Clear(context.Context) error { c.n++; return nil }

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestAdminClearAndHealth(t *testing.T) {
	sites, users := &clearCounter{}, &clearCounter{}
	dropped := false
	e := echo.New()
	e.POST("/clear", NewAdminHandler(nil, func() { dropped = true }, sites, users).Clear)
	e.GET("/up", Health(pinger{}))
	e.GET("/down", Health(pinger{err: errors.New("gone")}))

	rec := do(e, http.MethodPost, "/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sites.n)
	assert.Equal(t, 1, users.n)
	assert.True(t, dropped)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/up", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/down", "").Code)
}
