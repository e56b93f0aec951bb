package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/designer-bridge/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthorizeURL: srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/access_token",
		APIBaseURL:   srv.URL,
		Scopes:       []string{"sites:read", "custom_code:write"},
		HTTPClient:   srv.Client(),
	}, nil)
}

func TestAuthorizeURLCarriesStateAndScopes(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	u, err := url.Parse(c.AuthorizeURL("webflow_designer"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "/oauth/authorize", u.Path)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "webflow_designer", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "sites:read custom_code:write", q.Get("scope"))
}

func TestExchangeCodeSendsClientCredentialsInBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"wf-token","token_type":"bearer"}`)
	})
	c := newTestClient(t, mux)

	tok, err := c.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "wf-token", tok)
}

func TestExchangeCodeRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.ExchangeCode(context.Background(), "used-code")
	assert.Error(t, err)
}

func TestListSitesSendsBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/sites", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer wf-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"sites":[{"id":"s1","displayName":"One","shortName":"one"},{"id":"s2","shortName":"two"}]}`)
	})
	c := newTestClient(t, mux)

	sites, err := c.ListSites(context.Background(), "wf-token")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "s1", sites[0].ID)
	assert.Equal(t, "one", sites[0].ShortName)
}

func TestIntrospect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"authorization":{"authorizedTo":{"siteIds":["s1"],"workspaceIds":["w1"],"userIds":[]}}}`)
	})
	c := newTestClient(t, mux)

	auth, err := c.Introspect(context.Background(), "wf-token")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, auth.SiteIDs)
	assert.Equal(t, []string{"w1"}, auth.WorkspaceIDs)
}

func TestResolveIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/beta/token/resolve", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["idToken"] != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":"u1","email":"a@example.com","firstName":"Alice","lastName":"L"}`)
	})
	c := newTestClient(t, mux)

	p, err := c.ResolveIdentity(context.Background(), "wf-token", "good")
	require.NoError(t, err)
	assert.Equal(t, model.Principal{ID: "u1", DisplayName: "Alice", Email: "a@example.com"}, p)

	_, err = c.ResolveIdentity(context.Background(), "wf-token", "bad")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestCustomCodeResultKinds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/sites/s1/custom_code", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"scripts":[{"id":"scr1","location":"header","version":"1.0.0"}]}`)
	})
	mux.HandleFunc("/v2/pages/p-missing/custom_code", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v2/pages/p-broken/custom_code", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "upstream exploded")
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	ok := c.CustomCode(ctx, "wf-token", model.SiteTarget("s1"))
	require.Equal(t, KindOK, ok.Kind)
	assert.Equal(t, []model.ScriptRef{{ID: "scr1", Location: model.LocationHeader, Version: "1.0.0"}}, ok.Value.Scripts)

	missing := c.CustomCode(ctx, "wf-token", model.PageTarget("p-missing"))
	assert.Equal(t, KindNotFound, missing.Kind)

	broken := c.CustomCode(ctx, "wf-token", model.PageTarget("p-broken"))
	require.Equal(t, KindError, broken.Kind)
	assert.False(t, IsNotFound(broken.Err))
	assert.NotContains(t, broken.Err.Error(), "exploded")

	invalid := c.CustomCode(ctx, "wf-token", model.Target{Type: "folder", ID: "x"})
	require.Equal(t, KindError, invalid.Kind)
	assert.ErrorIs(t, invalid.Err, model.ErrInvalidTarget)
}

func TestPutAndDeleteCustomCode(t *testing.T) {
	var got model.CodeList
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/pages/p1/custom_code", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(got)
		case http.MethodDelete:
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	scripts := []model.ScriptRef{{ID: "scr1", Location: model.LocationFooter, Version: "2"}}
	out, err := c.PutCustomCode(ctx, "wf-token", model.PageTarget("p1"), scripts)
	require.NoError(t, err)
	assert.Equal(t, scripts, got.Scripts)
	assert.Equal(t, scripts, out.Scripts)

	require.NoError(t, c.DeleteCustomCode(ctx, "wf-token", model.PageTarget("p1")))
	assert.True(t, deleted)
}

func TestRegisteredScripts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/sites/s1/registered_scripts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"registeredScripts":[{"id":"scr1","displayName":"Analytics","version":"1.0.0","canCopy":true}]}`)
	})
	mux.HandleFunc("/v2/sites/s1/registered_scripts/hosted", func(w http.ResponseWriter, r *http.Request) {
		var in model.RegisteredScript
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "sha384-abc", in.IntegrityHash)
		in.ID = "scr2"
		_ = json.NewEncoder(w).Encode(in)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	list, err := c.ListRegisteredScripts(ctx, "wf-token", "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Analytics", list[0].DisplayName)

	reg, err := c.RegisterHosted(ctx, "wf-token", "s1", model.RegisteredScript{
		DisplayName: "CDN", Version: "1.0.0", HostedLocation: "https://cdn.example.com/a.js", IntegrityHash: "sha384-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "scr2", reg.ID)
}
