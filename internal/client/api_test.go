package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/session"
	"github.com/iliyamo/designer-bridge/internal/status"
)

func newBridge(t *testing.T, statusCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	issuer, err := session.NewService("test-secret", nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["idToken"] != "good-assertion" || in["siteId"] != "s1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		tok, err := issuer.Issue(model.Principal{ID: "u1", DisplayName: "Ada", Email: "ada@example.com"})
		assert.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionToken": tok.Value, "exp": tok.ExpiresAt.Unix()})
	})
	mux.HandleFunc("/api/custom-code/status", func(w http.ResponseWriter, r *http.Request) {
		statusCalls.Add(1)
		if r.Header.Get("Authorization") == "Bearer revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		res := map[string]model.StatusEntry{}
		switch q.Get("targetType") {
		case "site":
			res[q.Get("targetId")] = model.StatusEntry{IsApplied: true, Location: model.LocationHeader}
		case "page":
			assert.Equal(t, "p1,p2", q.Get("targetIds"))
			res["p1"] = model.NotApplied
			res["p2"] = model.StatusEntry{IsApplied: true, Location: model.LocationFooter}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": res})
	})
	mux.HandleFunc("/api/custom-code/apply", func(w http.ResponseWriter, r *http.Request) {
		var app model.CodeApplication
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&app))
		if app.Location == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Invalid request"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": model.CodeList{Scripts: []model.ScriptRef{app.Ref()}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeTokenDecodesPrincipal(t *testing.T) {
	var calls atomic.Int32
	api := NewAPIClient(newBridge(t, &calls).URL, nil, nil)

	rec, err := api.ExchangeToken(context.Background(), "good-assertion", "s1")
	require.NoError(t, err)
	assert.Equal(t, model.Principal{ID: "u1", DisplayName: "Ada", Email: "ada@example.com"}, rec.Principal)
	assert.Equal(t, "s1", rec.TargetID)
	assert.WithinDuration(t, time.Now().Add(session.DefaultLifetime), rec.ExpiresAt, time.Minute)

	_, err = api.ExchangeToken(context.Background(), "forged", "s1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestApplyErrors(t *testing.T) {
	var calls atomic.Int32
	api := NewAPIClient(newBridge(t, &calls).URL, nil, nil)

	list, err := api.Apply(context.Background(), "tok", model.CodeApplication{
		ScriptID: "cc1", TargetType: model.TargetSite, TargetID: "s1", Location: model.LocationFooter, Version: "1",
	})
	require.NoError(t, err)
	require.Len(t, list.Scripts, 1)

	_, err = api.Apply(context.Background(), "tok", model.CodeApplication{ScriptID: "cc1"})
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.Equal(t, "Invalid request", re.Message)
}

func TestStatusFetcherDrivesEngine(t *testing.T) {
	var calls atomic.Int32
	api := NewAPIClient(newBridge(t, &calls).URL, nil, nil)
	m := NewManager(NewMemoryStore(), api, func(context.Context) (string, string, error) {
		return "good-assertion", "s1", nil
	}, nil)

	engine := status.NewEngine(status.NewMemoryCache(5*time.Minute), status.DefaultOptions(), nil)
	f := NewStatusFetcher(api, m)

	got, err := engine.GetStatus(context.Background(), f, "cc1", "s1", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.StatusEntry{
		"s1": {IsApplied: true, Location: model.LocationHeader},
		"p1": model.NotApplied,
		"p2": {IsApplied: true, Location: model.LocationFooter},
	}, got)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateAuthenticated, m.State())

	_, err = engine.GetStatus(context.Background(), f, "cc1", "s1", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "second lookup is served from cache")
}

func TestStatusFetcherDropsRejectedSession(t *testing.T) {
	var calls atomic.Int32
	api := NewAPIClient(newBridge(t, &calls).URL, nil, nil)
	store := NewMemoryStore()
	require.NoError(t, store.Save(SessionRecord{Token: "revoked", ExpiresAt: time.Now().Add(time.Hour)}))
	m := NewManager(store, api, func(context.Context) (string, string, error) {
		return "good-assertion", "s1", nil
	}, nil)
	f := NewStatusFetcher(api, m)

	_, err := f.FetchStatus(context.Background(), "cc1", []model.Target{model.SiteTarget("s1")})
	assert.ErrorIs(t, err, ErrUnauthorized)
	rec, _ := store.Load()
	assert.Nil(t, rec)

	got, err := f.FetchStatus(context.Background(), "cc1", []model.Target{model.SiteTarget("s1")})
	require.NoError(t, err)
	assert.True(t, got["s1"].IsApplied)
}
