package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vapvarun/fymodules"
	"github.com/vapvarun/fymodules/health"
)

var admin = fymodules.Actor{ID: "admin", Capabilities: []string{fymodules.CapabilityManageModules}}

type fixture struct {
	server   *httptest.Server
	registry *fymodules.Registry
}

func newFixture(t *testing.T, cfg RouterConfig) *fixture {
	t.Helper()
	reg := fymodules.NewRegistry(nil, nil)
	reg.Register(fymodules.Descriptor{ID: "a", Name: "Alpha"}, nil)
	reg.Register(fymodules.Descriptor{ID: "b", Name: "Beta", Dependencies: []string{"a"}}, nil)
	reg.Register(fymodules.Descriptor{
		ID:   "broken",
		Name: "Broken",
		DefaultSettings: []fymodules.Setting{
			{Key: "limit", Default: 10, Schema: map[string]any{"minimum": 1}},
		},
	}, fymodules.Hooks{Activate: func(context.Context) error { return errors.New("boom") }})

	authz := fymodules.AuthorizerFunc(func(_ context.Context, actor fymodules.Actor, _ string) (bool, error) {
		return actor.HasCapability(fymodules.CapabilityManageModules), nil
	})
	cfg.Manager = fymodules.NewManager(reg, authz, nil)
	cfg.BasePath = "/api"
	if cfg.Actors == nil && cfg.Actor.ID == "" {
		cfg.Actor = admin
	}

	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(srv.Close)
	return &fixture{server: srv, registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (int, Response) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestToggle(t *testing.T) {
	f := newFixture(t, RouterConfig{})

	status, resp := f.do(t, http.MethodPost, "/api/modules/b/toggle", `{"enabled":true}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, resp.Success)
	assert.Equal(t, fymodules.KindDependency, resp.Reason)
	assert.Equal(t, []string{"a"}, resp.Blocking)

	status, resp = f.do(t, http.MethodPost, "/api/modules/a/toggle", `{"enabled":true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Module)
	assert.True(t, resp.Module.Enabled)
	assert.True(t, resp.Module.Loaded)

	status, _ = f.do(t, http.MethodPost, "/api/modules/b/toggle", `{"enabled":true}`)
	assert.Equal(t, http.StatusOK, status)

	status, resp = f.do(t, http.MethodPost, "/api/modules/a/toggle", `{"enabled":false}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, []string{"b"}, resp.Blocking)
	assert.Contains(t, resp.Detail, "Beta")
	assert.True(t, f.registry.IsEnabled("a"))
}

func TestToggle_ActivationWarning(t *testing.T) {
	f := newFixture(t, RouterConfig{})

	status, resp := f.do(t, http.MethodPost, "/api/modules/broken/toggle", `{"enabled":true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Warning)
	assert.Equal(t, "boom", resp.Warning.Message)
	assert.Equal(t, fymodules.PhaseActivate, resp.Warning.Phase)
	require.NotNil(t, resp.Module)
	assert.True(t, resp.Module.Enabled)
	assert.False(t, resp.Module.Loaded)
	require.NotNil(t, resp.Module.LastError)
}

func TestToggle_BadRequests(t *testing.T) {
	f := newFixture(t, RouterConfig{})

	status, resp := f.do(t, http.MethodPost, "/api/modules/a/toggle", `{`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ReasonInvalidRequest, resp.Reason)

	status, resp = f.do(t, http.MethodPost, "/api/modules/a/toggle", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ReasonInvalidRequest, resp.Reason)

	status, resp = f.do(t, http.MethodPost, "/api/modules/ghost/toggle", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, fymodules.KindNotFound, resp.Reason)
}

func TestForbiddenActor(t *testing.T) {
	f := newFixture(t, RouterConfig{Actor: fymodules.Actor{ID: "visitor"}})

	status, resp := f.do(t, http.MethodPost, "/api/modules/a/toggle", `{"enabled":true}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, fymodules.KindForbidden, resp.Reason)
	assert.False(t, f.registry.IsEnabled("a"))

	status, resp = f.do(t, http.MethodGet, "/api/modules", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, resp.Modules)
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t, RouterConfig{})

	status, resp := f.do(t, http.MethodGet, "/api/modules", "")
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Modules, 3)
	assert.Equal(t, "a", resp.Modules[0].ID)
	assert.Equal(t, []string{"b"}, resp.Modules[0].Dependents)
	assert.Equal(t, []string{"a"}, resp.Modules[1].MissingDependencies)

	status, resp = f.do(t, http.MethodGet, "/api/modules/b", "")
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Module)
	assert.Equal(t, "Beta", resp.Module.Name)

	status, _ = f.do(t, http.MethodGet, "/api/modules/ghost", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t, RouterConfig{})

	status, resp := f.do(t, http.MethodPut, "/api/modules/broken/settings", `{"limit": 25}`)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Settings)

	_, got := f.do(t, http.MethodGet, "/api/modules/broken", "")
	require.NotNil(t, got.Module)
	v, ok := got.Module.Settings.Get("limit")
	require.True(t, ok)
	assert.EqualValues(t, 25, v)

	status, resp = f.do(t, http.MethodPut, "/api/modules/broken/settings", `{"limit": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, fymodules.KindInvalidSettings, resp.Reason)

	status, resp = f.do(t, http.MethodPut, "/api/modules/broken/settings", `{"unknown": true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = f.do(t, http.MethodPost, "/api/modules/broken/reset-settings", "")
	assert.Equal(t, http.StatusOK, status)

	st, err := f.registry.State(context.Background(), "broken")
	require.NoError(t, err)
	limit, _ := st.Settings.Get("limit")
	assert.Equal(t, 10, limit)
}

func TestRetryEndpoint(t *testing.T) {
	f := newFixture(t, RouterConfig{})

	status, resp := f.do(t, http.MethodPost, "/api/modules/broken/toggle", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Warning)

	status, resp = f.do(t, http.MethodPost, "/api/modules/broken/retry", "")
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Warning, "the hook still fails")
}

type fakeAuth struct {
	actors map[string]fymodules.Actor
}

func (a fakeAuth) ParseToken(token string) (fymodules.Actor, error) {
	actor, ok := a.actors[token]
	if !ok {
		return fymodules.Actor{}, errors.New("unknown token")
	}
	return actor, nil
}

func (a fakeAuth) IssueNonce(actorID string) (string, time.Time, error) {
	return "nonce-" + actorID, time.Now().Add(time.Minute), nil
}

func (a fakeAuth) VerifyNonce(nonce, actorID string) error {
	if nonce != "nonce-"+actorID {
		return errors.New("bad nonce")
	}
	return nil
}

func TestAuthenticationAndNonce(t *testing.T) {
	auth := fakeAuth{actors: map[string]fymodules.Actor{"tok-admin": admin}}
	f := newFixture(t, RouterConfig{Actors: auth, Nonces: auth})

	status, resp := f.do(t, http.MethodGet, "/api/modules", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, ReasonUnauthenticated, resp.Reason)

	status, _ = f.do(t, http.MethodGet, "/api/modules", "", "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp = f.do(t, http.MethodGet, "/api/nonce", "", "Authorization", "Bearer tok-admin")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "nonce-admin", resp.Nonce)

	status, resp = f.do(t, http.MethodPost, "/api/modules/a/toggle", `{"enabled":true}`,
		"Authorization", "Bearer tok-admin")
	assert.Equal(t, http.StatusForbidden, status, "missing nonce")
	assert.False(t, f.registry.IsEnabled("a"))

	status, resp = f.do(t, http.MethodPost, "/api/modules/a/toggle", `{"enabled":true}`,
		"Authorization", "Bearer tok-admin", NonceHeader, "nonce-admin")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.True(t, f.registry.IsEnabled("a"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, RouterConfig{})
	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz_ReportsQuarantinedModules(t *testing.T) {
	agg := health.NewAggregator(time.Second)
	f := newFixture(t, RouterConfig{Health: agg})
	require.NoError(t, agg.RegisterCheck(health.NewModulesChecker(f.registry)))

	status, _ := f.do(t, http.MethodPost, "/api/modules/broken/toggle", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body health.AggregatedStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, health.StatusDegraded, body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "modules", body.Checks[0].Name)

	require.NoError(t, agg.RegisterCheck(health.NewBasicChecker("store", func(context.Context) error {
		return errors.New("down")
	})))
	resp2, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fymodules.KindInternal))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fymodules.KindActivation))
}
