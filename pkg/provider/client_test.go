package provider

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/metrics"
)

func testConfig(authority string) Config {
	return Config{
		Authority:      authority,
		Realm:          "demo",
		ClientID:       "gateway",
		ClientSecret:   "secret",
		DefaultRole:    "user",
		RequestTimeout: 5 * time.Second,
	}
}

func TestEndpoints(t *testing.T) {
	e := NewEndpoints(testConfig("https://sso.example.com/"))

	tests := []struct {
		name string
		got  Endpoint
		want string
	}{
		{"token", e.Token(), "https://sso.example.com/realms/demo/protocol/openid-connect/token"},
		{"revoke", e.Revoke(), "https://sso.example.com/realms/demo/protocol/openid-connect/revoke"},
		{"introspect", e.Introspect(), "https://sso.example.com/realms/demo/protocol/openid-connect/token/introspect"},
		{"users", e.Users(), "https://sso.example.com/admin/realms/demo/users"},
		{"user", e.User("42"), "https://sso.example.com/admin/realms/demo/users/42"},
		{"role", e.Role("power user"), "https://sso.example.com/admin/realms/demo/roles/power%20user"},
		{"role_mapping", e.RoleMapping("42"), "https://sso.example.com/admin/realms/demo/users/42/role-mappings/realm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got.URL)
			assert.Equal(t, tt.name, tt.got.Name)
		})
	}
}

func TestPostFormSendsFormAndReturnsRawResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	m := metrics.New(prometheus.NewRegistry())
	client := NewClient(testConfig(server.URL), WithMetrics(m))

	resp, err := client.PostForm(context.Background(), client.Endpoints().Token(), url.Values{"grant_type": {"password"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, resp.IsSuccess())
	assert.JSONEq(t, `{"error":"invalid_grant"}`, string(resp.Body))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderRequestDuration))
}

func TestPostJSONSendsBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "alice", payload["username"])
		w.Header().Set("Location", "http://"+r.Host+r.URL.Path+"/abc-123")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	resp, err := client.PostJSON(context.Background(), client.Endpoints().Users(), "admin-token", map[string]string{"username": "alice"})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "abc-123", UserIDFromLocation(resp.Location()))
}

func TestGetAndDelete(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Get(context.Background(), client.Endpoints().Role("user"), "tkn")
	require.NoError(t, err)
	_, err = client.Delete(context.Background(), client.Endpoints().User("1"), "tkn")
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodGet, http.MethodDelete}, methods)
}

func TestTransportFailureIsProviderUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	authority := server.URL
	server.Close()

	client := NewClient(testConfig(authority))
	resp, err := client.PostForm(context.Background(), client.Endpoints().Token(), url.Values{})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeProviderUnavailable))
}

func TestCancelledContextIsProviderUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(testConfig(server.URL))
	_, err := client.Get(ctx, client.Endpoints().Role("user"), "tkn")
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeProviderUnavailable))
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestUserIDFromLocation(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"http://kc/admin/realms/demo/users/6f1c", "6f1c"},
		{"http://kc/admin/realms/demo/users/6f1c/", "6f1c"},
		{"/admin/realms/demo/users/abc", "abc"},
		{"", ""},
		{"http://kc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, UserIDFromLocation(tt.location))
		})
	}
}
