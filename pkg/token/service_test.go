package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/provider"
	"github.com/tendant/idm-gateway/pkg/providertest"
)

func newRealmService(t *testing.T) (*providertest.Realm, *Service) {
	t.Helper()
	realm := providertest.New(t)
	realm.AddUser(providertest.User{Username: "alice", Password: "wonderland"})
	return realm, NewService(realm.Client(), realm.Config())
}

func TestLogin(t *testing.T) {
	realm, svc := newRealmService(t)

	pair, err := svc.Login(context.Background(), "alice", "wonderland")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 300, pair.ExpiresIn)

	calls := realm.CallsTo(providertest.RoutePasswordGrant)
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].Form.Get("username"))
	assert.Equal(t, realm.ClientID, calls[0].Form.Get("client_id"))
	assert.Equal(t, realm.ClientSecret, calls[0].Form.Get("client_secret"))
}

func TestLoginRejectedCarriesProviderBody(t *testing.T) {
	realm, svc := newRealmService(t)
	realm.Fail(providertest.RoutePasswordGrant, providertest.Failure{
		Status: http.StatusUnauthorized,
		Body:   `{"error":"invalid_grant"}`,
	})

	pair, err := svc.Login(context.Background(), "alice", "wrong")
	assert.Nil(t, pair)
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeAuthenticationFailed))
	assert.Equal(t, `{"error":"invalid_grant"}`, gwerrors.ProviderBody(err))
}

func TestLoginWrongPassword(t *testing.T) {
	_, svc := newRealmService(t)

	_, err := svc.Login(context.Background(), "alice", "nope")
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeAuthenticationFailed))
	assert.Contains(t, gwerrors.ProviderBody(err), "invalid_grant")
}

func TestLoginValidation(t *testing.T) {
	realm, svc := newRealmService(t)

	_, err := svc.Login(context.Background(), "", "pw")
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeInvalidInput))
	_, err = svc.Login(context.Background(), "alice", "")
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeInvalidInput))
	assert.Empty(t, realm.Calls())
}

func TestLoginUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	cfg := provider.Config{Authority: server.URL, Realm: "demo", ClientID: "c", ClientSecret: "s"}
	server.Close()

	_, err := NewService(provider.NewClient(cfg), cfg).Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeProviderUnavailable))
}

func TestLoginUnparseableSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()
	cfg := provider.Config{Authority: server.URL, Realm: "demo", ClientID: "c", ClientSecret: "s"}

	_, err := NewService(provider.NewClient(cfg), cfg).Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeBadProviderResponse))
}

func TestRefreshSendsRefreshTokenField(t *testing.T) {
	realm, svc := newRealmService(t)
	_, refresh := realm.IssueUserTokens("alice")

	pair, err := svc.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	calls := realm.CallsTo(providertest.RouteRefreshGrant)
	require.Len(t, calls, 1)
	assert.Equal(t, refresh, calls[0].Form.Get("refresh_token"))
	assert.Empty(t, calls[0].Form.Get("token"))
}

func TestRefreshNonSuccessNeverReturnsPair(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token is not active"}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized_client"}`},
		{"server error with token-shaped body", http.StatusInternalServerError, `{"access_token":"should-not-be-used"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			realm, svc := newRealmService(t)
			realm.Fail(providertest.RouteRefreshGrant, providertest.Failure{Status: tt.status, Body: tt.body})

			pair, err := svc.Refresh(context.Background(), "rt-anything")
			assert.Nil(t, pair)
			require.Error(t, err)
			assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeRefreshFailed))
			assert.Equal(t, tt.body, gwerrors.ProviderBody(err))
		})
	}
}

func TestRefreshEmptyAccessTokenFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"","refresh_token":"x","expires_in":1}`))
	}))
	defer server.Close()
	cfg := provider.Config{Authority: server.URL, Realm: "demo", ClientID: "c", ClientSecret: "s"}

	pair, err := NewService(provider.NewClient(cfg), cfg).Refresh(context.Background(), "rt")
	assert.Nil(t, pair)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeRefreshFailed))
}

func TestRefreshTransportFailureIsRefreshFailed(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	cfg := provider.Config{Authority: server.URL, Realm: "demo", ClientID: "c", ClientSecret: "s"}
	server.Close()

	_, err := NewService(provider.NewClient(cfg), cfg).Refresh(context.Background(), "rt")
	require.Error(t, err)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeRefreshFailed))
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeProviderUnavailable))
	assert.Equal(t, gwerrors.ErrCodeRefreshFailed, gwerrors.GetCode(err))
}

func TestRefreshReusePassesThroughProviderPolicy(t *testing.T) {
	t.Run("reusable refresh tokens", func(t *testing.T) {
		realm, svc := newRealmService(t)
		_, refresh := realm.IssueUserTokens("alice")

		_, err := svc.Refresh(context.Background(), refresh)
		require.NoError(t, err)
		_, err = svc.Refresh(context.Background(), refresh)
		assert.NoError(t, err)
	})

	t.Run("single use refresh tokens", func(t *testing.T) {
		realm, svc := newRealmService(t)
		realm.RevokeRefreshOnUse = true
		_, refresh := realm.IssueUserTokens("alice")

		_, err := svc.Refresh(context.Background(), refresh)
		require.NoError(t, err)
		pair, err := svc.Refresh(context.Background(), refresh)
		assert.Nil(t, pair)
		assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeRefreshFailed))
		assert.Contains(t, gwerrors.ProviderBody(err), "Token is not active")
	})
}

func TestLogoutRevokesBoth(t *testing.T) {
	realm, svc := newRealmService(t)
	access, refresh := realm.IssueUserTokens("alice")

	require.NoError(t, svc.Logout(context.Background(), access, refresh))

	assert.False(t, realm.TokenActive(access))
	assert.False(t, realm.TokenActive(refresh))

	accessCalls := realm.CallsTo(providertest.RouteRevokeAccess)
	refreshCalls := realm.CallsTo(providertest.RouteRevokeRefresh)
	require.Len(t, accessCalls, 1)
	require.Len(t, refreshCalls, 1)
	assert.Equal(t, access, accessCalls[0].Form.Get("token"))
	assert.Equal(t, refresh, refreshCalls[0].Form.Get("token"))
}

func TestLogoutPartialFailure(t *testing.T) {
	realm, svc := newRealmService(t)
	access, refresh := realm.IssueUserTokens("alice")
	realm.Fail(providertest.RouteRevokeRefresh, providertest.Failure{
		Status: http.StatusBadRequest,
		Body:   `{"error":"invalid_token"}`,
	})

	err := svc.Logout(context.Background(), access, refresh)
	require.Error(t, err)

	var revErr *RevocationError
	require.ErrorAs(t, err, &revErr)
	assert.Equal(t, []Type{RefreshToken}, revErr.FailedTypes())
	assert.Equal(t, []Type{AccessToken}, revErr.Revoked)
	assert.True(t, revErr.Failed(RefreshToken))
	assert.False(t, revErr.Failed(AccessToken))
	assert.True(t, revErr.WasRevoked(AccessToken))
	assert.Equal(t, http.StatusBadRequest, revErr.Failures[0].Status)
	assert.Equal(t, `{"error":"invalid_token"}`, revErr.Failures[0].Detail)

	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrCodeRevocationFailed))
	assert.False(t, realm.TokenActive(access))
	assert.True(t, realm.TokenActive(refresh))
}

func TestLogoutBothFail(t *testing.T) {
	realm, svc := newRealmService(t)
	access, refresh := realm.IssueUserTokens("alice")
	realm.Fail(providertest.RouteRevokeRefresh, providertest.Failure{Status: http.StatusInternalServerError})
	realm.Fail(providertest.RouteRevokeAccess, providertest.Failure{Status: http.StatusServiceUnavailable})

	err := svc.Logout(context.Background(), access, refresh)

	var revErr *RevocationError
	require.ErrorAs(t, err, &revErr)
	assert.ElementsMatch(t, []Type{AccessToken, RefreshToken}, revErr.FailedTypes())
	assert.Empty(t, revErr.Revoked)
}

func TestLogoutRunsRevocationsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	cfg := provider.Config{Authority: server.URL, Realm: "demo", ClientID: "c", ClientSecret: "s"}

	require.NoError(t, NewService(provider.NewClient(cfg), cfg).Logout(context.Background(), "at", "rt"))
	assert.Equal(t, int32(2), peak.Load())
}

func TestLogoutCancellationReachesBothCalls(t *testing.T) {
	realm, svc := newRealmService(t)
	access, refresh := realm.IssueUserTokens("alice")
	realm.Fail(providertest.RouteRevokeRefresh, providertest.Failure{Block: true})
	realm.Fail(providertest.RouteRevokeAccess, providertest.Failure{Block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Logout(ctx, access, refresh)
	var revErr *RevocationError
	require.ErrorAs(t, err, &revErr)
	assert.Len(t, revErr.Failures, 2)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLogoutValidation(t *testing.T) {
	realm, svc := newRealmService(t)

	assert.True(t, gwerrors.IsCode(svc.Logout(context.Background(), "", "rt"), gwerrors.ErrCodeInvalidInput))
	assert.True(t, gwerrors.IsCode(svc.Logout(context.Background(), "at", ""), gwerrors.ErrCodeInvalidInput))
	assert.Empty(t, realm.Calls())
}

func TestRevokeSingle(t *testing.T) {
	realm, svc := newRealmService(t)
	access, _ := realm.IssueUserTokens("alice")

	require.NoError(t, svc.Revoke(context.Background(), access, AccessToken))
	assert.False(t, realm.TokenActive(access))

	realm.Fail(providertest.RouteRevokeAccess, providertest.Failure{Status: http.StatusBadRequest})
	err := svc.Revoke(context.Background(), access, AccessToken)
	var revErr *RevocationError
	require.ErrorAs(t, err, &revErr)
	assert.True(t, revErr.Failed(AccessToken))
}

func TestPairJSONRoundTrip(t *testing.T) {
	in := Pair{AccessToken: "a.b.c", RefreshToken: "r.s.t", ExpiresIn: 300}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"a.b.c","refresh_token":"r.s.t","expires_in":300}`, string(data))

	var out Pair
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
