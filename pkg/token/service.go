package token

import (
	"context"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/provider"
	"github.com/tendant/idm-gateway/pkg/telemetry"
)

// Service exchanges, refreshes and revokes end-user tokens at the provider.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	client *provider.Client
	cfg    provider.Config
}

// NewService creates a token service for the configured realm and client.
func NewService(client *provider.Client, cfg provider.Config) *Service {
	return &Service{
		client: client,
		cfg:    cfg,
	}
}

func (s *Service) clientForm(extra url.Values) url.Values {
	form := url.Values{
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	for k, v := range extra {
		form[k] = v
	}
	return form
}

// Login exchanges a username and password for a token pair (password grant).
func (s *Service) Login(ctx context.Context, username, password string) (*Pair, error) {
	if username == "" {
		return nil, gwerrors.InvalidInput("username", "is required")
	}
	if password == "" {
		return nil, gwerrors.InvalidInput("password", "is required")
	}

	ctx, span := telemetry.Tracer().Start(ctx, "token.Login")
	defer span.End()

	resp, err := s.client.PostForm(ctx, s.client.Endpoints().Token(), s.clientForm(url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("provider.status", resp.StatusCode))

	if !resp.IsSuccess() {
		slog.Info("Provider rejected login", "username", username, "status", resp.StatusCode)
		return nil, gwerrors.New(gwerrors.ErrCodeAuthenticationFailed, "authentication failed").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}

	pair, err := parsePair(resp.Body)
	if err != nil {
		slog.Error("Unusable login response", "username", username, "error", err)
		return nil, gwerrors.BadProviderResponse(err, "login").WithProviderResponse(resp.StatusCode, resp.Body)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair (refresh-token grant).
// Every failure, including an unreachable provider, is ErrCodeRefreshFailed
// with the cause wrapped; a pair is returned only for a usable 2xx response.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	if refreshToken == "" {
		return nil, gwerrors.InvalidInput("refresh_token", "is required")
	}

	ctx, span := telemetry.Tracer().Start(ctx, "token.Refresh")
	defer span.End()

	resp, err := s.client.PostForm(ctx, s.client.Endpoints().Token(), s.clientForm(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}))
	if err != nil {
		slog.Warn("Token refresh failed", "error", err)
		return nil, gwerrors.Wrap(err, gwerrors.ErrCodeRefreshFailed, "token refresh failed")
	}
	span.SetAttributes(attribute.Int("provider.status", resp.StatusCode))

	if !resp.IsSuccess() {
		slog.Info("Provider rejected token refresh", "status", resp.StatusCode)
		return nil, gwerrors.New(gwerrors.ErrCodeRefreshFailed, "token refresh failed").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}

	pair, err := parsePair(resp.Body)
	if err != nil {
		slog.Error("Unusable refresh response", "error", err)
		return nil, gwerrors.Wrap(err, gwerrors.ErrCodeRefreshFailed, "token refresh failed").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}
	return pair, nil
}

// Revoke revokes a single token, passing its kind as token_type_hint.
func (s *Service) Revoke(ctx context.Context, token string, kind Type) error {
	if token == "" {
		return gwerrors.InvalidInput(string(kind), "is required")
	}
	if failure := s.revoke(ctx, token, kind); failure != nil {
		return &RevocationError{Failures: []RevocationFailure{*failure}}
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, token string, kind Type) *RevocationFailure {
	ctx, span := telemetry.Tracer().Start(ctx, "token.Revoke")
	defer span.End()
	span.SetAttributes(attribute.String("token.type", string(kind)))

	resp, err := s.client.PostForm(ctx, s.client.Endpoints().Revoke(), s.clientForm(url.Values{
		"token":           {token},
		"token_type_hint": {string(kind)},
	}))
	if err != nil {
		slog.Warn("Token revocation failed", "token_type", kind, "error", err)
		return &RevocationFailure{Type: kind, Detail: err.Error(), Err: err}
	}
	if !resp.IsSuccess() {
		slog.Warn("Provider rejected token revocation", "token_type", kind, "status", resp.StatusCode)
		return &RevocationFailure{
			Type:   kind,
			Status: resp.StatusCode,
			Detail: string(resp.Body),
			Err: gwerrors.New(gwerrors.ErrCodeRevocationFailed, "provider rejected revocation").
				WithProviderResponse(resp.StatusCode, resp.Body),
		}
	}
	return nil
}

// Logout revokes the refresh token and the access token concurrently.
// Both revocations are always attempted; the returned *RevocationError lists
// every kind that failed and every kind that was revoked.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return gwerrors.InvalidInput("access_token", "is required")
	}
	if refreshToken == "" {
		return gwerrors.InvalidInput("refresh_token", "is required")
	}

	ctx, span := telemetry.Tracer().Start(ctx, "token.Logout")
	defer span.End()

	targets := []struct {
		token string
		kind  Type
	}{
		{refreshToken, RefreshToken},
		{accessToken, AccessToken},
	}
	results := make([]*RevocationFailure, len(targets))

	// plain group: one failed revocation must not cancel the other
	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			results[i] = s.revoke(ctx, target.token, target.kind)
			return nil
		})
	}
	_ = g.Wait()

	var revErr RevocationError
	for i, target := range targets {
		if results[i] != nil {
			revErr.Failures = append(revErr.Failures, *results[i])
		} else {
			revErr.Revoked = append(revErr.Revoked, target.kind)
		}
	}
	if len(revErr.Failures) > 0 {
		slog.Warn("Logout incomplete", "failed", revErr.FailedTypes(), "revoked", revErr.Revoked)
		return &revErr
	}
	return nil
}
