package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/provider"
)

// Result is the provider's answer about a bearer token.
type Result struct {
	Active    bool      `json:"active"`
	Subject   string    `json:"sub,omitempty"`
	Username  string    `json:"username,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"-"`
}

func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sub", r.Subject),
		slog.String("username", r.Username),
		slog.String("client_id", r.ClientID),
	)
}

// Scopes splits the space separated scope claim.
func (r Result) Scopes() []string {
	return strings.Fields(r.Scope)
}

// Introspector asks the provider whether a token is active. Results are not
// cached, so a revoked token is rejected on the next request.
type Introspector struct {
	client *provider.Client
	cfg    provider.Config
}

func NewIntrospector(client *provider.Client, cfg provider.Config) *Introspector {
	return &Introspector{client: client, cfg: cfg}
}

// Introspect returns the token state. An inactive token is not an error.
func (i *Introspector) Introspect(ctx context.Context, token string) (*Result, error) {
	if token == "" {
		return &Result{}, nil
	}
	resp, err := i.client.PostForm(ctx, i.client.Endpoints().Introspect(), url.Values{
		"client_id":     {i.cfg.ClientID},
		"client_secret": {i.cfg.ClientSecret},
		"token":         {token},
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, gwerrors.ProviderRejected(resp.StatusCode, resp.Body, "token introspection")
	}

	var body struct {
		Result
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, gwerrors.BadProviderResponse(fmt.Errorf("decode introspection: %w", err), "token introspection")
	}
	result := body.Result
	if body.Exp > 0 {
		result.ExpiresAt = time.Unix(body.Exp, 0).UTC()
	}
	return &result, nil
}
