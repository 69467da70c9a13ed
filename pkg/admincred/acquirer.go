package admincred

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/metrics"
	"github.com/tendant/idm-gateway/pkg/provider"
	"github.com/tendant/idm-gateway/pkg/telemetry"
)

// Credential is a short-lived administrative access token.
type Credential struct {
	AccessToken string
	Expiry      time.Time
}

// Acquirer obtains an administrative credential for the gateway's own client.
type Acquirer interface {
	Acquire(ctx context.Context) (Credential, error)
}

// Invalidator is implemented by acquirers that hold on to a credential.
type Invalidator interface {
	Invalidate()
}

// ClientCredentials performs one client-credentials grant per Acquire call.
// It never retries and never caches.
type ClientCredentials struct {
	config     clientcredentials.Config
	httpClient *provider.Client
	metrics    *metrics.Metrics
}

// Option is a function that configures a ClientCredentials acquirer
type Option func(*ClientCredentials)

// WithMetrics counts every grant on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ClientCredentials) {
		c.metrics = m
	}
}

// NewClientCredentials creates an acquirer that sends the client id and secret
// in the form body of the realm's token endpoint, using client's transport.
func NewClientCredentials(client *provider.Client, cfg provider.Config, opts ...Option) *ClientCredentials {
	c := &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     client.Endpoints().Token().URL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire runs the grant.
//
// A rejection by the provider is reported as ErrCodeAuthorizationDenied with
// the provider's body; a failure to reach it as ErrCodeProviderUnavailable.
func (c *ClientCredentials) Acquire(ctx context.Context) (Credential, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "admincred.Acquire")
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient.HTTPClient())
	tok, err := c.config.Token(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client credentials grant failed")
		return Credential{}, classify(err)
	}

	c.metrics.IncAdminCredential("grant")
	slog.Debug("Administrative credential acquired", "expiry", tok.Expiry)
	return Credential{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

func classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		slog.Error("Provider rejected client credentials", "status", status, "error_code", retrieveErr.ErrorCode)
		return gwerrors.Wrap(err, gwerrors.ErrCodeAuthorizationDenied, "provider rejected the gateway client credentials").
			WithProviderResponse(status, retrieveErr.Body)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.Error("Provider unreachable while acquiring administrative credential", "error", err)
		return gwerrors.ProviderUnavailable(err, "client credentials grant")
	}

	slog.Error("Unusable client credentials response", "error", err)
	return gwerrors.BadProviderResponse(err, "client credentials grant")
}
