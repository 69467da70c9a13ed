// Package provider is the gateway's HTTP client for a Keycloak-style
// OAuth2/OIDC realm server.
//
// The client knows the provider's URL layout (Endpoints) and how to send
// form, JSON, GET and DELETE requests with an optional bearer token. It does
// not interpret response bodies: callers receive the status, headers and raw
// body and decide what a non-2xx response means for their operation.
//
// A request that never produced an HTTP response (connection refused, DNS
// failure, timeout, cancelled context) fails with ErrCodeProviderUnavailable
// from pkg/errors. The context error stays reachable through errors.Is.
//
//	client := provider.NewClient(cfg, provider.WithMetrics(m))
//	resp, err := client.PostForm(ctx, client.Endpoints().Token(), form)
//	if err != nil {
//		return err // provider unreachable
//	}
//	if !resp.IsSuccess() {
//		// provider rejected the request; resp.Body holds its explanation
//	}
package provider
