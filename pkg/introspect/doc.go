// Package introspect authenticates inbound requests by asking the provider's
// token introspection endpoint whether the bearer token is active.
package introspect
