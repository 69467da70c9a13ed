// Package router mounts the gateway routes under the configured prefix,
// with rate limiting on the public routes, bearer introspection on the
// protected ones and the Prometheus scrape endpoint.
package router
