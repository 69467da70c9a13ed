// Package ratelimit protects the public endpoints with token buckets keyed by
// client IP, plus tighter per-endpoint buckets for login and registration.
// Rejected requests get 429 with Retry-After and X-RateLimit-* headers.
//
// The client IP is the connection address unless the peer is a configured
// trusted proxy, in which case X-Forwarded-For and X-Real-IP are consulted.
package ratelimit
