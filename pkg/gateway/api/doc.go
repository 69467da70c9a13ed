// Package api exposes the gateway over HTTP with chi and render.
//
//	POST /register  201  UserRecord
//	POST /login     200  token pair
//	POST /refresh   200  token pair (bearer required)
//	POST /logout    204           (bearer required)
//
// Failures are written as {"error", "code", "details"}. Provider bodies for
// rejected registrations and logins are included in details.
package api
