// Package token handles end-user tokens at the provider's token endpoint:
// the password grant for login, the refresh_token grant and revocation.
//
// Refresh sends the refresh token in the standard "refresh_token" form field
// (RFC 6749 section 6). Providers that expect it under "token" instead will
// reject the grant with a non-2xx answer, reported as REFRESH_FAILED.
//
// Logout revokes the access and refresh tokens concurrently and reports a
// *RevocationError naming each kind the provider did not revoke.
package token
