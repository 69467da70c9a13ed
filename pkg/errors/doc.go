// Package errors provides structured error handling with error codes for idm-gateway.
//
// Every failure the gateway reports to a caller carries an ErrorCode, a
// human-readable message, optional details and the wrapped cause. Handlers map
// codes to HTTP statuses with MapErrorCodeToHTTPStatus.
//
// # Error Codes
//
// Generic:
//   - ErrCodeInternal
//   - ErrCodeInvalidInput
//   - ErrCodeUnauthorized
//   - ErrCodeConflict
//   - ErrCodeRateLimitExceeded
//
// Provider:
//   - ErrCodeProviderUnavailable: the identity provider could not be reached
//   - ErrCodeAuthorizationDenied: the provider refused the gateway's own client credentials
//   - ErrCodeBadProviderResponse: a 2xx response the gateway could not parse
//   - ErrCodeProviderRejected: a non-2xx answer to an administrative call
//
// Identity operations:
//   - ErrCodeAuthenticationFailed
//   - ErrCodeRegistrationFailed
//   - ErrCodeRefreshFailed
//   - ErrCodeRevocationFailed
//
// # Provider Responses
//
// When the provider rejects a request its status and raw body are attached as
// details so callers see exactly what the provider said:
//
//	return nil, errors.New(errors.ErrCodeAuthenticationFailed, "login rejected").
//		WithProviderResponse(resp.StatusCode, resp.Body)
//
//	body := errors.ProviderBody(err)
//
// # Error Inspection
//
// IsCode walks the whole chain of structured errors, so a registration error
// that wraps a provider outage answers true for both codes:
//
//	if errors.IsCode(err, errors.ErrCodeProviderUnavailable) {
//		// retry later
//	}
//
// Standard wrapping still works:
//
//	if errors.Is(err, context.Canceled) {
//		// caller went away
//	}
package errors
