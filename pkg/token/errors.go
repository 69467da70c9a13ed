package token

import (
	"fmt"
	"strings"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
)

// RevocationFailure describes one token the provider did not revoke.
type RevocationFailure struct {
	Type   Type
	Status int    // provider status, 0 when the provider was unreachable
	Detail string // provider body or transport error
	Err    error
}

// RevocationError reports which token kinds were revoked and which were not.
type RevocationError struct {
	Failures []RevocationFailure
	Revoked  []Type
}

func (e *RevocationError) Error() string {
	kinds := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		kinds[i] = string(f.Type)
	}
	return fmt.Sprintf("[%s] revocation failed for %s", gwerrors.ErrCodeRevocationFailed, strings.Join(kinds, ", "))
}

// Unwrap exposes a structured REVOCATION_FAILED error plus each failure's cause.
func (e *RevocationError) Unwrap() []error {
	errs := []error{e.structured()}
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Failed reports whether revocation of t failed.
func (e *RevocationError) Failed(t Type) bool {
	for _, f := range e.Failures {
		if f.Type == t {
			return true
		}
	}
	return false
}

// WasRevoked reports whether t was revoked successfully.
func (e *RevocationError) WasRevoked(t Type) bool {
	for _, r := range e.Revoked {
		if r == t {
			return true
		}
	}
	return false
}

// FailedTypes lists the failed token kinds.
func (e *RevocationError) FailedTypes() []Type {
	out := make([]Type, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Type
	}
	return out
}

func (e *RevocationError) structured() *gwerrors.Error {
	details := make(map[string]interface{}, len(e.Failures))
	for _, f := range e.Failures {
		details[string(f.Type)] = f.Detail
	}
	return gwerrors.New(gwerrors.ErrCodeRevocationFailed, "token revocation failed").
		WithDetail("failed", e.FailedTypes()).
		WithDetail("revoked", append([]Type{}, e.Revoked...)).
		WithDetails(details)
}
