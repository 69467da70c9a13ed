package registration

import (
	"fmt"
	"net/http"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/realmadmin"
)

// Error reports the stage at which a registration stopped.
type Error struct {
	Stage  Stage
	Detail string
	// UserID is set once the provider created the user.
	UserID string
	// Compensated is true when the created user was deleted again.
	Compensated bool
	// Pending is true when a reconciliation record was saved for the user.
	Pending bool
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] registration failed at %s: %v", gwerrors.ErrCodeRegistrationFailed, e.Stage, e.Err)
}

// Unwrap returns a REGISTRATION_FAILED error that wraps the cause, so both
// the registration code and the cause's code are visible to IsCode.
func (e *Error) Unwrap() error {
	msg := fmt.Sprintf("registration failed at %s", e.Stage)
	var se *gwerrors.Error
	if e.Err != nil {
		se = gwerrors.Wrap(e.Err, gwerrors.ErrCodeRegistrationFailed, msg)
	} else {
		se = gwerrors.New(gwerrors.ErrCodeRegistrationFailed, msg)
	}
	se.WithDetail("stage", string(e.Stage))
	if e.UserID != "" {
		se.WithDetail("user_id", e.UserID)
		se.WithDetail("compensated", e.Compensated)
	}
	if body := gwerrors.ProviderBody(e.Err); body != "" {
		se.WithDetail(gwerrors.DetailProviderBody, body)
	}
	if status := gwerrors.ProviderStatus(e.Err); status != 0 {
		se.WithDetail(gwerrors.DetailProviderStatus, status)
	}
	return se
}

// HTTPStatusCode maps the failure to a response status: a duplicate user is
// 409, an unreachable provider 503, anything else 502.
func (e *Error) HTTPStatusCode() int {
	switch {
	case e.Stage == StageUserCreate && realmadmin.IsConflict(e.Err):
		return http.StatusConflict
	case gwerrors.IsCode(e.Err, gwerrors.ErrCodeProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func detailOf(err error) string {
	if body := gwerrors.ProviderBody(err); body != "" {
		return body
	}
	return err.Error()
}
