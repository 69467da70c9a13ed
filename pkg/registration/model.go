package registration

import (
	"strings"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/token"
)

// Request carries the details of a new user. Every field is required.
type Request struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// Validate reports every missing field in a single INVALID_INPUT error.
func (r Request) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"username", r.Username},
		{"email", r.Email},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"password", r.Password},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return gwerrors.InvalidInput(strings.Join(missing, ", "), "is required").
		WithDetail("missing", missing)
}

// UserRecord is returned after a successful registration.
type UserRecord struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Token     *token.Pair `json:"tokenResponse"`
}

// Stage names a registration step.
type Stage string

const (
	StageAdminAuth     Stage = "AdminAuth"
	StageUserCreate    Stage = "UserCreate"
	StageRoleLookup    Stage = "RoleLookup"
	StageRoleAssign    Stage = "RoleAssign"
	StageImplicitLogin Stage = "ImplicitLogin"
)

func (s Stage) String() string {
	return string(s)
}
