package realmadmin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/provider"
)

// Credential is a password credential attached to a new user.
type Credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// UserRepresentation is the user document accepted by the admin API.
type UserRepresentation struct {
	ID          string       `json:"id,omitempty"`
	Username    string       `json:"username"`
	Email       string       `json:"email,omitempty"`
	FirstName   string       `json:"firstName,omitempty"`
	LastName    string       `json:"lastName,omitempty"`
	Enabled     bool         `json:"enabled"`
	Credentials []Credential `json:"credentials,omitempty"`
}

// PasswordCredential returns a permanent password credential.
func PasswordCredential(password string) Credential {
	return Credential{Type: "password", Value: password, Temporary: false}
}

// Role is a realm role as returned by the admin API.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
	ClientRole  bool   `json:"clientRole"`
	ContainerID string `json:"containerId,omitempty"`
}

// Client calls the realm admin API with an administrative bearer token.
type Client struct {
	provider *provider.Client
}

func New(p *provider.Client) *Client {
	return &Client{provider: p}
}

// CreateUser creates an enabled user and returns the id taken from the
// Location header of the 201 response.
func (c *Client) CreateUser(ctx context.Context, token string, user UserRepresentation) (string, error) {
	ep := c.provider.Endpoints().Users()
	resp, err := c.provider.PostJSON(ctx, ep, token, user)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		slog.Info("Provider rejected user creation", "username", user.Username, "status", resp.StatusCode)
		return "", gwerrors.ProviderRejected(resp.StatusCode, resp.Body, "user creation")
	}

	id := provider.UserIDFromLocation(resp.Location())
	if id == "" {
		return "", gwerrors.BadProviderResponse(nil, "user creation").
			WithDetail("reason", "missing Location header").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}
	slog.Debug("User created", "username", user.Username, "user_id", id)
	return id, nil
}

// GetUser fetches a user by id. A missing user is a PROVIDER_REJECTED error
// with provider status 404; see IsNotFound.
func (c *Client) GetUser(ctx context.Context, token, id string) (*UserRepresentation, error) {
	resp, err := c.provider.Get(ctx, c.provider.Endpoints().User(id), token)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, gwerrors.ProviderRejected(resp.StatusCode, resp.Body, "user lookup")
	}
	var user UserRepresentation
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, gwerrors.BadProviderResponse(fmt.Errorf("decode user: %w", err), "user lookup").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}
	return &user, nil
}

// DeleteUser removes a user by id.
func (c *Client) DeleteUser(ctx context.Context, token, id string) error {
	resp, err := c.provider.Delete(ctx, c.provider.Endpoints().User(id), token)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return gwerrors.ProviderRejected(resp.StatusCode, resp.Body, "user deletion")
	}
	return nil
}

// GetRole looks up a realm role by name.
func (c *Client) GetRole(ctx context.Context, token, name string) (Role, error) {
	resp, err := c.provider.Get(ctx, c.provider.Endpoints().Role(name), token)
	if err != nil {
		return Role{}, err
	}
	if !resp.IsSuccess() {
		return Role{}, gwerrors.ProviderRejected(resp.StatusCode, resp.Body, "role lookup").
			WithDetail("role", name)
	}

	var role Role
	if err := json.Unmarshal(resp.Body, &role); err != nil {
		return Role{}, gwerrors.BadProviderResponse(fmt.Errorf("decode role: %w", err), "role lookup").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}
	if role.ID == "" || role.Name == "" {
		return Role{}, gwerrors.BadProviderResponse(nil, "role lookup").
			WithDetail("reason", "role representation lacks id or name").
			WithProviderResponse(resp.StatusCode, resp.Body)
	}
	return role, nil
}

// AssignRealmRole adds role to the user's realm role mappings.
func (c *Client) AssignRealmRole(ctx context.Context, token, userID string, role Role) error {
	resp, err := c.provider.PostJSON(ctx, c.provider.Endpoints().RoleMapping(userID), token, []Role{role})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return gwerrors.ProviderRejected(resp.StatusCode, resp.Body, "role assignment").
			WithDetail("role", role.Name)
	}
	return nil
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	return gwerrors.IsCode(err, gwerrors.ErrCodeProviderRejected) &&
		gwerrors.ProviderStatus(err) == http.StatusNotFound
}

// IsUnauthorized reports whether the provider refused the bearer token.
func IsUnauthorized(err error) bool {
	return gwerrors.IsCode(err, gwerrors.ErrCodeProviderRejected) &&
		gwerrors.ProviderStatus(err) == http.StatusUnauthorized
}

// IsConflict reports whether the provider answered 409.
func IsConflict(err error) bool {
	return gwerrors.IsCode(err, gwerrors.ErrCodeProviderRejected) &&
		gwerrors.ProviderStatus(err) == http.StatusConflict
}
