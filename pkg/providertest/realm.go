// Package providertest runs an in-process fake of a Keycloak realm for tests.
//
// The fake implements the subset of the admin REST API and the OpenID Connect
// endpoints the gateway calls. Every request is recorded by route name, and
// any route can be made to fail or block until the caller gives up.
package providertest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tendant/idm-gateway/pkg/provider"
)

// Route names used for recording calls and injecting failures.
const (
	RouteClientCredentials = "grant:client_credentials"
	RoutePasswordGrant     = "grant:password"
	RouteRefreshGrant      = "grant:refresh_token"
	RouteRevokeAccess      = "revoke:access_token"
	RouteRevokeRefresh     = "revoke:refresh_token"
	RouteIntrospect        = "introspect"
	RouteCreateUser        = "create_user"
	RouteDeleteUser        = "delete_user"
	RouteGetUser           = "get_user"
	RouteGetRole           = "get_role"
	RouteAssignRole        = "assign_role"
)

const (
	defaultRealm  = "demo"
	defaultClient = "gateway"
	defaultSecret = "gateway-secret"
	tokenLifetime = 300
)

// Failure replaces the normal response of a route.
type Failure struct {
	Status int
	Body   string
	// Block holds the request until the client cancels it.
	Block bool
}

// Call is one recorded request.
type Call struct {
	Route string
	Form  url.Values
	Body  []byte
}

// User is a user stored in the fake realm.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Roles     []string
}

type session struct {
	username string
	expires  time.Time
	revoked  bool
	admin    bool
}

// Realm is a fake realm server. Create it with New.
type Realm struct {
	Name         string
	ClientID     string
	ClientSecret string

	// RevokeRefreshOnUse makes refresh tokens single use.
	RevokeRefreshOnUse bool

	server *httptest.Server

	mu       sync.Mutex
	users    map[string]*User
	roles    map[string]string
	tokens   map[string]*session
	refresh  map[string]*session
	failures map[string]Failure
	calls    []Call
}

// New starts a realm named "demo" with the realm role "user" and registers
// cleanup on t.
func New(t testing.TB) *Realm {
	t.Helper()
	r := &Realm{
		Name:         defaultRealm,
		ClientID:     defaultClient,
		ClientSecret: defaultSecret,
		users:        make(map[string]*User),
		roles:        map[string]string{"user": uuid.NewString()},
		tokens:       make(map[string]*session),
		refresh:      make(map[string]*session),
		failures:     make(map[string]Failure),
	}
	r.server = httptest.NewServer(r.routes())
	t.Cleanup(r.server.Close)
	return r
}

// URL is the authority of the fake realm.
func (r *Realm) URL() string {
	return r.server.URL
}

// Config returns a provider configuration pointing at the fake.
func (r *Realm) Config() provider.Config {
	return provider.Config{
		Authority:      r.server.URL,
		Realm:          r.Name,
		ClientID:       r.ClientID,
		ClientSecret:   r.ClientSecret,
		DefaultRole:    "user",
		RequestTimeout: 5 * time.Second,
	}
}

// Client returns a provider client for the fake.
func (r *Realm) Client(opts ...provider.Option) *provider.Client {
	return provider.NewClient(r.Config(), opts...)
}

// Fail makes route respond with f until Clear is called.
func (r *Realm) Fail(route string, f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[route] = f
}

// Clear removes the failure injected for route.
func (r *Realm) Clear(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, route)
}

// AddRole creates a realm role and returns its id.
func (r *Realm) AddRole(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.roles[name] = id
	return id
}

// RemoveRole deletes a realm role.
func (r *Realm) RemoveRole(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles, name)
}

// AddUser stores a user directly, bypassing the admin API.
func (r *Realm) AddUser(u User) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	stored := u
	r.users[u.ID] = &stored
	return &stored
}

// UserByName returns a copy of the stored user, or nil.
func (r *Realm) UserByName(username string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			c := *u
			c.Roles = append([]string(nil), u.Roles...)
			return &c
		}
	}
	return nil
}

// UserCount returns the number of stored users.
func (r *Realm) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Calls returns the recorded route names in order.
func (r *Realm) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Route
	}
	return names
}

// CallsTo returns every recorded request for route.
func (r *Realm) CallsTo(route string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Route == route {
			out = append(out, c)
		}
	}
	return out
}

// TokenActive reports whether an access or refresh token is still usable.
func (r *Realm) TokenActive(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.tokens[token]; ok {
		return !s.revoked && time.Now().Before(s.expires)
	}
	if s, ok := r.refresh[token]; ok {
		return !s.revoked
	}
	return false
}

// IssueUserTokens creates a session for username without a password grant.
func (r *Realm) IssueUserTokens(username string) (access, refresh string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issueLocked(username, false)
}

func (r *Realm) issueLocked(username string, admin bool) (string, string) {
	access := "at-" + uuid.NewString()
	refresh := "rt-" + uuid.NewString()
	r.tokens[access] = &session{username: username, expires: time.Now().Add(tokenLifetime * time.Second), admin: admin}
	if !admin {
		r.refresh[refresh] = &session{username: username}
	}
	return access, refresh
}

func (r *Realm) routes() http.Handler {
	router := chi.NewRouter()
	router.Route("/realms/{realm}/protocol/openid-connect", func(oidc chi.Router) {
		oidc.Post("/token", r.handleToken)
		oidc.Post("/revoke", r.handleRevoke)
		oidc.Post("/token/introspect", r.handleIntrospect)
	})
	router.Route("/admin/realms/{realm}", func(admin chi.Router) {
		admin.Use(r.requireAdmin)
		admin.Post("/users", r.handleCreateUser)
		admin.Get("/users/{id}", r.handleGetUser)
		admin.Delete("/users/{id}", r.handleDeleteUser)
		admin.Post("/users/{id}/role-mappings/realm", r.handleAssignRole)
		admin.Get("/roles/{name}", r.handleGetRole)
	})
	return router
}

// intercept records the call and applies an injected failure. It returns
// true when the response was already written.
func (r *Realm) intercept(w http.ResponseWriter, req *http.Request, route string, form url.Values, body []byte) bool {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Route: route, Form: form, Body: body})
	f, failing := r.failures[route]
	r.mu.Unlock()

	if !failing {
		return false
	}
	if f.Block {
		<-req.Context().Done()
		return true
	}
	writeRaw(w, f.Status, f.Body)
	return true
}

func (r *Realm) handleToken(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeRaw(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}
	form := req.PostForm
	grant := form.Get("grant_type")
	if r.intercept(w, req, "grant:"+grant, form, nil) {
		return
	}
	if !r.clientAuthenticated(form) {
		writeRaw(w, http.StatusUnauthorized, `{"error":"unauthorized_client","error_description":"Invalid client or Invalid client credentials"}`)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch grant {
	case "client_credentials":
		access, _ := r.issueLocked("service-account-"+r.ClientID, true)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": access,
			"expires_in":   tokenLifetime,
			"token_type":   "Bearer",
		})
	case "password":
		var found *User
		for _, u := range r.users {
			if u.Username == form.Get("username") {
				found = u
				break
			}
		}
		if found == nil || found.Password != form.Get("password") {
			writeRaw(w, http.StatusUnauthorized, `{"error":"invalid_grant","error_description":"Invalid user credentials"}`)
			return
		}
		access, refresh := r.issueLocked(found.Username, false)
		writeTokenPair(w, access, refresh)
	case "refresh_token":
		s, ok := r.refresh[form.Get("refresh_token")]
		if !ok || s.revoked {
			writeRaw(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token is not active"}`)
			return
		}
		if r.RevokeRefreshOnUse {
			s.revoked = true
		}
		access, refresh := r.issueLocked(s.username, false)
		writeTokenPair(w, access, refresh)
	default:
		writeRaw(w, http.StatusBadRequest, `{"error":"unsupported_grant_type"}`)
	}
}

func (r *Realm) handleRevoke(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeRaw(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}
	form := req.PostForm
	if r.intercept(w, req, "revoke:"+form.Get("token_type_hint"), form, nil) {
		return
	}
	if !r.clientAuthenticated(form) {
		writeRaw(w, http.StatusUnauthorized, `{"error":"unauthorized_client"}`)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	token := form.Get("token")
	if s, ok := r.tokens[token]; ok {
		s.revoked = true
	}
	if s, ok := r.refresh[token]; ok {
		s.revoked = true
	}
	// RFC 7009: unknown tokens are not an error
	w.WriteHeader(http.StatusOK)
}

func (r *Realm) handleIntrospect(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeRaw(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}
	form := req.PostForm
	if r.intercept(w, req, RouteIntrospect, form, nil) {
		return
	}
	if !r.clientAuthenticated(form) {
		writeRaw(w, http.StatusUnauthorized, `{"error":"unauthorized_client"}`)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.tokens[form.Get("token")]
	if !ok || s.revoked || time.Now().After(s.expires) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":    true,
		"sub":       "sub-" + s.username,
		"username":  s.username,
		"client_id": r.ClientID,
		"scope":     "openid profile email",
		"exp":       s.expires.Unix(),
	})
}

type userRepresentation struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Enabled     bool   `json:"enabled"`
	Credentials []struct {
		Type      string `json:"type"`
		Value     string `json:"value"`
		Temporary bool   `json:"temporary"`
	} `json:"credentials"`
}

func (r *Realm) handleCreateUser(w http.ResponseWriter, req *http.Request) {
	body := readBody(req)
	if r.intercept(w, req, RouteCreateUser, nil, body) {
		return
	}
	var rep userRepresentation
	if err := json.Unmarshal(body, &rep); err != nil || rep.Username == "" {
		writeRaw(w, http.StatusBadRequest, `{"errorMessage":"invalid user representation"}`)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, rep.Username) {
			writeRaw(w, http.StatusConflict, `{"errorMessage":"User exists with same username"}`)
			return
		}
		if rep.Email != "" && strings.EqualFold(u.Email, rep.Email) {
			writeRaw(w, http.StatusConflict, `{"errorMessage":"User exists with same email"}`)
			return
		}
	}
	u := &User{
		ID:        uuid.NewString(),
		Username:  rep.Username,
		Email:     rep.Email,
		FirstName: rep.FirstName,
		LastName:  rep.LastName,
	}
	for _, c := range rep.Credentials {
		if c.Type == "password" {
			u.Password = c.Value
		}
	}
	r.users[u.ID] = u
	w.Header().Set("Location", r.server.URL+req.URL.Path+"/"+u.ID)
	w.WriteHeader(http.StatusCreated)
}

func (r *Realm) handleGetUser(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if r.intercept(w, req, RouteGetUser, nil, []byte(id)) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		writeRaw(w, http.StatusNotFound, `{"error":"User not found"}`)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        u.ID,
		"username":  u.Username,
		"email":     u.Email,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"enabled":   true,
	})
}

func (r *Realm) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if r.intercept(w, req, RouteDeleteUser, nil, []byte(id)) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		writeRaw(w, http.StatusNotFound, `{"error":"User not found"}`)
		return
	}
	delete(r.users, id)
	w.WriteHeader(http.StatusNoContent)
}

func (r *Realm) handleGetRole(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	if r.intercept(w, req, RouteGetRole, nil, []byte(name)) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.roles[name]
	if !ok {
		writeRaw(w, http.StatusNotFound, `{"error":"Could not find role"}`)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"name":      name,
		"composite": false,
	})
}

func (r *Realm) handleAssignRole(w http.ResponseWriter, req *http.Request) {
	body := readBody(req)
	if r.intercept(w, req, RouteAssignRole, nil, body) {
		return
	}
	var mappings []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &mappings); err != nil {
		writeRaw(w, http.StatusBadRequest, `{"error":"invalid role representation"}`)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[chi.URLParam(req, "id")]
	if !ok {
		writeRaw(w, http.StatusNotFound, `{"error":"User not found"}`)
		return
	}
	for _, m := range mappings {
		if r.roles[m.Name] != m.ID {
			writeRaw(w, http.StatusNotFound, `{"error":"Role not found"}`)
			return
		}
		u.Roles = append(u.Roles, m.Name)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Realm) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		r.mu.Lock()
		s, ok := r.tokens[token]
		allowed := ok && s.admin && !s.revoked && time.Now().Before(s.expires)
		r.mu.Unlock()
		if !allowed {
			writeRaw(w, http.StatusUnauthorized, `{"error":"HTTP 401 Unauthorized"}`)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Realm) clientAuthenticated(form url.Values) bool {
	return form.Get("client_id") == r.ClientID && form.Get("client_secret") == r.ClientSecret
}

func readBody(req *http.Request) []byte {
	defer req.Body.Close()
	body, _ := io.ReadAll(req.Body)
	return body
}

func writeTokenPair(w http.ResponseWriter, access, refresh string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":       access,
		"refresh_token":      refresh,
		"expires_in":         tokenLifetime,
		"refresh_expires_in": 1800,
		"token_type":         "Bearer",
		"scope":              "openid profile email",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	if body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
