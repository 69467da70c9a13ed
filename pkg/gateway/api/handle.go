package api

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/tendant/idm-gateway/pkg/gateway Gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/gateway"
	"github.com/tendant/idm-gateway/pkg/registration"
	"github.com/tendant/idm-gateway/pkg/token"
)

// Handle serves the gateway operations over HTTP.
type Handle struct {
	gateway   gateway.Gateway
	public    []func(http.Handler) http.Handler
	protected []func(http.Handler) http.Handler
}

type Option func(*Handle)

func NewHandle(gw gateway.Gateway, opts ...Option) *Handle {
	h := &Handle{gateway: gw}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithPublicMiddleware wraps /register and /login.
func WithPublicMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(h *Handle) {
		h.public = append(h.public, mws...)
	}
}

// WithProtectedMiddleware wraps /refresh and /logout, typically with bearer
// token introspection.
func WithProtectedMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(h *Handle) {
		h.protected = append(h.protected, mws...)
	}
}

// RegisterRoutes mounts the four operations on r.
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.public...)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.protected...)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})
}

// Register handles POST /register
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := decode(r, &body, true); err != nil {
		renderError(w, r, err)
		return
	}
	var req registration.Request
	if err := copier.Copy(&req, &body); err != nil {
		renderError(w, r, gwerrors.Wrap(err, gwerrors.ErrCodeInternal, "failed to map request"))
		return
	}
	if err := req.Validate(); err != nil {
		renderError(w, r, err)
		return
	}

	record, err := h.gateway.Register(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// Login handles POST /login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if err := decode(r, &body, true); err != nil {
		renderError(w, r, err)
		return
	}
	var req gateway.LoginRequest
	if err := copier.Copy(&req, &body); err != nil {
		renderError(w, r, gwerrors.Wrap(err, gwerrors.ErrCodeInternal, "failed to map request"))
		return
	}
	if err := req.Validate(); err != nil {
		renderError(w, r, err)
		return
	}

	pair, err := h.gateway.Login(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, pair)
}

// Refresh handles POST /refresh. The token may also come from the
// refreshToken query parameter.
func (h *Handle) Refresh(w http.ResponseWriter, r *http.Request) {
	var body RefreshRequest
	if err := decode(r, &body, false); err != nil {
		renderError(w, r, err)
		return
	}
	if body.RefreshToken == "" {
		body.RefreshToken = r.URL.Query().Get("refreshToken")
	}
	if body.RefreshToken == "" {
		renderError(w, r, gwerrors.InvalidInput("refresh_token", "is required"))
		return
	}

	pair, err := h.gateway.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, pair)
}

// Logout handles POST /logout. Tokens may also come from the accessToken and
// refreshToken query parameters.
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	var body LogoutRequest
	if err := decode(r, &body, false); err != nil {
		renderError(w, r, err)
		return
	}
	q := r.URL.Query()
	if body.AccessToken == "" {
		body.AccessToken = q.Get("accessToken")
	}
	if body.RefreshToken == "" {
		body.RefreshToken = q.Get("refreshToken")
	}
	if body.AccessToken == "" {
		renderError(w, r, gwerrors.InvalidInput("access_token", "is required"))
		return
	}
	if body.RefreshToken == "" {
		renderError(w, r, gwerrors.InvalidInput("refresh_token", "is required"))
		return
	}

	if err := h.gateway.Logout(r.Context(), body.AccessToken, body.RefreshToken); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body. An empty body is an error only when required.
func decode(r *http.Request, v interface{}, required bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && !required:
		return nil
	default:
		slog.Info("Failed to decode request body", "path", r.URL.Path, "error", err)
		return gwerrors.New(gwerrors.ErrCodeInvalidInput, "invalid request body")
	}
}

// StatusFor maps an operation error to its HTTP status.
func StatusFor(err error) int {
	var regErr *registration.Error
	if errors.As(err, &regErr) {
		return regErr.HTTPStatusCode()
	}
	var revErr *token.RevocationError
	if errors.As(err, &revErr) {
		return http.StatusBadGateway
	}
	return gwerrors.MapErrorCodeToHTTPStatus(gwerrors.GetCode(err))
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:   err.Error(),
		Code:    string(gwerrors.GetCode(err)),
		Details: gwerrors.GetDetails(err),
	}
	var se *gwerrors.Error
	if errors.As(err, &se) {
		resp.Error = se.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
