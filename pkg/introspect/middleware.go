package introspect

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
)

type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "introspect context value " + k.name
}

var resultKey = &contextKey{"Result"}

// FromContext returns the introspection result stored by Middleware.
func FromContext(ctx context.Context) (*Result, bool) {
	r, ok := ctx.Value(resultKey).(*Result)
	return r, ok
}

// NewContext stores r in ctx.
func NewContext(ctx context.Context, r *Result) context.Context {
	return context.WithValue(ctx, resultKey, r)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Middleware requires an active bearer token. Missing and inactive tokens
// get 401; an unreachable provider gets 503.
func Middleware(i *Introspector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, r, "missing bearer token")
				return
			}

			result, err := i.Introspect(r.Context(), token)
			if err != nil {
				status := http.StatusBadGateway
				if gwerrors.IsCode(err, gwerrors.ErrCodeProviderUnavailable) {
					status = http.StatusServiceUnavailable
				}
				slog.Warn("Token introspection failed", "error", err)
				render.Status(r, status)
				render.JSON(w, r, errorBody{Error: "token introspection failed", Code: string(gwerrors.GetCode(err))})
				return
			}
			if !result.Active {
				slog.Debug("Inactive bearer token", "path", r.URL.Path)
				unauthorized(w, r, "inactive bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), result)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, errorBody{Error: msg, Code: string(gwerrors.ErrCodeUnauthorized)})
}
