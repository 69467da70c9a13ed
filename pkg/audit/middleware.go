// Package audit provides middleware for auditing gateway requests
package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/idm-gateway/pkg/introspect"
)

// Config holds the configuration for the audit middleware
type Config struct {
	// Logger receives one record per request. Defaults to slog.Default().
	Logger *slog.Logger
	// Source names the emitting service in every record
	Source string
	// EventType is logged as the record's "type" attribute
	EventType string
}

// Middleware handles HTTP request auditing
type Middleware struct {
	logger    *slog.Logger
	source    string
	eventType string
	now       func() time.Time
}

// NewMiddleware creates a new audit middleware instance
func NewMiddleware(config Config) *Middleware {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Source == "" {
		config.Source = "idm-gateway"
	}
	if config.EventType == "" {
		config.EventType = "audit.gateway.request"
	}
	return &Middleware{
		logger:    config.Logger,
		source:    config.Source,
		eventType: config.EventType,
		now:       time.Now,
	}
}

// Event is the audited view of one request.
type Event struct {
	Subject   string
	Username  string
	Path      string // query omitted: it may carry tokens
	Method    string
	Status    int
	Remote    string
	Message   string
	Timestamp time.Time
	Duration  time.Duration
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("path", e.Path),
		slog.Int("status", e.Status),
		slog.String("remote", e.Remote),
		slog.Time("timestamp", e.Timestamp),
		slog.Duration("duration", e.Duration),
	}
	if e.Subject != "" {
		attrs = append(attrs, slog.String("user", e.Subject))
	}
	if e.Username != "" {
		attrs = append(attrs, slog.String("username", e.Username))
	}
	if e.Message != "" {
		attrs = append(attrs, slog.String("message", e.Message))
	}
	return slog.GroupValue(attrs...)
}

// Handler records every request once the wrapped handler has written its
// response. The caller is taken from the introspection result, so the
// middleware must run after introspect.Middleware on protected routes.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := Event{
			Path:      r.URL.Path,
			Method:    r.Method,
			Status:    ww.Status(),
			Remote:    r.RemoteAddr,
			Timestamp: start,
			Duration:  m.now().Sub(start),
		}
		if event.Status == 0 {
			event.Status = http.StatusOK
		}
		if res, ok := introspect.FromContext(r.Context()); ok {
			event.Subject = res.Subject
			event.Username = res.Username
		} else {
			event.Message = "anonymous"
		}

		level := slog.LevelInfo
		if event.Status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		m.logger.LogAttrs(r.Context(), level, "audit",
			slog.String("source", m.source),
			slog.String("type", m.eventType),
			slog.Any("event", event),
		)
	})
}
