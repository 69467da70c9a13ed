package gateway

import (
	"context"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/metrics"
	"github.com/tendant/idm-gateway/pkg/registration"
	"github.com/tendant/idm-gateway/pkg/token"
)

// Gateway is the public contract of the identity gateway.
type Gateway interface {
	Register(ctx context.Context, req registration.Request) (*registration.UserRecord, error)
	Login(ctx context.Context, req LoginRequest) (*token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// LoginRequest carries end-user credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	if r.Username == "" {
		return gwerrors.InvalidInput("username", "is required")
	}
	if r.Password == "" {
		return gwerrors.InvalidInput("password", "is required")
	}
	return nil
}

// Registrar provisions new users.
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (*registration.UserRecord, error)
}

// Tokens exchanges and revokes end-user tokens.
type Tokens interface {
	Login(ctx context.Context, username, password string) (*token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// Service implements Gateway. It holds no per-request state.
type Service struct {
	registrar Registrar
	tokens    Tokens
	metrics   *metrics.Metrics
}

var _ Gateway = (*Service)(nil)

func NewService(registrar Registrar, tokens Tokens, m *metrics.Metrics) *Service {
	return &Service{
		registrar: registrar,
		tokens:    tokens,
		metrics:   m,
	}
}

func (s *Service) Register(ctx context.Context, req registration.Request) (*registration.UserRecord, error) {
	record, err := s.registrar.Register(ctx, req)
	s.metrics.IncOperation("register", err)
	return record, err
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*token.Pair, error) {
	if err := req.Validate(); err != nil {
		s.metrics.IncOperation("login", err)
		return nil, err
	}
	pair, err := s.tokens.Login(ctx, req.Username, req.Password)
	s.metrics.IncOperation("login", err)
	return pair, err
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	pair, err := s.tokens.Refresh(ctx, refreshToken)
	s.metrics.IncOperation("refresh", err)
	return pair, err
}

func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	err := s.tokens.Logout(ctx, accessToken, refreshToken)
	s.metrics.IncOperation("logout", err)
	return err
}
