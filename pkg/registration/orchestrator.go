package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/idm-gateway/pkg/admincred"
	"github.com/tendant/idm-gateway/pkg/metrics"
	"github.com/tendant/idm-gateway/pkg/realmadmin"
	"github.com/tendant/idm-gateway/pkg/reconciliation"
	"github.com/tendant/idm-gateway/pkg/token"
)

const defaultCleanupTimeout = 10 * time.Second

// Authenticator performs the password grant used for the implicit login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*token.Pair, error)
}

// Orchestrator provisions a user in five ordered stages: admin credential,
// user creation, role lookup, role assignment and implicit login.
type Orchestrator struct {
	acquirer    admincred.Acquirer
	admin       *realmadmin.Client
	auth        Authenticator
	defaultRole string

	compensate     bool
	cleanupTimeout time.Duration
	pending        reconciliation.Store
	metrics        *metrics.Metrics
}

// Option is a function that configures an Orchestrator
type Option func(*Orchestrator)

// WithCompensation deletes the created user when a stage before the role
// assignment fails. timeout bounds the cleanup, which runs detached from the
// caller's context.
func WithCompensation(enabled bool, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.compensate = enabled
		if timeout > 0 {
			o.cleanupTimeout = timeout
		}
	}
}

// WithPendingStore records users left without a role.
func WithPendingStore(store reconciliation.Store) Option {
	return func(o *Orchestrator) {
		o.pending = store
	}
}

// WithMetrics counts stage failures, compensations and pending records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func NewOrchestrator(acquirer admincred.Acquirer, admin *realmadmin.Client, auth Authenticator, defaultRole string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		acquirer:       acquirer,
		admin:          admin,
		auth:           auth,
		defaultRole:    defaultRole,
		cleanupTimeout: defaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register creates the user, grants the default realm role and logs the user
// in. A failure stops at its stage; later stages are never attempted. Once
// the role is assigned the registration is committed and a failed implicit
// login does not undo it.
func (o *Orchestrator) Register(ctx context.Context, req Request) (*UserRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		cred   admincred.Credential
		userID string
		role   realmadmin.Role
		pair   *token.Pair
	)
	steps := []step{
		{
			stage: StageAdminAuth,
			run: func(ctx context.Context) (err error) {
				cred, err = o.acquirer.Acquire(ctx)
				return err
			},
		},
		{
			stage: StageUserCreate,
			run: func(ctx context.Context) (err error) {
				userID, err = o.admin.CreateUser(ctx, cred.AccessToken, realmadmin.UserRepresentation{
					Username:    req.Username,
					Email:       req.Email,
					FirstName:   req.FirstName,
					LastName:    req.LastName,
					Enabled:     true,
					Credentials: []realmadmin.Credential{realmadmin.PasswordCredential(req.Password)},
				})
				return o.checkAdminToken(err)
			},
			compensate: func(ctx context.Context) error {
				return o.admin.DeleteUser(ctx, cred.AccessToken, userID)
			},
		},
		{
			stage: StageRoleLookup,
			run: func(ctx context.Context) (err error) {
				role, err = o.admin.GetRole(ctx, cred.AccessToken, o.defaultRole)
				return o.checkAdminToken(err)
			},
		},
		{
			stage: StageRoleAssign,
			run: func(ctx context.Context) error {
				return o.checkAdminToken(o.admin.AssignRealmRole(ctx, cred.AccessToken, userID, role))
			},
			pivot: true,
		},
		{
			stage: StageImplicitLogin,
			run: func(ctx context.Context) (err error) {
				pair, err = o.auth.Login(ctx, req.Username, req.Password)
				return err
			},
		},
	}

	if failure := runSaga(ctx, steps); failure != nil {
		return nil, o.fail(ctx, req, userID, failure)
	}

	slog.Info("User registered", "username", req.Username, "user_id", userID, "role", role.Name)
	return &UserRecord{
		ID:        userID,
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Token:     pair,
	}, nil
}

// checkAdminToken drops a cached admin credential the provider refused.
func (o *Orchestrator) checkAdminToken(err error) error {
	if err != nil && realmadmin.IsUnauthorized(err) {
		if inv, ok := o.acquirer.(admincred.Invalidator); ok {
			inv.Invalidate()
		}
	}
	return err
}

func (o *Orchestrator) fail(ctx context.Context, req Request, userID string, f *sagaFailure) *Error {
	regErr := &Error{
		Stage:  f.stage,
		Detail: detailOf(f.err),
		UserID: userID,
		Err:    f.err,
	}
	logger := slog.With("stage", f.stage, "username", req.Username, "user_id", userID)
	logger.Warn("Registration failed", "error", f.err)
	o.metrics.IncRegistrationFailure(string(f.stage))

	if userID == "" || f.committed {
		return regErr
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cleanupTimeout)
	defer cancel()

	if o.compensate && len(f.undo) > 0 {
		ok, err := f.compensate(cleanupCtx)
		o.metrics.IncCompensation("delete_user", err)
		if ok {
			logger.Info("Registration compensated, user deleted")
			regErr.Compensated = true
			return regErr
		}
		logger.Error("Registration compensation failed", "error", err)
	}

	if o.pending != nil {
		record := reconciliation.NewPendingUser(userID, req.Username, o.defaultRole, string(f.stage), regErr.Detail)
		if err := o.pending.Save(cleanupCtx, record); err != nil {
			logger.Error("Failed to record pending user", "error", err)
			return regErr
		}
		o.metrics.IncPendingUser("recorded")
		regErr.Pending = true
		logger.Info("User left without role, recorded for reconciliation", "pending_id", record.ID)
	}
	return regErr
}
