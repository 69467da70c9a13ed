package reconciliation

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tendant/idm-gateway/pkg/admincred"
	"github.com/tendant/idm-gateway/pkg/metrics"
	"github.com/tendant/idm-gateway/pkg/realmadmin"
	"github.com/tendant/idm-gateway/pkg/telemetry"
)

// Result counts the outcome of one reconciliation pass.
type Result struct {
	Resolved int // role assigned, record deleted
	Dropped  int // user no longer exists, record deleted
	Failed   int // record kept for the next pass
}

// Reconciler assigns the missing realm role to pending users.
type Reconciler struct {
	store    Store
	acquirer admincred.Acquirer
	admin    *realmadmin.Client
	metrics  *metrics.Metrics
}

func NewReconciler(store Store, acquirer admincred.Acquirer, admin *realmadmin.Client, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		store:    store,
		acquirer: acquirer,
		admin:    admin,
		metrics:  m,
	}
}

// Run performs a single pass over every pending record. Per-record failures
// are counted, not returned; an error means the pass could not start.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "reconciliation.Run")
	defer span.End()

	var result Result
	pending, err := r.store.List(ctx)
	if err != nil {
		return result, err
	}
	span.SetAttributes(attribute.Int("reconciliation.pending", len(pending)))
	if len(pending) == 0 {
		return result, nil
	}

	cred, err := r.acquirer.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire admin credential: %w", err)
	}

	roles := make(map[string]realmadmin.Role)
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logger := slog.With("pending_id", p.ID, "user_id", p.UserID, "username", p.Username, "role", p.Role)

		if _, err := r.admin.GetUser(ctx, cred.AccessToken, p.UserID); err != nil {
			if realmadmin.IsNotFound(err) {
				if err := r.delete(ctx, p); err != nil {
					logger.Error("Failed to drop pending user", "error", err)
					result.Failed++
					continue
				}
				logger.Info("Pending user no longer exists, dropped")
				r.metrics.IncPendingUser("dropped")
				result.Dropped++
				continue
			}
			logger.Warn("Pending user lookup failed", "error", err)
			result.Failed++
			continue
		}

		role, ok := roles[p.Role]
		if !ok {
			role, err = r.admin.GetRole(ctx, cred.AccessToken, p.Role)
			if err != nil {
				logger.Warn("Role lookup failed", "error", err)
				result.Failed++
				continue
			}
			roles[p.Role] = role
		}

		if err := r.admin.AssignRealmRole(ctx, cred.AccessToken, p.UserID, role); err != nil {
			logger.Warn("Role assignment failed", "error", err)
			result.Failed++
			continue
		}
		if err := r.delete(ctx, p); err != nil {
			logger.Error("Role assigned but record not deleted", "error", err)
			result.Failed++
			continue
		}
		logger.Info("Pending user resolved")
		r.metrics.IncPendingUser("resolved")
		result.Resolved++
	}

	slog.Info("Reconciliation pass finished", "resolved", result.Resolved, "dropped", result.Dropped, "failed", result.Failed)
	return result, nil
}

func (r *Reconciler) delete(ctx context.Context, p PendingUser) error {
	err := r.store.Delete(ctx, p.ID)
	if err == ErrNotFound {
		return nil
	}
	return err
}
