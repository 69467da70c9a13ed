package registration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/telemetry"
)

// step is one forward action of the registration saga.
type step struct {
	stage Stage
	run   func(ctx context.Context) error
	// compensate undoes run; nil when there is nothing to undo.
	compensate func(ctx context.Context) error
	// pivot commits the saga: once it succeeds nothing is compensated.
	pivot bool
}

// sagaFailure describes where a saga stopped.
type sagaFailure struct {
	stage     Stage
	err       error
	committed bool
	// undo lists the compensations of completed steps, most recent first.
	undo []step
}

// runSaga executes steps in order and stops at the first failure. A context
// that is already done fails the step about to start.
func runSaga(ctx context.Context, steps []step) *sagaFailure {
	var completed []step
	committed := false
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return newSagaFailure(s.stage, gwerrors.ProviderUnavailable(err, string(s.stage)), committed, completed)
		}
		if err := runStep(ctx, s); err != nil {
			return newSagaFailure(s.stage, err, committed, completed)
		}
		completed = append(completed, s)
		if s.pivot {
			committed = true
		}
	}
	return nil
}

func runStep(ctx context.Context, s step) error {
	ctx, span := telemetry.Tracer().Start(ctx, "registration."+string(s.stage))
	defer span.End()
	if err := s.run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(gwerrors.GetCode(err)))
		return err
	}
	return nil
}

func newSagaFailure(stage Stage, err error, committed bool, completed []step) *sagaFailure {
	f := &sagaFailure{stage: stage, err: err, committed: committed}
	if committed {
		return f
	}
	for i := len(completed) - 1; i >= 0; i-- {
		if completed[i].compensate != nil {
			f.undo = append(f.undo, completed[i])
		}
	}
	return f
}

// compensate runs every pending compensation and reports whether all of
// them succeeded. The first error is returned.
func (f *sagaFailure) compensate(ctx context.Context) (bool, error) {
	var firstErr error
	for _, s := range f.undo {
		sctx, span := telemetry.Tracer().Start(ctx, "registration.compensate."+string(s.stage))
		err := s.compensate(sctx)
		span.SetAttributes(attribute.Bool("compensation.ok", err == nil))
		if err != nil {
			span.RecordError(err)
			if firstErr == nil {
				firstErr = err
			}
		}
		span.End()
	}
	return firstErr == nil, firstErr
}
