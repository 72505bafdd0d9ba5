package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"patientsync/internal/metrics"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

// cleanupInterval is how often idle rate limiter state is dropped.
const cleanupInterval = 5 * time.Minute

// PatientDetailRelay handles the SyncOpenPatientDetail invocation.
type PatientDetailRelay interface {
	SyncOpenPatientDetail(ctx context.Context, caller interfaces.Caller, patientID int) error
}

type handlerFunc func(ctx context.Context, caller interfaces.Caller, args []json.RawMessage) error

// Router maps invocation targets to handlers and rate limits callers.
type Router struct {
	rateLimiter *RateLimiter
	handlers    map[string]handlerFunc
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewRouter(relay PatientDetailRelay, limiter *RateLimiter, m *metrics.Metrics, logger *zap.Logger) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, DefaultRateWindow)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		rateLimiter: limiter,
		metrics:     m,
		logger:      logger.Named("router"),
	}
	r.handlers = map[string]handlerFunc{
		types.TargetSyncOpenPatientDetail: func(ctx context.Context, caller interfaces.Caller, args []json.RawMessage) error {
			patientID, err := singleInt(args)
			if err != nil {
				return err
			}
			return relay.SyncOpenPatientDetail(ctx, caller, patientID)
		},
	}
	return r
}

// Dispatch runs the handler registered for frame.Target. Callers without a
// principal are not rate limited; the handler decides what to do with them.
func (r *Router) Dispatch(ctx context.Context, caller interfaces.Caller, frame types.Frame) error {
	principal := caller.Principal()

	handler, ok := r.handlers[frame.Target]
	if !ok {
		r.metrics.InvocationRejected("unknown_target")
		r.logger.Warn("unknown invocation target",
			zap.String("target", frame.Target),
			zap.String("principal", principal))
		return fmt.Errorf("%w: %q", ErrUnknownTarget, frame.Target)
	}

	if principal != "" && !r.rateLimiter.Allow(principal) {
		r.metrics.InvocationRejected("rate_limited")
		r.logger.Warn("invocation rate limited", zap.String("principal", principal))
		return ErrRateLimitExceeded
	}

	if err := handler(ctx, caller, frame.Arguments); err != nil {
		r.logger.Debug("invocation failed",
			zap.String("target", frame.Target),
			zap.String("invocation_id", frame.InvocationID),
			zap.Error(err))
		return err
	}
	return nil
}

// StartCleanup prunes the rate limiter until ctx is cancelled.
func (r *Router) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.rateLimiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func singleInt(args []json.RawMessage) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected 1 argument, got %d", ErrInvalidArguments, len(args))
	}
	var n int
	if err := json.Unmarshal(args[0], &n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return n, nil
}
