package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"judge0gw/internal/metrics"
)

const (
	// DefaultTimeout bounds each individual store call.
	DefaultTimeout = 5 * time.Second

	maxAttempts = 2
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Limit is the user's limit at the time of the check.
	Limit int
	// Usage is the stored usage after the decision was applied.
	Usage int
	// Created is true when the check created the user's record.
	Created bool
}

// Policy decides whether a user may submit and records the usage.
type Policy struct {
	store        Store
	defaultLimit int
	timeout      time.Duration
	locks        *keyedMutex
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

// Option configures a Policy.
type Option func(*Policy)

// WithDefaultLimit sets the limit given to new users.
func WithDefaultLimit(limit int) Option {
	return func(p *Policy) {
		p.defaultLimit = limit
	}
}

// WithTimeout sets the per-call store timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Policy) {
		p.timeout = d
	}
}

// WithLogger sets the policy logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables quota metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Policy) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for admission spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Policy) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// NewPolicy creates a policy backed by store.
func NewPolicy(store Store, opts ...Option) *Policy {
	p := &Policy{
		store:        store,
		defaultLimit: DefaultLimit,
		timeout:      DefaultTimeout,
		locks:        newKeyedMutex(),
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("quota"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "quota")
	return p
}

// Admit checks the user's quota and, when the user is admitted, counts the
// submission. A denied check never mutates the store. Store failures and
// repeated concurrent updates are returned as errors matching
// ErrStoreUnavailable, in which case the caller must not forward.
func (p *Policy) Admit(ctx context.Context, userID string) (Decision, error) {
	ctx, span := p.tracer.Start(ctx, "quota.Admit",
		trace.WithAttributes(attribute.String("quota.user_id", userID)),
	)
	defer span.End()

	decision, err := p.admit(ctx, userID)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.ObserveQuotaDecision(metrics.DecisionError)
		p.logger.Error("quota check failed", "user_id", userID, "error", err)
	case decision.Allowed:
		span.SetAttributes(attribute.Bool("quota.allowed", true), attribute.Int("quota.usage", decision.Usage))
		p.metrics.ObserveQuotaDecision(metrics.DecisionAllowed)
		p.logger.Debug("submission admitted", "user_id", userID, "usage", decision.Usage, "limit", decision.Limit, "created", decision.Created)
	default:
		span.SetAttributes(attribute.Bool("quota.allowed", false), attribute.Int("quota.limit", decision.Limit))
		p.metrics.ObserveQuotaDecision(metrics.DecisionDenied)
		p.logger.Info("daily limit reached", "user_id", userID, "limit", decision.Limit)
	}
	return decision, err
}

func (p *Policy) admit(ctx context.Context, userID string) (Decision, error) {
	unlock, err := p.locks.lock(ctx, userID)
	if err != nil {
		return Decision{}, Unavailable("admit", err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		decision, err := p.attempt(ctx, userID)
		if err == nil {
			return decision, nil
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrAlreadyExists) {
			return Decision{}, err
		}
		lastErr = err
		p.metrics.ObserveQuotaConflict()
		p.logger.Warn("concurrent quota update", "user_id", userID, "attempt", attempt, "error", err)
	}
	return Decision{}, Unavailable("admit", fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr))
}

// attempt runs one read-decide-write cycle.
func (p *Policy) attempt(ctx context.Context, userID string) (Decision, error) {
	var rec Record
	err := p.call(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = p.store.Get(ctx, userID)
		return err
	})

	if errors.Is(err, ErrNotFound) {
		err = p.call(ctx, "create", func(ctx context.Context) error {
			return p.store.Create(ctx, userID, p.defaultLimit, 1)
		})
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Limit: p.defaultLimit, Usage: 1, Created: true}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	if rec.Exhausted() {
		return Decision{Allowed: false, Limit: rec.Limit, Usage: rec.Usage}, nil
	}

	err = p.call(ctx, "increment", func(ctx context.Context) error {
		return p.store.IncrementUsage(ctx, userID, rec.Usage)
	})
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, Limit: rec.Limit, Usage: rec.Usage + 1}, nil
}

// call runs one store operation under the configured timeout. Errors that are
// not part of the store contract are reported as ErrStoreUnavailable.
func (p *Policy) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveStoreOperation(op, storeFailure(err), time.Since(start))

	if err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return Unavailable(op, err)
}

// storeFailure filters out contract outcomes so they are not counted as errors.
func storeFailure(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}
