package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hmac-gateway/internal/auth"
	apperrors "hmac-gateway/internal/common/errors"
)

// Stage is one step of the authentication chain. Run returns the context to
// hand to the next stage, or an error that ends the chain.
type Stage interface {
	Name() string
	Run(ctx context.Context, rc *RequestContext) (*RequestContext, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, rc *RequestContext) (*RequestContext, error)
}

// NewStage names fn as a stage.
func NewStage(name string, fn func(ctx context.Context, rc *RequestContext) (*RequestContext, error)) StageFunc {
	return StageFunc{name: name, fn: fn}
}

func (s StageFunc) Name() string { return s.name }

func (s StageFunc) Run(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
	return s.fn(ctx, rc)
}

// Chain runs stages in order and stops at the first rejection.
type Chain struct {
	stages  []Stage
	metrics *Metrics
}

// NewChain creates a chain. metrics may be nil.
func NewChain(metrics *Metrics, stages ...Stage) *Chain {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Chain{stages: stages, metrics: metrics}
}

// StageNames lists the stages in execution order.
func (c *Chain) StageNames() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the chain. It always returns the last context a stage produced
// successfully, so callers can see state such as an idempotency claim even when
// a later stage rejects. On failure it also returns the failing stage's name
// and an *auth.Rejection.
func (c *Chain) Run(ctx context.Context, rc *RequestContext) (*RequestContext, string, error) {
	for _, stage := range c.stages {
		name := stage.Name()

		start := time.Now()
		next, err := runStage(ctx, stage, rc)
		c.metrics.stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		c.metrics.stageRequests.WithLabelValues(name).Inc()

		if err == nil {
			rc = next
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.cancelled.WithLabelValues(name).Inc()
			rej := auth.Reject(auth.KindInternal, ctxErr)
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				rej = auth.AsRejection(apperrors.TimeoutError(name))
			}
			c.metrics.rejections.WithLabelValues(name, string(rej.Kind)).Inc()
			return rc, name, rej
		}

		if err != nil {
			rej := auth.AsRejection(err)
			c.metrics.rejections.WithLabelValues(name, string(rej.Kind)).Inc()
			return rc, name, rej
		}
	}
	return rc, "", nil
}

func runStage(ctx context.Context, stage Stage, rc *RequestContext) (next *RequestContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = auth.Reject(auth.KindInternal, fmt.Errorf("stage %s panicked: %v", stage.Name(), r))
		}
	}()

	next, err = stage.Run(ctx, rc)
	if err == nil && next == nil {
		err = auth.Reject(auth.KindInternal, fmt.Errorf("stage %s returned no context", stage.Name()))
	}
	return next, err
}
