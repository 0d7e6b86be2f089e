package structural

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greenresilience/orchestration/pkg/fn"
	"github.com/greenresilience/orchestration/pkg/metrics"
	"github.com/greenresilience/orchestration/pkg/resilience"
)

// Engine runs the three analysis modules.
type Engine interface {
	Hazard(ctx context.Context, in HazardInput) (HazardOutput, error)
	Response(ctx context.Context, in ResponseInput) (ResponseOutput, error)
	Damage(ctx context.Context, in DamageInput) (DamageOutput, error)
}

// Transport moves one JSON request/response pair to a module.
type Transport interface {
	Call(ctx context.Context, module string, in, out any) error
}

// ModuleError is a failure the engine itself reported. It is not retried.
type ModuleError struct {
	Module string
	Msg    string
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("engine %s module: %s", e.Module, e.Msg)
}

// ClientOpts configures a Client. Zero values take the package defaults.
type ClientOpts struct {
	Breaker resilience.BreakerOpts
	Retry   fn.RetryOpts
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Client implements Engine over a Transport, behind a circuit breaker and
// retry with backoff.
type Client struct {
	transport Transport
	breaker   *resilience.Breaker
	retry     fn.RetryOpts
	metrics   *metrics.Registry
	logger    *slog.Logger
}

var _ Engine = (*Client)(nil)

// NewClient wraps a transport.
func NewClient(t Transport, opts ClientOpts) *Client {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.DefaultRetry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breaker.OnStateChange == nil {
		log := opts.Logger
		opts.Breaker.OnStateChange = func(from, to resilience.State) {
			log.Warn("engine breaker state changed", "from", from, "to", to)
		}
	}
	return &Client{
		transport: t,
		breaker:   resilience.NewBreaker(opts.Breaker),
		retry:     opts.Retry,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

func call[In, Out any](ctx context.Context, c *Client, module string, in In) (Out, error) {
	start := time.Now()
	attempt := 0
	r := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[Out] {
		attempt++
		return resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[Out] {
			var out Out
			if err := c.transport.Call(ctx, module, in, &out); err != nil {
				var me *ModuleError
				if errors.As(err, &me) {
					return fn.Err[Out](fn.Permanent(err))
				}
				c.logger.Warn("engine call failed", "module", module, "attempt", attempt, "error", err)
				return fn.Err[Out](err)
			}
			return fn.Ok(out)
		})
	})
	out, err := r.Unwrap()
	c.metrics.ObserveEngineCall(module, start, err)
	if err != nil {
		return out, fmt.Errorf("structural %s: %w", module, err)
	}
	c.logger.Info("engine call", "module", module, "attempts", attempt, "took", time.Since(start))
	return out, nil
}

// Hazard runs the hazard module.
func (c *Client) Hazard(ctx context.Context, in HazardInput) (HazardOutput, error) {
	return call[HazardInput, HazardOutput](ctx, c, ModuleHazard, in)
}

// Response runs the response module.
func (c *Client) Response(ctx context.Context, in ResponseInput) (ResponseOutput, error) {
	return call[ResponseInput, ResponseOutput](ctx, c, ModuleResponse, in)
}

// Damage runs the damage module.
func (c *Client) Damage(ctx context.Context, in DamageInput) (DamageOutput, error) {
	return call[DamageInput, DamageOutput](ctx, c, ModuleDamage, in)
}
