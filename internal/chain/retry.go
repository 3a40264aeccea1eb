package chain

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"transferWatch/internal/metrics"
)

// RetryPolicy bounds retries per RPC call.
type RetryPolicy struct {
	// Attempts caps total attempts for transient failures.
	Attempts int
	// Delay is multiplied by the attempt number between transient retries.
	Delay time.Duration
	// RateLimitAttempts caps total attempts when the provider throttles.
	RateLimitAttempts int
	// Cooldown doubles per rate-limited attempt up to MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
	// CallTimeout applies to each individual attempt.
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when fields are left zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:          3,
		Delay:             2 * time.Second,
		RateLimitAttempts: 6,
		Cooldown:          15 * time.Second,
		MaxCooldown:       600 * time.Second,
		CallTimeout:       20 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.RateLimitAttempts <= 0 {
		p.RateLimitAttempts = def.RateLimitAttempts
	}
	if p.Cooldown <= 0 {
		p.Cooldown = def.Cooldown
	}
	if p.MaxCooldown <= 0 {
		p.MaxCooldown = def.MaxCooldown
	}
	if p.MaxCooldown < p.Cooldown {
		p.MaxCooldown = p.Cooldown
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = def.CallTimeout
	}
	return p
}

// TransientDelay returns the wait before the next attempt after n transient failures.
func (p RetryPolicy) TransientDelay(n int) time.Duration {
	return p.Delay * time.Duration(n)
}

// RateLimitDelay returns the wait after n consecutive rate-limited failures.
func (p RetryPolicy) RateLimitDelay(n int) time.Duration {
	delay := p.Cooldown
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= p.MaxCooldown {
			return p.MaxCooldown
		}
	}
	if delay > p.MaxCooldown {
		return p.MaxCooldown
	}
	return delay
}

// retrier serializes attempts on a shared transport and sleeps between
// attempts without holding the lock.
type retrier struct {
	policy  RetryPolicy
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

func newRetrier(policy RetryPolicy, limiter *rate.Limiter, logger *zap.Logger) *retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrier{
		policy:  policy.withDefaults(),
		limiter: limiter,
		logger:  logger,
		sleep:   sleepContext,
	}
}

func (r *retrier) do(ctx context.Context, method string, fn func(context.Context) error) error {
	var transient, limited int
	for {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := r.attempt(ctx, method, fn)
		if err == nil {
			metrics.RPCCallsTotal.WithLabelValues(method, "ok").Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		class := Classify(err)
		metrics.RPCCallsTotal.WithLabelValues(method, class.String()).Inc()

		var delay time.Duration
		switch class {
		case ClassTransient:
			transient++
			if transient >= r.policy.Attempts {
				return &CallError{Method: method, Class: class, Attempts: transient + limited, Err: err}
			}
			delay = r.policy.TransientDelay(transient)
		case ClassRateLimited:
			limited++
			if limited >= r.policy.RateLimitAttempts {
				return &CallError{Method: method, Class: class, Attempts: transient + limited, Err: err}
			}
			delay = r.policy.RateLimitDelay(limited)
		default:
			return &CallError{Method: method, Class: class, Attempts: transient + limited + 1, Err: err}
		}

		metrics.RPCRetriesTotal.WithLabelValues(method, class.String()).Inc()
		r.logger.Warn("rpc call failed, retrying",
			zap.String("method", method),
			zap.String("class", class.String()),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (r *retrier) attempt(ctx context.Context, method string, fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
