package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtat/tomtat/internal/ports"
)

// Resilience configures the standard middleware stack.
type Resilience struct {
	Timeout         time.Duration `yaml:"timeout" json:"timeout" validate:"required,min=1s"`
	RatePerSecond   float64       `yaml:"rate_per_second" json:"rate_per_second" validate:"gt=0"`
	Burst           int           `yaml:"burst" json:"burst" validate:"min=1"`
	MaxFailures     int           `yaml:"max_failures" json:"max_failures" validate:"min=1"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" json:"breaker_cooldown" validate:"min=1s"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries" validate:"min=0,max=5"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" validate:"min=0"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" validate:"gtefield=RetryBaseDelay"`
}

// DefaultResilience returns the settings used by the judge.
func DefaultResilience() Resilience {
	return Resilience{
		Timeout:         60 * time.Second,
		RatePerSecond:   2,
		Burst:           4,
		MaxFailures:     5,
		BreakerCooldown: 30 * time.Second,
		MaxRetries:      2,
		RetryBaseDelay:  500 * time.Millisecond,
		RetryMaxDelay:   5 * time.Second,
	}
}

// Chain builds the middleware stack, outermost first: tracing, metrics,
// retry, circuit breaker, rate limit, per-attempt timeout. A nil collector
// skips metrics.
func Chain(collector ports.MetricsCollector, r Resilience) []Middleware {
	chain := []Middleware{TracingMiddleware()}
	if collector != nil {
		chain = append(chain, MetricsMiddleware(collector))
	}
	return append(chain,
		RetryMiddleware(r.MaxRetries, r.RetryBaseDelay, r.RetryMaxDelay),
		CircuitBreakerMiddleware(r.MaxFailures, r.BreakerCooldown),
		RateLimitMiddleware(rate.Limit(r.RatePerSecond), r.Burst),
		TimeoutMiddleware(r.Timeout),
	)
}

// passthrough forwards the identity methods so each middleware only has to
// implement DoRequest.
type passthrough struct{ next CoreLLM }

func (p passthrough) Provider() string { return p.next.Provider() }
func (p passthrough) GetModel() string { return p.next.GetModel() }

type timeoutLLM struct {
	passthrough
	timeout time.Duration
}

// TimeoutMiddleware bounds every call to the wrapped core by timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{passthrough: passthrough{next}, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

type rateLimitedLLM struct {
	passthrough
	limiter *rate.Limiter
}

// RateLimitMiddleware paces calls with a token bucket. Waiting respects ctx.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{passthrough: passthrough{next}, limiter: limiter}
	}
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("waiting for rate limiter: %w: %w", ports.ErrRateLimited, err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls until cooldown has passed. One trial call is then let through;
// its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	trial       bool
	now         func() time.Time
}

func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: max(maxFailures, 1), cooldown: cooldown, now: time.Now}
}

// State returns the current state, moving open to half-open once the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.trial = false
	}
}

// allow reports whether a call may proceed, reserving the half-open trial.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	switch cb.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.trial {
			return false
		}
		cb.trial = true
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A caller giving up says nothing about provider health.
	if errors.Is(err, context.Canceled) {
		cb.trial = false
		return
	}
	if err == nil {
		cb.state, cb.failures, cb.trial = StateClosed, 0, false
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state, cb.openedAt, cb.trial = StateOpen, cb.now(), false
	}
}

type circuitBreakerLLM struct {
	passthrough
	cb *CircuitBreaker
}

// CircuitBreakerMiddleware shares one CircuitBreaker across every core it wraps.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{passthrough: passthrough{next}, cb: cb}
	}
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !c.cb.allow() {
		return "", 0, 0, ErrCircuitOpen
	}
	response, in, out, err := c.next.DoRequest(ctx, prompt, opts)
	c.cb.record(err)
	return response, in, out, err
}

type retryLLM struct {
	passthrough
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(context.Context, time.Duration) error
}

// RetryMiddleware retries retryable provider errors with exponential backoff
// and jitter. Non-retryable errors and an open circuit return immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			passthrough: passthrough{next},
			maxRetries:  maxRetries,
			baseDelay:   baseDelay,
			maxDelay:    maxDelay,
			sleep:       sleepCtx,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var err error
	for attempt := 0; ; attempt++ {
		var response string
		var in, out int
		response, in, out, err = r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, in, out, nil
		}
		if attempt == r.maxRetries || !isRetryable(err) || ctx.Err() != nil {
			break
		}
		if serr := r.sleep(ctx, r.delay(attempt)); serr != nil {
			return "", 0, 0, serr
		}
	}
	return "", 0, 0, err
}

// delay is baseDelay*2^attempt, jittered by -25%..+25% and capped at maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	d := r.baseDelay << min(attempt, 20)
	jitter := time.Duration(rand.Float64() * float64(d) / 2)
	d = d - d/4 + jitter
	return min(d, r.maxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
