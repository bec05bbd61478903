package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// ErrEmptyResponse 表示补全服务成功返回但没有任何文本。
var ErrEmptyResponse = errors.New("llm: completion returned no text")

const defaultRetryInterval = 200 * time.Millisecond

// Completer 是补全服务的唯一归一化入口：要么返回非空文本，要么返回明确的错误。
// 它负责超时、有限次数的退避重试和熔断。
type Completer struct {
	model         LLM
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	breaker       *gobreaker.CircuitBreaker
	log           *logger.Logger
}

// NewCompleter wraps model with the timeout, retry and breaker policy from cfg.
func NewCompleter(model LLM, cfg config.LLMConfig, log *logger.Logger) *Completer {
	c := &Completer{
		model:         model,
		timeout:       cfg.TimeoutDuration(),
		maxRetries:    cfg.MaxRetries,
		retryInterval: defaultRetryInterval,
		log:           log,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = newBreaker(cfg.CircuitBreaker, log)
	}
	return c
}

func newBreaker(cfg config.CircuitBreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.TimeoutDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithPayload(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
		// 空回复说明服务可达，不计为失败。
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyResponse)
		},
	})
}

// Complete sends prompt to the model and returns its trimmed text.
// It returns ErrEmptyResponse when the model answered without text, and a
// wrapped transport, timeout or breaker error otherwise.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	operation := func() (string, error) {
		text, err := c.attempt(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if !c.retryable(ctx, err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.WithError(models.NewErrorInfo(err, "llm_error")).
				WithField("retry_in_ms", next.Milliseconds()).
				Warn("completion failed, retrying")
		}),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Completer) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, ErrEmptyResponse) &&
		!errors.Is(err, gobreaker.ErrOpenState) &&
		!errors.Is(err, gobreaker.ErrTooManyRequests)
}

// attempt runs one bounded call, through the breaker when one is configured.
func (c *Completer) attempt(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.breaker == nil {
		return c.generate(callCtx, prompt)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generate(callCtx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type generateResult struct {
	text string
	err  error
}

// generate calls the model in its own goroutine so a client that ignores ctx
// still cannot hold the turn past the timeout.
func (c *Completer) generate(ctx context.Context, prompt string) (string, error) {
	done := make(chan generateResult, 1)
	go func() {
		var res generateResult
		defer func() {
			if r := recover(); r != nil {
				res = generateResult{err: fmt.Errorf("llm: panic during generation: %v", r)}
			}
			done <- res
		}()
		resp, err := c.model.GenerateContent(ctx, models.NewTextRequest(prompt))
		if err != nil {
			res.err = fmt.Errorf("llm: generate content: %w", err)
			return
		}
		res.text = strings.TrimSpace(resp.Text())
		if res.text == "" {
			res.err = ErrEmptyResponse
		}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("llm: generate content: %w", ctx.Err())
	}
}
