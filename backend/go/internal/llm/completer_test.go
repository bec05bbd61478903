package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/pkg/logger"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM replays one step per call; the last step repeats.
type scriptedLLM struct {
	mu     sync.Mutex
	steps  []func(ctx context.Context) (*models.GenerateContentResponse, error)
	calls  int
	prompt string
}

func (s *scriptedLLM) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++
	s.prompt = req.Content[0].Parts[0].Text
	step := s.steps[idx]
	s.mu.Unlock()
	return step(ctx)
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func reply(text string) func(context.Context) (*models.GenerateContentResponse, error) {
	return func(context.Context) (*models.GenerateContentResponse, error) {
		return &models.GenerateContentResponse{Content: []models.Content{{Parts: []*models.Part{{Text: text}}}}}, nil
	}
}

func fail(err error) func(context.Context) (*models.GenerateContentResponse, error) {
	return func(context.Context) (*models.GenerateContentResponse, error) { return nil, err }
}

func newTestCompleter(model LLM, cfg config.LLMConfig) *Completer {
	if cfg.Timeout == "" {
		cfg.Timeout = "1s"
	}
	c := NewCompleter(model, cfg, logger.Discard())
	c.retryInterval = time.Millisecond
	return c
}

func TestComplete_ReturnsTrimmedText(t *testing.T) {
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){reply("  Hey there!\n")}}
	c := newTestCompleter(model, config.LLMConfig{})

	text, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hey there!", text)
	assert.Equal(t, "hello", model.prompt)
}

func TestComplete_EmptyTextIsErrEmptyResponse(t *testing.T) {
	for name, step := range map[string]func(context.Context) (*models.GenerateContentResponse, error){
		"blank":    reply("   "),
		"no parts": func(context.Context) (*models.GenerateContentResponse, error) { return &models.GenerateContentResponse{}, nil },
		"nil":      func(context.Context) (*models.GenerateContentResponse, error) { return nil, nil },
	} {
		t.Run(name, func(t *testing.T) {
			model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){step}}
			c := newTestCompleter(model, config.LLMConfig{MaxRetries: 3})

			_, err := c.Complete(context.Background(), "hi")
			assert.ErrorIs(t, err, ErrEmptyResponse)
			assert.Equal(t, 1, model.callCount(), "empty responses are not retried")
		})
	}
}

func TestComplete_RetriesTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){fail(boom), fail(boom), reply("ok")}}
	c := newTestCompleter(model, config.LLMConfig{MaxRetries: 2})

	text, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, model.callCount())
}

func TestComplete_GivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("503 unavailable")
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){fail(boom)}}
	c := newTestCompleter(model, config.LLMConfig{MaxRetries: 1})

	_, err := c.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, model.callCount())
}

func TestComplete_TimesOutSlowModel(t *testing.T) {
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){
		func(context.Context) (*models.GenerateContentResponse, error) {
			time.Sleep(300 * time.Millisecond)
			return &models.GenerateContentResponse{}, nil
		},
	}}
	c := newTestCompleter(model, config.LLMConfig{})
	c.timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := c.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestComplete_RecoversFromPanic(t *testing.T) {
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){
		func(context.Context) (*models.GenerateContentResponse, error) { panic("bad client") },
	}}
	c := newTestCompleter(model, config.LLMConfig{})

	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad client")
}

func TestComplete_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("connection refused")
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){fail(boom)}}
	c := newTestCompleter(model, config.LLMConfig{
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 2, HalfOpenRequests: 1, Timeout: "1m"},
	})

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), "hi")
		assert.ErrorIs(t, err, boom)
	}
	_, err := c.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, model.callCount())
}

func TestComplete_EmptyResponseDoesNotTripBreaker(t *testing.T) {
	model := &scriptedLLM{steps: []func(context.Context) (*models.GenerateContentResponse, error){reply("")}}
	c := newTestCompleter(model, config.LLMConfig{
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, Timeout: "1m"},
	})

	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	}
	assert.Equal(t, 3, model.callCount())
}
