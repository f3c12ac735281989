package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"storyforge/internal/model"
)

// Backend is the chat model contract every provider satisfies.
type Backend interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// Generator turns a prompt and a system instruction into text, recording the exchange in log.
type Generator interface {
	Generate(ctx context.Context, prompt, instruction string, log *model.ConversationLog) (string, error)
}

// GenerationError is returned when the backend could not produce a response.
type GenerationError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err wraps a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// RetryConfig bounds retries of a failed backend call.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

type Option func(*Client)

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTimeout bounds every backend attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithProvider(name string) Option {
	return func(c *Client) { c.provider = name }
}

// Client is the generation client shared by all story steps.
type Client struct {
	provider string
	backend  Backend
	retry    RetryConfig
	timeout  time.Duration
}

// NewClient wraps backend with retry and log bookkeeping.
func NewClient(ctx context.Context, backend Backend, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	c := &Client{
		provider: "unknown",
		backend:  backend,
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate sends [instruction, prompt] to the backend and returns the trimmed reply.
// On success one assistant record holding the reply on a single line is appended to log.
func (c *Client) Generate(ctx context.Context, prompt, instruction string, log *model.ConversationLog) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(instruction),
		schema.UserMessage(prompt),
	}

	var (
		res      *schema.Message
		attempts int
	)
	operation := func() error {
		attempts++
		callCtx, cancel := c.attemptContext(ctx)
		defer cancel()

		out, err := c.backend.Generate(callCtx, messages)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if out == nil {
			return errors.New("backend returned no message")
		}
		res = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retry.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"provider": c.provider,
			"attempt":  attempts,
			"wait":     wait,
		}).WithError(err).Warn("generation attempt failed, retrying")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", &GenerationError{Provider: c.provider, Attempts: attempts, Err: err}
	}

	text := strings.TrimSpace(res.Content)
	if log != nil {
		log.Append(model.RoleAssistant, collapse(text))
	}
	return text, nil
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func collapse(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

var _ Generator = (*Client)(nil)
