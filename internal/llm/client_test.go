package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/model"
)

// scriptedBackend replays replies in order; an error entry fails that call.
type scriptedBackend struct {
	mu       sync.Mutex
	replies  []any
	calls    int
	received [][]*schema.Message
}

func (b *scriptedBackend) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.received = append(b.received, input)
	idx := b.calls
	b.calls++
	if idx >= len(b.replies) {
		return nil, errors.New("no scripted reply")
	}
	switch r := b.replies[idx].(type) {
	case error:
		return nil, r
	case string:
		return schema.AssistantMessage(r, nil), nil
	}
	return nil, errors.New("bad script")
}

func fastRetry(n uint64) Option {
	return WithRetry(RetryConfig{MaxRetries: n, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})
}

func TestClientGenerate(t *testing.T) {
	backend := &scriptedBackend{replies: []any{"  line one\nline two\n\n"}}
	c, err := NewClient(context.Background(), backend, fastRetry(0))
	require.NoError(t, err)

	var log model.ConversationLog
	out, err := c.Generate(context.Background(), "the prompt", "the instruction", &log)
	require.NoError(t, err)

	assert.Equal(t, "line one\nline two", out)
	require.Len(t, log, 1)
	assert.Equal(t, model.RoleAssistant, log[0].Role)
	assert.Equal(t, "line one line two", log[0].Content)

	require.Len(t, backend.received, 1)
	msgs := backend.received[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "the instruction", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "the prompt", msgs[1].Content)
}

func TestClientRetriesTransientFailure(t *testing.T) {
	backend := &scriptedBackend{replies: []any{errors.New("503"), errors.New("503"), "ok"}}
	c, err := NewClient(context.Background(), backend, fastRetry(2))
	require.NoError(t, err)

	var log model.ConversationLog
	out, err := c.Generate(context.Background(), "p", "i", &log)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, backend.calls)
	assert.Len(t, log, 1)
}

func TestClientGenerationError(t *testing.T) {
	backend := &scriptedBackend{replies: []any{errors.New("a"), errors.New("b"), errors.New("c")}}
	c, err := NewClient(context.Background(), backend, fastRetry(1), WithProvider("fake"))
	require.NoError(t, err)

	var log model.ConversationLog
	_, err = c.Generate(context.Background(), "p", "i", &log)
	require.Error(t, err)

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "fake", ge.Provider)
	assert.Equal(t, 2, ge.Attempts)
	assert.True(t, IsGenerationError(err))
	assert.Equal(t, 2, backend.calls)
	assert.Empty(t, log)
}

func TestClientDoesNotRetryCancelledContext(t *testing.T) {
	backend := &scriptedBackend{replies: []any{errors.New("a"), errors.New("b"), "late"}}
	c, err := NewClient(context.Background(), backend, fastRetry(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Generate(ctx, "p", "i", nil)
	require.Error(t, err)
	assert.True(t, IsGenerationError(err))
	assert.LessOrEqual(t, backend.calls, 1)
}

func TestNewClientRequiresBackend(t *testing.T) {
	_, err := NewClient(context.Background(), nil)
	assert.Error(t, err)
}
