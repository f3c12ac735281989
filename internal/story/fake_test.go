package story

import (
	"context"
	"errors"
	"sync"

	"storyforge/internal/model"
)

type call struct {
	prompt      string
	instruction string
}

// scriptedGenerator replays replies in order. An error reply fails that call.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []any
	calls   []call
}

func newScripted(replies ...any) *scriptedGenerator {
	return &scriptedGenerator{replies: replies}
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt, instruction string, log *model.ConversationLog) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.calls)
	g.calls = append(g.calls, call{prompt: prompt, instruction: instruction})
	if idx >= len(g.replies) {
		return "", errors.New("script exhausted")
	}
	switch r := g.replies[idx].(type) {
	case error:
		return "", r
	case string:
		if log != nil {
			log.Append(model.RoleAssistant, r)
		}
		return r, nil
	}
	return "", errors.New("bad script entry")
}

func (g *scriptedGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// repeatGenerator always returns the same reply.
type repeatGenerator struct {
	mu    sync.Mutex
	reply string
	n     int
}

func (g *repeatGenerator) Generate(ctx context.Context, prompt, instruction string, log *model.ConversationLog) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.reply, nil
}
