package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/model"
	"storyforge/internal/prompts"
	"storyforge/internal/story"
)

type stepGenerator struct{ calls int }

func (g *stepGenerator) Generate(ctx context.Context, prompt, instruction string, log *model.ConversationLog) (string, error) {
	g.calls++
	switch instruction {
	case prompts.OutlineInstruction:
		return "First.\nSecond.", nil
	case prompts.CharacterInstruction:
		return `[{"name":"Ana","role":"hero"}]`, nil
	}
	return "Once upon a time.", nil
}

func newTool(t *testing.T) (*StoryTool, *stepGenerator) {
	gen := &stepGenerator{}
	creation, err := story.NewCreationGraph(gen)
	require.NoError(t, err)
	return NewStoryTool(creation), gen
}

func TestStoryToolInfo(t *testing.T) {
	tool, _ := newTool(t)
	info, err := tool.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "story_generate", info.Name)
	assert.NotNil(t, info.ParamsOneOf)
}

func TestStoryToolRun(t *testing.T) {
	tool, gen := newTool(t)
	out, err := tool.InvokableRun(context.Background(), `{"prompt":"A hero saves the world"}`)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)

	var resp StoryToolResp
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "A hero saves the world", resp.Prompt)
	assert.Equal(t, []string{"First.", "Second."}, resp.Story.Outline)
	require.Len(t, resp.Story.Characters, 1)
	assert.Equal(t, "Ana", resp.Story.Characters[0].Name)
	assert.Equal(t, model.DefaultCharacterBackground, resp.Story.Characters[0].Background)
	assert.Equal(t, "hero", resp.Story.Characters[0].Role)
	require.Len(t, resp.Story.Scenes, 1)
	assert.Equal(t, 1, resp.Story.Scenes[0].SceneNumber)
}

func TestStoryToolBadArgs(t *testing.T) {
	tool, gen := newTool(t)
	_, err := tool.InvokableRun(context.Background(), `not json`)
	assert.ErrorIs(t, err, ErrInvalidArgs)
	_, err = tool.InvokableRun(context.Background(), `{"prompt":"  "}`)
	assert.ErrorIs(t, err, ErrInvalidArgs)
	assert.Equal(t, 0, gen.calls)
}
