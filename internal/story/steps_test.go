package story

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/llm"
	"storyforge/internal/model"
	"storyforge/internal/prompts"
	"storyforge/internal/workflow"
)

func TestOutlineStep(t *testing.T) {
	gen := newScripted("\n1. Storm\n\n2. Shipwreck\n  \n3. Rescue\n")
	state := model.NewStoryState("A hero saves the world")
	var log model.ConversationLog

	out, err := NewSteps(gen).Outline(context.Background(), state, &log)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. Storm", "2. Shipwreck", "3. Rescue"}, out.Outline)
	assert.Equal(t, string(workflow.Outline), out.CurrentNode)
	assert.Contains(t, gen.calls[0].prompt, "A hero saves the world")
	assert.Equal(t, prompts.OutlineInstruction, gen.calls[0].instruction)
	assert.Len(t, log, 1)
}

func TestCharacterStepFallback(t *testing.T) {
	gen := newScripted("  Ana, a brave smith  ")
	state := model.NewStoryState("p")
	state.Outline = []string{"a", "b"}

	out, err := NewSteps(gen).Character(context.Background(), state, nil)
	require.NoError(t, err)
	require.Len(t, out.Characters, 1)
	assert.Equal(t, "Ana, a brave smith", out.Characters[0].Name())
	assert.Contains(t, gen.calls[0].prompt, "a\nb")
	assert.Equal(t, string(workflow.Character), out.CurrentNode)
}

func TestSceneStepRendersCharacters(t *testing.T) {
	gen := newScripted("It was dark.\n\nThe wind howled.")
	state := model.NewStoryState("p")
	state.Outline = []string{"storm"}
	state.Characters = []model.Character{{"name": "Ana", "background": "smith"}}

	out, err := NewSteps(gen).Scene(context.Background(), state, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"It was dark.", "The wind howled."}, out.Scenes)
	assert.Contains(t, gen.calls[0].prompt, "Ana - smith")
	assert.Equal(t, string(workflow.Scene), out.CurrentNode)
}

func TestRouterStepSetsRoute(t *testing.T) {
	gen := newScripted("Develop_Character")
	state := model.NewStoryState("make Ana braver")
	state.Outline = []string{"one", "two"}

	out, err := NewSteps(gen).ContinuationRouter(context.Background(), state, nil)
	require.NoError(t, err)
	assert.Equal(t, string(RouteDevelopCharacter), out.Route)
	assert.Equal(t, string(workflow.ContinuationRouter), out.CurrentNode)
	assert.Contains(t, gen.calls[0].prompt, "'one two'")
	assert.Contains(t, gen.calls[0].prompt, "'make Ana braver'")
}

func TestExtendPlotReplacesOutline(t *testing.T) {
	gen := newScripted("new one\n\nnew two", "   \n  ")
	steps := NewSteps(gen)
	state := model.NewStoryState("add a dragon")
	state.Outline = []string{"old"}

	out, err := steps.ExtendPlot(context.Background(), state, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"new one", "new two"}, out.Outline)
	assert.Equal(t, string(workflow.ExtendPlot), out.CurrentNode)

	out, err = steps.ExtendPlot(context.Background(), out, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"new one", "new two"}, out.Outline)
}

func TestDevelopCharacter(t *testing.T) {
	newState := func(prompt string) *model.StoryState {
		s := model.NewStoryState(prompt)
		s.Characters = []model.Character{
			{"name": "Ana", "background": "A smith."},
			{"name": "Bo", "background": "A sailor."},
		}
		return s
	}

	t.Run("exact name match", func(t *testing.T) {
		gen := newScripted("  Learns to swim.  ")
		out, err := NewSteps(gen).DevelopCharacter(context.Background(), newState("Bo"), nil)
		require.NoError(t, err)
		require.Len(t, out.Characters, 2)
		assert.Equal(t, "A smith.", out.Characters[0].Background())
		assert.Equal(t, "A sailor. Learns to swim.", out.Characters[1].Background())
		assert.Contains(t, gen.calls[0].prompt, "'Bo'")
		assert.Equal(t, string(workflow.DevelopCharacter), out.CurrentNode)
	})

	t.Run("no match uses first", func(t *testing.T) {
		gen := newScripted("Grows bolder.")
		out, err := NewSteps(gen).DevelopCharacter(context.Background(), newState("make someone bolder"), nil)
		require.NoError(t, err)
		require.Len(t, out.Characters, 2)
		assert.Equal(t, "A smith. Grows bolder.", out.Characters[0].Background())
		assert.Equal(t, "A sailor.", out.Characters[1].Background())
		assert.Contains(t, gen.calls[0].prompt, "'Ana'")
	})

	t.Run("missing background", func(t *testing.T) {
		gen := newScripted("Quiet.")
		state := model.NewStoryState("x")
		state.Characters = []model.Character{{"name": "Cy"}}
		out, err := NewSteps(gen).DevelopCharacter(context.Background(), state, nil)
		require.NoError(t, err)
		assert.Equal(t, "Quiet.", out.Characters[0].Background())
	})

	t.Run("no characters", func(t *testing.T) {
		gen := newScripted("Something.")
		out, err := NewSteps(gen).DevelopCharacter(context.Background(), model.NewStoryState("anyone"), nil)
		require.NoError(t, err)
		assert.Empty(t, out.Characters)
		assert.Contains(t, gen.calls[0].prompt, "'Character'")
	})
}

func TestAppendSceneTwice(t *testing.T) {
	gen := newScripted("  Third scene.  ", "Fourth scene.")
	steps := NewSteps(gen)
	state := model.NewStoryState("the door opens")
	state.Outline = []string{"a"}
	state.Characters = []model.Character{{"name": "Ana"}, {"name": "Bo"}}
	state.Scenes = []string{"First.", "Second."}

	out, err := steps.AppendScene(context.Background(), state, nil)
	require.NoError(t, err)
	out, err = steps.AppendScene(context.Background(), out, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"First.", "Second.", "Third scene.", "Fourth scene."}, out.Scenes)
	assert.Contains(t, gen.calls[0].prompt, "'Second.'")
	assert.Contains(t, gen.calls[0].prompt, "'Ana, Bo'")
	assert.Contains(t, gen.calls[1].prompt, "'Third scene.'")
	assert.Equal(t, string(workflow.AppendScene), out.CurrentNode)
}

func TestAppendSceneWithoutScenes(t *testing.T) {
	gen := newScripted("Opening.")
	out, err := NewSteps(gen).AppendScene(context.Background(), model.NewStoryState("go"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Opening."}, out.Scenes)
	assert.Contains(t, gen.calls[0].prompt, "'N/A'")
}

func TestStepPropagatesGenerationError(t *testing.T) {
	genErr := &llm.GenerationError{Provider: "fake", Attempts: 1, Err: errors.New("quota")}
	gen := newScripted(genErr)
	state := model.NewStoryState("p")

	_, err := NewSteps(gen).Outline(context.Background(), state, nil)
	require.Error(t, err)
	assert.True(t, llm.IsGenerationError(err))
	assert.Empty(t, state.Outline)
}
