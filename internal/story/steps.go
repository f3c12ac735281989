package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"storyforge/internal/llm"
	"storyforge/internal/model"
	"storyforge/internal/prompts"
	"storyforge/internal/workflow"
)

// placeholderCharacter is sent to the model when a story has no characters yet.
const placeholderCharacter = "Character"

// Steps holds the story step functions. All of them share one generator.
type Steps struct {
	gen llm.Generator
}

func NewSteps(gen llm.Generator) *Steps {
	return &Steps{gen: gen}
}

func (s *Steps) generate(ctx context.Context, tmpl, instruction string, vars map[string]any, log *model.ConversationLog) (string, error) {
	text, err := prompts.Render(ctx, tmpl, vars)
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, text, instruction, log)
}

// Outline turns the prompt into plot points.
func (s *Steps) Outline(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.Outline)

	text, err := s.generate(ctx, prompts.Outline, prompts.OutlineInstruction,
		map[string]any{"prompt": state.Prompt}, log)
	if err != nil {
		return state, err
	}
	state.Outline = SplitLines(text)
	return state, nil
}

// Character creates character profiles from the outline.
func (s *Steps) Character(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.Character)

	text, err := s.generate(ctx, prompts.Character, prompts.CharacterInstruction,
		map[string]any{"outline": strings.Join(state.Outline, "\n")}, log)
	if err != nil {
		return state, err
	}
	chars, ok := ParseCharacters(text)
	if !ok {
		logrus.WithField("node", workflow.Character).Warn("character output is not a JSON array, keeping raw text")
	}
	state.Characters = chars
	return state, nil
}

// Scene writes the opening scene.
func (s *Steps) Scene(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.Scene)

	text, err := s.generate(ctx, prompts.Scene, prompts.SceneInstruction, map[string]any{
		"outline":    strings.Join(state.Outline, "\n"),
		"characters": RenderCharacters(state.Characters),
	}, log)
	if err != nil {
		return state, err
	}
	state.Scenes = append(state.Scenes, SplitLines(text)...)
	return state, nil
}

// ContinuationRouter decides what the continuation input should do to the story.
func (s *Steps) ContinuationRouter(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.ContinuationRouter)

	text, err := s.generate(ctx, prompts.Router, prompts.RouterInstruction, map[string]any{
		"input":         state.Prompt,
		"state_summary": strings.Join(state.Outline, " "),
	}, log)
	if err != nil {
		return state, err
	}
	route := ClassifyRoute(text)
	logrus.WithFields(logrus.Fields{"node": workflow.ContinuationRouter, "route": route}).Debug("classified continuation")
	state.Route = string(route)
	return state, nil
}

// ExtendPlot rewrites the outline to include the continuation input.
func (s *Steps) ExtendPlot(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.ExtendPlot)

	text, err := s.generate(ctx, prompts.ExtendPlot, prompts.ExtendPlotInstruction, map[string]any{
		"input":   state.Prompt,
		"outline": strings.Join(state.Outline, "\n"),
	}, log)
	if err != nil {
		return state, err
	}
	lines := SplitLines(text)
	if len(lines) == 0 {
		logrus.WithField("node", workflow.ExtendPlot).Warn("empty outline returned, keeping the previous one")
		return state, nil
	}
	state.Outline = lines
	return state, nil
}

// DevelopCharacter appends to the background of the character named by the prompt, or of
// the first character.
func (s *Steps) DevelopCharacter(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.DevelopCharacter)

	idx := targetCharacter(state.Characters, state.Prompt)
	target := placeholderCharacter
	if idx >= 0 {
		if name := state.Characters[idx].Name(); name != "" {
			target = name
		}
	}

	text, err := s.generate(ctx, prompts.DevelopCharacter, prompts.DevelopCharacterInstruction, map[string]any{
		"character": target,
		"input":     state.Prompt,
	}, log)
	if err != nil {
		return state, err
	}
	if idx >= 0 {
		state.Characters[idx].AppendBackground(text)
	}
	return state, nil
}

// targetCharacter returns the index of the character whose name equals prompt, else 0, or
// -1 when there are no characters.
func targetCharacter(chars []model.Character, prompt string) int {
	for i, c := range chars {
		if c.Name() == prompt {
			return i
		}
	}
	if len(chars) > 0 {
		return 0
	}
	return -1
}

// AppendScene writes the next scene.
func (s *Steps) AppendScene(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	state.CurrentNode = string(workflow.AppendScene)

	lastScene := "N/A"
	if n := len(state.Scenes); n > 0 {
		lastScene = state.Scenes[n-1]
	}
	text, err := s.generate(ctx, prompts.AppendScene, prompts.AppendSceneInstruction, map[string]any{
		"last_scene": lastScene,
		"input":      state.Prompt,
		"outline":    strings.Join(state.Outline, "\n"),
		"characters": strings.Join(state.CharacterNames(), ", "),
	}, log)
	if err != nil {
		return state, err
	}
	state.Scenes = append(state.Scenes, strings.TrimSpace(text))
	return state, nil
}

// routeOf is the continuation branch condition.
func routeOf(state *model.StoryState) string {
	return state.Route
}

func (s *Steps) step(id workflow.NodeID) (workflow.Step, error) {
	switch id {
	case workflow.Outline:
		return workflow.StepFunc(s.Outline), nil
	case workflow.Character:
		return workflow.StepFunc(s.Character), nil
	case workflow.Scene:
		return workflow.StepFunc(s.Scene), nil
	case workflow.ContinuationRouter:
		return workflow.StepFunc(s.ContinuationRouter), nil
	case workflow.ExtendPlot:
		return workflow.StepFunc(s.ExtendPlot), nil
	case workflow.DevelopCharacter:
		return workflow.StepFunc(s.DevelopCharacter), nil
	case workflow.AppendScene:
		return workflow.StepFunc(s.AppendScene), nil
	}
	return nil, fmt.Errorf("no step for node %q", id)
}
