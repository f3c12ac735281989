package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"storyforge/internal/model"
	"storyforge/internal/workflow"
)

// ErrInvalidArgs is returned for malformed tool arguments or an empty prompt.
var ErrInvalidArgs = errors.New("invalid story tool arguments")

// StoryTool exposes the creation workflow as an eino tool. Nothing is persisted.
type StoryTool struct {
	creation *workflow.Runnable
}

// StoryToolArgs are the tool arguments.
type StoryToolArgs struct {
	Prompt string `json:"prompt"`
}

// StoryToolResp is the tool result.
type StoryToolResp struct {
	Prompt  string      `json:"prompt"`
	Story   model.Story `json:"story"`
	Message string      `json:"message"`
}

func NewStoryTool(creation *workflow.Runnable) *StoryTool {
	return &StoryTool{creation: creation}
}

func (t *StoryTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"prompt": {Type: schema.String, Required: true, Desc: "What the story should be about"},
	}
	return &schema.ToolInfo{
		Name:        "story_generate",
		Desc:        "Write a new story: an outline, a character set and the opening scene",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun runs the creation workflow for the prompt in argumentsInJSON.
func (t *StoryTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args StoryToolArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	args.Prompt = strings.TrimSpace(args.Prompt)
	if args.Prompt == "" {
		return "", fmt.Errorf("%w: prompt required", ErrInvalidArgs)
	}

	var log model.ConversationLog
	log.Append(model.RoleUser, args.Prompt)
	state, err := t.creation.Run(ctx, model.NewStoryState(args.Prompt), &log)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(StoryToolResp{
		Prompt:  args.Prompt,
		Story:   model.BuildStory(state),
		Message: "story generated",
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*StoryTool)(nil)
