package prompts

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// System instructions sent with every generation request of a step.
const (
	OutlineInstruction          = "You are an expert story planner."
	CharacterInstruction        = "You are a creative character designer. Respond with JSON only."
	SceneInstruction            = "You are a professional novelist."
	RouterInstruction           = "You classify story update requests. Answer with a single action keyword."
	ExtendPlotInstruction       = "You are an expert story planner who keeps outlines consistent."
	DevelopCharacterInstruction = "You are a character writer who deepens existing characters."
	AppendSceneInstruction      = "You are a professional novelist continuing an existing story."
)

// Templates use FString placeholders. Literal braces are not allowed in them.
const (
	Outline = `Based on the following user prompt:
"{prompt}"

Create a high-level plot outline with 3-5 key events.
Output one event per line, each 1-2 sentences long.

Ensure the story is coherent, original, and engaging.
Return only the outline text (no extra explanations).`

	Character = `Using the following plot outline:

"{outline}"

Generate detailed profiles for 2-4 main characters.
Each character must include the keys "name", "background", "motivations" and "role".

Return the output as a valid JSON array of objects, only JSON, no markdown or code fences.
Ensure diversity, depth, and alignment with the story's genre and setting.`

	Scene = `Write the opening scene of the story using this outline and character set:

Outline: {outline}
Characters: {characters}

Guidelines:
- Length: 200-400 words
- Focus on vivid descriptions, character introduction, and setting
- Build suspense and end with a small cliffhanger
- Use a natural, engaging narrative style

Return only the story text (no extra explanations).`

	Router = `You are analyzing a story update request. The current story state is summarized as:
'{state_summary}'

A user has provided this input:
'{input}'

Based on the content of this input, determine how it should affect the story.
There are three possible actions:

1. extend_plot: the input introduces a new event or plot development.
2. develop_character: the input adds depth, traits, or arcs to an existing character.
3. append_scene: the input continues the story by adding narrative to the next scene.

Choose the single action that best fits the input.
Return only the chosen action keyword: 'extend_plot', 'develop_character', or 'append_scene'.`

	ExtendPlot = `Extend the plot outline:
'{outline}'
by incorporating '{input}', adding 1-2 new events while maintaining consistency.
Output each event as 1-2 sentences on its own line.
Return the full updated outline, one event per line.`

	DevelopCharacter = `Develop the character '{character}' in response to '{input}', updating their profile with new traits or arcs.
Output concise updates suitable to append to the character's profile.
Return only the updated character profile text (no extra explanations).`

	AppendScene = `Continue the story from the last scene '{last_scene}', incorporating '{input}', outline '{outline}', and characters '{characters}'.
Write 200-400 words building tension toward the next event.
Focus on vivid descriptions, character actions, and dialogue.
End with a cliffhanger or suspenseful moment leading into the next plot point.
Return only the story text (no extra explanations).`
)

// Render fills a template and returns the user prompt text.
func Render(ctx context.Context, tmpl string, vars map[string]any) (string, error) {
	template := prompt.FromMessages(schema.FString, schema.UserMessage(tmpl))
	msgs, err := template.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("render prompt: no messages")
	}
	return msgs[0].Content, nil
}
