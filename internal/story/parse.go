package story

import (
	"encoding/json"
	"strings"

	"storyforge/internal/model"
)

// SplitLines splits text into trimmed, non-empty lines in their original order.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseCharacters reads a JSON array of character profiles. Output that is not a JSON
// array becomes a single character named after the whole trimmed text.
func ParseCharacters(text string) (chars []model.Character, ok bool) {
	raw := strings.TrimSpace(text)

	var arr []any
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &arr); err != nil || arr == nil {
		return []model.Character{{model.CharacterName: raw}}, false
	}

	chars = make([]model.Character, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case nil:
			continue
		case map[string]any:
			chars = append(chars, model.Character(v))
		case string:
			chars = append(chars, model.Character{model.CharacterName: strings.TrimSpace(v)})
		default:
			chars = append(chars, model.Character{model.CharacterName: model.DefaultCharacterName})
		}
	}
	return chars, true
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// RenderCharacters formats characters as "name - background" lines.
func RenderCharacters(chars []model.Character) string {
	lines := make([]string, 0, len(chars))
	for _, c := range chars {
		name := c.Name()
		if name == "" {
			name = model.DefaultCharacterName
		}
		lines = append(lines, name+" - "+c.Background())
	}
	return strings.Join(lines, "\n")
}
