package model

import (
	"fmt"
	"strings"
	"time"
)

// Role of a conversation log record.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one record of a conversation log.
type Message struct {
	Role    string `json:"role"`    // user or assistant
	Content any    `json:"content"` // text, or a structured value
}

// ConversationLog is the append-only trail of user and assistant turns for one story.
// It is owned by the caller, not by StoryState, so it survives separate workflow runs.
type ConversationLog []Message

// Append adds a record to the log.
func (l *ConversationLog) Append(role string, content any) {
	*l = append(*l, Message{Role: role, Content: content})
}

// Len returns the number of records.
func (l *ConversationLog) Len() int {
	if l == nil {
		return 0
	}
	return len(*l)
}

// Character is a free-form character profile keyed by field name.
type Character map[string]any

// Character profile keys.
const (
	CharacterName        = "name"
	CharacterBackground  = "background"
	CharacterMotivations = "motivations"
	CharacterRole        = "role"
)

// Field returns the string form of a profile field, or "" when missing.
func (c Character) Field(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Name returns the character's name.
func (c Character) Name() string { return c.Field(CharacterName) }

// Background returns the character's background.
func (c Character) Background() string { return c.Field(CharacterBackground) }

// AppendBackground appends text to the background field, space separated.
func (c Character) AppendBackground(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	bg := c.Background()
	if bg == "" {
		c[CharacterBackground] = text
		return
	}
	c[CharacterBackground] = bg + " " + text
}

// StoryState is the unit of work threaded through a workflow run.
type StoryState struct {
	Prompt      string      `json:"prompt"`       // instruction driving the next step
	Outline     []string    `json:"outline"`      // ordered plot points
	Characters  []Character `json:"characters"`   // character profiles
	Scenes      []string    `json:"scenes"`       // narrative text, append only
	CurrentNode string      `json:"current_node"` // step that produced this state, or the next one to run
	Route       string      `json:"route"`        // last decision of the continuation router
}

// NewStoryState returns a state ready for the creation workflow.
func NewStoryState(prompt string) *StoryState {
	return &StoryState{
		Prompt:     prompt,
		Outline:    []string{},
		Characters: []Character{},
		Scenes:     []string{},
	}
}

// Clone returns a deep copy of the state. Character maps are copied one level deep.
func (s *StoryState) Clone() *StoryState {
	if s == nil {
		return nil
	}
	out := &StoryState{
		Prompt:      s.Prompt,
		Outline:     append([]string{}, s.Outline...),
		Scenes:      append([]string{}, s.Scenes...),
		Characters:  make([]Character, 0, len(s.Characters)),
		CurrentNode: s.CurrentNode,
		Route:       s.Route,
	}
	for _, c := range s.Characters {
		cp := make(Character, len(c))
		for k, v := range c {
			cp[k] = v
		}
		out.Characters = append(out.Characters, cp)
	}
	return out
}

// CharacterNames returns the non-empty character names in order.
func (s *StoryState) CharacterNames() []string {
	names := make([]string, 0, len(s.Characters))
	for _, c := range s.Characters {
		if n := c.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// StoryDocument is the persisted story: its current state plus the full conversation log.
type StoryDocument struct {
	StoryID   string          `json:"story_id"`
	UserID    string          `json:"user_id"`
	Prompt    string          `json:"prompt"`  // creation prompt
	State     *StoryState     `json:"state"`   // current workflow state
	History   ConversationLog `json:"history"` // full conversation log
	Version   int64           `json:"version"` // optimistic concurrency counter
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// User is an account allowed to own stories.
type User struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
