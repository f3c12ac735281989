package model

import "time"

// Defaults used when a character profile lacks a field.
const (
	DefaultCharacterName        = "Unknown"
	DefaultCharacterBackground  = "No background available."
	DefaultCharacterMotivations = "No motivations specified."
	DefaultCharacterRole        = "No role specified."
)

// CharacterView is the client-facing character profile.
type CharacterView struct {
	Name        string `json:"name"`
	Background  string `json:"background"`
	Motivations string `json:"motivations"`
	Role        string `json:"role"`
}

// SceneView is a numbered scene, numbering starts at 1.
type SceneView struct {
	SceneNumber int    `json:"scene_number"`
	Content     string `json:"content"`
}

// Story is the structured story returned to clients.
type Story struct {
	Outline    []string        `json:"outline"`
	Characters []CharacterView `json:"characters"`
	Scenes     []SceneView     `json:"scenes"`
}

// StoryResponse is the API representation of a StoryDocument.
type StoryResponse struct {
	StoryNumber int       `json:"story_number,omitempty"` // position in a listing
	StoryID     string    `json:"story_id"`
	UserID      string    `json:"user_id"`
	FullStory   Story     `json:"full_story"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BuildStory renders a state into its structured client form.
func BuildStory(s *StoryState) Story {
	story := Story{
		Outline:    []string{},
		Characters: []CharacterView{},
		Scenes:     []SceneView{},
	}
	if s == nil {
		return story
	}
	story.Outline = append(story.Outline, s.Outline...)
	for _, c := range s.Characters {
		story.Characters = append(story.Characters, CharacterView{
			Name:        orDefault(c.Name(), DefaultCharacterName),
			Background:  orDefault(c.Background(), DefaultCharacterBackground),
			Motivations: orDefault(c.Field(CharacterMotivations), DefaultCharacterMotivations),
			Role:        orDefault(c.Field(CharacterRole), DefaultCharacterRole),
		})
	}
	for i, scene := range s.Scenes {
		story.Scenes = append(story.Scenes, SceneView{SceneNumber: i + 1, Content: scene})
	}
	return story
}

// NewStoryResponse builds the API form of a document.
func NewStoryResponse(doc *StoryDocument) StoryResponse {
	return StoryResponse{
		StoryID:   doc.StoryID,
		UserID:    doc.UserID,
		FullStory: BuildStory(doc.State),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
