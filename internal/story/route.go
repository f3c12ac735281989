package story

import "strings"

// RouteID is a continuation router decision.
type RouteID string

const (
	RouteAppendScene      RouteID = "append_scene"
	RouteExtendPlot       RouteID = "extend_plot"
	RouteDevelopCharacter RouteID = "develop_character"
)

// ClassifyRoute maps free router output to a route by keyword, checked in the order
// append, extend, character. Anything else appends a scene.
func ClassifyRoute(text string) RouteID {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "append"):
		return RouteAppendScene
	case strings.Contains(t, "extend"):
		return RouteExtendPlot
	case strings.Contains(t, "character"):
		return RouteDevelopCharacter
	default:
		return RouteAppendScene
	}
}
