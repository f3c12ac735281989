package workflow

import (
	"context"

	"storyforge/internal/model"
)

// NodeID identifies a step in a workflow graph. The set of identifiers is closed;
// graphs refuse nodes outside it.
type NodeID string

const (
	// End is the terminal sentinel. It is never a runnable node.
	End NodeID = "__end__"

	Outline            NodeID = "outline"
	Character          NodeID = "character"
	Scene              NodeID = "scene"
	ContinuationRouter NodeID = "continuationRouter"
	ExtendPlot         NodeID = "extendPlot"
	DevelopCharacter   NodeID = "developCharacter"
	AppendScene        NodeID = "appendScene"
)

var knownNodes = map[NodeID]bool{
	Outline:            true,
	Character:          true,
	Scene:              true,
	ContinuationRouter: true,
	ExtendPlot:         true,
	DevelopCharacter:   true,
	AppendScene:        true,
}

// Valid reports whether id names a runnable step.
func (id NodeID) Valid() bool { return knownNodes[id] }

func (id NodeID) String() string { return string(id) }

// ParseNodeID maps a persisted current_node value to a NodeID.
// Unrecognized values map to End.
func ParseNodeID(s string) NodeID {
	id := NodeID(s)
	if id.Valid() {
		return id
	}
	return End
}

// Step is one unit of work in a graph. The returned state is authoritative; it may be the
// same pointer that was passed in.
type Step interface {
	Run(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error)

// Run calls f.
func (f StepFunc) Run(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	return f(ctx, state, log)
}

// BranchFunc reads the routing decision out of a state.
// An empty result terminates the run.
type BranchFunc func(state *model.StoryState) string
