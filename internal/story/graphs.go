package story

import (
	"context"
	"fmt"

	"storyforge/internal/llm"
	"storyforge/internal/workflow"
)

// Graph names.
const (
	CreationGraph     = "creation"
	ContinuationGraph = "continuation"
)

// NewCreationGraph builds outline -> character -> scene -> END.
func NewCreationGraph(gen llm.Generator, opts ...workflow.Option) (*workflow.Runnable, error) {
	steps := NewSteps(gen)
	g := workflow.NewGraph(CreationGraph, opts...)

	if err := addNodes(g, steps, workflow.Outline, workflow.Character, workflow.Scene); err != nil {
		return nil, err
	}
	edges := [][2]workflow.NodeID{
		{workflow.Outline, workflow.Character},
		{workflow.Character, workflow.Scene},
		{workflow.Scene, workflow.End},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("build %s graph: %w", CreationGraph, err)
		}
	}
	if err := g.SetEntryPoint(workflow.Outline); err != nil {
		return nil, fmt.Errorf("build %s graph: %w", CreationGraph, err)
	}
	return g.Compile(context.Background())
}

// NewContinuationGraph builds the router loop. extendPlot and developCharacter return to
// the router; appendScene ends the run.
func NewContinuationGraph(gen llm.Generator, opts ...workflow.Option) (*workflow.Runnable, error) {
	steps := NewSteps(gen)
	g := workflow.NewGraph(ContinuationGraph, opts...)

	err := addNodes(g, steps,
		workflow.ContinuationRouter,
		workflow.ExtendPlot,
		workflow.DevelopCharacter,
		workflow.AppendScene,
	)
	if err != nil {
		return nil, err
	}

	err = g.AddBranch(workflow.ContinuationRouter, routeOf, map[string]workflow.NodeID{
		string(RouteExtendPlot):       workflow.ExtendPlot,
		string(RouteDevelopCharacter): workflow.DevelopCharacter,
		string(RouteAppendScene):      workflow.AppendScene,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s graph: %w", ContinuationGraph, err)
	}
	edges := [][2]workflow.NodeID{
		{workflow.ExtendPlot, workflow.ContinuationRouter},
		{workflow.DevelopCharacter, workflow.ContinuationRouter},
		{workflow.AppendScene, workflow.End},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("build %s graph: %w", ContinuationGraph, err)
		}
	}
	if err := g.SetEntryPoint(workflow.ContinuationRouter); err != nil {
		return nil, fmt.Errorf("build %s graph: %w", ContinuationGraph, err)
	}
	return g.Compile(context.Background())
}

func addNodes(g *workflow.Graph, steps *Steps, ids ...workflow.NodeID) error {
	for _, id := range ids {
		step, err := steps.step(id)
		if err != nil {
			return err
		}
		if err := g.AddNode(id, step); err != nil {
			return err
		}
	}
	return nil
}
