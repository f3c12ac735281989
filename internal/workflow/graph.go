package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/compose"
	"github.com/sirupsen/logrus"

	"storyforge/internal/model"
)

// DefaultMaxSteps bounds a run when no ceiling is configured.
const DefaultMaxSteps = 10

// Option configures a Graph.
type Option func(*Graph)

// WithMaxSteps sets the maximum number of step executions per run.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		g.maxSteps = n
	}
}

type branch struct {
	cond  BranchFunc
	paths map[string]NodeID
}

// Graph is a mutable graph definition. Compile it into a Runnable before use.
//
//	g := workflow.NewGraph("creation")
//	g.AddNode(workflow.Outline, outlineStep)
//	g.AddNode(workflow.Character, characterStep)
//	g.AddEdge(workflow.Outline, workflow.Character)
//	g.AddEdge(workflow.Character, workflow.End)
//	g.SetEntryPoint(workflow.Outline)
//	r, err := g.Compile(ctx)
type Graph struct {
	name     string
	entry    NodeID
	nodes    map[NodeID]Step
	edges    map[NodeID]NodeID
	branches map[NodeID]branch
	order    []NodeID
	maxSteps int
}

// NewGraph creates an empty graph definition.
func NewGraph(name string, opts ...Option) *Graph {
	g := &Graph{
		name:     name,
		nodes:    make(map[NodeID]Step),
		edges:    make(map[NodeID]NodeID),
		branches: make(map[NodeID]branch),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode registers a step under a known identifier.
func (g *Graph) AddNode(id NodeID, step Step) error {
	if !id.Valid() {
		return fmt.Errorf("node %q is not a known step", id)
	}
	if step == nil {
		return fmt.Errorf("node %q: step cannot be nil", id)
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node %q already exists", id)
	}
	g.nodes[id] = step
	g.order = append(g.order, id)
	return nil
}

// AddEdge adds an unconditional transition. to may be End.
func (g *Graph) AddEdge(from, to NodeID) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("from node %q does not exist", from)
	}
	if to != End {
		if _, exists := g.nodes[to]; !exists {
			return fmt.Errorf("to node %q does not exist", to)
		}
	}
	if _, exists := g.branches[from]; exists {
		return fmt.Errorf("node %q already has a branch", from)
	}
	if prev, exists := g.edges[from]; exists {
		return fmt.Errorf("node %q already has an edge to %q", from, prev)
	}
	g.edges[from] = to
	return nil
}

// AddBranch adds a conditional transition. cond's result is looked up in paths;
// an empty or unmapped result ends the run.
func (g *Graph) AddBranch(from NodeID, cond BranchFunc, paths map[string]NodeID) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("from node %q does not exist", from)
	}
	if cond == nil {
		return fmt.Errorf("branch from %q: condition cannot be nil", from)
	}
	if len(paths) == 0 {
		return fmt.Errorf("branch from %q: no paths", from)
	}
	if _, exists := g.edges[from]; exists {
		return fmt.Errorf("node %q already has an edge", from)
	}
	if _, exists := g.branches[from]; exists {
		return fmt.Errorf("node %q already has a branch", from)
	}
	cp := make(map[string]NodeID, len(paths))
	for key, to := range paths {
		if to != End {
			if _, exists := g.nodes[to]; !exists {
				return fmt.Errorf("branch from %q: path %q targets unknown node %q", from, key, to)
			}
		}
		cp[key] = to
	}
	g.branches[from] = branch{cond: cond, paths: cp}
	return nil
}

// SetEntryPoint sets the first node of every run.
func (g *Graph) SetEntryPoint(id NodeID) error {
	if _, exists := g.nodes[id]; !exists {
		return fmt.Errorf("entry point %q does not exist", id)
	}
	if g.entry != "" {
		return fmt.Errorf("entry point already set to %q", g.entry)
	}
	g.entry = id
	return nil
}

// Validate checks the graph structure.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph %q has no nodes", g.name)
	}
	if g.entry == "" {
		return fmt.Errorf("graph %q: entry point not set", g.name)
	}
	if g.maxSteps <= 0 {
		return fmt.Errorf("graph %q: max steps must be positive, got %d", g.name, g.maxSteps)
	}
	for _, id := range g.order {
		_, hasEdge := g.edges[id]
		_, hasBranch := g.branches[id]
		if !hasEdge && !hasBranch {
			return fmt.Errorf("graph %q: node %q has no outgoing edge", g.name, id)
		}
	}
	return nil
}

// Compile validates the graph and compiles it into an eino compose graph. Cycles are
// allowed; the step ceiling becomes the compose run-step limit.
func (g *Graph) Compile(ctx context.Context) (*Runnable, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	r := &Runnable{
		name:     g.name,
		entry:    g.entry,
		edges:    make(map[NodeID]NodeID, len(g.edges)),
		branches: make(map[NodeID]branch, len(g.branches)),
		order:    append([]NodeID{}, g.order...),
		maxSteps: g.maxSteps,
	}
	for k, v := range g.edges {
		r.edges[k] = v
	}
	for k, v := range g.branches {
		r.branches[k] = v
	}

	cg := compose.NewGraph[*run, *run]()
	for _, id := range r.order {
		if err := cg.AddLambdaNode(string(id), compose.InvokableLambda(r.node(id, g.nodes[id]))); err != nil {
			return nil, fmt.Errorf("graph %q: add node %q: %w", g.name, id, err)
		}
	}
	if err := cg.AddEdge(compose.START, string(r.entry)); err != nil {
		return nil, fmt.Errorf("graph %q: add entry edge: %w", g.name, err)
	}
	for _, id := range r.order {
		if to, ok := r.edges[id]; ok {
			if err := cg.AddEdge(string(id), composeKey(to)); err != nil {
				return nil, fmt.Errorf("graph %q: add edge %q: %w", g.name, id, err)
			}
			continue
		}
		b := r.branches[id]
		targets := map[string]bool{compose.END: true}
		for _, to := range b.paths {
			targets[composeKey(to)] = true
		}
		// the node wrapper has already resolved the route into CurrentNode
		cond := func(ctx context.Context, in *run) (string, error) {
			return composeKey(ParseNodeID(in.state.CurrentNode)), nil
		}
		if err := cg.AddBranch(string(id), compose.NewGraphBranch(cond, targets)); err != nil {
			return nil, fmt.Errorf("graph %q: add branch %q: %w", g.name, id, err)
		}
	}

	runner, err := cg.Compile(ctx,
		compose.WithGraphName(g.name),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(g.maxSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph %q: %w", g.name, err)
	}
	r.runner = runner
	return r, nil
}

// run is the value threaded through the compose graph. The first step failure is kept
// so Run can report it with its node and path.
type run struct {
	state  *model.StoryState
	log    *model.ConversationLog
	path   []NodeID
	failed *ExecutionError
}

func composeKey(id NodeID) string {
	if id == End {
		return compose.END
	}
	return string(id)
}

// Runnable is a compiled, immutable graph, safe for concurrent runs as long as the steps
// themselves hold no per-run state.
type Runnable struct {
	name     string
	entry    NodeID
	edges    map[NodeID]NodeID
	branches map[NodeID]branch
	order    []NodeID
	maxSteps int
	runner   compose.Runnable[*run, *run]
}

// Name returns the graph name.
func (r *Runnable) Name() string { return r.name }

// MaxSteps returns the step ceiling.
func (r *Runnable) MaxSteps() int { return r.maxSteps }

// Run executes the graph from its entry point until End.
//
// After every step the state's CurrentNode is overwritten with the next node to run, so a
// returned state always names a known node or End. A branch result that maps to no node
// ends the run. Exceeding the step ceiling fails with ErrWorkflowExhausted.
func (r *Runnable) Run(ctx context.Context, state *model.StoryState, log *model.ConversationLog) (*model.StoryState, error) {
	if state == nil {
		return nil, &ExecutionError{Graph: r.name, Node: r.entry, Err: ErrNilState}
	}
	if log == nil {
		log = &model.ConversationLog{}
	}
	if err := ctx.Err(); err != nil {
		return state, &ExecutionError{Graph: r.name, Node: r.entry, Err: err}
	}

	in := &run{state: state, log: log, path: make([]NodeID, 0, r.maxSteps)}
	logger := logrus.WithField("graph", r.name)

	out, err := r.runner.Invoke(ctx, in)
	if err != nil {
		if in.failed != nil {
			return in.state, in.failed
		}
		node := ParseNodeID(in.state.CurrentNode)
		if errors.Is(err, compose.ErrExceedMaxSteps) {
			logger.WithFields(logrus.Fields{"node": node, "max_steps": r.maxSteps}).Warn("step limit reached")
			err = fmt.Errorf("%w after %d steps", ErrWorkflowExhausted, len(in.path))
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return in.state, &ExecutionError{Graph: r.name, Node: node, Path: in.path, Err: err}
	}

	out.state.CurrentNode = string(End)
	logger.WithFields(logrus.Fields{"steps": len(out.path), "path": out.path}).Debug("run complete")
	return out.state, nil
}

// node wraps a step as a compose lambda. It records the path, keeps the first failure, and
// points CurrentNode at the node that will run next.
func (r *Runnable) node(id NodeID, step Step) func(ctx context.Context, in *run) (*run, error) {
	return func(ctx context.Context, in *run) (*run, error) {
		if err := ctx.Err(); err != nil {
			return in, in.fail(r.name, id, err)
		}
		in.path = append(in.path, id)

		logrus.WithFields(logrus.Fields{"graph": r.name, "node": id, "step": len(in.path)}).Debug("running step")
		next, err := step.Run(ctx, in.state, in.log)
		if err != nil {
			return in, in.fail(r.name, id, err)
		}
		if next == nil {
			return in, in.fail(r.name, id, ErrNilState)
		}
		in.state = next
		in.state.CurrentNode = string(r.resolve(id, next))
		return in, nil
	}
}

func (in *run) fail(graph string, node NodeID, err error) error {
	if in.failed == nil {
		in.failed = &ExecutionError{Graph: graph, Node: node, Path: append([]NodeID{}, in.path...), Err: err}
	}
	return in.failed
}

// resolve returns the node that follows node for the given state.
func (r *Runnable) resolve(node NodeID, state *model.StoryState) NodeID {
	if b, ok := r.branches[node]; ok {
		key := b.cond(state)
		if key == "" {
			return End
		}
		to, ok := b.paths[key]
		if !ok {
			logrus.WithFields(logrus.Fields{"graph": r.name, "node": node, "route": key}).Warn("unmapped route, terminating run")
			return End
		}
		return to
	}
	if to, ok := r.edges[node]; ok {
		return to
	}
	return End
}

// EdgeDescription is an unconditional transition.
type EdgeDescription struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// BranchDescription is a conditional transition and its route table.
type BranchDescription struct {
	From  NodeID            `json:"from"`
	Paths map[string]NodeID `json:"paths"`
}

// Description is a serializable view of a compiled graph.
type Description struct {
	Name     string              `json:"name"`
	Entry    NodeID              `json:"entry"`
	Nodes    []NodeID            `json:"nodes"`
	Edges    []EdgeDescription   `json:"edges"`
	Branches []BranchDescription `json:"branches"`
	MaxSteps int                 `json:"max_steps"`
}

// Describe returns the graph's structure.
func (r *Runnable) Describe() Description {
	d := Description{
		Name:     r.name,
		Entry:    r.entry,
		Nodes:    append([]NodeID{}, r.order...),
		Edges:    []EdgeDescription{},
		Branches: []BranchDescription{},
		MaxSteps: r.maxSteps,
	}
	for _, id := range r.order {
		if to, ok := r.edges[id]; ok {
			d.Edges = append(d.Edges, EdgeDescription{From: id, To: to})
		}
		if b, ok := r.branches[id]; ok {
			paths := make(map[string]NodeID, len(b.paths))
			for k, v := range b.paths {
				paths[k] = v
			}
			d.Branches = append(d.Branches, BranchDescription{From: id, Paths: paths})
		}
	}
	sort.SliceStable(d.Edges, func(i, j int) bool { return d.Edges[i].From < d.Edges[j].From })
	return d
}
