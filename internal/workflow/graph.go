package workflow

import (
	"context"
	"fmt"
	"time"
)

// Pseudo-nodes marking the entry and exit of a graph.
const (
	Start = "__start__"
	End   = "__end__"
)

// NodeFunc runs one workflow step. It receives the running state and returns a
// partial state that is merged by key-overwrite; it must not mutate its input.
type NodeFunc func(ctx context.Context, state State) (State, error)

// Graph is a minimal directed workflow of named nodes with fixed edges and a
// checkpoint saver. Execution is synchronous, follows one linear path from
// Start to End, and has no branching, retries or skipped nodes.
type Graph struct {
	nodes    map[string]NodeFunc
	edges    map[string]string
	saver    Saver
	compiled []string
}

func NewGraph(saver Saver) *Graph {
	return &Graph{
		nodes: make(map[string]NodeFunc),
		edges: make(map[string]string),
		saver: saver,
	}
}

func (g *Graph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

func (g *Graph) AddEdge(from, to string) {
	g.edges[from] = to
}

// Compile resolves the Start→End path and validates that every node on it
// exists and that the path terminates.
func (g *Graph) Compile() error {
	var path []string
	seen := map[string]bool{}
	cur := Start
	for {
		next, ok := g.edges[cur]
		if !ok {
			return fmt.Errorf("workflow: node %q has no outgoing edge", cur)
		}
		if next == End {
			break
		}
		if seen[next] {
			return fmt.Errorf("workflow: cycle through node %q", next)
		}
		if _, ok := g.nodes[next]; !ok {
			return fmt.Errorf("workflow: edge to unknown node %q", next)
		}
		seen[next] = true
		path = append(path, next)
		cur = next
	}
	g.compiled = path
	return nil
}

// Run executes the compiled path on the initial state, merging each node's
// partial result into the running state, then persists the final state as the
// thread's checkpoint. A node error aborts the run before the save, so no
// partial state is ever persisted.
func (g *Graph) Run(ctx context.Context, threadID string, initial State) (State, error) {
	if g.compiled == nil {
		if err := g.Compile(); err != nil {
			return State{}, err
		}
	}

	state := initial
	state.ThreadID = threadID
	for _, name := range g.compiled {
		partial, err := g.nodes[name](ctx, state)
		if err != nil {
			return State{}, fmt.Errorf("workflow: node %s: %w", name, err)
		}
		state = state.Merge(partial)
	}

	if _, err := g.saver.Save(ctx, threadID, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Chat workflow node names.
const (
	NodeProcessMessage = "process_message"
	NodeSaveContext    = "save_context"
)

// NewChatGraph builds the fixed chat workflow:
//
//	Start -> process_message -> save_context -> End
//
// process_message passes messages and thread id through unchanged; it is the
// seam where in-graph generation would slot in. save_context derives a fresh
// context of {lastProcessedAt, messageCount}, replacing the context key
// wholesale: context fields added upstream do not survive a run.
func NewChatGraph(saver Saver) (*Graph, error) {
	g := NewGraph(saver)

	g.AddNode(NodeProcessMessage, func(ctx context.Context, state State) (State, error) {
		return State{
			Messages: state.Messages,
			ThreadID: state.ThreadID,
		}, nil
	})

	g.AddNode(NodeSaveContext, func(ctx context.Context, state State) (State, error) {
		return State{
			Context: map[string]any{
				"lastProcessedAt": time.Now().UnixMilli(),
				"messageCount":    len(state.Messages),
			},
		}, nil
	})

	g.AddEdge(Start, NodeProcessMessage)
	g.AddEdge(NodeProcessMessage, NodeSaveContext)
	g.AddEdge(NodeSaveContext, End)

	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}
