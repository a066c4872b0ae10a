package workflow

// StateMessage is the role/content pair carried through a workflow run.
type StateMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the unit of exchange between workflow nodes: a keyed bag with the
// recognized keys messages, context and threadId. A run never mutates a State
// in place; each node returns a partial State that is merged by key-overwrite
// into the running one.
type State struct {
	Messages []StateMessage `json:"messages,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	ThreadID string         `json:"threadId,omitempty"`
}

// Merge returns a new State with every key set in partial overwriting the
// receiver's value for that key. Overwrite is shallow: a context returned by a
// node replaces the previous context wholesale rather than merging into it.
func (s State) Merge(partial State) State {
	out := s
	if partial.Messages != nil {
		out.Messages = partial.Messages
	}
	if partial.Context != nil {
		out.Context = partial.Context
	}
	if partial.ThreadID != "" {
		out.ThreadID = partial.ThreadID
	}
	return out
}
