package workflow

import "testing"

func TestStateMerge_OverwritesSetKeys(t *testing.T) {
	base := State{
		Messages: []StateMessage{{Role: "USER", Content: "a"}},
		Context:  map[string]any{"k": "old", "extra": 1},
		ThreadID: "t1",
	}

	merged := base.Merge(State{
		Context: map[string]any{"k": "new"},
	})

	if merged.ThreadID != "t1" {
		t.Fatalf("thread id must survive merge, got %q", merged.ThreadID)
	}
	if len(merged.Messages) != 1 || merged.Messages[0].Content != "a" {
		t.Fatalf("messages must survive merge, got %+v", merged.Messages)
	}
	// Shallow overwrite: the whole context is replaced, not merged into.
	if merged.Context["k"] != "new" {
		t.Fatalf("expected overwritten context value, got %v", merged.Context["k"])
	}
	if _, ok := merged.Context["extra"]; ok {
		t.Fatalf("expected prior context fields to be discarded")
	}
}

func TestStateMerge_UnsetKeysKeepReceiver(t *testing.T) {
	base := State{
		Messages: []StateMessage{{Role: "USER", Content: "a"}},
		Context:  map[string]any{"k": 1},
		ThreadID: "t1",
	}

	merged := base.Merge(State{})

	if merged.ThreadID != "t1" || len(merged.Messages) != 1 || merged.Context["k"] != 1 {
		t.Fatalf("empty partial must change nothing, got %+v", merged)
	}
}

func TestStateMerge_DoesNotMutateReceiver(t *testing.T) {
	base := State{ThreadID: "t1", Context: map[string]any{"k": 1}}

	_ = base.Merge(State{ThreadID: "t2", Context: map[string]any{"k": 2}})

	if base.ThreadID != "t1" || base.Context["k"] != 1 {
		t.Fatalf("receiver mutated: %+v", base)
	}
}
