package workflow

import (
	"context"
	"time"
)

// Checkpoint is one persisted snapshot of a thread's workflow state. Only the
// latest checkpoint per thread is guaranteed retrievable; older ones may be
// kept for audit but are not enumerable.
type Checkpoint struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}

// Saver persists opaque state snapshots keyed by thread id. LoadLatest returns
// (nil, nil) when the thread has no checkpoint. Concurrent saves
// for one thread are a last-writer-wins race by design; callers needing
// stronger ordering serialize at a higher layer.
type Saver interface {
	Save(ctx context.Context, threadID string, state State) (*Checkpoint, error)
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	Exists(ctx context.Context, threadID string) (bool, error)
}

// Deleter is the optional physical-deletion capability. Savers built on
// backends without a delete primitive simply do not implement it; callers
// fall back to a logged no-op while still reporting success.
type Deleter interface {
	Delete(ctx context.Context, threadID string) error
}
