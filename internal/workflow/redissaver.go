package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatstack/chat-checkpoint/internal/store/redisstore"
)

const redisKeyPrefix = "chat:checkpoint:"

// RedisSaver keeps one JSON envelope per thread key, so it is latest-only by
// construction: every save replaces the previous snapshot.
type RedisSaver struct {
	store *redisstore.Store
}

func NewRedisSaver(store *redisstore.Store) *RedisSaver {
	return &RedisSaver{store: store}
}

func (s *RedisSaver) key(threadID string) string {
	return redisKeyPrefix + threadID
}

func (s *RedisSaver) Save(ctx context.Context, threadID string, state State) (*Checkpoint, error) {
	cp := &Checkpoint{
		ThreadID:     threadID,
		CheckpointID: uuid.NewString(),
		State:        state,
		CreatedAt:    time.Now(),
	}
	if err := s.store.SetJSON(ctx, s.key(threadID), cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *RedisSaver) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var cp Checkpoint
	found, err := s.store.GetJSON(ctx, s.key(threadID), &cp)
	if err != nil || !found {
		return nil, err
	}
	return &cp, nil
}

func (s *RedisSaver) Exists(ctx context.Context, threadID string) (bool, error) {
	return s.store.Exists(ctx, s.key(threadID))
}

func (s *RedisSaver) Delete(ctx context.Context, threadID string) error {
	return s.store.Del(ctx, s.key(threadID))
}
