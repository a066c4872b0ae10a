package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CheckpointRecord is the relational row backing DBSaver. The state is stored
// as an opaque JSON blob; "latest" is the row with the highest id per thread.
type CheckpointRecord struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	ThreadID     string         `gorm:"type:varchar(64);not null;index"`
	CheckpointID string         `gorm:"type:varchar(36);uniqueIndex;not null"`
	State        datatypes.JSON `gorm:"not null"`
	CreatedAt    time.Time
}

func (CheckpointRecord) TableName() string { return "workflow_checkpoints" }

// DBSaver keeps checkpoints in the relational store. Rows are append-only;
// superseded checkpoints stay behind for audit and are pruned on Delete.
type DBSaver struct {
	db *gorm.DB
}

func NewDBSaver(db *gorm.DB) *DBSaver {
	return &DBSaver{db: db}
}

func (s *DBSaver) Save(ctx context.Context, threadID string, state State) (*Checkpoint, error) {
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	rec := CheckpointRecord{
		ThreadID:     threadID,
		CheckpointID: uuid.NewString(),
		State:        datatypes.JSON(blob),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	return &Checkpoint{
		ThreadID:     threadID,
		CheckpointID: rec.CheckpointID,
		State:        state,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func (s *DBSaver) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var rec CheckpointRecord
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, err
	}
	return &Checkpoint{
		ThreadID:     rec.ThreadID,
		CheckpointID: rec.CheckpointID,
		State:        state,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func (s *DBSaver) Exists(ctx context.Context, threadID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&CheckpointRecord{}).
		Where("thread_id = ?", threadID).
		Count(&n).Error
	return n > 0, err
}

// Delete removes every checkpoint for the thread, audit rows included.
// Idempotent.
func (s *DBSaver) Delete(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&CheckpointRecord{}).Error
}
