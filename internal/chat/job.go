package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one queued request to process a user message asynchronously. The
// worker runs the turn through the checkpoint service and records the result.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	ChatID    string `gorm:"type:varchar(64);index;not null"`
	SessionID string `gorm:"type:varchar(64);index;not null"`
	MessageID string `gorm:"type:varchar(64);not null"`

	Prompt string `gorm:"type:text;not null"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	Reply *string `gorm:"type:text"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "chat_jobs" }
