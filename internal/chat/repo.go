package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// AppendMessages durably appends a batch of messages to a session's log and
// updates the session directory row, all in one transaction. The store assigns
// message_order as (max existing order)+1, +2, ... in input order; the batch is
// atomic, so a failed append leaves no partial writes behind.
//
// Order assignment is serialized per session by touching the session row first:
// the row write lock is held for the rest of the transaction, so concurrent
// appends to the same session queue up while different sessions do not contend.
//
// The caller-supplied messageID (may be empty) is assigned to the first message
// of the batch; the rest get generated ids.
func (r *Repo) AppendMessages(ctx context.Context, chatID, sessionID, messageID string, msgs []ChatMessage) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	var stored []Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := lockSession(tx, sessionID, chatID)
		if err != nil {
			return err
		}

		var lastOrder int
		if err := tx.Model(&Message{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(message_order), 0)").
			Scan(&lastOrder).Error; err != nil {
			return err
		}

		now := time.Now()
		stored = make([]Message, 0, len(msgs))
		for i, m := range msgs {
			id := NewMessageID()
			if i == 0 && messageID != "" {
				id = messageID
			} else if m.MessageID != "" {
				id = m.MessageID
			}
			stored = append(stored, Message{
				MessageID: id,
				ChatID:    sess.ChatID,
				SessionID: sessionID,
				Role:      NormalizeRole(m.Role),
				Content:   m.Content,
				Order:     lastOrder + i + 1,
				CreatedAt: now,
			})
		}
		if err := tx.Create(&stored).Error; err != nil {
			return err
		}

		return tx.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{
				"message_count":        gorm.Expr("message_count + ?", len(stored)),
				"last_message_preview": truncatePreview(msgs[len(msgs)-1].Content),
				"updated_at":           now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// lockSession takes the session row write lock via an update, creating the row
// when absent. A differing chat id re-homes the session to the new owner; the
// write is never dropped.
func lockSession(tx *gorm.DB, sessionID, chatID string) (*Session, error) {
	res := tx.Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Session{SessionID: sessionID, ChatID: chatID}).Error; err != nil {
			return nil, err
		}
		// Lost creation races land here too; the update takes the lock either way.
		if err := tx.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Update("updated_at", time.Now()).Error; err != nil {
			return nil, err
		}
	}

	var sess Session
	if err := tx.Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		return nil, err
	}
	if chatID != "" && sess.ChatID != chatID {
		log.Printf("chat: session %s re-homed from chat %s to chat %s", sessionID, sess.ChatID, chatID)
		if err := tx.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Update("chat_id", chatID).Error; err != nil {
			return nil, err
		}
		sess.ChatID = chatID
	}
	return &sess, nil
}

// ListMessages returns the full log for a session in ascending order.
// Unknown sessions yield an empty slice, not an error.
func (r *Repo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("message_order ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// LastOrder returns the highest assigned order for a session, 0 when empty.
func (r *Repo) LastOrder(ctx context.Context, sessionID string) (int, error) {
	var last int
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(message_order), 0)").
		Scan(&last).Error
	return last, err
}

func (r *Repo) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

// DeleteAllMessages clears a session's log. Idempotent.
func (r *Repo) DeleteAllMessages(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&Message{}).Error
}

// GetSession looks up a directory row without creating it. Returns
// gorm.ErrRecordNotFound for unknown sessions.
func (r *Repo) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetOrCreateSession returns the directory row for sessionID, creating it with
// a zero message count when absent. A differing owning chat id re-homes the
// session and logs the discrepancy (non-fatal).
func (r *Repo) GetOrCreateSession(ctx context.Context, sessionID, chatID string) (*Session, error) {
	db := r.db.WithContext(ctx)

	var sess Session
	err := db.Where("session_id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Session{SessionID: sessionID, ChatID: chatID}).Error; err != nil {
			return nil, err
		}
		err = db.Where("session_id = ?", sessionID).First(&sess).Error
	}
	if err != nil {
		return nil, err
	}

	if chatID != "" && sess.ChatID != chatID {
		log.Printf("chat: session %s re-homed from chat %s to chat %s", sessionID, sess.ChatID, chatID)
		if err := db.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Update("chat_id", chatID).Error; err != nil {
			return nil, err
		}
		sess.ChatID = chatID
	}
	return &sess, nil
}

// TouchSession bumps updated_at, adds delta to the message count and replaces
// the last-message preview. No-op when no messages were added.
func (r *Repo) TouchSession(ctx context.Context, sessionID string, delta int, newestContent string) error {
	if delta <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"message_count":        gorm.Expr("message_count + ?", delta),
			"last_message_preview": truncatePreview(newestContent),
			"updated_at":           time.Now(),
		}).Error
}

func (r *Repo) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	return n > 0, err
}

// ListSessionsByChat returns all sessions owned by a chat id, most recently
// active first.
func (r *Repo) ListSessionsByChat(ctx context.Context, chatID string) ([]Session, error) {
	var sessions []Session
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("updated_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes the directory row only; the message log is cleared
// separately by callers wanting full deletion. Idempotent.
func (r *Repo) DeleteSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&Session{}).Error
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id, reply string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobSucceeded,
			"reply":  reply,
			"error":  nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobFailed,
			"error":  errMsg,
			"reply":  nil,
		}).Error
}
