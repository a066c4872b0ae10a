package chat

import (
	"strings"
	"time"
)

// Roles stored on messages. Unrecognized values decode to RoleUser.
const (
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleSystem    = "SYSTEM"
)

const previewMaxLen = 100

// Session is one bounded conversational context owned by a permanent chat id.
type Session struct {
	SessionID          string    `gorm:"type:varchar(64);primaryKey" json:"session_id"`
	ChatID             string    `gorm:"type:varchar(64);index;not null" json:"chat_id"`
	MessageCount       int       `gorm:"not null;default:0" json:"message_count"`
	LastMessagePreview string    `gorm:"type:varchar(128)" json:"last_message_preview"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `gorm:"index" json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"type:varchar(64);not null;index" json:"message_id"`
	ChatID    string    `gorm:"type:varchar(64);not null;index:idx_chat_msg_chat_session,priority:1" json:"-"`
	SessionID string    `gorm:"type:varchar(64);not null;index:idx_chat_msg_chat_session,priority:2;index:uniq_chat_msg_order,unique,priority:1" json:"session_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Order     int       `gorm:"column:message_order;not null;index:uniq_chat_msg_order,unique,priority:2" json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// ChatMessage is the role/content payload exchanged with callers and the
// workflow layer; ordering and ids live on the stored Message.
type ChatMessage struct {
	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Checkpoint is the caller-facing snapshot of a session's conversational state.
type Checkpoint struct {
	ChatID    string         `json:"chat_id"`
	SessionID string         `json:"session_id"`
	MessageID string         `json:"message_id,omitempty"`
	Messages  []ChatMessage  `json:"messages"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NormalizeRole maps arbitrary role strings onto the stored role set.
// Unknown roles become RoleUser (lenient decoding).
func NormalizeRole(role string) string {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case RoleUser:
		return RoleUser
	case RoleAssistant:
		return RoleAssistant
	case RoleSystem:
		return RoleSystem
	default:
		return RoleUser
	}
}

// truncatePreview keeps at most previewMaxLen runes and appends "..." when cut.
func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewMaxLen {
		return s
	}
	return string(runes[:previewMaxLen]) + "..."
}
