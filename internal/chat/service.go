package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/chatstack/chat-checkpoint/internal/ai"
	"github.com/chatstack/chat-checkpoint/internal/workflow"
)

// Backend implements checkpoint persistence. Two implementations exist: the
// relational message log (LogBackend) and the workflow checkpoint saver
// (WorkflowBackend); the façade logic above them is shared.
type Backend interface {
	SaveCheckpoint(ctx context.Context, chatID, sessionID, messageID string, msgs []ChatMessage) (*Checkpoint, error)
	LoadCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error)
	CheckpointExists(ctx context.Context, sessionID string) (bool, error)
	DeleteCheckpoint(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, chatID string) ([]Session, error)
}

// Service is the caller-facing checkpoint façade: it validates identities,
// delegates persistence to the configured backend and drives reply generation
// through the provider.
type Service struct {
	backend  Backend
	provider ai.Provider
}

func NewService(backend Backend, provider ai.Provider) *Service {
	return &Service{backend: backend, provider: provider}
}

// SaveCheckpoint persists messages for a session. The caller-supplied
// messageID is assigned to the first message of the batch.
func (s *Service) SaveCheckpoint(ctx context.Context, chatID, sessionID, messageID string, msgs []ChatMessage) (*Checkpoint, error) {
	if chatID == "" || sessionID == "" || messageID == "" {
		return nil, fmt.Errorf("%w: chatId, sessionId and messageId are required", ErrValidation)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrValidation)
	}
	return s.backend.SaveCheckpoint(ctx, chatID, sessionID, messageID, msgs)
}

// LoadCheckpoint returns the latest snapshot for a session, or ErrNotFound.
func (s *Service) LoadCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	return s.backend.LoadCheckpoint(ctx, sessionID)
}

func (s *Service) CheckpointExists(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	return s.backend.CheckpointExists(ctx, sessionID)
}

// DeleteCheckpoint clears a session's persisted state. Best-effort: backends
// without a delete primitive log the caveat and still report success.
// Deleting an absent session succeeds.
func (s *Service) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	return s.backend.DeleteCheckpoint(ctx, sessionID)
}

// CreateNewSessionID mints a fresh session id for a context reset. The new
// session starts empty; no history is copied or linked from prior sessions,
// and old session rows are left in place.
func (s *Service) CreateNewSessionID(ctx context.Context, chatID string) (string, error) {
	if chatID == "" {
		return "", fmt.Errorf("%w: chatId is required", ErrValidation)
	}
	sid, err := NewSessionID()
	if err != nil {
		return "", err
	}
	log.Printf("chat: new session %s for chat %s", sid, chatID)
	return sid, nil
}

func (s *Service) SessionsForChat(ctx context.Context, chatID string) ([]Session, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chatId is required", ErrValidation)
	}
	return s.backend.ListSessions(ctx, chatID)
}

// ProcessMessage runs one conversational turn: load prior state, append the
// user message, generate a reply, persist the user/assistant pair and return
// the reply. Generation failures surface before anything is persisted.
func (s *Service) ProcessMessage(ctx context.Context, chatID, sessionID, messageID, userText string) (string, *Checkpoint, error) {
	if s.provider == nil {
		return "", nil, errors.New("chat: no generation provider configured")
	}
	if chatID == "" || sessionID == "" || messageID == "" {
		return "", nil, fmt.Errorf("%w: chatId, sessionId and messageId are required", ErrValidation)
	}

	var history []ChatMessage
	cp, err := s.LoadCheckpoint(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", nil, err
	}
	if cp != nil {
		history = cp.Messages
	}

	prompt := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		prompt = append(prompt, ai.Message{Role: m.Role, Content: m.Content})
	}
	prompt = append(prompt, ai.Message{Role: RoleUser, Content: userText})

	reply, err := s.provider.Chat(ctx, prompt)
	if err != nil {
		return "", nil, err
	}

	saved, err := s.SaveCheckpoint(ctx, chatID, sessionID, messageID, []ChatMessage{
		{Role: RoleUser, Content: userText},
		{Role: RoleAssistant, Content: reply},
	})
	if err != nil {
		return "", nil, err
	}
	return reply, saved, nil
}

// LogBackend materializes checkpoints from the relational message log and the
// session directory.
type LogBackend struct {
	repo *Repo
}

func NewLogBackend(repo *Repo) *LogBackend {
	return &LogBackend{repo: repo}
}

func (b *LogBackend) SaveCheckpoint(ctx context.Context, chatID, sessionID, messageID string, msgs []ChatMessage) (*Checkpoint, error) {
	stored, err := b.repo.AppendMessages(ctx, chatID, sessionID, messageID, msgs)
	if err != nil {
		return nil, err
	}

	out := make([]ChatMessage, 0, len(stored))
	for _, m := range stored {
		out = append(out, ChatMessage{MessageID: m.MessageID, Role: m.Role, Content: m.Content})
	}
	return &Checkpoint{
		ChatID:    chatID,
		SessionID: sessionID,
		MessageID: messageID,
		Messages:  out,
		CreatedAt: time.Now(),
	}, nil
}

func (b *LogBackend) LoadCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	msgs, err := b.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}

	chatID := sessionID
	sess, err := b.repo.GetSession(ctx, sessionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if sess != nil {
		chatID = sess.ChatID
	}

	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{MessageID: m.MessageID, Role: m.Role, Content: m.Content})
	}
	return &Checkpoint{
		ChatID:    chatID,
		SessionID: sessionID,
		MessageID: msgs[len(msgs)-1].MessageID,
		Messages:  out,
		CreatedAt: msgs[len(msgs)-1].CreatedAt,
	}, nil
}

func (b *LogBackend) CheckpointExists(ctx context.Context, sessionID string) (bool, error) {
	return b.repo.SessionExists(ctx, sessionID)
}

// DeleteCheckpoint clears both the message log and the directory row.
func (b *LogBackend) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	if err := b.repo.DeleteAllMessages(ctx, sessionID); err != nil {
		return err
	}
	return b.repo.DeleteSession(ctx, sessionID)
}

func (b *LogBackend) ListSessions(ctx context.Context, chatID string) ([]Session, error) {
	return b.repo.ListSessionsByChat(ctx, chatID)
}

// WorkflowBackend persists checkpoints by running the chat workflow against
// the configured saver, keyed by the session id as thread id.
type WorkflowBackend struct {
	graph *workflow.Graph
	saver workflow.Saver
}

func NewWorkflowBackend(graph *workflow.Graph, saver workflow.Saver) *WorkflowBackend {
	return &WorkflowBackend{graph: graph, saver: saver}
}

func (b *WorkflowBackend) SaveCheckpoint(ctx context.Context, chatID, sessionID, messageID string, msgs []ChatMessage) (*Checkpoint, error) {
	prior, err := b.saver.LoadLatest(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var stateMsgs []workflow.StateMessage
	if prior != nil {
		stateMsgs = append(stateMsgs, prior.State.Messages...)
	}
	for _, m := range msgs {
		stateMsgs = append(stateMsgs, workflow.StateMessage{
			Role:    NormalizeRole(m.Role),
			Content: m.Content,
		})
	}

	initial := workflow.State{
		Messages: stateMsgs,
		Context: map[string]any{
			"chatId":    chatID,
			"messageId": messageID,
		},
	}
	final, err := b.graph.Run(ctx, sessionID, initial)
	if err != nil {
		return nil, err
	}

	return &Checkpoint{
		ChatID:    chatID,
		SessionID: sessionID,
		MessageID: messageID,
		Messages:  fromStateMessages(final.Messages),
		Context:   final.Context,
		CreatedAt: time.Now(),
	}, nil
}

func (b *WorkflowBackend) LoadCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	cp, err := b.saver.LoadLatest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		// Absent and "empty mapping" are the same outcome here.
		return nil, ErrNotFound
	}

	// The workflow context does not survive with the owning chat id in it, so
	// the session id doubles as the chat id on this path.
	return &Checkpoint{
		ChatID:    sessionID,
		SessionID: sessionID,
		Messages:  fromStateMessages(cp.State.Messages),
		Context:   cp.State.Context,
		CreatedAt: cp.CreatedAt,
	}, nil
}

func (b *WorkflowBackend) CheckpointExists(ctx context.Context, sessionID string) (bool, error) {
	return b.saver.Exists(ctx, sessionID)
}

// DeleteCheckpoint physically deletes when the saver supports it; otherwise it
// logs that nothing was removed and reports success, keeping the API contract.
func (b *WorkflowBackend) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	if d, ok := b.saver.(workflow.Deleter); ok {
		return d.Delete(ctx, sessionID)
	}
	log.Printf("chat: checkpoint saver has no delete primitive, session %s retained", sessionID)
	return nil
}

// ListSessions is not backed by a directory on this path; the saver keys
// snapshots by thread only.
func (b *WorkflowBackend) ListSessions(ctx context.Context, chatID string) ([]Session, error) {
	log.Printf("chat: workflow backend cannot enumerate sessions for chat %s", chatID)
	return nil, nil
}

func fromStateMessages(msgs []workflow.StateMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
