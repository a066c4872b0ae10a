package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatstack/chat-checkpoint/internal/ai"
	"github.com/chatstack/chat-checkpoint/internal/workflow"
)

type recordingProvider struct {
	last  []ai.Message
	reply string
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	p.last = append([]ai.Message(nil), messages...)
	if p.reply == "" {
		return "ok", nil
	}
	return p.reply, nil
}

func newLogService(t *testing.T) (*Service, *recordingProvider) {
	t.Helper()
	prov := &recordingProvider{}
	repo := NewRepo(openTestDB(t))
	return NewService(NewLogBackend(repo), prov), prov
}

func newWorkflowService(t *testing.T) *Service {
	t.Helper()
	saver := workflow.NewDBSaver(openTestDB(t))
	graph, err := workflow.NewChatGraph(saver)
	if err != nil {
		t.Fatalf("chat graph: %v", err)
	}
	return NewService(NewWorkflowBackend(graph, saver), &recordingProvider{})
}

func TestSaveCheckpoint_Validation(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()

	msgs := []ChatMessage{{Role: "USER", Content: "hi"}}

	if _, err := svc.SaveCheckpoint(ctx, "", "s", "m", msgs); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty chat id, got %v", err)
	}
	if _, err := svc.SaveCheckpoint(ctx, "c", "", "m", msgs); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty session id, got %v", err)
	}
	if _, err := svc.SaveCheckpoint(ctx, "c", "s", "", msgs); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty message id, got %v", err)
	}
	if _, err := svc.SaveCheckpoint(ctx, "c", "s", "m", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty messages, got %v", err)
	}
}

func TestSaveLoadRoundTrip_LogBackend(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()

	saved, err := svc.SaveCheckpoint(ctx, "chat-1", "sess-rt", "msg-1", []ChatMessage{
		{Role: "USER", Content: "hello"},
		{Role: "ASSISTANT", Content: "hi there"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ChatID != "chat-1" || saved.SessionID != "sess-rt" {
		t.Fatalf("unexpected checkpoint identity: %+v", saved)
	}

	cp, err := svc.LoadCheckpoint(ctx, "sess-rt")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp.ChatID != "chat-1" {
		t.Fatalf("expected chat id chat-1, got %q", cp.ChatID)
	}
	if len(cp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(cp.Messages))
	}
	if cp.Messages[0].Role != RoleUser || cp.Messages[0].Content != "hello" {
		t.Fatalf("unexpected first message: %+v", cp.Messages[0])
	}
	if cp.Messages[1].Role != RoleAssistant || cp.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected second message: %+v", cp.Messages[1])
	}
}

func TestLoadCheckpoint_NotFound(t *testing.T) {
	svc, _ := newLogService(t)

	if _, err := svc.LoadCheckpoint(context.Background(), "no-such-session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCheckpoint_LogBackend(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()

	if _, err := svc.SaveCheckpoint(ctx, "chat-1", "sess-d", "msg-1",
		[]ChatMessage{{Role: "USER", Content: "x"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := svc.DeleteCheckpoint(ctx, "sess-d"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.LoadCheckpoint(ctx, "sess-d"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	exists, err := svc.CheckpointExists(ctx, "sess-d")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false after delete")
	}

	// Deleting a never-existing session succeeds silently.
	if err := svc.DeleteCheckpoint(ctx, "never-existed"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
}

func TestCreateNewSessionID(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()

	sid, err := svc.CreateNewSessionID(ctx, "chat-1")
	if err != nil {
		t.Fatalf("create session id: %v", err)
	}
	if len(sid) != 26 {
		t.Fatalf("expected 26-char ULID, got %q", sid)
	}

	other, err := svc.CreateNewSessionID(ctx, "chat-1")
	if err != nil {
		t.Fatalf("create second session id: %v", err)
	}
	if other == sid {
		t.Fatalf("expected fresh session id, got duplicate %q", sid)
	}

	exists, err := svc.CheckpointExists(ctx, sid)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("fresh session must not have a checkpoint")
	}

	if _, err := svc.CreateNewSessionID(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty chat id, got %v", err)
	}
}

func TestSaveLoadRoundTrip_WorkflowBackend(t *testing.T) {
	svc := newWorkflowService(t)
	ctx := context.Background()

	if _, err := svc.SaveCheckpoint(ctx, "chat-1", "thread-rt", "msg-1", []ChatMessage{
		{Role: "USER", Content: "hello"},
		{Role: "ASSISTANT", Content: "hi there"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, err := svc.LoadCheckpoint(ctx, "thread-rt")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(cp.Messages))
	}
	if cp.Messages[0].Role != RoleUser || cp.Messages[1].Role != RoleAssistant {
		t.Fatalf("unexpected roles: %+v", cp.Messages)
	}
	// Context is freshly derived by the save_context node on every run.
	if got, ok := cp.Context["messageCount"]; !ok || toInt(got) != 2 {
		t.Fatalf("expected messageCount 2 in context, got %v", cp.Context["messageCount"])
	}
	if _, ok := cp.Context["lastProcessedAt"]; !ok {
		t.Fatalf("expected lastProcessedAt in context, got %v", cp.Context)
	}

	// A later save appends to the prior snapshot.
	if _, err := svc.SaveCheckpoint(ctx, "chat-1", "thread-rt", "msg-2",
		[]ChatMessage{{Role: "USER", Content: "again"}}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	cp, err = svc.LoadCheckpoint(ctx, "thread-rt")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(cp.Messages) != 3 {
		t.Fatalf("expected 3 messages after second save, got %d", len(cp.Messages))
	}
	if toInt(cp.Context["messageCount"]) != 3 {
		t.Fatalf("expected messageCount 3, got %v", cp.Context["messageCount"])
	}
}

func TestWorkflowBackend_LoadNotFound(t *testing.T) {
	svc := newWorkflowService(t)

	if _, err := svc.LoadCheckpoint(context.Background(), "empty-thread"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// memSaver intentionally lacks the Delete capability.
type memSaver struct {
	cps map[string]*workflow.Checkpoint
}

func (s *memSaver) Save(ctx context.Context, threadID string, state workflow.State) (*workflow.Checkpoint, error) {
	_ = ctx
	cp := &workflow.Checkpoint{ThreadID: threadID, State: state, CreatedAt: time.Now()}
	s.cps[threadID] = cp
	return cp, nil
}

func (s *memSaver) LoadLatest(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	_ = ctx
	return s.cps[threadID], nil
}

func (s *memSaver) Exists(ctx context.Context, threadID string) (bool, error) {
	_ = ctx
	_, ok := s.cps[threadID]
	return ok, nil
}

func TestWorkflowBackend_DeleteWithoutDeleterSucceeds(t *testing.T) {
	saver := &memSaver{cps: map[string]*workflow.Checkpoint{}}
	graph, err := workflow.NewChatGraph(saver)
	if err != nil {
		t.Fatalf("chat graph: %v", err)
	}
	svc := NewService(NewWorkflowBackend(graph, saver), nil)
	ctx := context.Background()

	if _, err := svc.SaveCheckpoint(ctx, "chat-1", "thread-nd", "msg-1",
		[]ChatMessage{{Role: "USER", Content: "x"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// No physical deletion happens, but the contract still reports success.
	if err := svc.DeleteCheckpoint(ctx, "thread-nd"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	exists, err := svc.CheckpointExists(ctx, "thread-nd")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("expected snapshot retained by delete-less saver")
	}
}

func TestProcessMessage_PersistsTurn(t *testing.T) {
	svc, prov := newLogService(t)
	ctx := context.Background()

	reply, cp, err := svc.ProcessMessage(ctx, "chat-1", "sess-pm", "msg-1", "hello")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(cp.Messages) != 2 {
		t.Fatalf("expected 2 messages in checkpoint, got %d", len(cp.Messages))
	}

	loaded, err := svc.LoadCheckpoint(ctx, "sess-pm")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[0].Role != RoleUser || loaded.Messages[0].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", loaded.Messages[0])
	}
	if loaded.Messages[1].Role != RoleAssistant || loaded.Messages[1].Content != "ok" {
		t.Fatalf("unexpected assistant message: %+v", loaded.Messages[1])
	}

	// Second turn sends full history plus the new user message to the provider.
	if _, _, err := svc.ProcessMessage(ctx, "chat-1", "sess-pm", "msg-2", "and again"); err != nil {
		t.Fatalf("second process: %v", err)
	}
	if len(prov.last) != 3 {
		t.Fatalf("expected provider to receive 3 messages, got %d", len(prov.last))
	}
	if prov.last[2].Role != RoleUser || prov.last[2].Content != "and again" {
		t.Fatalf("unexpected newest prompt message: %+v", prov.last[2])
	}
}

// toInt unifies int64 from in-memory state and float64 from JSON round trips.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
