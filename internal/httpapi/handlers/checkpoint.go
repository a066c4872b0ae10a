package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/common"
)

type chatInfo struct {
	ChatID    string `json:"chat_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	MessageID string `json:"message_id" binding:"required"`
}

type saveMessageReq struct {
	Chat     chatInfo           `json:"chat" binding:"required"`
	Messages []chat.ChatMessage `json:"messages" binding:"required"`
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// SaveMessage persists a batch of messages as the session's checkpoint.
func (h *Handler) SaveMessage(c *gin.Context) {
	var req saveMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	cp, err := h.Svc.SaveCheckpoint(c.Request.Context(),
		req.Chat.ChatID, req.Chat.SessionID, req.Chat.MessageID, req.Messages)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to save checkpoint")
		return
	}
	common.OK(c, cp)
}

func (h *Handler) LoadSession(c *gin.Context) {
	cp, err := h.Svc.LoadCheckpoint(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "checkpoint not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to load checkpoint")
		return
	}
	common.OK(c, cp)
}

func (h *Handler) SessionExists(c *gin.Context) {
	exists, err := h.Svc.CheckpointExists(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if !exists {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.Svc.DeleteCheckpoint(c.Request.Context(), c.Param("session_id")); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to delete checkpoint")
		return
	}
	common.OK(c, nil)
}

type resetContextReq struct {
	ChatID string `json:"chat_id" binding:"required"`
}

// ResetContext mints a fresh session id for the chat. The old session is left
// in place; only the caller's pointer moves.
func (h *Handler) ResetContext(c *gin.Context) {
	var req resetContextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sid, err := h.Svc.CreateNewSessionID(c.Request.Context(), req.ChatID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to create session")
		return
	}
	common.OK(c, gin.H{"chat_id": req.ChatID, "session_id": sid})
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.Svc.SessionsForChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}
