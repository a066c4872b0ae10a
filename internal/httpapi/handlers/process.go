package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/common"
)

type processMessageReq struct {
	ChatID    string `json:"chat_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	MessageID string `json:"message_id"`
	Message   string `json:"message" binding:"required"`
}

// ProcessMessage runs one synchronous conversational turn.
func (h *Handler) ProcessMessage(c *gin.Context) {
	var req processMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.MessageID == "" {
		req.MessageID = chat.NewMessageID()
	}

	reply, cp, err := h.Svc.ProcessMessage(c.Request.Context(),
		req.ChatID, req.SessionID, req.MessageID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to process message")
		return
	}
	common.OK(c, gin.H{
		"session_id": req.SessionID,
		"reply":      reply,
		"checkpoint": cp,
	})
}

// ProcessMessageAsync enqueues the turn as a job and returns immediately.
func (h *Handler) ProcessMessageAsync(c *gin.Context) {
	if h.Publisher == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async processing disabled")
		return
	}

	var req processMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.MessageID == "" {
		req.MessageID = chat.NewMessageID()
	}

	jobID, err := chat.NewSessionID() // ULIDs for job ids as well
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to create job")
		return
	}

	job := &chat.Job{
		ID:        jobID,
		ChatID:    req.ChatID,
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Prompt:    req.Message,
		Status:    chat.JobQueued,
	}
	if err := h.Repo.CreateJob(c.Request.Context(), job); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to create job")
		return
	}

	if err := h.Publisher.PublishJob(c.Request.Context(), job.ID); err != nil {
		_ = h.Repo.MarkJobFailed(c.Request.Context(), job.ID, "publish failed")
		common.Fail(c, http.StatusInternalServerError, 50008, "failed to enqueue job")
		return
	}

	common.OK(c, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Repo.GetJobByID(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50009, "failed to load job")
		return
	}
	common.OK(c, job)
}
