package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/common"
	"github.com/chatstack/chat-checkpoint/internal/httpapi/handlers"
	"github.com/chatstack/chat-checkpoint/internal/httpapi/middleware"
	"github.com/chatstack/chat-checkpoint/internal/store/rabbitmq"
)

func NewRouter(svc *chat.Service, repo *chat.Repo, pub *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(svc, repo, pub)

	r.GET("/ping", h.Ping)

	r.POST("/chat/message", h.SaveMessage)
	r.GET("/chat/session/:session_id", h.LoadSession)
	r.HEAD("/chat/session/:session_id", h.SessionExists)
	r.DELETE("/chat/session/:session_id", h.DeleteSession)
	r.POST("/chat/reset-context", h.ResetContext)
	r.GET("/chat/sessions/:chat_id", h.ListSessions)

	r.POST("/chat/process", h.ProcessMessage)
	r.POST("/chat/process/async", h.ProcessMessageAsync)
	r.GET("/chat/jobs/:job_id", h.GetJob)

	return r
}
