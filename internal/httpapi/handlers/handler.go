package handlers

import (
	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/store/rabbitmq"
)

type Handler struct {
	Svc       *chat.Service
	Repo      *chat.Repo
	Publisher *rabbitmq.Publisher // nil disables async processing
}

func NewHandler(svc *chat.Service, repo *chat.Repo, pub *rabbitmq.Publisher) *Handler {
	return &Handler{Svc: svc, Repo: repo, Publisher: pub}
}
