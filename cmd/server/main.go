package main

import (
	"context"
	"log"
	"strings"

	"github.com/chatstack/chat-checkpoint/internal/ai"
	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/config"
	"github.com/chatstack/chat-checkpoint/internal/db"
	"github.com/chatstack/chat-checkpoint/internal/httpapi"
	"github.com/chatstack/chat-checkpoint/internal/store/rabbitmq"
	"github.com/chatstack/chat-checkpoint/internal/store/redisstore"
	"github.com/chatstack/chat-checkpoint/internal/workflow"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	backend := buildBackend(cfg, gdb, repo)

	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	provider, err := reg.Get(context.Background(), cfg.AIProvider, cfg.OllamaModel)
	if err != nil {
		log.Fatalf("ai provider: %v", err)
	}

	svc := chat.NewService(backend, provider)

	var pub *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		pub, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Printf("rabbit unavailable, async processing disabled: %v", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	r := httpapi.NewRouter(svc, repo, pub)

	log.Printf("server listening on %s backend=%s", cfg.HTTPAddr, cfg.CheckpointBackend)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func buildBackend(cfg config.Config, gdb *gorm.DB, repo *chat.Repo) chat.Backend {
	switch cfg.CheckpointBackend {
	case "", "log":
		return chat.NewLogBackend(repo)
	case "workflow":
		var saver workflow.Saver
		switch cfg.CheckpointSaver {
		case "", "db":
			saver = workflow.NewDBSaver(gdb)
		case "redis":
			saver = workflow.NewRedisSaver(redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		default:
			log.Fatalf("unsupported CHECKPOINT_SAVER=%q", cfg.CheckpointSaver)
		}
		graph, err := workflow.NewChatGraph(saver)
		if err != nil {
			log.Fatalf("chat graph: %v", err)
		}
		return chat.NewWorkflowBackend(graph, saver)
	default:
		log.Fatalf("unsupported CHECKPOINT_BACKEND=%q", cfg.CheckpointBackend)
		return nil
	}
}
