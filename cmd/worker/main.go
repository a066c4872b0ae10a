package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/chatstack/chat-checkpoint/internal/ai"
	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/config"
	"github.com/chatstack/chat-checkpoint/internal/db"
	"github.com/chatstack/chat-checkpoint/internal/store/rabbitmq"
	"github.com/chatstack/chat-checkpoint/internal/store/redisstore"
	"github.com/chatstack/chat-checkpoint/internal/workflow"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

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

	svc := chat.NewService(buildBackend(cfg, gdb, repo), provider)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, nil)
	if err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID); err != nil {
					log.Printf("worker=%d job %s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	reply, _, err := svc.ProcessMessage(ctx, j.ChatID, j.SessionID, j.MessageID, j.Prompt)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, reply)
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
