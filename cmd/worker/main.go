package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/config"
	"github.com/suPer8Hu/gemini-chat/internal/db"
	"github.com/suPer8Hu/gemini-chat/internal/logger"
	"github.com/suPer8Hu/gemini-chat/internal/store"
	"github.com/suPer8Hu/gemini-chat/internal/store/rabbitmq"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gdb *gorm.DB
	if cfg.HistoryBackend == "sql" {
		gdb = db.Connect(cfg.DBDriver, cfg.DBDSN)
	}

	history, closeHistory, err := store.OpenHistory(ctx, cfg, gdb)
	if err != nil {
		logger.Fatal("history store", "backend", cfg.HistoryBackend, "err", err)
	}
	defer func() { _ = closeHistory() }()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", "err", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.HistoryQueue); err != nil {
		logger.Fatal("queue declare", "err", err)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", "err", err)
	}

	msgs, err := ch.Consume(cfg.HistoryQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", "err", err)
	}

	logger.Info("worker started", "queue", cfg.HistoryQueue, "concurrency", concurrency, "backend", cfg.HistoryBackend)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, history, workerID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

// appendTimeout bounds one store append. Appends run detached from the
// shutdown signal so buffered deliveries still finish after SIGTERM.
const appendTimeout = 10 * time.Second

func handleDelivery(ctx context.Context, history chat.TurnAppender, workerID int, d amqp.Delivery) {
	m, err := rabbitmq.DecodeHistoryMessage(d.Body)
	if err != nil {
		logger.Warn("bad message", "worker", workerID, "message_id", d.MessageId, "err", err)
		_ = d.Nack(false, false)
		return
	}
	l := logger.With("worker", workerID, "message_id", d.MessageId, "request_id", m.RequestID, "identity", m.Identity)

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()

	start := time.Now()
	if err := history.AppendTurns(actx, m.Identity, m.Turns); err != nil {
		// during shutdown the message goes back to the queue; otherwise dead-lettered
		requeue := ctx.Err() != nil
		l.Error("append turns failed", "cost", time.Since(start), "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
		return
	}

	if err := d.Ack(false); err != nil {
		l.Error("ack failed", "err", err)
	}
	if cost := time.Since(start); cost > 500*time.Millisecond {
		l.Warn("slow append", "cost", cost, "turns", len(m.Turns))
	}
}
