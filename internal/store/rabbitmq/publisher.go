package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/common"
)

// HistoryMessage asks the worker to append Turns for Identity.
type HistoryMessage struct {
	Identity  string      `json:"identity"`
	Turns     []chat.Turn `json:"turns"`
	RequestID string      `json:"request_id,omitempty"`
}

var ErrBadMessage = errors.New("rabbitmq: bad history message")

var _ chat.TurnAppender = (*Publisher)(nil)

// DecodeHistoryMessage validates a delivery body.
func DecodeHistoryMessage(body []byte) (HistoryMessage, error) {
	var m HistoryMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, errors.Join(ErrBadMessage, err)
	}
	if m.Identity == "" || len(m.Turns) == 0 {
		return m, ErrBadMessage
	}
	return m, nil
}

// QueueDeclarer is the part of *amqp.Channel used to declare the topology.
type QueueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn  *amqp.Connection
	ch    publishChannel
	queue string
}

// DeclareQueues sets up queue and queue.dlq. Messages rejected on the main
// queue are dead-lettered to the DLQ; nothing is retried.
func DeclareQueues(ch QueueDeclarer, queue string) error {
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AppendTurns hands the whole batch to the worker as one message, so the
// worker applies it with a single store append.
func (p *Publisher) AppendTurns(ctx context.Context, identity string, turns []chat.Turn) error {
	if identity == "" {
		return chat.ErrNoIdentity
	}
	if len(turns) == 0 {
		return nil
	}
	body, err := json.Marshal(HistoryMessage{
		Identity:  identity,
		Turns:     turns,
		RequestID: common.RequestIDFrom(ctx),
	})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
