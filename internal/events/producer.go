// Package events publishes post-commit chat events to Kafka for
// downstream consumers (notification fan-out, analytics). Publishing is
// best-effort: the engine logs failures and never fails the triggering
// operation on them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

const (
	TypeMessageSent = "message.sent"
	TypeChatCreated = "chat.created"
)

type MessageSentEvent struct {
	ChatID  string          `json:"chat_id"`
	Message *models.Message `json:"message"`
}

type ChatCreatedEvent struct {
	ChatID       string   `json:"chat_id"`
	Participants []string `json:"participants"`
	IsGroup      bool     `json:"is_group"`
	GroupName    string   `json:"group_name,omitempty"`
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	At      int64  `json:"at"`
}

// Publisher is the slice of the producer the engine depends on.
type Publisher interface {
	PublishMessageSent(ctx context.Context, ev MessageSentEvent) error
	PublishChatCreated(ctx context.Context, ev ChatCreatedEvent) error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: w}
}

func (p *Producer) publish(ctx context.Context, key, eventType string, payload any) error {
	b, err := json.Marshal(envelope{Type: eventType, Payload: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b, Time: time.Now()})
}

func (p *Producer) PublishMessageSent(ctx context.Context, ev MessageSentEvent) error {
	return p.publish(ctx, ev.ChatID, TypeMessageSent, ev)
}

func (p *Producer) PublishChatCreated(ctx context.Context, ev ChatCreatedEvent) error {
	return p.publish(ctx, ev.ChatID, TypeChatCreated, ev)
}

func (p *Producer) Close() error { return p.writer.Close() }
