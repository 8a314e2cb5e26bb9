package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Publisher 是事件发布的统一契约：调用方在主事务提交之后触发，
// 发布失败只记录日志，绝不回传给调用方。
type Publisher interface {
	PublishMessageEvent(ctx context.Context, ev MessageEvent)
	PublishUserEvent(ctx context.Context, ev UserEvent)
	PublishNotificationEvent(ctx context.Context, ev NotificationEvent)
	Close() error
}

// KafkaPublisher 按事件族维护独立的 writer，JSON 序列化后写入对应 topic。
type KafkaPublisher struct {
	messageWriter      *kafka.Writer
	userWriter         *kafka.Writer
	notificationWriter *kafka.Writer
	timeout            time.Duration
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
}

func NewKafkaPublisher(brokers []string, messageTopic, userTopic, notificationTopic string, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		messageWriter:      newWriter(brokers, messageTopic),
		userWriter:         newWriter(brokers, userTopic),
		notificationWriter: newWriter(brokers, notificationTopic),
		timeout:            timeout,
	}
}

// publish 序列化并写入 Kafka，key 取事件类型。任何失败都只记日志。
func (p *KafkaPublisher) publish(ctx context.Context, w *kafka.Writer, family, eventType string, ev any) {
	b, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(family).Inc()
		log.Error().Err(err).Str("event_type", eventType).Msg("serialize event")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(eventType),
		Value: b,
		Time:  time.Now(),
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		metrics.EventsDropped.WithLabelValues(family).Inc()
		log.Warn().Err(err).Str("event_type", eventType).Msg("kafka unavailable, skipping event")
		return
	}
	metrics.EventsPublished.WithLabelValues(family).Inc()
	log.Info().Str("event_type", eventType).Msg("published event")
}

func (p *KafkaPublisher) PublishMessageEvent(ctx context.Context, ev MessageEvent) {
	p.publish(ctx, p.messageWriter, "message", ev.EventType, ev)
}

func (p *KafkaPublisher) PublishUserEvent(ctx context.Context, ev UserEvent) {
	p.publish(ctx, p.userWriter, "user", ev.EventType, ev)
}

func (p *KafkaPublisher) PublishNotificationEvent(ctx context.Context, ev NotificationEvent) {
	p.publish(ctx, p.notificationWriter, "notification", ev.EventType, ev)
}

func (p *KafkaPublisher) Close() error {
	if err := p.messageWriter.Close(); err != nil {
		return err
	}
	if err := p.userWriter.Close(); err != nil {
		return err
	}
	return p.notificationWriter.Close()
}

// LogPublisher 在未配置 Kafka 时作为同接口的日志替身，使调用方无需感知差异。
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (*LogPublisher) PublishMessageEvent(_ context.Context, ev MessageEvent) {
	log.Info().
		Str("event_type", ev.EventType).
		Str("sender", ev.SenderUsername).
		Uint("message_id", ev.MessageID).
		Msg("kafka not configured, logging message event")
}

func (*LogPublisher) PublishUserEvent(_ context.Context, ev UserEvent) {
	log.Info().
		Str("event_type", ev.EventType).
		Str("username", ev.Username).
		Msg("kafka not configured, logging user event")
}

func (*LogPublisher) PublishNotificationEvent(_ context.Context, ev NotificationEvent) {
	log.Info().
		Str("event_type", ev.EventType).
		Str("recipient", ev.RecipientUsername).
		Msg("kafka not configured, logging notification event")
}

func (*LogPublisher) Close() error { return nil }
