package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// downstream consumers rely on the exact field names, pin them here
func TestMessageEventWireFormat(t *testing.T) {
	ev := MessageEvent{
		EventType:      MessageSent,
		MessageID:      7,
		ChatroomID:     3,
		SenderUsername: "alice",
		Content:        "hi",
		MessageType:    "TEXT",
		Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"event_type", "message_id", "chatroom_id", "sender_username", "content", "message_type", "timestamp"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing field %q in %s", key, b)
		}
	}
	if _, ok := m["attachment_url"]; ok {
		t.Errorf("empty attachment_url serialized: %s", b)
	}
	if m["event_type"] != "MESSAGE_SENT" {
		t.Errorf("event_type = %v", m["event_type"])
	}
}

func TestNotificationEventWireFormat(t *testing.T) {
	ev := NotificationEvent{
		EventType:         NewMessage,
		RecipientUsername: "bob",
		SenderUsername:    "alice",
		NotificationType:  "PUSH",
		Title:             "New message from alice",
		Message:           "hi",
		ChatroomID:        "3",
		MessageID:         "7",
		Timestamp:         time.Now(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// chatroom and message ids travel as strings
	if m["chatroom_id"] != "3" || m["message_id"] != "7" {
		t.Errorf("id fields = %v, %v, want strings", m["chatroom_id"], m["message_id"])
	}
	if m["recipient_username"] != "bob" {
		t.Errorf("recipient_username = %v", m["recipient_username"])
	}
}

func TestLogPublisherIsSafeWithoutKafka(t *testing.T) {
	var pub Publisher = NewLogPublisher()
	ctx := context.Background()

	pub.PublishMessageEvent(ctx, MessageEvent{EventType: MessageSent})
	pub.PublishUserEvent(ctx, UserEvent{EventType: UserOnline})
	pub.PublishNotificationEvent(ctx, NotificationEvent{EventType: NewMessage})
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisherSwallowsBrokerErrors(t *testing.T) {
	// no broker listens here; publish must log and return, never error out
	var pub Publisher = NewKafkaPublisher(
		[]string{"127.0.0.1:1"},
		"message-events", "user-events", "notification-events",
		100*time.Millisecond,
	)
	defer pub.Close()

	pub.PublishMessageEvent(context.Background(), MessageEvent{EventType: MessageSent, MessageID: 1})
	pub.PublishUserEvent(context.Background(), UserEvent{EventType: UserOffline, Username: "alice"})
}
