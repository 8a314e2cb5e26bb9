package events

import "time"

// 三类领域事件各自对应一个 Kafka topic，均为带 event_type 标签的扁平记录。
// 字段命名与下游消费方约定保持一致，不随内部模型变动。

// 消息事件类型。
const (
	MessageSent    = "MESSAGE_SENT"
	MessageDeleted = "MESSAGE_DELETED"
	MessageEdited  = "MESSAGE_EDITED"
)

// 用户事件类型。
const (
	UserOnline         = "USER_ONLINE"
	UserOffline        = "USER_OFFLINE"
	UserStatusChanged  = "USER_STATUS_CHANGED"
	UserProfileUpdated = "USER_PROFILE_UPDATED"
)

// 通知事件类型。
const (
	NewMessage      = "NEW_MESSAGE"
	MessageReaction = "MESSAGE_REACTION"
	UserMention     = "USER_MENTION"
	StatusUpdate    = "STATUS_UPDATE"
)

type MessageEvent struct {
	EventType       string    `json:"event_type"`
	MessageID       uint      `json:"message_id"`
	ChatroomID      uint      `json:"chatroom_id"`
	SenderUsername  string    `json:"sender_username"`
	Content         string    `json:"content"`
	MessageType     string    `json:"message_type"`
	AttachmentURL   string    `json:"attachment_url,omitempty"`
	ReactionType    string    `json:"reaction_type,omitempty"`
	ReactorUsername string    `json:"reactor_username,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type UserEvent struct {
	EventType    string    `json:"event_type"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	Status       string    `json:"status,omitempty"`
	OldStatus    string    `json:"old_status,omitempty"`
	NewStatus    string    `json:"new_status,omitempty"`
	UpdatedField string    `json:"updated_field,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type NotificationEvent struct {
	EventType         string    `json:"event_type"`
	RecipientUsername string    `json:"recipient_username"`
	SenderUsername    string    `json:"sender_username"`
	NotificationType  string    `json:"notification_type"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	ChatroomID        string    `json:"chatroom_id,omitempty"`
	MessageID         string    `json:"message_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
