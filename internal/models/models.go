package models

import (
	"fmt"
	"time"
)

type UserStatus string

const (
	StatusOnline  UserStatus = "ONLINE"
	StatusOffline UserStatus = "OFFLINE"
	StatusAway    UserStatus = "AWAY"
	StatusBusy    UserStatus = "BUSY"
)

// ValidUserStatus 判断状态值是否为已知枚举。
func ValidUserStatus(s UserStatus) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy:
		return true
	}
	return false
}

type User struct {
	ID           uint       `gorm:"primaryKey"`
	Username     string     `gorm:"uniqueIndex;size:50;not null"`
	PasswordHash string     `gorm:"not null"`
	Email        string     `gorm:"uniqueIndex;size:128;not null"`
	FullName     string     `gorm:"size:128"`
	PhoneNumber  string     `gorm:"size:32"`
	Bio          string     `gorm:"size:200"`
	AvatarURL    string     `gorm:"size:512"`
	Status       UserStatus `gorm:"size:16;not null;default:OFFLINE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chatroom 表示两个用户之间唯一的一对一会话。
// PairKey 是对 (User1ID, User2ID) 的规范化编码，与请求顺序无关，
// 由唯一索引保证同一对用户至多存在一个会话。
type Chatroom struct {
	ID        uint   `gorm:"primaryKey"`
	User1ID   uint   `gorm:"index;not null"`
	User2ID   uint   `gorm:"index;not null"`
	PairKey   string `gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatroomPairKey 生成与用户顺序无关的会话键。
func ChatroomPairKey(user1ID, user2ID uint) string {
	if user1ID > user2ID {
		user1ID, user2ID = user2ID, user1ID
	}
	return fmt.Sprintf("%d:%d", user1ID, user2ID)
}

// HasMember 检查用户是否属于该会话。
func (c *Chatroom) HasMember(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherMember 返回会话中另一个成员的 ID。
func (c *Chatroom) OtherMember(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageVideo MessageType = "VIDEO"
)

// Message 的 UpdatedAt 仅在编辑时手动写入，创建时保持为空。
type Message struct {
	ID          uint        `gorm:"primaryKey"`
	ChatroomID  uint        `gorm:"index:idx_msg_chatroom;not null"`
	SenderID    uint        `gorm:"index;not null"`
	Content     string      `gorm:"type:text;not null"`
	MessageType MessageType `gorm:"size:16;not null"`
	CreatedAt   time.Time
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false"`
}

type AttachmentType string

const (
	AttachmentImage AttachmentType = "IMAGE"
	AttachmentVideo AttachmentType = "VIDEO"
)

// Attachment 的 Locator 是 Blob 存储返回的定位符（本地路径或对象键）。
type Attachment struct {
	ID             uint           `gorm:"primaryKey"`
	MessageID      uint           `gorm:"index;not null"`
	FileName       string         `gorm:"size:256;not null"`
	Locator        string         `gorm:"size:512;not null"`
	ContentType    string         `gorm:"size:128;not null"`
	FileSize       int64          `gorm:"not null"`
	AttachmentType AttachmentType `gorm:"size:16;not null"`
	CreatedAt      time.Time
}

type ReactionType string

const (
	ReactionThumbUp   ReactionType = "THUMBUP"
	ReactionLove      ReactionType = "LOVE"
	ReactionCrying    ReactionType = "CRYING"
	ReactionSurprised ReactionType = "SURPRISED"
)

// Emoji 返回反应类型对应的展示符号。
func (t ReactionType) Emoji() string {
	switch t {
	case ReactionThumbUp:
		return "👍"
	case ReactionLove:
		return "❤️"
	case ReactionCrying:
		return "😢"
	case ReactionSurprised:
		return "😲"
	}
	return ""
}

// ValidReactionType 判断反应类型是否为已知枚举。
func ValidReactionType(t ReactionType) bool {
	return t.Emoji() != ""
}

// Reaction 对 (MessageID, UserID) 建唯一索引，保证每人每条消息至多一个反应。
type Reaction struct {
	ID           uint         `gorm:"primaryKey"`
	MessageID    uint         `gorm:"uniqueIndex:idx_reaction_message_user;not null"`
	UserID       uint         `gorm:"uniqueIndex:idx_reaction_message_user;not null"`
	ReactionType ReactionType `gorm:"size:16;not null"`
	CreatedAt    time.Time
}
