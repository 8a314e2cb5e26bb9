package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/events"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/metrics"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/models"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/storage"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MessageService 封装消息的创建、限时编辑、删除、附件绑定与查询。
// 消息行与会话活跃时间戳在单事务内提交；事件发布在提交后进行，失败不回传。
type MessageService struct {
	db    *gorm.DB
	cfg   config.Config
	store storage.BlobStore
	pub   events.Publisher
}

func NewMessageService(db *gorm.DB, cfg config.Config, store storage.BlobStore, pub events.Publisher) *MessageService {
	return &MessageService{db: db, cfg: cfg, store: store, pub: pub}
}

// AttachmentDTO 是对外输出的附件数据。
type AttachmentDTO struct {
	ID             uint                  `json:"id"`
	FileName       string                `json:"file_name"`
	Locator        string                `json:"locator"`
	ContentType    string                `json:"content_type"`
	FileSize       int64                 `json:"file_size"`
	AttachmentType models.AttachmentType `json:"attachment_type"`
	CreatedAt      time.Time             `json:"created_at"`
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID             uint               `json:"id"`
	ChatroomID     uint               `json:"chatroom_id"`
	SenderID       uint               `json:"sender_id"`
	SenderUsername string             `json:"sender_username"`
	Content        string             `json:"content"`
	MessageType    models.MessageType `json:"message_type"`
	Attachments    []AttachmentDTO    `json:"attachments,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      *time.Time         `json:"updated_at,omitempty"`
}

// FileUpload 是一次附件上传的内容与声明元数据。
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
}

func attachmentToDTO(a *models.Attachment) AttachmentDTO {
	return AttachmentDTO{
		ID:             a.ID,
		FileName:       a.FileName,
		Locator:        a.Locator,
		ContentType:    a.ContentType,
		FileSize:       a.FileSize,
		AttachmentType: a.AttachmentType,
		CreatedAt:      a.CreatedAt,
	}
}

func messageToDTO(m *models.Message, senderUsername string, atts []models.Attachment) *MessageDTO {
	dto := &MessageDTO{
		ID:             m.ID,
		ChatroomID:     m.ChatroomID,
		SenderID:       m.SenderID,
		SenderUsername: senderUsername,
		Content:        m.Content,
		MessageType:    m.MessageType,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for i := range atts {
		dto.Attachments = append(dto.Attachments, attachmentToDTO(&atts[i]))
	}
	return dto
}

// validateChatroomAndSender 确认会话存在、发送者存在且是会话成员。
func (s *MessageService) validateChatroomAndSender(chatroomID, senderID uint) (*models.Chatroom, *models.User, error) {
	var room models.Chatroom
	if err := s.db.First(&room, chatroomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrChatroomNotFound
		}
		return nil, nil, err
	}
	var sender models.User
	if err := s.db.First(&sender, senderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	if !room.HasMember(senderID) {
		return nil, nil, ErrNotChatroomMember
	}
	return &room, &sender, nil
}

// SendText 发送文本消息：消息插入与会话时间戳推进同事务提交，
// 提交后发出 MESSAGE_SENT 与发给对端的 NEW_MESSAGE 通知。
func (s *MessageService) SendText(ctx context.Context, chatroomID, senderID uint, content string) (*MessageDTO, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	room, sender, err := s.validateChatroomAndSender(chatroomID, senderID)
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ChatroomID:  chatroomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: models.MessageText,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chatroom{}).Where("id = ?", room.ID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSentTotal.Inc()

	s.publishMessageEvent(ctx, &msg, sender.Username, events.MessageSent, "")
	s.notifyNewMessage(ctx, &msg, room, sender)
	return messageToDTO(&msg, sender.Username, nil), nil
}

// SendWithAttachments 发送带附件的消息。所有文件先整体校验（大小与类型），
// 消息行与时间戳推进先行提交，之后逐个落盘并绑定附件行。
// 某个文件存储失败对本次请求是致命的，但已提交的消息行与已绑定的附件保持原样，
// 不做补偿回滚（已知的非原子行为）。
func (s *MessageService) SendWithAttachments(ctx context.Context, chatroomID, senderID uint, content string, files []FileUpload) (*MessageDTO, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in request", ErrUnsupportedFileType)
	}
	room, sender, err := s.validateChatroomAndSender(chatroomID, senderID)
	if err != nil {
		return nil, err
	}

	msgType := models.MessageImage
	for _, f := range files {
		if f.Size > s.cfg.MaxUploadBytes {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, f.FileName)
		}
		if !strings.HasPrefix(f.ContentType, "image/") && !strings.HasPrefix(f.ContentType, "video/") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, f.FileName)
		}
		if strings.HasPrefix(f.ContentType, "video/") {
			msgType = models.MessageVideo
		}
	}

	msg := models.Message{
		ChatroomID:  chatroomID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chatroom{}).Where("id = ?", room.ID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}

	var atts []models.Attachment
	for _, f := range files {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
		locator, err := s.store.Save(sctx, f.Data, f.ContentType, f.FileName)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("file", f.FileName).Uint("message_id", msg.ID).
				Msg("store attachment blob")
			return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, f.FileName)
		}
		attType := models.AttachmentImage
		if strings.HasPrefix(f.ContentType, "video/") {
			attType = models.AttachmentVideo
		}
		att := models.Attachment{
			MessageID:      msg.ID,
			FileName:       f.FileName,
			Locator:        locator,
			ContentType:    f.ContentType,
			FileSize:       f.Size,
			AttachmentType: attType,
		}
		if err := s.db.Create(&att).Error; err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}
	metrics.MessagesSentTotal.Inc()

	s.publishMessageEvent(ctx, &msg, sender.Username, events.MessageSent, atts[0].Locator)
	s.notifyNewMessage(ctx, &msg, room, sender)
	return messageToDTO(&msg, sender.Username, atts), nil
}

func (s *MessageService) GetByID(ctx context.Context, messageID uint) (*MessageDTO, error) {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	var atts []models.Attachment
	if err := s.db.Where("message_id = ?", msg.ID).Find(&atts).Error; err != nil {
		return nil, err
	}
	var sender models.User
	if err := s.db.First(&sender, msg.SenderID).Error; err != nil {
		return nil, err
	}
	return messageToDTO(&msg, sender.Username, atts), nil
}

func (s *MessageService) requireChatroom(chatroomID uint) error {
	var count int64
	if err := s.db.Model(&models.Chatroom{}).Where("id = ?", chatroomID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrChatroomNotFound
	}
	return nil
}

// List 分页查询会话消息，按创建时间倒序。page 从 0 开始。
func (s *MessageService) List(ctx context.Context, chatroomID uint, page, size int) ([]MessageDTO, error) {
	if err := s.requireChatroom(chatroomID); err != nil {
		return nil, err
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	if page < 0 {
		page = 0
	}
	var msgs []models.Message
	err := s.db.Where("chatroom_id = ?", chatroomID).
		Order("created_at desc").Offset(page * size).Limit(size).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(msgs)
}

// ListBefore 返回严格早于给定消息 ID 的消息，按创建时间倒序，条数受 limit 约束。
func (s *MessageService) ListBefore(ctx context.Context, chatroomID, beforeID uint, limit int) ([]MessageDTO, error) {
	if err := s.requireChatroom(chatroomID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []models.Message
	err := s.db.Where("chatroom_id = ? AND id < ?", chatroomID, beforeID).
		Order("created_at desc").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(msgs)
}

func (s *MessageService) Count(ctx context.Context, chatroomID uint) (int64, error) {
	if err := s.requireChatroom(chatroomID); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.Model(&models.Message{}).Where("chatroom_id = ?", chatroomID).Count(&count).Error
	return count, err
}

// Search 在会话内做大小写不敏感的内容子串匹配，按创建时间倒序。
func (s *MessageService) Search(ctx context.Context, chatroomID uint, term string) ([]MessageDTO, error) {
	if err := s.requireChatroom(chatroomID); err != nil {
		return nil, err
	}
	var msgs []models.Message
	err := s.db.Where("chatroom_id = ? AND LOWER(content) LIKE ?", chatroomID, "%"+strings.ToLower(term)+"%").
		Order("created_at desc").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(msgs)
}

// Edit 仅允许发送者在编辑窗口内修改内容；到达窗口边界即拒绝。
func (s *MessageService) Edit(ctx context.Context, messageID, requesterID uint, newContent string) (*MessageDTO, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, ErrEmptyContent
	}
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, ErrNotMessageSender
	}
	if time.Since(msg.CreatedAt) >= s.cfg.EditWindow {
		return nil, ErrEditWindowExpired
	}

	now := time.Now()
	err := s.db.Model(&msg).Updates(map[string]any{
		"content":    newContent,
		"updated_at": now,
	}).Error
	if err != nil {
		return nil, err
	}
	msg.Content = newContent
	msg.UpdatedAt = &now

	var sender models.User
	if err := s.db.First(&sender, msg.SenderID).Error; err != nil {
		return nil, err
	}
	s.publishMessageEvent(ctx, &msg, sender.Username, events.MessageEdited, "")
	return messageToDTO(&msg, sender.Username, nil), nil
}

// Delete 仅允许发送者删除：反应、附件行与消息行同事务删除，
// 提交后尽力清理 Blob 并发出 MESSAGE_DELETED。
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID uint) error {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if msg.SenderID != requesterID {
		return ErrNotMessageSender
	}
	var atts []models.Attachment
	if err := s.db.Where("message_id = ?", messageID).Find(&atts).Error; err != nil {
		return err
	}
	var sender models.User
	if err := s.db.First(&sender, msg.SenderID).Error; err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, messageID).Error
	})
	if err != nil {
		return err
	}

	locators := make([]string, 0, len(atts))
	for i := range atts {
		locators = append(locators, atts[i].Locator)
	}
	removeBlobs(ctx, s.store, s.cfg.StorageTimeout, locators)

	attachmentURL := ""
	if len(atts) > 0 {
		attachmentURL = atts[0].Locator
	}
	s.publishMessageEvent(ctx, &msg, sender.Username, events.MessageDeleted, attachmentURL)
	return nil
}

// toDTOs 批量转换消息并补全发送者用户名与附件。
func (s *MessageService) toDTOs(msgs []models.Message) ([]MessageDTO, error) {
	usernames, err := s.resolveUsernames(msgs)
	if err != nil {
		return nil, err
	}
	attsByMsg, err := s.resolveAttachments(msgs)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		out = append(out, *messageToDTO(m, usernames[m.SenderID], attsByMsg[m.ID]))
	}
	return out, nil
}

// resolveUsernames 批量获取消息涉及的发送者用户名。
func (s *MessageService) resolveUsernames(msgs []models.Message) (map[uint]string, error) {
	seen := make(map[uint]struct{}, len(msgs))
	userIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		userIDs = append(userIDs, m.SenderID)
	}

	usernames := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	return usernames, nil
}

// resolveAttachments 批量获取消息的附件。
func (s *MessageService) resolveAttachments(msgs []models.Message) (map[uint][]models.Attachment, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	msgIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		msgIDs = append(msgIDs, m.ID)
	}
	var atts []models.Attachment
	if err := s.db.Where("message_id IN ?", msgIDs).Find(&atts).Error; err != nil {
		return nil, err
	}
	byMsg := make(map[uint][]models.Attachment, len(msgs))
	for _, a := range atts {
		byMsg[a.MessageID] = append(byMsg[a.MessageID], a)
	}
	return byMsg, nil
}

func (s *MessageService) publishMessageEvent(ctx context.Context, msg *models.Message, senderUsername, eventType, attachmentURL string) {
	s.pub.PublishMessageEvent(ctx, events.MessageEvent{
		EventType:      eventType,
		MessageID:      msg.ID,
		ChatroomID:     msg.ChatroomID,
		SenderUsername: senderUsername,
		Content:        msg.Content,
		MessageType:    string(msg.MessageType),
		AttachmentURL:  attachmentURL,
		Timestamp:      time.Now(),
	})
}

// notifyNewMessage 向会话另一成员发出 NEW_MESSAGE 通知，内容截取前 50 个字符。
func (s *MessageService) notifyNewMessage(ctx context.Context, msg *models.Message, room *models.Chatroom, sender *models.User) {
	var recipient models.User
	if err := s.db.First(&recipient, room.OtherMember(sender.ID)).Error; err != nil {
		log.Warn().Err(err).Uint("chatroom_id", room.ID).Msg("load notification recipient")
		return
	}
	s.pub.PublishNotificationEvent(ctx, events.NotificationEvent{
		EventType:         events.NewMessage,
		RecipientUsername: recipient.Username,
		SenderUsername:    sender.Username,
		NotificationType:  "PUSH",
		Title:             "New message from " + sender.Username,
		Message:           snippet(msg.Content, 50),
		ChatroomID:        strconv.FormatUint(uint64(room.ID), 10),
		MessageID:         strconv.FormatUint(uint64(msg.ID), 10),
		Timestamp:         time.Now(),
	})
}

func snippet(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
