package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/events"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/models"
	"gorm.io/gorm"
)

// ReactionService 维护每条消息上每个用户至多一个反应的 upsert 语义。
type ReactionService struct {
	db  *gorm.DB
	pub events.Publisher
}

func NewReactionService(db *gorm.DB, pub events.Publisher) *ReactionService {
	return &ReactionService{db: db, pub: pub}
}

// ReactionDTO 是对外输出的反应数据。
type ReactionDTO struct {
	ID           uint                `json:"id"`
	MessageID    uint                `json:"message_id"`
	UserID       uint                `json:"user_id"`
	Username     string              `json:"username"`
	ReactionType models.ReactionType `json:"reaction_type"`
	Emoji        string              `json:"emoji"`
	CreatedAt    time.Time           `json:"created_at"`
}

func reactionToDTO(r *models.Reaction, username string) *ReactionDTO {
	return &ReactionDTO{
		ID:           r.ID,
		MessageID:    r.MessageID,
		UserID:       r.UserID,
		Username:     username,
		ReactionType: r.ReactionType,
		Emoji:        r.ReactionType.Emoji(),
		CreatedAt:    r.CreatedAt,
	}
}

func (s *ReactionService) loadMessageAndUser(messageID, userID uint) (*models.Message, *models.User, error) {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, err
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	return &msg, &user, nil
}

// Upsert 插入或原地覆盖用户对消息的反应：同一 (消息, 用户) 至多一行，
// 并发插入由唯一索引拦截，冲突时回读获胜行再覆盖类型。
func (s *ReactionService) Upsert(ctx context.Context, messageID, userID uint, reactionType models.ReactionType) (*ReactionDTO, error) {
	if !models.ValidReactionType(reactionType) {
		return nil, ErrInvalidReactionType
	}
	msg, user, err := s.loadMessageAndUser(messageID, userID)
	if err != nil {
		return nil, err
	}

	var reaction models.Reaction
	err = s.db.Where("message_id = ? AND user_id = ?", messageID, userID).First(&reaction).Error
	switch {
	case err == nil:
		if reaction.ReactionType != reactionType {
			if err := s.db.Model(&reaction).Update("reaction_type", reactionType).Error; err != nil {
				return nil, err
			}
			reaction.ReactionType = reactionType
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		reaction = models.Reaction{MessageID: messageID, UserID: userID, ReactionType: reactionType}
		if createErr := s.db.Create(&reaction).Error; createErr != nil {
			// 并发反应：回读已有行并覆盖类型。
			if err := s.db.Where("message_id = ? AND user_id = ?", messageID, userID).
				First(&reaction).Error; err != nil {
				return nil, createErr
			}
			if reaction.ReactionType != reactionType {
				if err := s.db.Model(&reaction).Update("reaction_type", reactionType).Error; err != nil {
					return nil, err
				}
				reaction.ReactionType = reactionType
			}
		}
	default:
		return nil, err
	}

	s.notifyReaction(ctx, msg, user, reactionType)
	return reactionToDTO(&reaction, user.Username), nil
}

// Remove 删除用户在消息上的反应；没有反应时静默成功。
func (s *ReactionService) Remove(ctx context.Context, messageID, userID uint) error {
	if _, _, err := s.loadMessageAndUser(messageID, userID); err != nil {
		return err
	}
	return s.db.Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&models.Reaction{}).Error
}

// Get 返回用户在消息上的反应，不存在时返回 (nil, nil)。
func (s *ReactionService) Get(ctx context.Context, messageID, userID uint) (*ReactionDTO, error) {
	_, user, err := s.loadMessageAndUser(messageID, userID)
	if err != nil {
		return nil, err
	}
	var reaction models.Reaction
	err = s.db.Where("message_id = ? AND user_id = ?", messageID, userID).First(&reaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reactionToDTO(&reaction, user.Username), nil
}

func (s *ReactionService) requireMessage(messageID uint) error {
	var count int64
	if err := s.db.Model(&models.Message{}).Where("id = ?", messageID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *ReactionService) ListByMessage(ctx context.Context, messageID uint) ([]ReactionDTO, error) {
	if err := s.requireMessage(messageID); err != nil {
		return nil, err
	}
	var reactions []models.Reaction
	if err := s.db.Where("message_id = ?", messageID).Order("id asc").Find(&reactions).Error; err != nil {
		return nil, err
	}
	return s.toDTOs(reactions)
}

func (s *ReactionService) ListByMessageAndType(ctx context.Context, messageID uint, reactionType models.ReactionType) ([]ReactionDTO, error) {
	if !models.ValidReactionType(reactionType) {
		return nil, ErrInvalidReactionType
	}
	if err := s.requireMessage(messageID); err != nil {
		return nil, err
	}
	var reactions []models.Reaction
	err := s.db.Where("message_id = ? AND reaction_type = ?", messageID, reactionType).
		Order("id asc").Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(reactions)
}

func (s *ReactionService) CountByType(ctx context.Context, messageID uint, reactionType models.ReactionType) (int64, error) {
	if !models.ValidReactionType(reactionType) {
		return 0, ErrInvalidReactionType
	}
	if err := s.requireMessage(messageID); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.Model(&models.Reaction{}).
		Where("message_id = ? AND reaction_type = ?", messageID, reactionType).Count(&count).Error
	return count, err
}

func (s *ReactionService) toDTOs(reactions []models.Reaction) ([]ReactionDTO, error) {
	seen := make(map[uint]struct{}, len(reactions))
	userIDs := make([]uint, 0, len(reactions))
	for _, r := range reactions {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		userIDs = append(userIDs, r.UserID)
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
	out := make([]ReactionDTO, 0, len(reactions))
	for i := range reactions {
		out = append(out, *reactionToDTO(&reactions[i], usernames[reactions[i].UserID]))
	}
	return out, nil
}

// notifyReaction 向消息发送者发出 MESSAGE_REACTION 通知；自己给自己点反应不通知。
func (s *ReactionService) notifyReaction(ctx context.Context, msg *models.Message, reactor *models.User, reactionType models.ReactionType) {
	if msg.SenderID == reactor.ID {
		return
	}
	var sender models.User
	if err := s.db.First(&sender, msg.SenderID).Error; err != nil {
		return
	}
	s.pub.PublishNotificationEvent(ctx, events.NotificationEvent{
		EventType:         events.MessageReaction,
		RecipientUsername: sender.Username,
		SenderUsername:    reactor.Username,
		NotificationType:  "PUSH",
		Title:             reactor.Username + " reacted to your message",
		Message:           reactionType.Emoji(),
		ChatroomID:        strconv.FormatUint(uint64(msg.ChatroomID), 10),
		MessageID:         strconv.FormatUint(uint64(msg.ID), 10),
		Timestamp:         time.Now(),
	})
}
