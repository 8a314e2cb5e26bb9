package service

import (
	"context"
	"errors"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/models"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/storage"
	"gorm.io/gorm"
)

// ChatroomService 维护无序用户对到会话的唯一映射，并负责会话的级联删除。
type ChatroomService struct {
	db    *gorm.DB
	cfg   config.Config
	store storage.BlobStore
}

func NewChatroomService(db *gorm.DB, cfg config.Config, store storage.BlobStore) *ChatroomService {
	return &ChatroomService{db: db, cfg: cfg, store: store}
}

// ChatroomDTO 是对外输出的会话数据。
type ChatroomDTO struct {
	ID        uint      `json:"id"`
	User1     UserDTO   `json:"user1"`
	User2     UserDTO   `json:"user2"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *ChatroomService) toDTO(room *models.Chatroom) (*ChatroomDTO, error) {
	var users []models.User
	if err := s.db.Where("id IN ?", []uint{room.User1ID, room.User2ID}).Find(&users).Error; err != nil {
		return nil, err
	}
	dto := &ChatroomDTO{ID: room.ID, CreatedAt: room.CreatedAt, UpdatedAt: room.UpdatedAt}
	for i := range users {
		if users[i].ID == room.User1ID {
			dto.User1 = *userToDTO(&users[i])
		} else {
			dto.User2 = *userToDTO(&users[i])
		}
	}
	return dto, nil
}

func (s *ChatroomService) requireUser(userID uint) error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetOrCreate 查找两个用户之间的会话，不存在则创建。
// 依赖 pair_key 唯一索引兜底并发创建：插入失败时回读获胜者，不向调用方暴露冲突。
func (s *ChatroomService) GetOrCreate(ctx context.Context, user1ID, user2ID uint) (*ChatroomDTO, error) {
	if user1ID == user2ID {
		return nil, ErrSelfChatroom
	}
	if err := s.requireUser(user1ID); err != nil {
		return nil, err
	}
	if err := s.requireUser(user2ID); err != nil {
		return nil, err
	}

	key := models.ChatroomPairKey(user1ID, user2ID)
	var room models.Chatroom
	err := s.db.Where("pair_key = ?", key).First(&room).Error
	if err == nil {
		return s.toDTO(&room)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	room = models.Chatroom{User1ID: user1ID, User2ID: user2ID, PairKey: key}
	if createErr := s.db.Create(&room).Error; createErr != nil {
		// 并发首联：另一请求已插入，回读其结果。
		var winner models.Chatroom
		if err := s.db.Where("pair_key = ?", key).First(&winner).Error; err != nil {
			return nil, createErr
		}
		room = winner
	}
	return s.toDTO(&room)
}

func (s *ChatroomService) GetByID(ctx context.Context, chatroomID uint) (*ChatroomDTO, error) {
	var room models.Chatroom
	if err := s.db.First(&room, chatroomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatroomNotFound
		}
		return nil, err
	}
	return s.toDTO(&room)
}

// GetByUsers 按用户对查会话，顺序无关。
func (s *ChatroomService) GetByUsers(ctx context.Context, user1ID, user2ID uint) (*ChatroomDTO, error) {
	if err := s.requireUser(user1ID); err != nil {
		return nil, err
	}
	if err := s.requireUser(user2ID); err != nil {
		return nil, err
	}
	var room models.Chatroom
	err := s.db.Where("pair_key = ?", models.ChatroomPairKey(user1ID, user2ID)).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatroomNotFound
		}
		return nil, err
	}
	return s.toDTO(&room)
}

// ListForUser 返回用户参与的全部会话，按最近活跃时间倒序。
func (s *ChatroomService) ListForUser(ctx context.Context, userID uint, limit int) ([]ChatroomDTO, error) {
	if err := s.requireUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var rooms []models.Chatroom
	err := s.db.Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at desc").Limit(limit).Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	out := make([]ChatroomDTO, 0, len(rooms))
	for i := range rooms {
		dto, err := s.toDTO(&rooms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

func (s *ChatroomService) ExistsByUsers(ctx context.Context, user1ID, user2ID uint) (bool, error) {
	if err := s.requireUser(user1ID); err != nil {
		return false, err
	}
	if err := s.requireUser(user2ID); err != nil {
		return false, err
	}
	var count int64
	err := s.db.Model(&models.Chatroom{}).
		Where("pair_key = ?", models.ChatroomPairKey(user1ID, user2ID)).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete 删除会话：消息、反应、附件行在单事务内随会话一起删除，
// Blob 清理在提交后尽力而为。
func (s *ChatroomService) Delete(ctx context.Context, chatroomID uint) error {
	var room models.Chatroom
	if err := s.db.First(&room, chatroomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatroomNotFound
		}
		return err
	}

	var locators []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		l, err := deleteChatroomCascade(tx, chatroomID)
		locators = l
		return err
	})
	if err != nil {
		return err
	}
	removeBlobs(ctx, s.store, s.cfg.StorageTimeout, locators)
	return nil
}

// deleteChatroomCascade 在事务内删除会话及其子实体（先子后父），
// 返回待清理的附件定位符。
func deleteChatroomCascade(tx *gorm.DB, chatroomID uint) ([]string, error) {
	var msgIDs []uint
	if err := tx.Model(&models.Message{}).Where("chatroom_id = ?", chatroomID).
		Pluck("id", &msgIDs).Error; err != nil {
		return nil, err
	}
	var locators []string
	if len(msgIDs) > 0 {
		if err := tx.Model(&models.Attachment{}).Where("message_id IN ?", msgIDs).
			Pluck("locator", &locators).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("message_id IN ?", msgIDs).Delete(&models.Reaction{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("message_id IN ?", msgIDs).Delete(&models.Attachment{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("chatroom_id = ?", chatroomID).Delete(&models.Message{}).Error; err != nil {
			return nil, err
		}
	}
	return locators, tx.Delete(&models.Chatroom{}, chatroomID).Error
}
