package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/auth"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/events"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/models"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/storage"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// UserService 封装用户注册、登录、资料与状态相关的业务逻辑。
type UserService struct {
	db    *gorm.DB
	cfg   config.Config
	store storage.BlobStore
	pub   events.Publisher
}

func NewUserService(db *gorm.DB, cfg config.Config, store storage.BlobStore, pub events.Publisher) *UserService {
	return &UserService{db: db, cfg: cfg, store: store, pub: pub}
}

// UserDTO 是对外输出的用户数据。
type UserDTO struct {
	ID          uint              `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email,omitempty"`
	FullName    string            `json:"full_name,omitempty"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	Bio         string            `json:"bio,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Status      models.UserStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

func userToDTO(u *models.User) *UserDTO {
	return &UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
	}
}

type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	FullName    string
	PhoneNumber string
}

// Register 注册新用户，注册成功即视为上线并发出 USER_ONLINE 事件。
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*UserDTO, error) {
	in.Username = strings.TrimSpace(in.Username)
	if n := utf8.RuneCountInString(in.Username); n < 3 || n > 50 {
		return nil, ErrInvalidUsername
	}
	if in.Password == "" || in.Email == "" {
		return nil, ErrInvalidCredentials
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	if err := s.db.Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		FullName:     in.FullName,
		PhoneNumber:  in.PhoneNumber,
		Status:       models.StatusOnline,
	}
	if err := s.db.Create(&user).Error; err != nil {
		// 唯一索引兜底并发注册
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.pub.PublishUserEvent(ctx, events.UserEvent{
		EventType: events.UserOnline,
		Username:  user.Username,
		FullName:  user.FullName,
		Status:    string(user.Status),
		Timestamp: time.Now(),
	})
	return userToDTO(&user), nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken string  `json:"access_token"`
	User        UserDTO `json:"user"`
}

// Login 校验用户名密码并签发访问 token。
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, err := auth.GenerateAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, User: *userToDTO(&user)}, nil
}

func (s *UserService) GetByID(ctx context.Context, userID uint) (*UserDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return userToDTO(&user), nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*UserDTO, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return userToDTO(&user), nil
}

// Search 按用户名子串检索用户（大小写不敏感）。
func (s *UserService) Search(ctx context.Context, term string, limit int) ([]UserDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var users []models.User
	q := s.db.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(term)+"%")
	if err := q.Order("username asc").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]UserDTO, 0, len(users))
	for i := range users {
		out = append(out, *userToDTO(&users[i]))
	}
	return out, nil
}

func (s *UserService) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

type ProfileUpdate struct {
	FullName    *string
	PhoneNumber *string
	Bio         *string
	AvatarURL   *string
}

// UpdateProfile 只更新显式给出的字段，成功后发出 USER_PROFILE_UPDATED 事件。
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*UserDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	fields := make(map[string]any)
	var changed []string
	if in.FullName != nil {
		fields["full_name"] = *in.FullName
		changed = append(changed, "full_name")
	}
	if in.PhoneNumber != nil {
		fields["phone_number"] = *in.PhoneNumber
		changed = append(changed, "phone_number")
	}
	if in.Bio != nil {
		fields["bio"] = *in.Bio
		changed = append(changed, "bio")
	}
	if in.AvatarURL != nil {
		fields["avatar_url"] = *in.AvatarURL
		changed = append(changed, "avatar_url")
	}
	if len(fields) > 0 {
		if err := s.db.Model(&user).Updates(fields).Error; err != nil {
			return nil, err
		}
		if err := s.db.First(&user, userID).Error; err != nil {
			return nil, err
		}
		s.pub.PublishUserEvent(ctx, events.UserEvent{
			EventType:    events.UserProfileUpdated,
			Username:     user.Username,
			FullName:     user.FullName,
			Status:       string(user.Status),
			UpdatedField: strings.Join(changed, ","),
			Timestamp:    time.Now(),
		})
	}
	return userToDTO(&user), nil
}

// UpdateStatus 更新在线状态；转入 ONLINE/OFFLINE 时发出专门的事件类型，
// 其余转换发 USER_STATUS_CHANGED。
func (s *UserService) UpdateStatus(ctx context.Context, userID uint, status models.UserStatus) (*UserDTO, error) {
	if !models.ValidUserStatus(status) {
		return nil, ErrInvalidUserStatus
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	old := user.Status
	if old == status {
		return userToDTO(&user), nil
	}
	if err := s.db.Model(&user).Update("status", status).Error; err != nil {
		return nil, err
	}
	user.Status = status

	eventType := events.UserStatusChanged
	switch status {
	case models.StatusOnline:
		eventType = events.UserOnline
	case models.StatusOffline:
		eventType = events.UserOffline
	}
	s.pub.PublishUserEvent(ctx, events.UserEvent{
		EventType: eventType,
		Username:  user.Username,
		FullName:  user.FullName,
		Status:    string(status),
		OldStatus: string(old),
		NewStatus: string(status),
		Timestamp: time.Now(),
	})
	return userToDTO(&user), nil
}

// Delete 删除用户并级联其全部会话、消息、附件与反应；
// 数据库行在单事务内删除，Blob 清理尽力而为。
func (s *UserService) Delete(ctx context.Context, userID uint) error {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	var locators []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var roomIDs []uint
		if err := tx.Model(&models.Chatroom{}).
			Where("user1_id = ? OR user2_id = ?", userID, userID).
			Pluck("id", &roomIDs).Error; err != nil {
			return err
		}
		for _, roomID := range roomIDs {
			l, err := deleteChatroomCascade(tx, roomID)
			if err != nil {
				return err
			}
			locators = append(locators, l...)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, userID).Error
	})
	if err != nil {
		return err
	}

	removeBlobs(ctx, s.store, s.cfg.StorageTimeout, locators)

	s.pub.PublishUserEvent(ctx, events.UserEvent{
		EventType: events.UserOffline,
		Username:  user.Username,
		Status:    string(models.StatusOffline),
		OldStatus: string(user.Status),
		NewStatus: string(models.StatusOffline),
		Timestamp: time.Now(),
	})
	return nil
}

// removeBlobs 在行删除提交后清理附件对象，失败只记日志。
func removeBlobs(ctx context.Context, store storage.BlobStore, timeout time.Duration, locators []string) {
	for _, locator := range locators {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		if err := store.Remove(sctx, locator); err != nil {
			log.Warn().Err(err).Str("locator", locator).Msg("remove attachment blob")
		}
		cancel()
	}
}
