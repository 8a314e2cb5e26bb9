package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/auth"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/models"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc     *service.UserService
	chatroomSvc *service.ChatroomService
	msgSvc      *service.MessageService
	reactionSvc *service.ReactionService
}

func NewHandler(userSvc *service.UserService, chatroomSvc *service.ChatroomService, msgSvc *service.MessageService, reactionSvc *service.ReactionService) *Handler {
	return &Handler{userSvc: userSvc, chatroomSvc: chatroomSvc, msgSvc: msgSvc, reactionSvc: reactionSvc}
}

// writeServiceError 把业务错误映射到稳定错误码与 HTTP 状态码，
// 使客户端能区分业务拒绝与服务不可用。
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrChatroomNotFound),
		errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, service.ErrNotChatroomMember),
		errors.Is(err, service.ErrNotMessageSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "forbidden"})
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "conflict"})
	case errors.Is(err, service.ErrEditWindowExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "edit_window_expired"})
	case errors.Is(err, service.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "storage_unavailable"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "invalid_credentials"})
	case errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrInvalidReactionType),
		errors.Is(err, service.ErrInvalidUserStatus),
		errors.Is(err, service.ErrFileTooLarge),
		errors.Is(err, service.ErrUnsupportedFileType),
		errors.Is(err, service.ErrSelfChatroom):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": "invalid_argument"})
		return 0, false
	}
	return uint(id), true
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Email       string `json:"email"`
		FullName    string `json:"full_name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	user, err := h.userSvc.Register(c.Request.Context(), service.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	result, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMe 返回当前登录用户。
func (h *Handler) GetMe(c *gin.Context) {
	user, err := h.userSvc.GetByID(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUser 按 ID 返回用户。
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.userSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SearchUsers 按用户名子串检索用户，q 为空时等价于列表。
func (h *Handler) SearchUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	users, err := h.userSvc.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// UpdateProfile 更新当前用户的资料字段。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		FullName    *string `json:"full_name"`
		PhoneNumber *string `json:"phone_number"`
		Bio         *string `json:"bio"`
		AvatarURL   *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	user, err := h.userSvc.UpdateProfile(c.Request.Context(), auth.GetUserID(c), service.ProfileUpdate{
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateStatus 更新当前用户的在线状态。
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	user, err := h.userSvc.UpdateStatus(c.Request.Context(), auth.GetUserID(c), models.UserStatus(req.Status))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteMe 删除当前用户及其全部会话数据。
func (h *Handler) DeleteMe(c *gin.Context) {
	if err := h.userSvc.Delete(c.Request.Context(), auth.GetUserID(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// CreateChatroom 获取或创建当前用户与对端用户之间的会话。
func (h *Handler) CreateChatroom(c *gin.Context) {
	var req struct {
		PeerID uint `json:"peer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PeerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	room, err := h.chatroomSvc.GetOrCreate(c.Request.Context(), auth.GetUserID(c), req.PeerID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetChatroom 按 ID 返回会话。
func (h *Handler) GetChatroom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.chatroomSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListChatrooms 返回当前用户的会话列表，按最近活跃倒序。
func (h *Handler) ListChatrooms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rooms, err := h.chatroomSvc.ListForUser(c.Request.Context(), auth.GetUserID(c), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatrooms": rooms})
}

// ChatroomExists 检查当前用户与对端之间是否已有会话。
func (h *Handler) ChatroomExists(c *gin.Context) {
	peerID, err := strconv.ParseUint(c.Query("peer_id"), 10, 64)
	if err != nil || peerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer_id", "code": "invalid_argument"})
		return
	}
	exists, err2 := h.chatroomSvc.ExistsByUsers(c.Request.Context(), auth.GetUserID(c), uint(peerID))
	if err2 != nil {
		writeServiceError(c, err2)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// DeleteChatroom 删除会话及其全部消息、附件与反应。
func (h *Handler) DeleteChatroom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.chatroomSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	userID := auth.GetUserID(c)
	if room.User1.ID != userID && room.User2.ID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this chatroom", "code": "forbidden"})
		return
	}
	if err := h.chatroomSvc.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SendMessage 发送消息：JSON 请求发送文本，multipart 请求发送带附件的消息。
func (h *Handler) SendMessage(c *gin.Context) {
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	senderID := auth.GetUserID(c)

	if c.ContentType() == "multipart/form-data" {
		h.sendWithAttachments(c, chatroomID, senderID)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	msg, err := h.msgSvc.SendText(c.Request.Context(), chatroomID, senderID, req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) sendWithAttachments(c *gin.Context, chatroomID, senderID uint) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form", "code": "invalid_argument"})
		return
	}
	content := c.PostForm("content")
	files := make([]service.FileUpload, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file: " + fh.Filename, "code": "invalid_argument"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file: " + fh.Filename, "code": "invalid_argument"})
			return
		}
		files = append(files, service.FileUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Data:        data,
		})
	}
	msg, err := h.msgSvc.SendWithAttachments(c.Request.Context(), chatroomID, senderID, content, files)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ListMessages 分页返回会话消息；带 before_id 时改为键集翻页。
func (h *Handler) ListMessages(c *gin.Context) {
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if beforeStr := c.Query("before_id"); beforeStr != "" {
		beforeID, err := strconv.ParseUint(beforeStr, 10, 64)
		if err != nil || beforeID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id", "code": "invalid_argument"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		msgs, err2 := h.msgSvc.ListBefore(c.Request.Context(), chatroomID, uint(beforeID), limit)
		if err2 != nil {
			writeServiceError(c, err2)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	msgs, err := h.msgSvc.List(c.Request.Context(), chatroomID, page, size)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// CountMessages 返回会话消息总数。
func (h *Handler) CountMessages(c *gin.Context) {
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	count, err := h.msgSvc.Count(c.Request.Context(), chatroomID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// SearchMessages 在会话内检索消息内容。
func (h *Handler) SearchMessages(c *gin.Context) {
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing search term", "code": "invalid_argument"})
		return
	}
	msgs, err := h.msgSvc.Search(c.Request.Context(), chatroomID, term)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetMessage 按 ID 返回消息。
func (h *Handler) GetMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	msg, err := h.msgSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// EditMessage 编辑消息内容，仅发送者可在编辑窗口内操作。
func (h *Handler) EditMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	msg, err := h.msgSvc.Edit(c.Request.Context(), id, auth.GetUserID(c), req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage 删除消息，仅发送者可操作。
func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.msgSvc.Delete(c.Request.Context(), id, auth.GetUserID(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// UpsertReaction 为消息添加或覆盖当前用户的反应。
func (h *Handler) UpsertReaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": "invalid_argument"})
		return
	}
	reaction, err := h.reactionSvc.Upsert(c.Request.Context(), id, auth.GetUserID(c), models.ReactionType(req.Type))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, reaction)
}

// RemoveReaction 移除当前用户在消息上的反应，幂等。
func (h *Handler) RemoveReaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.reactionSvc.Remove(c.Request.Context(), id, auth.GetUserID(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// ListReactions 返回消息的全部反应；带 type 参数时按类型过滤。
func (h *Handler) ListReactions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if t := c.Query("type"); t != "" {
		reactions, err := h.reactionSvc.ListByMessageAndType(c.Request.Context(), id, models.ReactionType(t))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reactions": reactions})
		return
	}
	reactions, err := h.reactionSvc.ListByMessage(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// GetMyReaction 返回当前用户在消息上的反应。
func (h *Handler) GetMyReaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reaction, err := h.reactionSvc.Get(c.Request.Context(), id, auth.GetUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if reaction == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reaction", "code": "not_found"})
		return
	}
	c.JSON(http.StatusOK, reaction)
}

// CountReactions 返回消息上指定类型的反应数量。
func (h *Handler) CountReactions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t := c.Query("type")
	if t == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing reaction type", "code": "invalid_argument"})
		return
	}
	count, err := h.reactionSvc.CountByType(c.Request.Context(), id, models.ReactionType(t))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
