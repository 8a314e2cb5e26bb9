package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到稳定的错误码与 HTTP 状态码。
var (
	// not found
	ErrUserNotFound     = errors.New("user not found")
	ErrChatroomNotFound = errors.New("chatroom not found")
	ErrMessageNotFound  = errors.New("message not found")

	// forbidden
	ErrNotChatroomMember = errors.New("user is not a member of this chatroom")
	ErrNotMessageSender  = errors.New("user can only modify their own messages")

	// invalid argument
	ErrInvalidUsername     = errors.New("username must be between 3 and 50 characters")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmptyContent        = errors.New("message content must not be empty")
	ErrInvalidReactionType = errors.New("unknown reaction type")
	ErrInvalidUserStatus   = errors.New("unknown user status")
	ErrFileTooLarge        = errors.New("file size exceeds upload limit")
	ErrUnsupportedFileType = errors.New("only image and video files are allowed")
	ErrSelfChatroom        = errors.New("chatroom requires two distinct users")

	// conflict
	ErrUsernameTaken = errors.New("username taken")
	ErrEmailTaken    = errors.New("email taken")

	// invalid state
	ErrEditWindowExpired = errors.New("message can only be edited within the edit window")

	// dependency unavailable
	ErrStorageUnavailable = errors.New("attachment storage unavailable")
)
