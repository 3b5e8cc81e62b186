package service

import "errors"

// 错误分类，handler 通过 errors.Is 映射到 HTTP 状态码。
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Error 携带可直接返回给客户端的文案，并归属于某个分类。
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// 业务层具体错误。
var (
	ErrEmailTaken         = newError(ErrConflict, "User already exists")
	ErrInvalidCredentials = newError(ErrUnauthorized, "Incorrect email or password")
	ErrUserNotFound       = newError(ErrNotFound, "User not found")
	ErrNotOwner           = newError(ErrForbidden, "You can only modify your own account")

	ErrPeerRequired = newError(ErrValidation, "UserId is required")
	ErrSelfChat     = newError(ErrValidation, "Cannot open a chat with yourself")
	ErrChatRequired = newError(ErrValidation, "ChatId is required")
	ErrChatExists   = newError(ErrConflict, "Chat already exists")
	ErrChatNotFound = newError(ErrNotFound, "Chat not found")
)
